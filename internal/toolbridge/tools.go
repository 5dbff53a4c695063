package toolbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
	"github.com/agentlink-protocol/agentlink/pkg/client"
)

// ToolDefinition is the MCP tool descriptor sent in tools/list responses.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func ok(text string) (string, bool)   { return text, false }
func fail(text string) (string, bool) { return text, true }
func failf(format string, a ...any) (string, bool) {
	return fmt.Sprintf(format, a...), true
}

// pollEvery is how often a blocking send re-checks task state while waiting
// for a result.
const pollEvery = 2 * time.Second

// ToolRegistry holds the A2A client and the definitions/handlers for all tools.
type ToolRegistry struct {
	c    *client.Client
	defs []ToolDefinition
}

// NewToolRegistry creates a ToolRegistry backed by the given A2A client.
func NewToolRegistry(c *client.Client) *ToolRegistry {
	r := &ToolRegistry{c: c}
	r.defs = []ToolDefinition{
		{
			Name: "a2a_discover_agent",
			Description: "Discover an A2A agent by fetching its agent card from the well-known path. " +
				"Returns the card: name, description, skills, and capabilities. " +
				"The card is cached, so later sends to the same agent skip this step.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Base URL of the agent, e.g. https://agent.example.com",
					},
				},
				"required": []string{"url"},
			},
		},
		{
			Name: "a2a_list_discovered_agents",
			Description: "List all A2A agents discovered so far, in discovery order, " +
				"with their names, URLs, and skills. Use this to see which agents are available to send tasks to.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name: "a2a_send_message",
			Description: "Send a text message to an A2A agent as a task. The agent is discovered first " +
				"if it is not already cached. Waits for the task to reach a final state and returns " +
				"the outcome with any produced artifacts, or the agent's direct reply for synchronous agents.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Base URL of the agent to send to",
					},
					"message": map[string]any{
						"type":        "string",
						"description": "The text message to send",
					},
				},
				"required": []string{"url", "message"},
			},
		},
	}
	return r
}

// Definitions returns the list of tool definitions for tools/list responses.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	return r.defs
}

// Call dispatches a tool call by name and returns (output text, isError).
func (r *ToolRegistry) Call(ctx context.Context, name string, args json.RawMessage) (string, bool) {
	switch name {
	case "a2a_discover_agent":
		return r.discoverAgent(ctx, args)
	case "a2a_list_discovered_agents":
		return r.listDiscoveredAgents()
	case "a2a_send_message":
		return r.sendMessage(ctx, args)
	default:
		return failf("unknown tool: %q", name)
	}
}

// ── tool handlers ────────────────────────────────────────────────────────────

func (r *ToolRegistry) discoverAgent(ctx context.Context, args json.RawMessage) (string, bool) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil || in.URL == "" {
		return fail("url is required")
	}

	card, err := r.c.DiscoverAgent(ctx, in.URL)
	if err != nil {
		return failf("discovery failed: %v", err)
	}

	out, _ := json.MarshalIndent(card, "", "  ")
	return ok(string(out))
}

func (r *ToolRegistry) listDiscoveredAgents() (string, bool) {
	agents := r.c.ListDiscoveredAgents()
	if len(agents) == 0 {
		return ok("No agents discovered yet. Use a2a_discover_agent first.")
	}

	out, _ := json.MarshalIndent(agents, "", "  ")
	return ok(string(out))
}

func (r *ToolRegistry) sendMessage(ctx context.Context, args json.RawMessage) (string, bool) {
	var in struct {
		URL     string `json:"url"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(args, &in); err != nil || in.URL == "" || in.Message == "" {
		return fail("url and message are required")
	}

	handle, err := r.c.SendMessage(ctx, in.URL, in.Message)
	if err != nil {
		return failf("send failed: %v", err)
	}

	if reply := handle.Reply(); reply != nil {
		return ok(reply.Text())
	}

	if err := r.waitForTask(ctx, handle); err != nil {
		return failf("task %s: %v", handle.ID, err)
	}

	return r.renderOutcome(handle)
}

// waitForTask polls until the handle reaches a final state. Push
// notifications update the handle too when a webhook is configured; polling
// covers the case where none is.
func (r *ToolRegistry) waitForTask(ctx context.Context, handle *client.TaskHandle) error {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for !handle.Terminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := r.c.PollTask(ctx, handle); err != nil {
			return err
		}
	}
	return nil
}

func (r *ToolRegistry) renderOutcome(handle *client.TaskHandle) (string, bool) {
	state := handle.State()
	artifacts := handle.Artifacts()

	var summary struct {
		TaskID    string   `json:"taskId"`
		State     string   `json:"state"`
		Artifacts []string `json:"artifacts,omitempty"`
	}
	summary.TaskID = handle.ID
	summary.State = string(state)
	for _, a := range artifacts {
		for _, p := range a.Parts {
			if p.Kind == "text" && p.Text != "" {
				summary.Artifacts = append(summary.Artifacts, p.Text)
			}
		}
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	return string(out), state != a2a.TaskStateCompleted
}
