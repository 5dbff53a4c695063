// Package a2a defines the wire types of the Agent-to-Agent (A2A) protocol
// as used by this client: agent cards, messages, tasks, and the
// push-notification payloads exchanged over webhooks.
//
// Agent cards are discovered at:
//
//	https://[agent-host]/.well-known/agent.json
package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTerminalTask is returned for any status mutation attempted against a
// task that already reached a terminal state. Deliberately distinct from
// "not found" so callers can tell the two refusals apart.
var ErrTerminalTask = errors.New("task already in a terminal state")

// WellKnownCardPath is the fixed suffix under an agent's base URL where its
// agent card is published.
const WellKnownCardPath = "/.well-known/agent.json"

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether s is a final state. Terminal tasks accept no
// further status updates.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// Valid reports whether s is one of the defined task states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// AgentCapabilities declares the optional A2A protocol features an agent
// supports.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming,omitempty"`
	PushNotifications      bool `json:"pushNotifications,omitempty"`
	StateTransitionHistory bool `json:"stateTransitionHistory,omitempty"`
}

// AgentSkill is a unit of capability an agent advertises on its card.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentProvider identifies the organization operating an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// SecurityScheme describes one way to authenticate against an agent, in the
// OpenAPI security-scheme shape used by A2A cards.
type SecurityScheme struct {
	Type   string `json:"type"`             // "apiKey", "http", "oauth2", "openIdConnect"
	Scheme string `json:"scheme,omitempty"` // for type "http": "bearer", "basic"
	Name   string `json:"name,omitempty"`   // for type "apiKey": header/query name
	In     string `json:"in,omitempty"`     // for type "apiKey": "header", "query", "cookie"
}

// AgentCard is the machine-readable capability descriptor an agent serves at
// the well-known path. Once fetched it is treated as an immutable snapshot:
// re-discovery replaces the whole card, never patches it.
type AgentCard struct {
	Name               string                    `json:"name"`
	Description        string                    `json:"description,omitempty"`
	URL                string                    `json:"url"`
	Version            string                    `json:"version,omitempty"`
	ProtocolVersion    string                    `json:"protocolVersion,omitempty"`
	Provider           *AgentProvider            `json:"provider,omitempty"`
	Capabilities       AgentCapabilities         `json:"capabilities"`
	SecuritySchemes    map[string]SecurityScheme `json:"securitySchemes,omitempty"`
	Security           []map[string][]string     `json:"security,omitempty"`
	DefaultInputModes  []string                  `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string                  `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill              `json:"skills,omitempty"`
}

// Validate checks the fields an agent card must carry to be usable.
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("agent card: name is required")
	}
	if c.URL == "" {
		return fmt.Errorf("agent card: url is required")
	}
	for i, s := range c.Skills {
		if s.ID == "" {
			return fmt.Errorf("agent card: skills[%d].id is required", i)
		}
		if s.Name == "" {
			return fmt.Errorf("agent card: skills[%d].name is required", i)
		}
	}
	return nil
}

// ParseCard decodes and validates an agent card from JSON bytes.
func ParseCard(data []byte) (*AgentCard, error) {
	var card AgentCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return &card, nil
}

// Part is one segment of a message or artifact: plain text or structured data.
type Part struct {
	Kind string         `json:"kind"` // "text" or "data"
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: "text", Text: text}
}

// DataPart builds a structured data part.
func DataPart(data map[string]any) Part {
	return Part{Kind: "data", Data: data}
}

// Message is a single conversational turn sent to or received from an agent.
type Message struct {
	Role      string `json:"role"` // "user" or "agent"
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	TaskID    string `json:"taskId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
}

// Validate checks the fields a message must carry before dispatch.
func (m *Message) Validate() error {
	if m.Role == "" {
		return fmt.Errorf("message: role is required")
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message: at least one part is required")
	}
	if m.MessageID == "" {
		return fmt.Errorf("message: messageId is required")
	}
	return nil
}

// Text returns the concatenated text of all text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == "text" {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}

// Artifact is an output produced by a task.
type Artifact struct {
	ArtifactID string `json:"artifactId,omitempty"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// TaskStatus carries the current state of a task and, for input-required
// transitions, the agent message prompting for more input.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Task is the remote agent's view of a unit of work, as returned by
// message/send and tasks/get.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []Message  `json:"history,omitempty"`
}
