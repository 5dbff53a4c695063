package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
	"github.com/agentlink-protocol/agentlink/pkg/agenturl"
)

// maxRPCBytes caps how much of a JSON-RPC response body is read. Task
// results carry artifacts, so the cap is looser than the card cap.
const maxRPCBytes = 16 << 20

// send dispatches a message/send to the agent at rawURL, discovering its
// card first when it is not yet cached. push, when non-nil, is attached to
// the send configuration so the agent delivers task updates to the webhook.
func (c *Client) send(ctx context.Context, rawURL string, msg a2a.Message, push *a2a.PushNotificationConfig) (*TaskHandle, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	normalized, err := agenturl.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	card, err := c.registry.discoverOrFetch(ctx, c.httpClient, c.creds, normalized)
	if err != nil {
		return nil, &DiscoveryError{URL: normalized, Err: err}
	}

	// The card may advertise a service endpoint distinct from the base URL
	// the card was discovered at.
	endpoint := card.URL
	if endpoint == "" {
		endpoint = normalized
	}

	params := a2a.MessageSendParams{Message: msg}
	if push != nil {
		params.Configuration = &a2a.MessageSendConfig{PushNotificationConfig: push}
	}

	raw, err := c.doRPC(ctx, normalized, endpoint, a2a.NewRequest(uuid.NewString(), a2a.MethodMessageSend, params))
	if err != nil {
		return nil, err
	}

	result, err := a2a.DecodeSendResult(raw)
	if err != nil {
		return nil, &ProtocolError{URL: normalized, Msg: err.Error()}
	}

	correlation := ""
	if push != nil {
		correlation = push.Token
	}

	if result.Message != nil {
		// Synchronous reply: the agent answered without creating a task.
		// The handle is born terminal and carries the reply.
		handle := newTaskHandle("", normalized, "", a2a.TaskStateCompleted)
		handle.setReply(result.Message)
		return handle, nil
	}

	task := result.Task
	if task.ID == "" {
		return nil, &ProtocolError{URL: normalized, Msg: "task result has no id"}
	}
	if !task.Status.State.Valid() {
		return nil, &ProtocolError{URL: normalized, Msg: fmt.Sprintf("task %s has unknown state %q", task.ID, task.Status.State)}
	}

	handle := newTaskHandle(task.ID, normalized, correlation, task.Status.State)
	handle.ContextID = task.ContextID
	if len(task.Artifacts) > 0 {
		handle.artifacts = append(handle.artifacts, task.Artifacts...)
	}
	return handle, nil
}

// GetTask fetches the agent's current view of a task via tasks/get.
func (c *Client) GetTask(ctx context.Context, rawURL, taskID string) (*a2a.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	normalized, endpoint, err := c.endpointFor(rawURL)
	if err != nil {
		return nil, err
	}

	raw, err := c.doRPC(ctx, normalized, endpoint, a2a.NewRequest(uuid.NewString(), a2a.MethodTasksGet, a2a.TaskQueryParams{ID: taskID}))
	if err != nil {
		return nil, err
	}

	var task a2a.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, &ProtocolError{URL: normalized, Msg: fmt.Sprintf("decode task: %v", err)}
	}
	return &task, nil
}

// CancelTask asks the agent to cancel a task and applies the resulting state
// to the handle. Agents may refuse; the returned task reflects the state the
// agent settled on.
func (c *Client) CancelTask(ctx context.Context, handle *TaskHandle) error {
	if handle.ID == "" {
		return fmt.Errorf("task on %s has no server-side id to cancel", handle.AgentURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	normalized, endpoint, err := c.endpointFor(handle.AgentURL)
	if err != nil {
		return err
	}

	raw, err := c.doRPC(ctx, normalized, endpoint, a2a.NewRequest(uuid.NewString(), a2a.MethodTasksCancel, a2a.TaskIDParams{ID: handle.ID}))
	if err != nil {
		return err
	}

	var task a2a.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return &ProtocolError{URL: normalized, Msg: fmt.Sprintf("decode task: %v", err)}
	}
	return handle.ApplyUpdate(task.Status.State, diffArtifacts(handle.Artifacts(), task.Artifacts))
}

// endpointFor resolves the JSON-RPC endpoint for an agent URL from its
// cached card. The agent must already be discovered.
func (c *Client) endpointFor(rawURL string) (normalized, endpoint string, err error) {
	normalized, err = agenturl.Normalize(rawURL)
	if err != nil {
		return "", "", err
	}
	card, err := c.registry.get(normalized)
	if err != nil {
		return "", "", err
	}
	endpoint = card.URL
	if endpoint == "" {
		endpoint = normalized
	}
	return normalized, endpoint, nil
}

// doRPC performs one JSON-RPC 2.0 call against endpoint, attaching the
// credentials configured for agentURL. The raw result is returned for the
// caller to decode.
func (c *Client) doRPC(ctx context.Context, agentURL, endpoint string, req a2a.Request) (json.RawMessage, error) {
	headers, err := c.creds.resolve(agentURL)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UnreachableError{URL: agentURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCBytes))
	if err != nil {
		return nil, &UnreachableError{URL: agentURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{URL: agentURL, Status: resp.StatusCode, Body: truncate(respBody, 512)}
	}

	var rpcResp a2a.Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &ProtocolError{URL: agentURL, Msg: fmt.Sprintf("invalid JSON-RPC response: %v", err)}
	}
	if rpcResp.Error != nil {
		return nil, &ProtocolError{URL: agentURL, Msg: rpcResp.Error.Error()}
	}
	if rpcResp.Result == nil {
		return nil, &ProtocolError{URL: agentURL, Msg: "response has neither result nor error"}
	}
	return rpcResp.Result, nil
}
