package a2a

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC method names defined by the A2A protocol.
const (
	MethodMessageSend = "message/send"
	MethodTasksGet    = "tasks/get"
	MethodTasksCancel = "tasks/cancel"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a JSON-RPC 2.0 request with the given id.
func NewRequest(id, method string, params any) Request {
	return Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// Response is a JSON-RPC 2.0 response envelope. Result is kept raw so the
// caller can decode it as either a Task or a Message.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// MessageSendParams are the params of a message/send request.
type MessageSendParams struct {
	Message       Message                `json:"message"`
	Configuration *MessageSendConfig     `json:"configuration,omitempty"`
	Metadata      map[string]any         `json:"metadata,omitempty"`
}

// MessageSendConfig carries per-send options, including the push-notification
// target the agent should deliver task updates to.
type MessageSendConfig struct {
	AcceptedOutputModes    []string                `json:"acceptedOutputModes,omitempty"`
	Blocking               bool                    `json:"blocking,omitempty"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
}

// TaskQueryParams are the params of a tasks/get request.
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength int    `json:"historyLength,omitempty"`
}

// TaskIDParams are the params of a tasks/cancel request.
type TaskIDParams struct {
	ID string `json:"id"`
}

// SendResult is the decoded result of a message/send call: either a Task
// handle for asynchronous work or a direct Message reply from agents that
// answer synchronously without creating a task.
type SendResult struct {
	Task    *Task
	Message *Message
}

// DecodeSendResult interprets a raw message/send result. The two shapes are
// distinguished by the "kind" discriminator the protocol puts on result
// objects, falling back to structural sniffing for agents that omit it.
func DecodeSendResult(raw json.RawMessage) (*SendResult, error) {
	var kind struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &kind); err != nil {
		return nil, fmt.Errorf("decode send result: %w", err)
	}

	switch kind.Kind {
	case "task":
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode task result: %w", err)
		}
		return &SendResult{Task: &t}, nil
	case "message":
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode message result: %w", err)
		}
		return &SendResult{Message: &m}, nil
	}

	// No discriminator: a task has a "status" object, a message has "parts".
	var probe struct {
		Status *TaskStatus     `json:"status"`
		Parts  json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode send result: %w", err)
	}
	if probe.Status != nil {
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode task result: %w", err)
		}
		return &SendResult{Task: &t}, nil
	}
	if probe.Parts != nil {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode message result: %w", err)
		}
		return &SendResult{Message: &m}, nil
	}
	return nil, fmt.Errorf("send result is neither a task nor a message")
}
