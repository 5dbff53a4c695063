package client

import (
	"fmt"
	"sync"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
)

// ErrTerminalTask is the refusal returned for status mutations against a
// handle that already reached a terminal state.
var ErrTerminalTask = a2a.ErrTerminalTask

// TaskHandle tracks one submitted task through its lifecycle. It is created
// by SendMessage and mutated only by a poll response or a correlated push
// notification; both paths go through ApplyUpdate, so the handle carries its
// own lock and may be shared between a poller and the webhook receiver.
type TaskHandle struct {
	// ID is the remote agent's task identifier. Empty for synchronous
	// replies that never created a task.
	ID string

	// AgentURL is the normalized URL of the agent the task was sent to.
	AgentURL string

	// CorrelationToken is the client-generated token embedded in the push
	// notification config, empty when no webhook is configured.
	CorrelationToken string

	// ContextID groups multi-turn exchanges, when the agent returned one.
	ContextID string

	mu        sync.Mutex
	state     a2a.TaskState
	artifacts []a2a.Artifact
	reply     *a2a.Message
}

// newTaskHandle creates a handle in the given initial state.
func newTaskHandle(id, agentURL, correlationToken string, state a2a.TaskState) *TaskHandle {
	return &TaskHandle{
		ID:               id,
		AgentURL:         agentURL,
		CorrelationToken: correlationToken,
		state:            state,
	}
}

// State returns the current lifecycle state.
func (h *TaskHandle) State() a2a.TaskState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Terminal reports whether the handle reached a final state.
func (h *TaskHandle) Terminal() bool {
	return h.State().Terminal()
}

// Artifacts returns a copy of the artifacts accumulated so far.
func (h *TaskHandle) Artifacts() []a2a.Artifact {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]a2a.Artifact, len(h.artifacts))
	copy(out, h.artifacts)
	return out
}

// Reply returns the direct agent reply for synchronous sends, nil otherwise.
func (h *TaskHandle) Reply() *a2a.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reply
}

// ApplyUpdate moves the handle to a new state and appends any artifacts.
// Terminal handles refuse all updates with ErrTerminalTask; transitions not
// allowed by the task state machine are refused too.
func (h *TaskHandle) ApplyUpdate(state a2a.TaskState, artifacts []a2a.Artifact) error {
	if !state.Valid() {
		return fmt.Errorf("unknown task state %q", state)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Terminal() {
		return fmt.Errorf("task %s: %w", h.ID, ErrTerminalTask)
	}
	if !transitionAllowed(h.state, state) {
		return fmt.Errorf("task %s: illegal transition %s -> %s", h.ID, h.state, state)
	}

	h.state = state
	h.artifacts = append(h.artifacts, artifacts...)
	return nil
}

// setReply records a synchronous agent reply and completes the handle.
// Only used at construction time by the dispatcher.
func (h *TaskHandle) setReply(m *a2a.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reply = m
	h.state = a2a.TaskStateCompleted
}

// transitionAllowed implements the task state machine:
//
//	submitted -> working -> {completed | failed | canceled}
//	submitted -> input-required -> working   (multi-turn)
//
// A state may repeat (agents re-announce working with fresh artifacts), and
// any non-terminal state may jump straight to a terminal one, since a push
// notification may be the only update the client ever sees.
func transitionAllowed(from, to a2a.TaskState) bool {
	if to.Terminal() {
		return true
	}
	switch from {
	case a2a.TaskStateSubmitted:
		return to == a2a.TaskStateWorking || to == a2a.TaskStateInputRequired || to == a2a.TaskStateSubmitted
	case a2a.TaskStateWorking:
		return to == a2a.TaskStateWorking || to == a2a.TaskStateInputRequired
	case a2a.TaskStateInputRequired:
		return to == a2a.TaskStateWorking || to == a2a.TaskStateInputRequired
	}
	return false
}
