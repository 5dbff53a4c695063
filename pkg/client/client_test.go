package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
	"github.com/agentlink-protocol/agentlink/pkg/client"
)

// ── Stub agent server ────────────────────────────────────────────────────

// stubAgent is a minimal A2A agent: it serves a card on the well-known path
// and answers JSON-RPC on /. Request details are recorded for assertions.
type stubAgent struct {
	srv *httptest.Server

	cardFetches atomic.Int64
	lastAuth    atomic.Value // string
	lastPush    atomic.Value // *a2a.PushNotificationConfig

	taskState  a2a.TaskState // state returned by tasks/get
	syncReply  bool          // answer message/send with a direct message
	requireKey string        // reject requests without this X-API-Key
}

func newStubAgent(t *testing.T) *stubAgent {
	t.Helper()
	s := &stubAgent{taskState: a2a.TaskStateWorking}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent.json", func(w http.ResponseWriter, r *http.Request) {
		if s.requireKey != "" && r.Header.Get("X-API-Key") != s.requireKey {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		s.cardFetches.Add(1)
		s.lastAuth.Store(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"name":    "Stub Agent",
			"url":     s.srv.URL,
			"version": "1.0.0",
			"capabilities": map[string]any{
				"pushNotifications": true,
			},
			"skills": []map[string]any{
				{"id": "echo", "name": "Echo"},
			},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if s.requireKey != "" && r.Header.Get("X-API-Key") != s.requireKey {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		var req a2a.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch req.Method {
		case a2a.MethodMessageSend:
			raw, _ := json.Marshal(req.Params)
			var params a2a.MessageSendParams
			json.Unmarshal(raw, &params)
			if params.Configuration != nil {
				s.lastPush.Store(params.Configuration.PushNotificationConfig)
			}

			if s.syncReply {
				writeResult(w, req.ID, map[string]any{
					"kind":      "message",
					"role":      "agent",
					"messageId": "msg-1",
					"parts":     []map[string]any{{"kind": "text", "text": "direct answer"}},
				})
				return
			}
			writeResult(w, req.ID, map[string]any{
				"kind":      "task",
				"id":        "task-1",
				"contextId": "ctx-1",
				"status":    map[string]any{"state": "working"},
			})

		case a2a.MethodTasksGet:
			writeResult(w, req.ID, map[string]any{
				"kind":   "task",
				"id":     "task-1",
				"status": map[string]any{"state": string(s.taskState)},
				"artifacts": []map[string]any{
					{"artifactId": "a-1", "parts": []map[string]any{{"kind": "text", "text": "result text"}}},
				},
			})

		case a2a.MethodTasksCancel:
			writeResult(w, req.ID, map[string]any{
				"kind":   "task",
				"id":     "task-1",
				"status": map[string]any{"state": "canceled"},
			})

		default:
			json.NewEncoder(w).Encode(a2a.Response{
				JSONRPC: "2.0", ID: req.ID,
				Error: &a2a.RPCError{Code: -32601, Message: "method not found"},
			})
		}
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func writeResult(w http.ResponseWriter, id string, result any) {
	raw, _ := json.Marshal(result)
	json.NewEncoder(w).Encode(a2a.Response{JSONRPC: "2.0", ID: id, Result: raw})
}

// ── Discovery ────────────────────────────────────────────────────────────

func TestDiscoverAgent_success(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew()
	card, err := c.DiscoverAgent(context.Background(), agent.srv.URL)
	if err != nil {
		t.Fatalf("DiscoverAgent: %v", err)
	}
	if card.Name != "Stub Agent" {
		t.Errorf("unexpected name: %s", card.Name)
	}
	if len(card.Skills) != 1 || card.Skills[0].ID != "echo" {
		t.Errorf("unexpected skills: %+v", card.Skills)
	}
}

func TestDiscoverAgent_cached(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew()
	if _, err := c.DiscoverAgent(context.Background(), agent.srv.URL); err != nil {
		t.Fatal(err)
	}
	// A trailing slash normalizes to the same key and must hit the cache.
	if _, err := c.DiscoverAgent(context.Background(), agent.srv.URL+"/"); err != nil {
		t.Fatal(err)
	}

	if n := agent.cardFetches.Load(); n != 1 {
		t.Errorf("expected 1 card fetch (cached), got %d", n)
	}
	if n := len(c.ListDiscoveredAgents()); n != 1 {
		t.Errorf("expected 1 discovered agent, got %d", n)
	}
}

func TestDiscoverAgent_malformedCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"description": "card with no name or url"}`))
	}))
	defer srv.Close()

	c := client.MustNew()
	_, err := c.DiscoverAgent(context.Background(), srv.URL)

	var malformed *client.MalformedCardError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedCardError, got %v", err)
	}

	// The failed fetch must not poison the cache.
	if _, err := c.GetAgent(srv.URL); !errors.Is(err, client.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound after failed discovery, got %v", err)
	}
}

func TestDiscoverAgent_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := client.MustNew()
	_, err := c.DiscoverAgent(context.Background(), srv.URL)

	var httpErr *client.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("unexpected status: %d", httpErr.Status)
	}
	if httpErr.Transient() {
		t.Error("404 must not be transient")
	}
}

func TestDiscoverKnownAgents_sweepContinues(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew(client.WithKnownAgentURLs(
		"http://127.0.0.1:1", // nothing listens here
		agent.srv.URL,
	))

	err := c.DiscoverKnownAgents(context.Background())
	if err == nil {
		t.Error("expected joined error for the unreachable agent")
	}
	if n := len(c.ListDiscoveredAgents()); n != 1 {
		t.Errorf("reachable agent should still be discovered, got %d", n)
	}
}

// ── Sending ──────────────────────────────────────────────────────────────

func TestSendMessage_taskHandle(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew()
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "do the thing")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if handle.ID != "task-1" {
		t.Errorf("unexpected task id: %s", handle.ID)
	}
	if handle.ContextID != "ctx-1" {
		t.Errorf("unexpected context id: %s", handle.ContextID)
	}
	if got := handle.State(); got != a2a.TaskStateWorking {
		t.Errorf("unexpected state: %s", got)
	}
	if handle.Terminal() {
		t.Error("working task must not be terminal")
	}
}

func TestSendMessage_syncReply(t *testing.T) {
	agent := newStubAgent(t)
	agent.syncReply = true

	c := client.MustNew()
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "quick question")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if !handle.Terminal() {
		t.Error("synchronous reply must produce a terminal handle")
	}
	reply := handle.Reply()
	if reply == nil {
		t.Fatal("expected a reply message")
	}
	if reply.Text() != "direct answer" {
		t.Errorf("unexpected reply: %q", reply.Text())
	}
}

func TestSendMessage_attachesPushConfig(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew(client.WithWebhook("https://hooks.example.com/webhook", "hook-secret"))
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "long job")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	push, _ := agent.lastPush.Load().(*a2a.PushNotificationConfig)
	if push == nil {
		t.Fatal("agent did not receive a push notification config")
	}
	if push.URL != "https://hooks.example.com/webhook" {
		t.Errorf("unexpected webhook url: %s", push.URL)
	}
	if push.Token == "" || push.Token != handle.CorrelationToken {
		t.Errorf("correlation token mismatch: %q vs %q", push.Token, handle.CorrelationToken)
	}
	if push.Authentication == nil || push.Authentication.Credentials != "hook-secret" {
		t.Error("push config must carry the webhook bearer credentials")
	}
	if n := c.Notifications().PendingCount(); n != 1 {
		t.Errorf("expected 1 pending subscription, got %d", n)
	}
}

func TestSendMessage_noPushWithoutWebhook(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew()
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if handle.CorrelationToken != "" {
		t.Error("correlation token must be empty without a webhook")
	}
	if push, _ := agent.lastPush.Load().(*a2a.PushNotificationConfig); push != nil {
		t.Error("send must not carry a push config without a webhook")
	}
}

func TestSendMessage_discoveryFailure(t *testing.T) {
	c := client.MustNew()
	_, err := c.SendMessage(context.Background(), "http://127.0.0.1:1", "hello")

	var discErr *client.DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected DiscoveryError, got %v", err)
	}
	var unreachable *client.UnreachableError
	if !errors.As(err, &unreachable) {
		t.Errorf("expected wrapped UnreachableError, got %v", err)
	}
}

func TestSendMessage_attachesHeaders(t *testing.T) {
	agent := newStubAgent(t)
	agent.requireKey = "s3cret"

	c := client.MustNew(client.WithHeaders(agent.srv.URL, client.HeaderSet{"X-API-Key": "s3cret"}))
	if _, err := c.SendMessage(context.Background(), agent.srv.URL, "authorized"); err != nil {
		t.Fatalf("SendMessage with headers: %v", err)
	}

	// Without the header both discovery and dispatch are rejected.
	plain := client.MustNew()
	_, err := plain.SendMessage(context.Background(), agent.srv.URL, "anonymous")
	var httpErr *client.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected HTTP 401, got %v", err)
	}
}

func TestSendMessage_rpcError(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/agent.json" {
			json.NewEncoder(w).Encode(map[string]any{"name": "Broken", "url": srv.URL})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": "1",
			"error": map[string]any{"code": -32000, "message": "internal failure"},
		})
	}))
	defer srv.Close()

	c := client.MustNew()
	_, err := c.SendMessage(context.Background(), srv.URL, "hi")
	var protoErr *client.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError for RPC error, got %v", err)
	}
}

// ── Polling and cancellation ─────────────────────────────────────────────

func TestPollTask_appliesUpdates(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew()
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "work")
	if err != nil {
		t.Fatal(err)
	}

	agent.taskState = a2a.TaskStateCompleted
	if err := c.PollTask(context.Background(), handle); err != nil {
		t.Fatalf("PollTask: %v", err)
	}

	if got := handle.State(); got != a2a.TaskStateCompleted {
		t.Errorf("unexpected state: %s", got)
	}
	arts := handle.Artifacts()
	if len(arts) != 1 || arts[0].Parts[0].Text != "result text" {
		t.Errorf("unexpected artifacts: %+v", arts)
	}
}

func TestPollTask_terminalHandleIsNoError(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew()
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "work")
	if err != nil {
		t.Fatal(err)
	}

	agent.taskState = a2a.TaskStateCompleted
	if err := c.PollTask(context.Background(), handle); err != nil {
		t.Fatalf("PollTask: %v", err)
	}

	// A waiter can lose the race against a push notification that already
	// finished the handle; a follow-up poll must report success, not a
	// finality violation.
	if err := c.PollTask(context.Background(), handle); err != nil {
		t.Errorf("PollTask on a finished handle: %v", err)
	}
	if got := handle.State(); got != a2a.TaskStateCompleted {
		t.Errorf("unexpected state: %s", got)
	}
}

func TestPollTask_syncReplyHandleRejected(t *testing.T) {
	agent := newStubAgent(t)
	agent.syncReply = true

	c := client.MustNew()
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "q")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.PollTask(context.Background(), handle); err == nil {
		t.Error("polling a handle without a task id must fail")
	}
}

func TestCancelTask(t *testing.T) {
	agent := newStubAgent(t)

	c := client.MustNew()
	handle, err := c.SendMessage(context.Background(), agent.srv.URL, "never mind")
	if err != nil {
		t.Fatal(err)
	}

	if err := c.CancelTask(context.Background(), handle); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if got := handle.State(); got != a2a.TaskStateCanceled {
		t.Errorf("unexpected state after cancel: %s", got)
	}
}

// ── Construction ─────────────────────────────────────────────────────────

func TestNew_webhookRequiresBothFields(t *testing.T) {
	if _, err := client.New(client.WithWebhook("https://hooks.example.com", "")); err == nil {
		t.Error("webhook without token must be rejected")
	}
	if _, err := client.New(client.WithWebhook("", "tok")); err == nil {
		t.Error("webhook without url must be rejected")
	}
}

func TestNew_jwtKeyRequiresWebhook(t *testing.T) {
	if _, err := client.New(client.WithWebhookJWTKey([]byte("k"))); err == nil {
		t.Error("JWT key without webhook must be rejected")
	}
}
