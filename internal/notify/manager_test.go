package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
)

// fakeTask records applied updates and can simulate a refusal.
type fakeTask struct {
	state     a2a.TaskState
	artifacts []a2a.Artifact
	applyErr  error
	applied   int
}

func (f *fakeTask) ApplyUpdate(state a2a.TaskState, artifacts []a2a.Artifact) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	if f.state.Terminal() {
		return fmt.Errorf("task is final: %w", a2a.ErrTerminalTask)
	}
	f.state = state
	f.artifacts = append(f.artifacts, artifacts...)
	f.applied++
	return nil
}

func bearer(token string) string { return "Bearer " + token }

func TestOnNotification_updatesPendingTask(t *testing.T) {
	m := NewManager("secret")
	task := &fakeTask{state: a2a.TaskStateWorking}
	m.RegisterPending("corr-1", task)

	payload := []byte(`{
		"correlationToken": "corr-1",
		"status": "completed",
		"artifacts": [{"artifactId": "a-1", "parts": [{"kind": "text", "text": "done"}]}]
	}`)
	result, err := m.OnNotification(payload, bearer("secret"))
	if err != nil {
		t.Fatalf("OnNotification: %v", err)
	}
	if result != ResultUpdated {
		t.Errorf("unexpected result: %s", result)
	}
	if task.state != a2a.TaskStateCompleted {
		t.Errorf("task not updated: %s", task.state)
	}
	if len(task.artifacts) != 1 {
		t.Errorf("artifacts not applied: %+v", task.artifacts)
	}

	// The registration survives the terminal update so a duplicate delivery
	// is still correlated.
	if n := m.PendingCount(); n != 1 {
		t.Errorf("expected registration retained, %d pending", n)
	}
}

func TestOnNotification_duplicateTerminalReported(t *testing.T) {
	m := NewManager("secret")
	task := &fakeTask{state: a2a.TaskStateWorking}
	m.RegisterPending("corr-1", task)

	payload := []byte(`{"correlationToken": "corr-1", "status": "completed"}`)
	if result, err := m.OnNotification(payload, bearer("secret")); result != ResultUpdated || err != nil {
		t.Fatalf("first delivery: %s, %v", result, err)
	}

	// A repeat of the same terminal notification must be reported as a
	// terminal rejection, not silently dropped as an unknown correlation.
	result, err := m.OnNotification(payload, bearer("secret"))
	if result != ResultTerminal {
		t.Errorf("duplicate terminal delivery: got %s, want %s", result, ResultTerminal)
	}
	if err == nil {
		t.Error("expected the terminal refusal to surface as an error")
	}
	if task.applied != 1 {
		t.Errorf("task mutated by duplicate delivery: applied %d times", task.applied)
	}
}

func TestOnNotification_nonTerminalKeepsRegistration(t *testing.T) {
	m := NewManager("secret")
	m.RegisterPending("corr-1", &fakeTask{state: a2a.TaskStateSubmitted})

	payload := []byte(`{"correlationToken": "corr-1", "status": "working"}`)
	result, _ := m.OnNotification(payload, bearer("secret"))
	if result != ResultUpdated {
		t.Fatalf("unexpected result: %s", result)
	}
	if n := m.PendingCount(); n != 1 {
		t.Errorf("non-terminal update must keep the registration, %d pending", n)
	}
}

func TestOnNotification_authFailed(t *testing.T) {
	m := NewManager("secret")
	task := &fakeTask{}
	m.RegisterPending("corr-1", task)

	payload := []byte(`{"correlationToken": "corr-1", "status": "completed"}`)
	for _, auth := range []string{
		"",
		"Bearer wrong",
		"Bearer ",
		"secret",         // missing scheme
		"Basic c2VjcmV0", // wrong scheme
	} {
		result, err := m.OnNotification(payload, auth)
		if result != ResultAuthFailed || err == nil {
			t.Errorf("auth %q: got %s, %v", auth, result, err)
		}
	}
	if task.applied != 0 {
		t.Error("task must not be touched on auth failure")
	}

	// Auth is checked before parsing: garbage with a bad bearer is still
	// reported as an auth failure.
	result, _ := m.OnNotification([]byte("garbage"), "Bearer wrong")
	if result != ResultAuthFailed {
		t.Errorf("expected auth_failed for garbage with bad bearer, got %s", result)
	}
}

func TestOnNotification_unknownCorrelation(t *testing.T) {
	m := NewManager("secret")

	payload := []byte(`{"correlationToken": "never-registered", "status": "completed"}`)
	result, err := m.OnNotification(payload, bearer("secret"))
	if result != ResultUnknownCorrelation {
		t.Errorf("unexpected result: %s", result)
	}
	if err != nil {
		t.Errorf("unknown correlation is benign, got error %v", err)
	}
}

func TestOnNotification_badPayload(t *testing.T) {
	m := NewManager("secret")

	for _, payload := range []string{
		`notjson`,
		`{"status": "completed"}`,
		`{"correlationToken": "c", "status": "exploded"}`,
	} {
		result, err := m.OnNotification([]byte(payload), bearer("secret"))
		if result != ResultBadPayload || err == nil {
			t.Errorf("payload %q: got %s, %v", payload, result, err)
		}
	}
}

func TestOnNotification_terminalTaskRefuses(t *testing.T) {
	m := NewManager("secret")
	m.RegisterPending("corr-1", &fakeTask{applyErr: a2a.ErrTerminalTask})

	payload := []byte(`{"correlationToken": "corr-1", "status": "working"}`)
	result, err := m.OnNotification(payload, bearer("secret"))
	if result != ResultTerminal {
		t.Errorf("unexpected result: %s", result)
	}
	if err == nil {
		t.Error("expected the refusal error to propagate")
	}
}

func TestRelease(t *testing.T) {
	m := NewManager("secret")
	m.RegisterPending("corr-1", &fakeTask{})
	m.RegisterPending("corr-2", &fakeTask{})

	m.Release("corr-1")
	if n := m.PendingCount(); n != 1 {
		t.Errorf("expected 1 pending after release, got %d", n)
	}
	// Releasing an unknown token is a no-op.
	m.Release("corr-unknown")
	if n := m.PendingCount(); n != 1 {
		t.Errorf("expected 1 pending, got %d", n)
	}
}

// ── JWT mode ─────────────────────────────────────────────────────────────

func signJWT(t *testing.T, key []byte, subject string, expires time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	raw, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestOnNotification_jwtMode(t *testing.T) {
	key := []byte("signing-key")
	m := NewManager("secret", WithJWTKey(key), WithLogger(zap.NewNop()))
	task := &fakeTask{state: a2a.TaskStateWorking}
	m.RegisterPending("corr-1", task)

	payload := []byte(`{"correlationToken": "corr-1", "status": "completed"}`)

	good := signJWT(t, key, "secret", time.Now().Add(time.Hour))
	result, err := m.OnNotification(payload, bearer(good))
	if result != ResultUpdated || err != nil {
		t.Fatalf("valid JWT rejected: %s, %v", result, err)
	}

	wrongSubject := signJWT(t, key, "someone-else", time.Now().Add(time.Hour))
	if result, _ := m.OnNotification(payload, bearer(wrongSubject)); result != ResultAuthFailed {
		t.Errorf("wrong subject accepted: %s", result)
	}

	expired := signJWT(t, key, "secret", time.Now().Add(-time.Hour))
	if result, _ := m.OnNotification(payload, bearer(expired)); result != ResultAuthFailed {
		t.Errorf("expired JWT accepted: %s", result)
	}

	wrongKey := signJWT(t, []byte("other-key"), "secret", time.Now().Add(time.Hour))
	if result, _ := m.OnNotification(payload, bearer(wrongKey)); result != ResultAuthFailed {
		t.Errorf("JWT with wrong key accepted: %s", result)
	}

	// In JWT mode the raw shared token is no longer accepted.
	if result, _ := m.OnNotification(payload, bearer("secret")); result != ResultAuthFailed {
		t.Errorf("raw token accepted in JWT mode: %s", result)
	}
}
