// Package notify correlates inbound webhook notifications with the pending
// tasks that subscribed to them.
//
// The manager owns the pending-registration table and the webhook bearer
// credential. The webhook HTTP receiver is a separate concern (see
// internal/webhook); it hands raw payloads and auth headers to
// OnNotification and reports whatever result comes back.
package notify

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
)

// UpdateResult classifies the outcome of processing one inbound notification.
type UpdateResult string

const (
	// ResultUpdated means a pending task was found and moved to the new state.
	ResultUpdated UpdateResult = "updated"

	// ResultUnknownCorrelation means no pending registration matched the
	// token. Benign: the webhook endpoint may be shared with other
	// subscribers, so this is not an error.
	ResultUnknownCorrelation UpdateResult = "unknown_correlation"

	// ResultAuthFailed means the bearer credential did not validate. The
	// payload is dropped without touching any registration.
	ResultAuthFailed UpdateResult = "auth_failed"

	// ResultTerminal means the matched task already reached a final state
	// and refused the update. Reported distinctly from unknown correlation.
	ResultTerminal UpdateResult = "terminal"

	// ResultBadPayload means the payload could not be parsed.
	ResultBadPayload UpdateResult = "bad_payload"
)

// Task is the mutable side of a task handle the manager updates on a
// correlated notification.
type Task interface {
	ApplyUpdate(state a2a.TaskState, artifacts []a2a.Artifact) error
}

// Manager validates inbound notifications and routes them to pending tasks.
// The pending table supports concurrent register/lookup; its lock is held
// only for map operations, never across I/O.
type Manager struct {
	token  string // shared webhook bearer token
	jwtKey []byte // non-nil enables JWT validation of the bearer value
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]Task
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithJWTKey switches bearer validation to JWT mode: the Authorization value
// must be an HS256 token signed with key whose subject equals the configured
// webhook token.
func WithJWTKey(key []byte) Option {
	return func(m *Manager) { m.jwtKey = key }
}

// NewManager creates a Manager that accepts notifications bearing token.
func NewManager(token string, opts ...Option) *Manager {
	m := &Manager{
		token:   token,
		logger:  zap.NewNop(),
		pending: make(map[string]Task),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RegisterPending records that a future notification carrying
// correlationToken must update task.
func (m *Manager) RegisterPending(correlationToken string, task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[correlationToken] = task
}

// Release drops a pending registration. The manager never drops one on its
// own: a registration outlives the terminal update so that a duplicate
// delivery is reported as a terminal rejection rather than an unknown
// correlation. Callers use Release when they are done with a handle.
func (m *Manager) Release(correlationToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, correlationToken)
}

// PendingCount returns the number of outstanding registrations.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) lookup(correlationToken string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.pending[correlationToken]
	return t, ok
}

// OnNotification processes one inbound webhook delivery. Authentication is
// checked before the payload is even parsed, so a bad bearer always yields
// ResultAuthFailed regardless of content. The returned error carries detail
// for logging; callers decide what to surface to the network layer.
func (m *Manager) OnNotification(payload []byte, authHeader string) (UpdateResult, error) {
	if !m.authenticate(authHeader) {
		m.logger.Warn("notification rejected: bearer validation failed")
		return ResultAuthFailed, errors.New("bearer token validation failed")
	}

	n, err := a2a.ParseTaskNotification(payload)
	if err != nil {
		m.logger.Warn("notification rejected: bad payload", zap.Error(err))
		return ResultBadPayload, err
	}

	task, ok := m.lookup(n.CorrelationToken)
	if !ok {
		// Not ours. A shared receiver sees other subscribers' traffic.
		m.logger.Debug("notification ignored: unknown correlation token")
		return ResultUnknownCorrelation, nil
	}

	if err := task.ApplyUpdate(n.Status, n.Artifacts); err != nil {
		m.logger.Warn("notification refused by task",
			zap.String("status", string(n.Status)),
			zap.Error(err),
		)
		if errors.Is(err, a2a.ErrTerminalTask) {
			return ResultTerminal, err
		}
		return ResultBadPayload, err
	}

	m.logger.Info("task updated from notification", zap.String("status", string(n.Status)))
	return ResultUpdated, nil
}

// authenticate validates the Authorization header value against the
// configured webhook credential in constant time.
func (m *Manager) authenticate(authHeader string) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return false
	}
	presented := strings.TrimPrefix(authHeader, prefix)

	if m.jwtKey != nil {
		return m.authenticateJWT(presented)
	}

	return subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) == 1
}

// authenticateJWT checks signature and expiry of an HS256 token and requires
// its subject to match the configured webhook token.
func (m *Manager) authenticateJWT(raw string) bool {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.jwtKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return false
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sub), []byte(m.token)) == 1
}
