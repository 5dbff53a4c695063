// Package client implements the A2A client engine: agent-card discovery and
// caching, per-agent credential attachment, task submission over JSON-RPC,
// and the push-notification subscription path.
//
// A Client owns one registry of discovered agents and at most one webhook
// target. It performs no background work of its own; all network calls
// happen on the caller's goroutine, bounded by the configured timeout.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/agentlink-protocol/agentlink/internal/metrics"
	"github.com/agentlink-protocol/agentlink/internal/notify"
	"github.com/agentlink-protocol/agentlink/pkg/a2a"
	"github.com/agentlink-protocol/agentlink/pkg/agenturl"
)

// DefaultTimeout bounds each outbound call. Agent tasks can be long-running,
// so the default is generous.
const DefaultTimeout = 5 * time.Minute

// Client is the A2A client engine entry point.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	creds      *credentialResolver
	registry   *registry
	limiter    *rate.Limiter
	logger     *zap.Logger

	knownURLs    []string
	webhookURL   string
	webhookToken string
	jwtKey       []byte

	notifications *notify.Manager
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client for all outbound requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-call timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d > 0 {
			c.timeout = d
		}
		return nil
	}
}

// WithKnownAgentURLs registers agent URLs to discover with
// DiscoverKnownAgents before first use.
func WithKnownAgentURLs(urls ...string) Option {
	return func(c *Client) error {
		c.knownURLs = append(c.knownURLs, urls...)
		return nil
	}
}

// WithWebhook configures the push-notification target: sends will carry a
// push config naming url, and inbound notifications must bear token.
func WithWebhook(url, token string) Option {
	return func(c *Client) error {
		if url == "" || token == "" {
			return errors.New("webhook url and token must both be set")
		}
		c.webhookURL = url
		c.webhookToken = token
		return nil
	}
}

// WithWebhookJWTKey switches webhook bearer validation to JWT mode using the
// given HS256 signing key. Requires WithWebhook.
func WithWebhookJWTKey(key []byte) Option {
	return func(c *Client) error {
		c.jwtKey = key
		return nil
	}
}

// WithHeaders configures static headers for one agent URL. Lookup is an
// exact match on the normalized URL.
func WithHeaders(url string, headers HeaderSet) Option {
	return func(c *Client) error {
		return c.creds.setHeaders(url, headers)
	}
}

// WithOAuth2 configures an OAuth2 client-credentials flow for one agent URL.
// Tokens are fetched and refreshed lazily via the token source.
func WithOAuth2(url string, cfg clientcredentials.Config) Option {
	return func(c *Client) error {
		return c.creds.setOAuth(url, cfg)
	}
}

// WithRateLimit throttles outbound task dispatch to rps requests per second
// with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithLogger sets the logger used by the notification path. Defaults to a
// no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:  DefaultTimeout,
		creds:    newCredentialResolver(),
		registry: newRegistry(),
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.jwtKey != nil && c.webhookToken == "" {
		return nil, errors.New("webhook JWT key requires a configured webhook")
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	notifyOpts := []notify.Option{notify.WithLogger(c.logger)}
	if c.jwtKey != nil {
		notifyOpts = append(notifyOpts, notify.WithJWTKey(c.jwtKey))
	}
	c.notifications = notify.NewManager(c.webhookToken, notifyOpts...)

	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(opts ...Option) *Client {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// HeadersFor returns the exact configured header set for url, or an empty
// set when none is configured. Never errors and never touches the network.
func (c *Client) HeadersFor(url string) HeaderSet {
	return c.creds.headersFor(url)
}

// Notifications exposes the subscription manager for wiring into a webhook
// receiver.
func (c *Client) Notifications() *notify.Manager {
	return c.notifications
}

// DiscoverAgent fetches the agent card for url, caching it in the registry.
// A cached card is returned without a network call; re-discovery replaces
// the cached card wholesale (see RefreshAgent).
func (c *Client) DiscoverAgent(ctx context.Context, url string) (*a2a.AgentCard, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	card, err := c.registry.discoverOrFetch(ctx, c.httpClient, c.creds, url)
	metrics.RecordDiscovery(err == nil)
	return card, err
}

// RefreshAgent re-fetches the agent card for url, replacing any cached card.
// On failure the previous card stays cached.
func (c *Client) RefreshAgent(ctx context.Context, url string) (*a2a.AgentCard, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	normalized, err := agenturl.Normalize(url)
	if err != nil {
		return nil, err
	}
	headers, err := c.creds.resolve(normalized)
	if err != nil {
		return nil, err
	}
	card, err := fetchAgentCard(ctx, c.httpClient, normalized, headers)
	metrics.RecordDiscovery(err == nil)
	if err != nil {
		return nil, err
	}
	c.registry.put(normalized, card)
	return card, nil
}

// DiscoverKnownAgents discovers every URL configured with
// WithKnownAgentURLs. Unreachable agents do not stop the sweep; all failures
// are joined into the returned error.
func (c *Client) DiscoverKnownAgents(ctx context.Context) error {
	var errs []error
	for _, url := range c.knownURLs {
		if _, err := c.DiscoverAgent(ctx, url); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListDiscoveredAgents returns all cached agents in discovery order.
func (c *Client) ListDiscoveredAgents() []DiscoveredAgent {
	return c.registry.list()
}

// GetAgent returns the cached card for url without fetching.
func (c *Client) GetAgent(url string) (*a2a.AgentCard, error) {
	normalized, err := agenturl.Normalize(url)
	if err != nil {
		return nil, err
	}
	return c.registry.get(normalized)
}

// SendMessage sends a plain-text user message to the agent at url.
func (c *Client) SendMessage(ctx context.Context, url, text string) (*TaskHandle, error) {
	return c.SendMessageParts(ctx, url, a2a.TextPart(text))
}

// SendMessageParts sends a user message built from the given parts to the
// agent at url, discovering the agent first if it is not yet cached.
//
// When a webhook is configured the send carries a push-notification config
// with a fresh correlation token and returns without waiting for the task to
// finish; the handle is then updated by the notification path. With no
// webhook the caller polls via PollTask.
func (c *Client) SendMessageParts(ctx context.Context, url string, parts ...a2a.Part) (*TaskHandle, error) {
	msg := a2a.Message{
		Role:      "user",
		Parts:     parts,
		MessageID: uuid.NewString(),
	}

	var push *a2a.PushNotificationConfig
	if c.webhookURL != "" {
		push = &a2a.PushNotificationConfig{
			URL:   c.webhookURL,
			Token: uuid.NewString(),
			Authentication: &a2a.PushAuthenticationInfo{
				Schemes:     []string{"Bearer"},
				Credentials: c.webhookToken,
			},
		}
	}

	handle, err := c.send(ctx, url, msg, push)
	metrics.RecordSend(err == nil)
	if err != nil {
		return nil, err
	}

	if push != nil && !handle.Terminal() {
		c.notifications.RegisterPending(push.Token, handle)
		metrics.SetPendingTasks(c.notifications.PendingCount())
	}
	return handle, nil
}

// PollTask fetches the task's current server-side state and applies it to
// the handle. Polling a handle that already reached a final state returns
// nil without changing it. Polling a handle for a synchronous reply is an
// error.
func (c *Client) PollTask(ctx context.Context, handle *TaskHandle) error {
	if handle.ID == "" {
		return fmt.Errorf("task on %s has no server-side id to poll", handle.AgentURL)
	}
	task, err := c.GetTask(ctx, handle.AgentURL, handle.ID)
	if err != nil {
		return err
	}
	err = handle.ApplyUpdate(task.Status.State, diffArtifacts(handle.Artifacts(), task.Artifacts))
	if errors.Is(err, ErrTerminalTask) {
		// A push notification can finish the handle between the caller's
		// Terminal check and this update. The task is done either way.
		return nil
	}
	return err
}

// diffArtifacts returns the tail of remote not yet present locally. Agents
// return the full artifact list on every poll; handles accumulate.
func diffArtifacts(local, remote []a2a.Artifact) []a2a.Artifact {
	if len(remote) <= len(local) {
		return nil
	}
	return remote[len(local):]
}
