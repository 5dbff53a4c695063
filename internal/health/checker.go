// Package health periodically probes the card endpoints of discovered
// agents and tracks which ones have gone quiet. Probing is observational:
// a degraded agent stays in the discovery cache and can still be sent to.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentlink-protocol/agentlink/internal/metrics"
	"github.com/agentlink-protocol/agentlink/pkg/a2a"
)

// Config holds prober configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// AgentLister returns the URLs of agents to probe. Satisfied by the client
// registry via a small adapter in the caller.
type AgentLister interface {
	AgentURLs() []string
}

// Status is the prober's view of one agent.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusUnknown  Status = "unknown"
)

// Prober runs periodic availability probes against agent card endpoints.
type Prober struct {
	lister     AgentLister
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger

	mu         sync.Mutex
	failCounts map[string]int
	statuses   map[string]Status
}

// New creates a new Prober.
func New(lister AgentLister, cfg Config, logger *zap.Logger) *Prober {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Prober{
		lister:     lister,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:        cfg,
		logger:     logger,
		failCounts: make(map[string]int),
		statuses:   make(map[string]Status),
	}
}

// Status returns the last observed status for an agent URL.
func (p *Prober) Status(url string) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.statuses[url]; ok {
		return s
	}
	return StatusUnknown
}

// Start runs the probe loop until stop is closed. The caller owns stop; a
// shared signal channel would race the prober against the main shutdown
// path for a single delivery.
func (p *Prober) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CheckInterval-time.Second)
			p.CheckAll(ctx)
			cancel()
		case <-stop:
			return
		}
	}
}

// CheckAll probes all listed agents with bounded concurrency.
func (p *Prober) CheckAll(ctx context.Context) {
	urls := p.lister.AgentURLs()

	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup

	for _, u := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			success := p.probe(ctx, url+a2a.WellKnownCardPath)
			metrics.RecordProbe(success)

			p.mu.Lock()
			prevCount := p.failCounts[url]
			if success {
				p.failCounts[url] = 0
				p.statuses[url] = StatusHealthy
			} else {
				p.failCounts[url]++
				if p.failCounts[url] >= p.cfg.FailThreshold {
					p.statuses[url] = StatusDegraded
				}
			}
			count := p.failCounts[url]
			p.mu.Unlock()

			if success && prevCount >= p.cfg.FailThreshold {
				p.logger.Info("probe: agent recovered", zap.String("url", url))
			} else if count == p.cfg.FailThreshold {
				p.logger.Warn("probe: agent degraded",
					zap.String("url", url),
					zap.Int("fail_count", count),
				)
			}
		}(u)
	}

	wg.Wait()
}

// probe attempts HEAD then GET, returning true on any 2xx response.
func (p *Prober) probe(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
	}

	// Some agents reject HEAD; fall back to GET.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err = p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
