package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
	"github.com/agentlink-protocol/agentlink/pkg/agenturl"
)

// DiscoveredAgent pairs a normalized agent URL with its cached card.
type DiscoveredAgent struct {
	URL  string
	Card *a2a.AgentCard
}

// registry is the in-memory cache of discovered agent cards, keyed by
// normalized URL. Insertion order is preserved for listing. The lock guards
// only the map and order slice, never a network call, so concurrent
// discovery of the same unseen URL may fetch twice; the last
// writer wins and the earlier card is replaced wholesale.
type registry struct {
	mu    sync.Mutex
	cards map[string]*a2a.AgentCard
	order []string
}

func newRegistry() *registry {
	return &registry{cards: make(map[string]*a2a.AgentCard)}
}

// get returns the cached card for a normalized URL, or ErrAgentNotFound.
func (r *registry) get(url string) (*a2a.AgentCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[url]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return card, nil
}

// put inserts or replaces the card for a normalized URL.
func (r *registry) put(url string, card *a2a.AgentCard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.cards[url]; !seen {
		r.order = append(r.order, url)
	}
	r.cards[url] = card
}

// list returns all discovered agents in first-discovered-first order.
func (r *registry) list() []DiscoveredAgent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DiscoveredAgent, 0, len(r.order))
	for _, url := range r.order {
		out = append(out, DiscoveredAgent{URL: url, Card: r.cards[url]})
	}
	return out
}

// discoverOrFetch returns the cached card for rawURL, fetching and caching it
// on a miss. On fetch failure the cache is left untouched and the error
// propagates to the caller.
func (r *registry) discoverOrFetch(ctx context.Context, httpClient *http.Client, creds *credentialResolver, rawURL string) (*a2a.AgentCard, error) {
	url, err := agenturl.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	if card, err := r.get(url); err == nil {
		return card, nil
	}

	headers, err := creds.resolve(url)
	if err != nil {
		return nil, err
	}

	card, err := fetchAgentCard(ctx, httpClient, url, headers)
	if err != nil {
		return nil, err
	}

	r.put(url, card)
	return card, nil
}
