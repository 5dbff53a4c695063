package client

import (
	"context"
	"io"
	"net/http"

	"github.com/agentlink-protocol/agentlink/pkg/a2a"
)

// maxCardBytes bounds how much of a card response is read. Real cards are a
// few KB; anything near the limit is garbage.
const maxCardBytes = 1 << 20

// fetchAgentCard retrieves and parses the agent card published under baseURL.
// It attaches the given headers and honors the context for cancellation and
// timeout. Caching is the registry's job, not the fetcher's.
func fetchAgentCard(ctx context.Context, httpClient *http.Client, baseURL string, headers HeaderSet) (*a2a.AgentCard, error) {
	cardURL := baseURL + a2a.WellKnownCardPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, &MalformedCardError{URL: baseURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &UnreachableError{URL: baseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCardBytes))
	if err != nil {
		return nil, &UnreachableError{URL: baseURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{URL: baseURL, Status: resp.StatusCode, Body: truncate(body, 512)}
	}

	card, err := a2a.ParseCard(body)
	if err != nil {
		return nil, &MalformedCardError{URL: baseURL, Err: err}
	}
	return card, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
