package client

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/agentlink-protocol/agentlink/pkg/agenturl"
)

// HeaderSet is the HTTP headers to attach to requests for one agent URL.
type HeaderSet map[string]string

// clone returns a copy so callers can never mutate the configured set.
func (h HeaderSet) clone() HeaderSet {
	out := make(HeaderSet, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// credentialResolver maps a normalized agent URL to the headers to send with
// requests to that agent. Lookup is an exact match on the normalized URL,
// with no prefix or wildcard matching. A URL may alternatively be configured with
// an OAuth2 client-credentials flow, in which case the resolver renders a
// Bearer header from a cached token source.
type credentialResolver struct {
	static map[string]HeaderSet
	oauth  map[string]oauth2.TokenSource
}

func newCredentialResolver() *credentialResolver {
	return &credentialResolver{
		static: make(map[string]HeaderSet),
		oauth:  make(map[string]oauth2.TokenSource),
	}
}

// setHeaders configures static headers for url. The key is normalized so that
// spelling variants (trailing slash, default port) hit the same entry.
func (r *credentialResolver) setHeaders(url string, headers HeaderSet) error {
	key, err := agenturl.Normalize(url)
	if err != nil {
		return err
	}
	r.static[key] = headers.clone()
	return nil
}

// setOAuth configures an OAuth2 client-credentials token source for url.
// The token source caches and refreshes tokens internally.
func (r *credentialResolver) setOAuth(url string, cfg clientcredentials.Config) error {
	key, err := agenturl.Normalize(url)
	if err != nil {
		return err
	}
	r.oauth[key] = cfg.TokenSource(context.Background())
	return nil
}

// headersFor returns the configured header set for an exact normalized URL
// match, or an empty set if none is configured. Static headers never error.
//
// Exactness is defined over the normalized form: host case and scheme-default
// ports do not create distinct agent identities, but any prefix, subdomain,
// or port variation still misses.
func (r *credentialResolver) headersFor(url string) HeaderSet {
	key, err := agenturl.Normalize(url)
	if err != nil {
		return HeaderSet{}
	}
	if h, ok := r.static[key]; ok {
		return h.clone()
	}
	return HeaderSet{}
}

// resolve returns the full set of headers to attach to an outbound request,
// including an OAuth2 bearer when that mode is configured for the URL.
// A configured static set takes precedence over OAuth2.
func (r *credentialResolver) resolve(url string) (HeaderSet, error) {
	key, err := agenturl.Normalize(url)
	if err != nil {
		return HeaderSet{}, nil
	}
	if h, ok := r.static[key]; ok {
		return h.clone(), nil
	}
	if ts, ok := r.oauth[key]; ok {
		tok, err := ts.Token()
		if err != nil {
			return nil, fmt.Errorf("oauth2 token for %s: %w", url, err)
		}
		return HeaderSet{"Authorization": "Bearer " + tok.AccessToken}, nil
	}
	return HeaderSet{}, nil
}
