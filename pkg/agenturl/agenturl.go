// Package agenturl normalizes agent base URLs so that two spellings of the
// same agent address map to the same registry key.
//
// Normalization rules are deliberately small and fixed: lowercase scheme and
// host, drop a scheme-default port (:80 for http, :443 for https), and drop
// any trailing slash on the path. Nothing else is rewritten; credential
// lookup and card caching both depend on these rules being stable.
package agenturl

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize returns the canonical form of an agent base URL.
//
//	https://A.test/      -> https://a.test
//	https://a.test:443   -> https://a.test
//	http://a.test:80/x/  -> http://a.test/x
func Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid agent URL %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("agent URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("agent URL %q: missing host", raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && port != defaultPort(scheme) {
		host = host + ":" + port
	}

	path := strings.TrimRight(u.Path, "/")

	return scheme + "://" + host + path, nil
}

// MustNormalize is like Normalize but panics on error. Useful in tests.
func MustNormalize(raw string) string {
	s, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}
