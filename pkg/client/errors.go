package client

import (
	"errors"
	"fmt"
)

// ErrAgentNotFound is returned for agent URLs that were never successfully
// discovered.
var ErrAgentNotFound = errors.New("agent not discovered")

// UnreachableError reports a transport-level failure (connection refused,
// DNS, timeout) talking to an agent. Retrying may succeed.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("agent %s unreachable: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx HTTP response from an agent. Retrying only
// makes sense for transient statuses (429, 5xx).
type HTTPError struct {
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("agent %s returned HTTP %d: %s", e.URL, e.Status, e.Body)
}

// Transient reports whether the status suggests a retry could succeed.
func (e *HTTPError) Transient() bool {
	return e.Status == 429 || e.Status >= 500
}

// MalformedCardError reports an agent card that could not be decoded or is
// missing required fields. Not recoverable by retry.
type MalformedCardError struct {
	URL string
	Err error
}

func (e *MalformedCardError) Error() string {
	return fmt.Sprintf("agent %s served a malformed card: %v", e.URL, e.Err)
}

func (e *MalformedCardError) Unwrap() error { return e.Err }

// ProtocolError reports a response whose shape violates the A2A protocol.
// Not recoverable by retry.
type ProtocolError struct {
	URL string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("agent %s protocol error: %s", e.URL, e.Msg)
}

// DiscoveryError wraps a discovery failure hit during an implicit
// discover-then-send, so callers can tell which stage failed.
type DiscoveryError struct {
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery of %s failed: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
