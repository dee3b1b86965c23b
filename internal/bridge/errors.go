package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transport layer. Callers match with errors.Is.
var (
	// ErrBridgeNotFound means neither mDNS nor cloud discovery produced a
	// bridge address.
	ErrBridgeNotFound = errors.New("no hue bridge found on the network")

	// ErrAuthenticationFailed covers rejected credentials (HTTP 401) and
	// pairing failures.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrLinkButtonNotPressed is the pairing-specific authentication
	// failure: the physical link button was not pressed. It matches
	// ErrAuthenticationFailed under errors.Is.
	ErrLinkButtonNotPressed = fmt.Errorf("%w: link button not pressed", ErrAuthenticationFailed)

	// ErrRateLimited maps HTTP 429 from the bridge. The transport never
	// retries; backoff is the caller's call.
	ErrRateLimited = errors.New("bridge rate limit exceeded")

	// ErrNotConfigured means the session has no address or application key.
	ErrNotConfigured = errors.New("bridge session not configured")
)

// ConnectionError wraps connect and timeout failures with the bridge host.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to reach bridge %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// APIError is a structured error response from the CLIP API (HTTP >= 400).
type APIError struct {
	Status   int
	Endpoint string
	Message  string
	Details  []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bridge api error (status %d, %s): %s", e.Status, e.Endpoint, e.Message)
}
