// Package bridge is the transport layer for the Hue CLIP v2 API: discovery,
// link-button pairing, rate-limited HTTPS requests and the SSE event stream.
//
// TLS verification is disabled throughout. The bridge serves a self-signed
// certificate; trust is anchored by being on the same network and by the
// physical link button, not by a certificate chain.
package bridge

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const apiBase = "/clip/v2"

// Rate tiers. Aggregate (grouped_light) writes congest the Zigbee mesh far
// faster than individual ones, so they get a much stricter gap.
const (
	DefaultRateInterval = 100 * time.Millisecond
	GroupRateInterval   = time.Second
)

// Options tunes the client. Zero values pick the defaults above.
type Options struct {
	RequestTimeout    time.Duration
	RateInterval      time.Duration
	GroupRateInterval time.Duration
}

// Client performs rate-limited authenticated calls against a bridge.
//
// Two independent limiters serialize dispatch: every call passes the default
// tier, group commands additionally pass the group tier first. Each limiter
// has burst 1, so throughput is capped at 1/interval regardless of caller
// concurrency; arrival order among waiters is not FIFO.
type Client struct {
	session      *Session
	httpClient   *http.Client
	limiter      *rate.Limiter
	groupLimiter *rate.Limiter
}

// NewClient creates a client over an existing session.
func NewClient(session *Session, opts Options) *Client {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateInterval == 0 {
		opts.RateInterval = DefaultRateInterval
	}
	if opts.GroupRateInterval == 0 {
		opts.GroupRateInterval = GroupRateInterval
	}

	return &Client{
		session: session,
		httpClient: &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		limiter:      rate.NewLimiter(rate.Every(opts.RateInterval), 1),
		groupLimiter: rate.NewLimiter(rate.Every(opts.GroupRateInterval), 1),
	}
}

// Session returns the session the client was built over.
func (c *Client) Session() *Session {
	return c.session
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Request performs a rate-limited CLIP call. path is relative to /clip/v2
// (a leading slash is optional). When group is set the stricter group tier
// is acquired before the default tier. Returns the raw response JSON.
//
// Errors are mapped, never retried here: 429 to ErrRateLimited, 401 to
// ErrAuthenticationFailed, other >= 400 to *APIError, transport failures to
// *ConnectionError.
func (c *Client) Request(ctx context.Context, method, path string, body any, group bool) (json.RawMessage, error) {
	if !c.session.Configured() {
		return nil, ErrNotConfigured
	}

	if group {
		if err := c.groupLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("hue-application-key", c.session.ApplicationKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Host: c.session.BridgeIP, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Host: c.session.BridgeIP, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: invalid application key", ErrAuthenticationFailed)
	case resp.StatusCode >= 400:
		return nil, apiError(resp.StatusCode, path, payload)
	}

	return payload, nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasPrefix(path, apiBase) {
		path = apiBase + path
	}
	return fmt.Sprintf("https://%s%s", c.session.BridgeIP, path)
}

func apiError(status int, endpoint string, body []byte) *APIError {
	apiErr := &APIError{
		Status:   status,
		Endpoint: endpoint,
		Message:  fmt.Sprintf("HTTP %d", status),
	}

	var parsed struct {
		Errors []struct {
			Description string `json:"description"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &parsed) == nil && len(parsed.Errors) > 0 {
		apiErr.Message = parsed.Errors[0].Description
		for _, e := range parsed.Errors {
			apiErr.Details = append(apiErr.Details, e.Description)
		}
	}

	return apiErr
}

// Get performs a GET against a CLIP resource path.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, path, nil, false)
}

// Put performs a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPut, path, body, false)
}

// PutGroup performs a PUT under the group rate tier.
func (c *Client) PutGroup(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPut, path, body, true)
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPost, path, body, false)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, false)
}
