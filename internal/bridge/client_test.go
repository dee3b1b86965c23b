package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler, opts Options) *Client {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	session := &Session{
		BridgeIP:       strings.TrimPrefix(server.URL, "https://"),
		ApplicationKey: "test-key",
	}
	return NewClient(session, opts)
}

func TestRequestSetsApplicationKeyAndPrefix(t *testing.T) {
	var gotPath, gotKey string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("hue-application-key")
		w.Write([]byte(`{"data":[],"errors":[]}`))
	}), Options{RateInterval: time.Millisecond, GroupRateInterval: time.Millisecond})

	if _, err := client.Get(context.Background(), "resource/light"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/clip/v2/resource/light" {
		t.Errorf("path = %q, want /clip/v2/resource/light", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("application key header = %q", gotKey)
	}
}

func TestRequestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, ErrRateLimited) }, "429 rate limited"},
		{http.StatusUnauthorized, func(err error) bool { return errors.Is(err, ErrAuthenticationFailed) }, "401 auth"},
		{http.StatusNotFound, func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
		}, "404 api error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"errors":[{"description":"nope"}]}`))
			}), Options{RateInterval: time.Millisecond, GroupRateInterval: time.Millisecond})

			_, err := client.Get(context.Background(), "resource/light")
			if err == nil || !tc.check(err) {
				t.Errorf("status %d mapped to %v", tc.status, err)
			}
		})
	}
}

func TestRequestAPIErrorCarriesDescription(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"description":"invalid body"},{"description":"second"}]}`))
	}), Options{RateInterval: time.Millisecond, GroupRateInterval: time.Millisecond})

	_, err := client.Put(context.Background(), "resource/light/abc", map[string]any{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if apiErr.Message != "invalid body" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if len(apiErr.Details) != 2 {
		t.Errorf("details = %v", apiErr.Details)
	}
	if apiErr.Endpoint != "resource/light/abc" {
		t.Errorf("endpoint = %q", apiErr.Endpoint)
	}
}

func TestRequestNotConfigured(t *testing.T) {
	client := NewClient(&Session{}, Options{})
	if _, err := client.Get(context.Background(), "resource/light"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("want ErrNotConfigured, got %v", err)
	}
}

func TestRateLimiterEnforcesMinimumGap(t *testing.T) {
	const interval = 30 * time.Millisecond
	const calls = 4

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}), Options{RateInterval: interval, GroupRateInterval: time.Millisecond})

	start := time.Now()
	for i := 0; i < calls; i++ {
		if _, err := client.Get(context.Background(), "resource/light"); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if min := (calls - 1) * int(interval); elapsed < time.Duration(min) {
		t.Errorf("%d calls took %v, want at least %v", calls, elapsed, time.Duration(min))
	}
}

func TestGroupTierStricterThanDefault(t *testing.T) {
	const groupInterval = 50 * time.Millisecond

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}), Options{RateInterval: time.Millisecond, GroupRateInterval: groupInterval})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.PutGroup(context.Background(), "resource/grouped_light/g1", map[string]any{}); err != nil {
			t.Fatalf("group call %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*groupInterval {
		t.Errorf("3 group calls took %v, want at least %v", elapsed, 2*groupInterval)
	}
}

func TestRequestContextCancelledWhileWaiting(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}), Options{RateInterval: time.Hour, GroupRateInterval: time.Millisecond})

	// First call consumes the burst token.
	if _, err := client.Get(context.Background(), "resource/light"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Get(ctx, "resource/light"); err == nil {
		t.Error("second call should fail while waiting on the limiter")
	}
}
