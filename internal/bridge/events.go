package bridge

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Event is one frame from the bridge's SSE stream. Data is the raw JSON
// payload of the frame; typed decoding happens at the mirror boundary.
type Event struct {
	ID   string
	Data []byte
}

// EventBuffer is the capacity of the subscription channel. The listener is
// the only consumer; if it stalls, the producer blocks rather than drops.
const EventBuffer = 32

// SubscribeEvents opens the long-lived event stream and returns a channel of
// parsed frames. The channel is closed when the connection drops or ctx is
// cancelled; the sequence is not restartable, reconnecting means calling
// SubscribeEvents again.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	if !c.session.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("https://%s/eventstream/clip/v2", c.session.BridgeIP), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("hue-application-key", c.session.ApplicationKey)
	req.Header.Set("Accept", "text/event-stream")

	// Dedicated client: the stream must outlive the REST request timeout.
	streamClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Host: c.session.BridgeIP, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: invalid application key", ErrAuthenticationFailed)
		}
		return nil, &APIError{Status: resp.StatusCode, Endpoint: "/eventstream/clip/v2",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	log.Info().Str("bridge", c.session.BridgeIP).Msg("Connected to event stream")

	events := make(chan Event, EventBuffer)
	go c.drainStream(ctx, resp, events)
	return events, nil
}

func (c *Client) drainStream(ctx context.Context, resp *http.Response, events chan<- Event) {
	defer close(events)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var current Event

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == ": hi":
			// Greeting comment sent on connect.
			continue

		case line == "":
			// Blank line terminates a frame.
			if len(current.Data) > 0 {
				select {
				case events <- current:
				case <-ctx.Done():
					return
				}
			}
			current = Event{}

		case strings.HasPrefix(line, "id:"):
			current.ID = strings.TrimSpace(line[len("id:"):])

		case strings.HasPrefix(line, "data:"):
			current.Data = append(current.Data, strings.TrimSpace(line[len("data:"):])...)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("Event stream read failed")
	} else {
		log.Debug().Msg("Event stream closed")
	}
}
