package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huectl/internal/bridge"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect
// attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// EventSource opens a one-shot event subscription. Each call establishes a
// fresh connection; the returned channel closes when that connection drops.
type EventSource interface {
	SubscribeEvents(ctx context.Context) (<-chan bridge.Event, error)
}

// ListenerConfig contains reconnection settings for the event listener.
type ListenerConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultListenerConfig returns sensible defaults for the event listener.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0, // infinite
	}
}

// Listener keeps the mirror fed from the bridge event stream, reconnecting
// with exponential backoff when the stream drops. After every reconnect it
// resyncs the mirror, since events emitted during the gap are gone.
type Listener struct {
	mirror *Mirror
	source EventSource
	config ListenerConfig
}

func NewListener(mirror *Mirror, source EventSource) *Listener {
	return NewListenerWithConfig(mirror, source, DefaultListenerConfig())
}

func NewListenerWithConfig(mirror *Mirror, source EventSource, config ListenerConfig) *Listener {
	return &Listener{mirror: mirror, source: source, config: config}
}

// Run blocks until ctx is cancelled, applying stream events to the mirror.
// Returns ErrMaxReconnectsExceeded if reconnecting is capped and the cap is
// hit.
func (l *Listener) Run(ctx context.Context) error {
	retryCount := 0
	currentBackoff := l.config.MinBackoff
	firstConnect := true

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		subscribed, err := l.connect(ctx, firstConnect)
		if subscribed {
			firstConnect = false
			retryCount = 0
			currentBackoff = l.config.MinBackoff
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			retryCount++
			if l.config.MaxReconnects > 0 && retryCount > l.config.MaxReconnects {
				log.Error().
					Int("max_reconnects", l.config.MaxReconnects).
					Msg("Event listener: max reconnects exceeded, terminating")
				return ErrMaxReconnectsExceeded
			}

			log.Warn().
				Err(err).
				Dur("backoff", currentBackoff).
				Int("retry", retryCount).
				Msg("Event stream disconnected, reconnecting")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(currentBackoff):
			}

			nextBackoff := time.Duration(float64(currentBackoff) * l.config.Multiplier)
			if nextBackoff > l.config.MaxBackoff {
				nextBackoff = l.config.MaxBackoff
			}
			currentBackoff = nextBackoff
			continue
		}
	}
}

// connect opens one subscription and drains it until the stream ends.
// On reconnects the mirror is resynced first to cover the event gap.
// Reports whether the subscription was established at all, so the caller
// can reset its backoff.
func (l *Listener) connect(ctx context.Context, firstConnect bool) (bool, error) {
	events, err := l.source.SubscribeEvents(ctx)
	if err != nil {
		return false, err
	}

	if !firstConnect {
		if err := l.mirror.Sync(ctx); err != nil {
			log.Warn().Err(err).Msg("Resync after reconnect failed, state may lag until next event")
		}
	}

	log.Debug().Msg("Event stream connected")
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-events:
			if !ok {
				return true, errors.New("event stream closed")
			}
			l.mirror.ApplyEvent(ev)
		}
	}
}
