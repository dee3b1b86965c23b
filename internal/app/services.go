package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huectl/internal/bridge"
	"github.com/dokzlo13/huectl/internal/command"
	"github.com/dokzlo13/huectl/internal/config"
	"github.com/dokzlo13/huectl/internal/mirror"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Session *bridge.Session
	Client  *bridge.Client

	// Resource mirror and its event feed
	Mirror   *mirror.Mirror
	Listener *mirror.Listener

	// Command pipeline
	Interpreter *command.Interpreter
	Executor    *command.Executor
}

// NewServices creates all services with proper dependency injection.
// The session may still be unpaired at this point; Setup in the CLI runs
// discovery and pairing before Start is called.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Load the stored session, then apply config overrides
	session, err := bridge.LoadSession(cfg.Bridge.SessionPath)
	if err != nil {
		return nil, err
	}
	if cfg.Bridge.IP != "" {
		session.BridgeIP = cfg.Bridge.IP
	}
	if cfg.Bridge.ApplicationKey != "" {
		session.ApplicationKey = cfg.Bridge.ApplicationKey
	}
	s.Session = session

	// Client holds the session by pointer, so credentials written during
	// pairing are picked up without rebuilding it
	s.Client = bridge.NewClient(session, bridge.Options{
		RequestTimeout:    cfg.Bridge.Timeout.Duration(),
		RateInterval:      cfg.Bridge.RateInterval.Duration(),
		GroupRateInterval: cfg.Bridge.GroupRateInterval.Duration(),
	})

	s.Mirror = mirror.New(s.Client)

	s.Listener = mirror.NewListenerWithConfig(s.Mirror, s.Client, mirror.ListenerConfig{
		MinBackoff:    cfg.Events.MinRetryBackoff.Duration(),
		MaxBackoff:    cfg.Events.MaxRetryBackoff.Duration(),
		Multiplier:    cfg.Events.RetryMultiplier,
		MaxReconnects: cfg.Events.MaxReconnects,
	})

	s.Interpreter = command.NewInterpreter(s.Mirror)
	s.Executor = command.NewExecutor(s.Client, s.Mirror)

	return s, nil
}

// Start performs the initial sync and launches the event stream listener.
// The onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Mirror.Sync(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.Listener.Run(ctx); err != nil {
			if err == mirror.ErrMaxReconnectsExceeded {
				log.Error().Msg("Event stream: max reconnects exceeded, triggering shutdown")
				if onFatalError != nil {
					onFatalError(err)
				}
			} else {
				log.Error().Err(err).Msg("Event stream error")
			}
		}
	}()

	return nil
}

// Run parses a free-text command and executes it against the bridge.
func (s *Services) Run(ctx context.Context, text string) (*command.Result, error) {
	cmd, err := s.Interpreter.Parse(text)
	if err != nil {
		return nil, err
	}
	return s.Executor.Execute(ctx, cmd), nil
}

// Resync rebuilds the mirror from scratch.
func (s *Services) Resync(ctx context.Context) error {
	return s.Mirror.Sync(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
}
