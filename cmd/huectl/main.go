package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huectl/internal/app"
	"github.com/dokzlo13/huectl/internal/bridge"
	"github.com/dokzlo13/huectl/internal/config"
)

// Pairing gives the user this long to reach the bridge and press the button.
const (
	pairingAttempts = 30
	pairingInterval = 2 * time.Second
)

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	flag.Parse()

	// Load configuration; a missing file just means defaults
	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		cfg = config.Default()
	}

	// Setup logging
	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Discover and pair if the stored session has no credentials yet
	if err := setup(ctx, cfg, application.Services().Session); err != nil {
		log.Fatal().Err(err).Msg("Bridge setup failed")
	}

	// Start the application (initial sync + event stream)
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// One-shot mode: remaining args form a single command
	if args := flag.Args(); len(args) > 0 {
		runCommand(ctx, application.Services(), strings.Join(args, " "))
		application.Stop()
		return
	}

	repl(ctx, application)

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

// setup makes sure the session is paired: discovery when no address is known,
// then link-button pairing when no application key is stored.
func setup(ctx context.Context, cfg *config.Config, session *bridge.Session) error {
	if session.Configured() {
		return nil
	}

	if session.BridgeIP == "" {
		addr, err := bridge.Discover(ctx, cfg.Discovery.Timeout.Duration())
		if err != nil {
			return err
		}
		session.BridgeIP = addr
	}

	info, err := bridge.FetchBridgeInfo(ctx, session.BridgeIP)
	if err != nil {
		return err
	}
	if !info.SupportsV2() {
		return fmt.Errorf("bridge %s (firmware %s) does not support CLIP v2", session.BridgeIP, info.SoftwareVersion)
	}
	session.BridgeID = info.BridgeID

	fmt.Printf("Press the link button on bridge %q (%s)...\n", info.Name, session.BridgeIP)

	for attempt := 1; attempt <= pairingAttempts; attempt++ {
		err = bridge.Authenticate(ctx, session, cfg.Bridge.AppName, cfg.Bridge.DeviceName)
		if err == nil {
			fmt.Println("Paired.")
			return nil
		}
		if !errors.Is(err, bridge.ErrLinkButtonNotPressed) {
			return err
		}

		select {
		case <-time.After(pairingInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func repl(ctx context.Context, application *app.App) {
	fmt.Println(`Type a command ("turn on kitchen"), "sync", or "quit".`)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-application.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				return
			}
			text := strings.TrimSpace(line)
			switch strings.ToLower(text) {
			case "":
			case "quit", "exit":
				return
			case "sync":
				if err := application.Services().Resync(ctx); err != nil {
					fmt.Printf("sync failed: %v\n", err)
				} else {
					fmt.Println("Synced.")
				}
			case "lights":
				for _, l := range application.Services().Mirror.AllLights() {
					state := "off"
					if l.On {
						state = "on"
					}
					if !l.Reachable() {
						state = "unreachable"
					}
					fmt.Printf("  %-30s %s\n", l.Name, state)
				}
			default:
				runCommand(ctx, application.Services(), text)
			}
		}
	}
}

func runCommand(ctx context.Context, services *app.Services, text string) {
	result, err := services.Run(ctx, text)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Println(result.Message)
	for _, name := range result.Unreachable {
		fmt.Printf("  warning: %s is unreachable\n", name)
	}
	for _, e := range result.Errors {
		fmt.Printf("  failed: %s\n", e)
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
