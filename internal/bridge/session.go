package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Session holds the persisted pairing with a bridge: its address, the
// application key used on every call, and identity metadata. One session
// exists per process.
type Session struct {
	BridgeIP       string `json:"bridge_ip"`
	ApplicationKey string `json:"application_key"`
	BridgeID       string `json:"bridge_id,omitempty"`
	// Instance is a random id generated at pairing time and baked into the
	// devicetype string, so re-pairing the same install is recognizable in
	// the bridge's allowlist.
	Instance string `json:"instance,omitempty"`

	path string
}

// LoadSession reads a session file. A missing file yields an empty session
// bound to the same path, not an error.
func LoadSession(path string) (*Session, error) {
	s := &Session{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}

	log.Debug().Str("path", path).Str("bridge", s.BridgeIP).Msg("Loaded bridge session")
	return s, nil
}

// Configured reports whether the session can make authenticated calls.
func (s *Session) Configured() bool {
	return s.BridgeIP != "" && s.ApplicationKey != ""
}

// Save writes the session atomically (temp file + rename) with owner-only
// permissions; the application key is a bearer credential.
func (s *Session) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	log.Info().Str("path", s.path).Msg("Saved bridge session")
	return nil
}
