package bridge

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Bridges at or above this swversion speak CLIP v2.
const minV2SoftwareVersion = 1948086000

// Error type the V1 pairing endpoint returns while the link button has not
// been pressed.
const errTypeLinkButton = 101

func pairingHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

// Authenticate registers an application key with the bridge. The user must
// press the link button first; until then every attempt returns
// ErrLinkButtonNotPressed and the caller decides whether to prompt and retry.
// On success the key is stored in the session and the session is persisted.
func Authenticate(ctx context.Context, session *Session, appName, deviceName string) error {
	if session.BridgeIP == "" {
		return fmt.Errorf("%w: no bridge address, run discovery first", ErrBridgeNotFound)
	}

	if session.Instance == "" {
		session.Instance = uuid.NewString()[:8]
	}

	// The bridge truncates devicetype at application#device lengths 20/19.
	if len(appName) > 20 {
		appName = appName[:20]
	}
	device := fmt.Sprintf("%s-%s", deviceName, session.Instance)
	if len(device) > 19 {
		device = device[:19]
	}

	payload, err := json.Marshal(map[string]any{
		"devicetype":        fmt.Sprintf("%s#%s", appName, device),
		"generateclientkey": true,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/api", session.BridgeIP), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := pairingHTTPClient().Do(req)
	if err != nil {
		return &ConnectionError{Host: session.BridgeIP, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: pairing endpoint returned HTTP %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var results []struct {
		Success *struct {
			Username  string `json:"username"`
			ClientKey string `json:"clientkey"`
		} `json:"success"`
		Error *struct {
			Type        int    `json:"type"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return fmt.Errorf("failed to decode pairing response: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: empty pairing response", ErrAuthenticationFailed)
	}

	result := results[0]
	if result.Error != nil {
		if result.Error.Type == errTypeLinkButton {
			return ErrLinkButtonNotPressed
		}
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, result.Error.Description)
	}
	if result.Success == nil {
		return fmt.Errorf("%w: unexpected pairing response", ErrAuthenticationFailed)
	}

	session.ApplicationKey = result.Success.Username

	log.Info().Str("bridge", session.BridgeIP).Msg("Paired with bridge")
	return session.Save()
}

// BridgeInfo is the unauthenticated identity of a bridge.
type BridgeInfo struct {
	BridgeID        string `json:"bridgeid"`
	Name            string `json:"name"`
	SoftwareVersion string `json:"swversion"`
	ModelID         string `json:"modelid"`
}

// SupportsV2 reports whether the bridge firmware speaks CLIP v2.
func (i BridgeInfo) SupportsV2() bool {
	v, err := strconv.Atoi(i.SoftwareVersion)
	return err == nil && v >= minV2SoftwareVersion
}

// FetchBridgeInfo queries the unauthenticated V1 config endpoint, used by
// setup to stamp the bridge id into the session and to verify v2 support.
func FetchBridgeInfo(ctx context.Context, host string) (BridgeInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("https://%s/api/0/config", host), nil)
	if err != nil {
		return BridgeInfo{}, err
	}

	resp, err := pairingHTTPClient().Do(req)
	if err != nil {
		return BridgeInfo{}, &ConnectionError{Host: host, Err: err}
	}
	defer resp.Body.Close()

	var info BridgeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return BridgeInfo{}, fmt.Errorf("failed to decode bridge config: %w", err)
	}
	return info, nil
}
