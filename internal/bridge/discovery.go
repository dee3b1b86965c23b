package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

const (
	mdnsService       = "_hue._tcp"
	cloudDiscoveryURL = "https://discovery.meethue.com"
)

// Discover finds a bridge on the local network. mDNS is tried first; when it
// produces nothing within the timeout, the cloud discovery service is asked.
// Returns the bridge address or ErrBridgeNotFound.
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	log.Info().Dur("timeout", timeout).Msg("Searching for bridge via mDNS")

	if addr := discoverMDNS(timeout); addr != "" {
		log.Info().Str("bridge", addr).Msg("Found bridge via mDNS")
		return addr, nil
	}

	log.Info().Msg("mDNS found nothing, trying cloud discovery")

	addr, err := discoverCloud(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cloud discovery failed")
		return "", ErrBridgeNotFound
	}
	if addr == "" {
		return "", ErrBridgeNotFound
	}

	log.Info().Str("bridge", addr).Msg("Found bridge via cloud discovery")
	return addr, nil
}

func discoverMDNS(timeout time.Duration) string {
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan string, 1)

	go func() {
		for entry := range entries {
			if entry.AddrV4 != nil {
				select {
				case found <- entry.AddrV4.String():
				default:
				}
			}
		}
	}()

	params := mdns.DefaultParams(mdnsService)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	if err != nil {
		log.Warn().Err(err).Msg("mDNS query failed")
		return ""
	}

	select {
	case addr := <-found:
		return addr
	default:
		return ""
	}
}

func discoverCloud(ctx context.Context) (string, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cloudDiscoveryURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloud discovery returned status %d", resp.StatusCode)
	}

	var bridges []struct {
		ID                string `json:"id"`
		InternalIPAddress string `json:"internalipaddress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bridges); err != nil {
		return "", fmt.Errorf("failed to decode cloud discovery response: %w", err)
	}

	if len(bridges) == 0 {
		return "", nil
	}
	return bridges[0].InternalIPAddress, nil
}
