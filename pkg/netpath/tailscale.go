/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package netpath

import (
	"context"
	"encoding/json"
	"net/netip"
	"os/exec"
	"strings"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/logger"
)

const tailscaleCmdTimeout = 2 * time.Second

// TailscaleDirectory implements OverlayDirectory by shelling out to the
// tailscale CLI. Every invocation carries a hard timeout so discovery
// never blocks on a wedged daemon.
type TailscaleDirectory struct {
	logger logger.Logger

	// runCommand is swappable in tests.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewTailscaleDirectory creates a directory backed by the tailscale CLI.
func NewTailscaleDirectory(log logger.Logger) *TailscaleDirectory {
	return &TailscaleDirectory{
		logger: log,
		runCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// tailscaleStatus mirrors the fields of `tailscale status --json` that
// the directory reads.
type tailscaleStatus struct {
	BackendState string `json:"BackendState"`
	Self         struct {
		HostName     string   `json:"HostName"`
		TailscaleIPs []string `json:"TailscaleIPs"`
	} `json:"Self"`
	Peer map[string]struct {
		HostName     string   `json:"HostName"`
		DNSName      string   `json:"DNSName"`
		Online       bool     `json:"Online"`
		TailscaleIPs []string `json:"TailscaleIPs"`
	} `json:"Peer"`
}

// Status implements OverlayDirectory.
func (d *TailscaleDirectory) Status(ctx context.Context) (*OverlayStatus, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, tailscaleCmdTimeout)
	defer cancel()

	out, err := d.runCommand(cmdCtx, "tailscale", "status", "--json")
	if err != nil {
		// Not installed or not running; the overlay is simply inactive.
		return &OverlayStatus{}, nil
	}

	var raw tailscaleStatus
	if err := json.Unmarshal(out, &raw); err != nil {
		if d.logger != nil {
			d.logger.Debug().Err(err).Msg("Failed to parse tailscale status output")
		}

		return &OverlayStatus{}, nil
	}

	status := &OverlayStatus{
		BackendState: raw.BackendState,
		Hostname:     raw.Self.HostName,
		Active:       raw.BackendState == "Running" || raw.BackendState == "Connected",
		SelfAddrs:    parseOverlayAddrs(raw.Self.TailscaleIPs),
	}

	for _, peer := range raw.Peer {
		status.Peers = append(status.Peers, OverlayPeer{
			Hostname: peer.HostName,
			DNSName:  peer.DNSName,
			Online:   peer.Online,
			Addrs:    parseOverlayAddrs(peer.TailscaleIPs),
		})
	}

	return status, nil
}

// PeerAddr implements OverlayDirectory.
func (d *TailscaleDirectory) PeerAddr(ctx context.Context, name string) (netip.Addr, bool) {
	status, err := d.Status(ctx)
	if err != nil || !status.Active {
		return netip.Addr{}, false
	}

	peer, ok := findPeer(status.Peers, name)
	if !ok || len(peer.Addrs) == 0 {
		return netip.Addr{}, false
	}

	return peer.Addrs[0], true
}

// findPeer matches a peer by hostname or DNS name, case-insensitively,
// accepting partial hostname matches and DNS-name prefixes.
func findPeer(peers []OverlayPeer, name string) (OverlayPeer, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return OverlayPeer{}, false
	}

	for _, peer := range peers {
		hostname := strings.ToLower(peer.Hostname)
		dnsName := strings.ToLower(peer.DNSName)

		if needle == hostname ||
			strings.Contains(hostname, needle) ||
			strings.Contains(dnsName, needle) ||
			strings.HasPrefix(dnsName, needle+".") {
			return peer, true
		}
	}

	return OverlayPeer{}, false
}

// parseOverlayAddrs keeps only IPv4 addresses inside the overlay block.
func parseOverlayAddrs(raw []string) []netip.Addr {
	var addrs []netip.Addr

	for _, s := range raw {
		addr, err := netip.ParseAddr(s)
		if err != nil || !addr.Is4() || !IsOverlayAddr(addr) {
			continue
		}

		addrs = append(addrs, addr)
	}

	return addrs
}
