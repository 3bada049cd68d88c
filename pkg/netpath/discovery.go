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
	"net"
	"net/netip"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
)

const (
	defaultServerPort = "5000"
	dnsLookupTimeout  = 2 * time.Second
)

// DiscoveryConfig holds the inputs for a discovery pass.
type DiscoveryConfig struct {
	// ConfiguredURL is the operator-provided control server URL.
	ConfiguredURL string
	// PeerName optionally names the server on the overlay mesh.
	PeerName string
	// Port overrides the server port when the configured URL has none.
	Port string
	// AutoScan enumerates all online overlay peers when no overlay
	// candidate was found by other means.
	AutoScan bool
	// PortCheck, when set, pre-filters auto-scanned overlay peers with a
	// cheap TCP connect so most non-servers never reach the HTTP probe.
	PortCheck func(ctx context.Context, host, port string) bool
}

// Discoverer enumerates connection candidates for the control server.
type Discoverer struct {
	cfg       DiscoveryConfig
	directory OverlayDirectory
	resolver  Resolver
	logger    logger.Logger
}

// NewDiscoverer creates a Discoverer. A nil resolver uses the system DNS
// resolver with a short per-lookup timeout.
func NewDiscoverer(cfg DiscoveryConfig, directory OverlayDirectory, resolver Resolver, log logger.Logger) *Discoverer {
	if cfg.Port == "" {
		cfg.Port = defaultServerPort
	}

	if resolver == nil {
		resolver = &timeoutResolver{inner: net.DefaultResolver}
	}

	return &Discoverer{
		cfg:       cfg,
		directory: directory,
		resolver:  resolver,
		logger:    log,
	}
}

// Discover produces connection candidates in priority order. It never
// returns an empty slice when a configured URL is present: the configured
// URL itself is the last-resort candidate.
func (d *Discoverer) Discover(ctx context.Context) []models.Candidate {
	scheme, host, port := splitConfiguredURL(d.cfg.ConfiguredURL, d.cfg.Port)

	pass := &discoveryPass{
		scheme: scheme,
		port:   port,
		seen:   make(map[string]struct{}),
	}

	if host != "" {
		switch Classify(host) {
		case models.PathLoopback:
			pass.add(host, models.PathLoopback, "")
		case models.PathLocal:
			pass.add(host, models.PathLocal, "")
		case models.PathOverlay:
			pass.add(host, models.PathOverlay, "")
		case models.PathUnknown:
			// Symbolic name or public address; resolved below.
		}
	}

	if d.cfg.PeerName != "" {
		if addr, ok := d.directory.PeerAddr(ctx, d.cfg.PeerName); ok {
			pass.add(addr.String(), models.PathOverlay, d.cfg.PeerName)
		}
	}

	if host != "" && !isAddrLiteral(host) && !strings.EqualFold(host, "localhost") {
		d.resolveSymbolicHost(ctx, pass, host)
	}

	if d.cfg.AutoScan && !pass.hasOverlay {
		d.scanOverlayPeers(ctx, pass)
	}

	if len(pass.candidates) == 0 && d.cfg.ConfiguredURL != "" {
		pass.candidates = append(pass.candidates, models.Candidate{
			URL:      d.cfg.ConfiguredURL,
			Class:    models.PathUnknown,
			Priority: models.PathUnknown.Priority(),
		})
	}

	sort.SliceStable(pass.candidates, func(i, j int) bool {
		return pass.candidates[i].Priority < pass.candidates[j].Priority
	})

	if d.logger != nil {
		d.logger.Debug().Int("candidates", len(pass.candidates)).Msg("Discovery pass complete")
	}

	return pass.candidates
}

// resolveSymbolicHost tries overlay-name resolution and ordinary DNS for
// a non-literal host, classifying every address it finds.
func (d *Discoverer) resolveSymbolicHost(ctx context.Context, pass *discoveryPass, host string) {
	if addr, ok := d.directory.PeerAddr(ctx, host); ok {
		pass.add(addr.String(), models.PathOverlay, host)
	}

	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return
	}

	for _, s := range addrs {
		addr, parseErr := netip.ParseAddr(s)
		if parseErr != nil || !addr.Is4() {
			continue
		}

		if class := ClassifyAddr(addr); class != models.PathUnknown {
			pass.add(addr.String(), class, "")
		}
	}
}

// scanOverlayPeers emits one candidate per online overlay peer. This is
// the zero-config fallback for devices that only know the overlay exists.
func (d *Discoverer) scanOverlayPeers(ctx context.Context, pass *discoveryPass) {
	status, err := d.directory.Status(ctx)
	if err != nil || !status.Active {
		return
	}

	for _, peer := range status.Peers {
		if !peer.Online {
			continue
		}

		for _, addr := range peer.Addrs {
			if d.cfg.PortCheck != nil && !d.cfg.PortCheck(ctx, addr.String(), pass.port) {
				continue
			}

			pass.add(addr.String(), models.PathOverlay, peer.Hostname)
		}
	}
}

// discoveryPass accumulates deduplicated candidates for one pass.
type discoveryPass struct {
	scheme     string
	port       string
	seen       map[string]struct{}
	candidates []models.Candidate
	hasOverlay bool
}

func (p *discoveryPass) add(host string, class models.PathClass, peerLabel string) {
	candidateURL := p.scheme + "://" + net.JoinHostPort(host, p.port)
	if _, dup := p.seen[candidateURL]; dup {
		return
	}

	p.seen[candidateURL] = struct{}{}

	if class == models.PathOverlay {
		p.hasOverlay = true
	}

	p.candidates = append(p.candidates, models.Candidate{
		URL:       candidateURL,
		Class:     class,
		Priority:  class.Priority(),
		PeerLabel: peerLabel,
	})
}

// splitConfiguredURL extracts scheme, host and port from the configured
// URL, tolerating bare host:port strings.
func splitConfiguredURL(configured, defaultPort string) (scheme, host, port string) {
	scheme = "http"
	port = defaultPort

	if configured == "" {
		return scheme, "", port
	}

	raw := configured
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return scheme, "", port
	}

	if u.Scheme == "https" {
		scheme = "https"
	}

	host = u.Hostname()
	if p := u.Port(); p != "" {
		port = p
	}

	return scheme, host, port
}

func isAddrLiteral(host string) bool {
	_, err := netip.ParseAddr(host)
	return err == nil
}

// timeoutResolver bounds every lookup so discovery cannot stall on DNS.
type timeoutResolver struct {
	inner *net.Resolver
}

func (r *timeoutResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, dnsLookupTimeout)
	defer cancel()

	return r.inner.LookupHost(lookupCtx, host)
}
