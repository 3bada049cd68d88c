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

// Package connmgr keeps the agent connected to the control server,
// failing over between local, overlay and loopback paths and failing
// back with hysteresis once a better path proves stable.
package connmgr

import (
	"context"
	"net/netip"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
)

// State is the process-wide connection state. ActiveURL is empty while
// disconnected and otherwise names a URL that was confirmed reachable.
type State struct {
	ActiveURL          string
	ActiveClass        models.PathClass
	LastDisconnectAt   time.Time
	LastLocalFailureAt time.Time
	LastSwitchAt       time.Time
	LocalStableSince   time.Time
}

// Manager owns the connection state machine: Disconnected, Scanning,
// Connected, and the controlled switch back to a better path.
type Manager struct {
	cfg        Config
	clock      Clock
	discoverer Discoverer
	prober     Prober
	dialer     Dialer
	logger     logger.Logger

	// localPrefixes reports the device's current subnets; injectable
	// for tests.
	localPrefixes func() []netip.Prefix

	// OnConnected fires after every successful dial, including switches.
	// It must not block; the manager calls it from its own goroutine.
	OnConnected func(session Session, candidate models.Candidate)

	mu         sync.Mutex
	state      State
	session    Session
	upgradeURL string // candidate currently accruing stability credit
}

// New creates a Manager. A nil clock uses the real clock.
func New(cfg Config, clock Clock, discoverer Discoverer, prober Prober, dialer Dialer,
	localPrefixes func() []netip.Prefix, log logger.Logger) *Manager {
	_ = cfg.Validate()

	if clock == nil {
		clock = realClock{}
	}

	if localPrefixes == nil {
		localPrefixes = func() []netip.Prefix { return nil }
	}

	return &Manager{
		cfg:           cfg,
		clock:         clock,
		discoverer:    discoverer,
		prober:        prober,
		dialer:        dialer,
		localPrefixes: localPrefixes,
		logger:        log,
	}
}

// Snapshot returns a copy of the connection state for status reporting.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Run drives the state machine until ctx is canceled. Connection
// attempts retry forever; there is no terminal failure state.
func (m *Manager) Run(ctx context.Context) {
	for ctx.Err() == nil {
		session := m.currentSession()

		if session == nil {
			if !m.scanUntilConnected(ctx) {
				return
			}

			continue
		}

		m.runConnected(ctx, session)
	}
}

func (m *Manager) currentSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session
}

// scanUntilConnected runs Scanning passes with bounded backoff until one
// candidate accepts a connection. Returns false only on ctx cancellation.
func (m *Manager) scanUntilConnected(ctx context.Context) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultScanBackoffInitial
	b.MaxInterval = time.Duration(m.cfg.ScanBackoffMax)
	b.Reset()

	forcedRescan := false

	for ctx.Err() == nil {
		if m.scanOnce(ctx) {
			return true
		}

		// A disconnect that has persisted past the rescan threshold gets
		// one immediate pass instead of waiting out the backoff.
		if !forcedRescan && m.disconnectedLongerThan(time.Duration(m.cfg.RescanThreshold)) {
			forcedRescan = true
			b.Reset()

			continue
		}

		if !m.sleep(ctx, b.NextBackOff()) {
			return false
		}
	}

	return false
}

func (m *Manager) disconnectedLongerThan(threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.LastDisconnectAt.IsZero() {
		return false
	}

	return m.clock.Now().Sub(m.state.LastDisconnectAt) > threshold
}

// scanOnce runs one full Scanning pass: discover, filter, probe in
// priority order, dial the first reachable candidate.
func (m *Manager) scanOnce(ctx context.Context) bool {
	candidates := m.discoverer.Discover(ctx)

	for _, candidate := range candidates {
		if !m.eligible(candidate) {
			continue
		}

		reachable, latency := m.prober.Probe(ctx, candidate.URL)
		if !reachable {
			if candidate.Class == models.PathLocal {
				m.recordLocalFailure()
			}

			continue
		}

		session, err := m.dialer.Dial(ctx, candidate.URL)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn().Err(err).Str("url", candidate.URL).Msg("Dial failed after successful probe")
			}

			continue
		}

		m.adopt(session, candidate)

		if m.logger != nil {
			m.logger.Info().
				Str("url", candidate.URL).
				Str("path_class", string(candidate.Class)).
				Float64("latency_ms", latency).
				Msg("Connected to control server")
		}

		return true
	}

	return false
}

// eligible applies the scanning filters: local candidates must sit in one
// of the device's current subnets and must be outside the local-failure
// cooldown.
func (m *Manager) eligible(candidate models.Candidate) bool {
	if candidate.Class != models.PathLocal {
		return true
	}

	if !m.inLocalSubnet(candidate.URL) {
		return false
	}

	m.mu.Lock()
	lastFailure := m.state.LastLocalFailureAt
	m.mu.Unlock()

	if lastFailure.IsZero() {
		return true
	}

	return m.clock.Now().Sub(lastFailure) >= time.Duration(m.cfg.LocalFailureCooldown)
}

func (m *Manager) inLocalSubnet(candidateURL string) bool {
	host := hostOf(candidateURL)

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	for _, prefix := range m.localPrefixes() {
		if prefix.Contains(addr.Unmap()) {
			return true
		}
	}

	return false
}

func (m *Manager) recordLocalFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastLocalFailureAt = m.clock.Now()
	m.state.LocalStableSince = time.Time{}
}

// adopt installs a new session as the active connection.
func (m *Manager) adopt(session Session, candidate models.Candidate) {
	m.mu.Lock()
	m.session = session
	m.state.ActiveURL = candidate.URL
	m.state.ActiveClass = candidate.Class
	m.state.LocalStableSince = time.Time{}
	m.upgradeURL = ""
	m.mu.Unlock()

	if m.OnConnected != nil {
		m.OnConnected(session, candidate)
	}
}

// runConnected waits out the Connected state: a disconnect notification
// from the transport, or periodic upgrade checks while the active path
// is below the top priority class.
func (m *Manager) runConnected(ctx context.Context, session Session) {
	ticker := m.clock.Ticker(time.Duration(m.cfg.UpgradeInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeSession(session)
			return
		case <-session.Done():
			m.handleDisconnect(session)
			return
		case <-ticker.Chan():
			if switched := m.checkUpgrade(ctx); switched {
				return
			}
		}
	}
}

// handleDisconnect records the disconnect and clears the active state.
// A drop while on the local path starts the local-failure cooldown.
func (m *Manager) handleDisconnect(session Session) {
	_ = session.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.state.LastDisconnectAt = now

	if m.state.ActiveClass == models.PathLocal {
		m.state.LastLocalFailureAt = now
	}

	m.state.ActiveURL = ""
	m.state.ActiveClass = models.PathUnknown
	m.state.LocalStableSince = time.Time{}
	m.session = nil
	m.upgradeURL = ""

	if m.logger != nil {
		m.logger.Warn().Msg("Control server connection lost")
	}
}

// checkUpgrade is the periodic optimization pass: while connected over a
// lower-priority path, probe the best in-subnet candidate of a better
// class and switch once it has been continuously reachable for the
// stability window and the switch cooldown has elapsed. Any probe
// failure zeroes the accrued stability; there is no partial credit.
// Returns true if a switch (or a forced rescan after a failed switch)
// occurred.
func (m *Manager) checkUpgrade(ctx context.Context) bool {
	m.mu.Lock()
	active := m.state
	m.mu.Unlock()

	if active.ActiveURL == "" || active.ActiveClass.Priority() == 0 {
		return false
	}

	candidate, ok := m.bestUpgradeCandidate(ctx, active.ActiveClass.Priority())
	if !ok {
		m.resetStability()
		return false
	}

	reachable, _ := m.prober.Probe(ctx, candidate.URL)
	now := m.clock.Now()

	m.mu.Lock()

	if !reachable {
		m.state.LocalStableSince = time.Time{}
		m.upgradeURL = ""
		m.mu.Unlock()

		return false
	}

	if m.upgradeURL != candidate.URL || m.state.LocalStableSince.IsZero() {
		m.upgradeURL = candidate.URL
		m.state.LocalStableSince = now
		m.mu.Unlock()

		return false
	}

	stableFor := now.Sub(m.state.LocalStableSince)
	lastSwitch := m.state.LastSwitchAt
	m.mu.Unlock()

	if stableFor < time.Duration(m.cfg.StabilityWindow) {
		return false
	}

	if !lastSwitch.IsZero() && now.Sub(lastSwitch) < time.Duration(m.cfg.SwitchCooldown) {
		return false
	}

	return m.switchTo(ctx, candidate)
}

// bestUpgradeCandidate re-discovers and returns the best candidate with
// a strictly better priority than the active class, applying the same
// local-subnet and cooldown filters as scanning.
func (m *Manager) bestUpgradeCandidate(ctx context.Context, activePriority int) (models.Candidate, bool) {
	for _, candidate := range m.discoverer.Discover(ctx) {
		if candidate.Priority >= activePriority {
			continue
		}

		if !m.eligible(candidate) {
			continue
		}

		return candidate, true
	}

	return models.Candidate{}, false
}

func (m *Manager) resetStability() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LocalStableSince = time.Time{}
	m.upgradeURL = ""
}

// switchTo performs the controlled switch: disconnect, reconnect to the
// better candidate, record the switch time. A failed dial falls back to
// the scanning state rather than keeping the old (already closed)
// session.
func (m *Manager) switchTo(ctx context.Context, candidate models.Candidate) bool {
	m.mu.Lock()
	old := m.session
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	session, err := m.dialer.Dial(ctx, candidate.URL)

	m.mu.Lock()
	now := m.clock.Now()
	m.state.LastSwitchAt = now
	m.state.LocalStableSince = time.Time{}
	m.upgradeURL = ""

	if err != nil {
		m.state.LastDisconnectAt = now
		m.state.ActiveURL = ""
		m.state.ActiveClass = models.PathUnknown
		m.session = nil
		m.mu.Unlock()

		if m.logger != nil {
			m.logger.Warn().Err(err).Str("url", candidate.URL).Msg("Switch failed; rescanning")
		}

		return true
	}

	m.session = session
	m.state.ActiveURL = candidate.URL
	m.state.ActiveClass = candidate.Class
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info().
			Str("url", candidate.URL).
			Str("path_class", string(candidate.Class)).
			Msg("Switched to better path")
	}

	if m.OnConnected != nil {
		m.OnConnected(session, candidate)
	}

	return true
}

func (m *Manager) closeSession(session Session) {
	_ = session.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == session {
		m.session = nil
	}
}

// sleep waits d or until ctx is canceled; returns false on cancellation.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
