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

// Package kiosk wires the device agent together: connection resilience,
// synchronized rotation, renderer supervision and the event channel.
package kiosk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/carverauto/fleetdisplay/pkg/connmgr"
	"github.com/carverauto/fleetdisplay/pkg/events"
	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
	"github.com/carverauto/fleetdisplay/pkg/netpath"
	"github.com/carverauto/fleetdisplay/pkg/probe"
	"github.com/carverauto/fleetdisplay/pkg/rotation"
	"github.com/carverauto/fleetdisplay/pkg/supervisor"
)

// Agent is the device-side controller. One instance runs per device.
type Agent struct {
	cfg    *Config
	logger logger.Logger

	sessionID string
	manager   *connmgr.Manager
	engine    *rotation.Engine
	sup       *supervisor.Supervisor
	launcher  *rendererLauncher
	screens   *Screenshotter
	wifi      WifiConfigurer
	system    SystemController

	// baseCtx is the process lifetime context, set by Run. Event
	// handlers use it for their own timeouts.
	ctxMu   sync.Mutex
	baseCtx context.Context

	clientMu sync.Mutex
	client   *events.Client

	urlsMu   sync.Mutex
	lastURLs []string
}

// New builds a fully wired Agent from a validated config.
func New(cfg *Config, log logger.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kiosk config: %w", err)
	}

	a := &Agent{
		cfg:       cfg,
		logger:    log,
		sessionID: uuid.NewString(),
		wifi:      &NmcliConfigurer{},
		system:    &SystemdController{},
	}

	prober := probe.New(time.Duration(cfg.ProbeTimeout), log)

	directory := netpath.NewTailscaleDirectory(log)
	discoverer := netpath.NewDiscoverer(netpath.DiscoveryConfig{
		ConfiguredURL: cfg.ServerURL,
		PeerName:      cfg.PeerName,
		Port:          cfg.ServerPort,
		AutoScan:      cfg.AutoScan,
		PortCheck: func(ctx context.Context, host, port string) bool {
			return prober.DialPort(ctx, host, port, time.Second)
		},
	}, directory, nil, log)

	dialer := &events.Dialer{
		Logger:    log,
		OnEvent:   a.handleEvent,
		OnConnect: a.setClient,
	}

	a.manager = connmgr.New(cfg.Connection, nil, discoverer, prober, dialer, netpath.LocalPrefixes, log)
	a.manager.OnConnected = a.onConnected

	a.launcher = newRendererLauncher(cfg.Renderer)

	sup, err := supervisor.New(&cfg.Supervisor, nil, a.launcher, log)
	if err != nil {
		return nil, err
	}

	a.sup = sup
	a.sup.FallbackLauncher = supervisor.LauncherFunc(a.launcher.LaunchFallback)

	a.engine = rotation.New(nil, NewXdotool(cfg.Renderer.Display), log)
	a.engine.SafeModeActive = a.sup.SafeModeActive
	a.engine.OnChange = a.onDisplayChange
	a.engine.OnPagesReplaced = a.onPagesReplaced

	a.sup.OnSafeModeEnter = func(until time.Time) {
		go a.reportStatus()
	}
	a.sup.OnSafeModeExit = func() {
		go a.reportStatus()
	}

	a.screens = NewScreenshotter(cfg.Screenshot, cfg.Hostname, log)

	return a, nil
}

// Run starts every component and blocks until ctx is canceled.
func (a *Agent) Run(ctx context.Context) error {
	a.ctxMu.Lock()
	a.baseCtx = ctx
	a.ctxMu.Unlock()

	if a.logger != nil {
		a.logger.Info().
			Str("hostname", a.cfg.Hostname).
			Str("session_id", a.sessionID).
			Str("server_url", a.cfg.ServerURL).
			Msg("Kiosk agent starting")
	}

	var wg sync.WaitGroup

	wg.Add(3)

	go func() {
		defer wg.Done()
		a.sup.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		a.engine.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		a.manager.Run(ctx)
	}()

	<-ctx.Done()

	a.sup.Stop()
	wg.Wait()

	if a.logger != nil {
		a.logger.Info().Msg("Kiosk agent stopped")
	}

	return nil
}

func (a *Agent) runCtx() context.Context {
	a.ctxMu.Lock()
	defer a.ctxMu.Unlock()

	if a.baseCtx != nil {
		return a.baseCtx
	}

	return context.Background()
}

func (a *Agent) setClient(c *events.Client) {
	a.clientMu.Lock()
	a.client = c
	a.clientMu.Unlock()
}

func (a *Agent) currentClient() *events.Client {
	a.clientMu.Lock()
	defer a.clientMu.Unlock()

	return a.client
}

// emit sends one event over the current channel, if any. Emit failures
// are expected around disconnects and only logged.
func (a *Agent) emit(eventType string, payload interface{}) {
	client := a.currentClient()
	if client == nil {
		return
	}

	if err := client.Emit(eventType, payload); err != nil && a.logger != nil {
		a.logger.Debug().Err(err).Str("event", eventType).Msg("Emit failed")
	}
}

// onConnected runs after every adoption, including path switches. The
// hello handshake announces the device and asks for its page list.
func (a *Agent) onConnected(_ connmgr.Session, candidate models.Candidate) {
	go func() {
		a.emit(models.EventKioskConnect, &models.KioskConnect{
			Hostname:       a.cfg.Hostname,
			IP:             netpath.LocalIP(),
			SessionID:      a.sessionID,
			ConnectionType: candidate.Class,
		})

		a.emit(models.EventRequestPages, &models.RequestPages{Hostname: a.cfg.Hostname})
	}()
}

// handleEvent dispatches one inbound envelope. It runs on the channel's
// read goroutine, so anything that can block leaves on its own
// goroutine.
func (a *Agent) handleEvent(env *models.Envelope) {
	switch env.Type {
	case models.EventPagesSync, models.EventPagesUpdated:
		var ps models.PagesSync
		if err := json.Unmarshal(env.Data, &ps); err != nil {
			a.logDecodeError(env.Type, err)
			return
		}

		a.engine.ApplyPagesSync(&ps)

	case models.EventSync:
		var cmd models.SyncCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			a.logDecodeError(env.Type, err)
			return
		}

		a.engine.ApplySyncCommand(&cmd)

	case models.EventControl:
		var cmd models.ControlCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			a.logDecodeError(env.Type, err)
			return
		}

		go a.handleControl(&cmd)

	case models.EventWifiConfig:
		var cfg models.WifiConfig
		if err := json.Unmarshal(env.Data, &cfg); err != nil {
			a.logDecodeError(env.Type, err)
			return
		}

		go a.applyWifi(&cfg)

	case models.EventRestart:
		go a.restartRenderer()

	case models.EventReboot:
		go func() {
			if err := a.system.Reboot(a.runCtx()); err != nil && a.logger != nil {
				a.logger.Error().Err(err).Msg("Reboot failed")
			}
		}()

	default:
		if a.logger != nil {
			a.logger.Debug().Str("type", env.Type).Msg("Ignoring unknown event")
		}
	}
}

func (a *Agent) logDecodeError(eventType string, err error) {
	if a.logger != nil {
		a.logger.Warn().Err(err).Str("type", eventType).Msg("Discarding undecodable event")
	}
}

// handleControl executes one remote-control action and reports the
// resulting state.
func (a *Agent) handleControl(cmd *models.ControlCommand) {
	ctx := a.runCtx()

	if a.logger != nil {
		a.logger.Info().Str("action", cmd.Action).Msg("Control command")
	}

	switch cmd.Action {
	case models.ActionPause:
		a.engine.Pause(rotation.PauseManual)
	case models.ActionResume, models.ActionExitLoginMode, models.ActionExitAdminMode:
		a.engine.Resume()
	case models.ActionNext:
		a.engine.Next(ctx)
	case models.ActionPrev:
		a.engine.Prev(ctx)
	case models.ActionRefresh:
		a.engine.Refresh(ctx)
	case models.ActionGoto:
		a.engine.GotoPage(ctx, cmd.PageID)
	case models.ActionLoginMode:
		a.engine.Pause(rotation.PauseLogin)
	case models.ActionAdminMode:
		a.engine.Pause(rotation.PauseAdmin)
	default:
		if a.logger != nil {
			a.logger.Warn().Str("action", cmd.Action).Msg("Unknown control action")
		}

		return
	}

	a.reportStatus()
}

func (a *Agent) applyWifi(cfg *models.WifiConfig) {
	result := &models.WifiResult{Hostname: a.cfg.Hostname, Success: true}

	if err := a.wifi.Apply(a.runCtx(), cfg); err != nil {
		result.Success = false
		result.Error = err.Error()

		if a.logger != nil {
			a.logger.Error().Err(err).Str("ssid", cfg.SSID).Msg("WiFi provisioning failed")
		}
	} else {
		result.Message = "connected to " + cfg.SSID

		if a.logger != nil {
			a.logger.Info().Str("ssid", cfg.SSID).Msg("WiFi provisioned")
		}
	}

	a.emit(models.EventWifiResult, result)
}

// restartRenderer kills the browser; the supervisor relaunches it with
// the current page set.
func (a *Agent) restartRenderer() {
	if a.logger != nil {
		a.logger.Info().Msg("Restarting renderer")
	}

	a.sup.Stop()
}

// onPagesReplaced updates the launch URL set and restarts the renderer
// when the set actually changed, so reconnect echoes of an unchanged
// list never flap the browser.
func (a *Agent) onPagesReplaced(pages []models.Page) {
	urls := make([]string, 0, len(pages))

	for i := range pages {
		if pages[i].Enabled && pages[i].URL != "" {
			urls = append(urls, pages[i].URL)
		}
	}

	a.launcher.SetURLs(urls)

	a.urlsMu.Lock()
	changed := !equalStrings(a.lastURLs, urls)
	a.lastURLs = urls
	a.urlsMu.Unlock()

	if changed {
		go a.restartRenderer()
	}

	go a.reportStatus()
}

func (a *Agent) onDisplayChange() {
	go a.reportStatus()
}

// reportStatus emits kiosk_status and refreshes the server-side
// screenshot. Rate limiting inside the screenshotter keeps bursts cheap.
func (a *Agent) reportStatus() {
	snap := a.engine.Snapshot()
	conn := a.manager.Snapshot()

	status := &models.KioskStatus{
		Hostname:       a.cfg.Hostname,
		SessionID:      a.sessionID,
		CurrentPageID:  snap.CurrentPageID,
		CurrentIndex:   snap.CurrentIndex,
		TotalPages:     snap.TotalPages,
		Paused:         snap.Paused,
		SafeMode:       a.sup.SafeModeActive(time.Now()),
		ConnectionType: conn.ActiveClass,
	}

	if uptime, err := host.Uptime(); err == nil {
		status.UptimeSec = uptime
	}

	a.emit(models.EventKioskStatus, status)

	if conn.ActiveURL != "" {
		if err := a.screens.Upload(a.runCtx(), conn.ActiveURL); err != nil && a.logger != nil {
			a.logger.Warn().Err(err).Msg("Screenshot refresh failed")
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
