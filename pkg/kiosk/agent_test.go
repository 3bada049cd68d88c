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

package kiosk

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
	"github.com/carverauto/fleetdisplay/pkg/rotation"
)

type stubTabs struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubTabs) record(c string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, c)
}

func (s *stubTabs) NextTab(_ context.Context) error       { s.record("next"); return nil }
func (s *stubTabs) PrevTab(_ context.Context) error       { s.record("prev"); return nil }
func (s *stubTabs) GotoTab(_ context.Context, _ int) error { s.record("goto"); return nil }
func (s *stubTabs) Refresh(_ context.Context) error       { s.record("refresh"); return nil }

type stubWifi struct {
	mu      sync.Mutex
	applied []*models.WifiConfig
	err     error
}

func (s *stubWifi) Apply(_ context.Context, cfg *models.WifiConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applied = append(s.applied, cfg)

	return s.err
}

func testConfig() *Config {
	return &Config{ServerURL: "http://192.168.1.50:5000"}
}

// newTestAgent builds an agent with the renderer control stubbed out so
// no keystrokes or child processes escape the test.
func newTestAgent(t *testing.T) (*Agent, *stubTabs) {
	t.Helper()

	a, err := New(testConfig(), logger.NewTestLogger())
	require.NoError(t, err)

	tabs := &stubTabs{}
	a.engine = rotation.New(nil, tabs, logger.NewTestLogger())
	a.engine.SafeModeActive = a.sup.SafeModeActive
	a.engine.OnChange = a.onDisplayChange
	a.engine.OnPagesReplaced = a.onPagesReplaced

	return a, tabs
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return data
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	assert.NotEmpty(t, cfg.Hostname)
	assert.Equal(t, models.Duration(3*time.Second), cfg.ProbeTimeout)
	assert.Equal(t, models.Duration(3*time.Second), cfg.Screenshot.MinInterval)
	assert.NotEmpty(t, cfg.Renderer.Command)
	assert.Equal(t, ":0", cfg.Renderer.Display)
	assert.NotNil(t, cfg.Logging)
	assert.Equal(t, 3, cfg.Supervisor.CrashThreshold)
}

func TestConfigValidateRequiresServerURL(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), errServerURLRequired)
}

func TestHandleEventPagesSync(t *testing.T) {
	a, _ := newTestAgent(t)

	data := mustMarshal(t, &models.PagesSync{
		Pages: []models.Page{
			{ID: 1, URL: "http://example.com/a", DurationSec: 10, Enabled: true},
			{ID: 2, URL: "http://example.com/b", DurationSec: 20, Enabled: true},
		},
		ServerTime:  5000,
		SyncEnabled: true,
	})

	a.handleEvent(&models.Envelope{Type: models.EventPagesSync, Data: data})

	snap := a.engine.Snapshot()
	assert.Equal(t, 2, snap.TotalPages)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.True(t, snap.SyncEnabled)
}

func TestHandleEventSyncCommand(t *testing.T) {
	a, _ := newTestAgent(t)

	a.handleEvent(&models.Envelope{
		Type: models.EventPagesSync,
		Data: mustMarshal(t, &models.PagesSync{
			Pages:      []models.Page{{ID: 1, URL: "http://x", DurationSec: 10, Enabled: true}},
			ServerTime: 5000,
		}),
	})

	a.handleEvent(&models.Envelope{
		Type: models.EventSync,
		Data: mustMarshal(t, map[string]interface{}{"sync_at": 5010.0}),
	})

	snap := a.engine.Snapshot()
	assert.True(t, snap.Paused)
	assert.Equal(t, rotation.PauseSync, snap.PauseReason)
}

func TestHandleEventMalformedDataDropped(t *testing.T) {
	a, _ := newTestAgent(t)

	a.handleEvent(&models.Envelope{Type: models.EventPagesSync, Data: json.RawMessage(`"garbage"`)})

	assert.Equal(t, 0, a.engine.Snapshot().TotalPages)
}

func TestHandleControlPauseResume(t *testing.T) {
	a, _ := newTestAgent(t)

	a.handleControl(&models.ControlCommand{Action: models.ActionPause})

	snap := a.engine.Snapshot()
	assert.True(t, snap.Paused)
	assert.Equal(t, rotation.PauseManual, snap.PauseReason)

	a.handleControl(&models.ControlCommand{Action: models.ActionResume})
	assert.False(t, a.engine.Snapshot().Paused)
}

func TestHandleControlModes(t *testing.T) {
	a, _ := newTestAgent(t)

	a.handleControl(&models.ControlCommand{Action: models.ActionLoginMode})
	assert.Equal(t, rotation.PauseLogin, a.engine.Snapshot().PauseReason)

	a.handleControl(&models.ControlCommand{Action: models.ActionExitLoginMode})
	assert.False(t, a.engine.Snapshot().Paused)

	a.handleControl(&models.ControlCommand{Action: models.ActionAdminMode})
	assert.Equal(t, rotation.PauseAdmin, a.engine.Snapshot().PauseReason)

	a.handleControl(&models.ControlCommand{Action: models.ActionExitAdminMode})
	assert.False(t, a.engine.Snapshot().Paused)
}

func TestHandleControlNavigation(t *testing.T) {
	a, tabs := newTestAgent(t)

	a.engine.ApplyPagesSync(&models.PagesSync{
		Pages: []models.Page{
			{ID: 1, URL: "http://x/a", DurationSec: 10, Enabled: true},
			{ID: 2, URL: "http://x/b", DurationSec: 10, Enabled: true},
		},
		ServerTime: 1,
	})

	a.handleControl(&models.ControlCommand{Action: models.ActionNext})
	assert.Equal(t, 1, a.engine.Snapshot().CurrentIndex)

	a.handleControl(&models.ControlCommand{Action: models.ActionGoto, PageID: 1})
	assert.Equal(t, 0, a.engine.Snapshot().CurrentIndex)

	tabs.mu.Lock()
	count := len(tabs.calls)
	tabs.mu.Unlock()
	assert.Positive(t, count)
}

func TestApplyWifiReportsFailure(t *testing.T) {
	a, _ := newTestAgent(t)

	wifi := &stubWifi{err: assert.AnError}
	a.wifi = wifi

	a.applyWifi(&models.WifiConfig{SSID: "fleet-net", Password: "secret"})

	wifi.mu.Lock()
	defer wifi.mu.Unlock()

	require.Len(t, wifi.applied, 1)
	assert.Equal(t, "fleet-net", wifi.applied[0].SSID)
}

func TestOnPagesReplacedFiltersDisabled(t *testing.T) {
	a, _ := newTestAgent(t)

	a.onPagesReplaced([]models.Page{
		{ID: 1, URL: "http://x/a", Enabled: true},
		{ID: 2, URL: "http://x/b", Enabled: false},
		{ID: 3, URL: "", Enabled: true},
		{ID: 4, URL: "http://x/d", Enabled: true},
	})

	assert.Equal(t, []string{"chromium-browser",
		"--kiosk",
		"--noerrdialogs",
		"--disable-infobars",
		"--disable-session-crashed-bubble",
		"--disable-restore-session-state",
		"http://x/a", "http://x/d"}, a.launcher.command())
}

func TestRendererLauncherFallback(t *testing.T) {
	l := newRendererLauncher(RendererConfig{Command: []string{"browser"}, Display: ":0"})

	assert.Equal(t, []string{"browser", fallbackURL}, l.command())

	l.SetURLs([]string{"http://x/a"})
	assert.Equal(t, []string{"browser", "http://x/a"}, l.command())

	l.SetURLs(nil)
	assert.Equal(t, []string{"browser", fallbackURL}, l.command())
}

func TestXdotoolSlotRange(t *testing.T) {
	var got []string

	x := NewXdotool(":0")
	x.run = func(_ context.Context, display string, args ...string) error {
		got = append([]string{display}, args...)
		return nil
	}

	require.NoError(t, x.GotoTab(context.Background(), 3))
	assert.Equal(t, []string{":0", "key", "--clearmodifiers", "ctrl+3"}, got)

	assert.Error(t, x.GotoTab(context.Background(), 0))
	assert.Error(t, x.GotoTab(context.Background(), 10))

	require.NoError(t, x.NextTab(context.Background()))
	assert.Equal(t, []string{":0", "key", "--clearmodifiers", "ctrl+Tab"}, got)

	require.NoError(t, x.PrevTab(context.Background()))
	assert.Equal(t, []string{":0", "key", "--clearmodifiers", "ctrl+shift+Tab"}, got)
}
