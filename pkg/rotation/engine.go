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

// Package rotation advances the displayed page, either on a per-page
// timer or aligned fleet-wide against a drift-corrected server clock.
package rotation

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/connmgr"
	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
)

// PauseReason records why rotation is paused. Manual, admin and login
// pauses are sticky across reconnects; sync pauses expire on their own.
type PauseReason string

const (
	PauseNone   PauseReason = ""
	PauseManual PauseReason = "manual"
	PauseAdmin  PauseReason = "admin"
	PauseLogin  PauseReason = "login"
	PauseSync   PauseReason = "sync"
)

const (
	idleSleep        = 500 * time.Millisecond
	timerGranularity = 100 * time.Millisecond
	stepPacing       = 200 * time.Millisecond
	refreshSettle    = 300 * time.Millisecond
	syncFallbackSec  = 2.0
)

// pendingSync is a consumed-once fleet realignment order. fireAt is in
// fleet (server-corrected) unix seconds.
type pendingSync struct {
	fireAt      float64
	pageID      *int64
	syncEnabled bool
}

// Snapshot is a read-only view of the rotation state for status reports.
type Snapshot struct {
	CurrentPageID *int64
	CurrentIndex  int
	TotalPages    int
	Paused        bool
	PauseReason   PauseReason
	SyncEnabled   bool
}

// Engine owns the rotation state machine. All state sits behind one
// mutex; a generation counter invalidates any in-flight page timer when
// the state changes underneath it.
type Engine struct {
	clock  connmgr.Clock
	tabs   TabController
	logger logger.Logger

	// SafeModeActive reports whether the crash supervisor has suspended
	// rotation. Checked before pause state every iteration.
	SafeModeActive func(now time.Time) bool
	// OnChange fires after every display change.
	OnChange func()
	// OnPagesReplaced fires after a wholesale page-list replacement.
	OnPagesReplaced func(pages []models.Page)

	mu           sync.Mutex
	pages        []models.Page
	currentIndex int
	paused       bool
	pauseReason  PauseReason
	syncEnabled  bool
	ref          timeRef
	visits       map[int64]int
	resetTimer   bool
	pending      *pendingSync
	gen          uint64
}

// New creates an Engine. A nil clock uses the real clock.
func New(clock connmgr.Clock, tabs TabController, log logger.Logger) *Engine {
	if clock == nil {
		clock = realClock{}
	}

	return &Engine{
		clock:  clock,
		tabs:   tabs,
		logger: log,
		visits: make(map[int64]int),
	}
}

// Snapshot returns the current rotation state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		CurrentIndex: e.currentIndex,
		TotalPages:   len(e.pages),
		Paused:       e.paused,
		PauseReason:  e.pauseReason,
		SyncEnabled:  e.syncEnabled,
	}

	if e.currentIndex >= 0 && e.currentIndex < len(e.pages) {
		id := e.pages[e.currentIndex].ID
		snap.CurrentPageID = &id
	}

	return snap
}

// ApplyPagesSync replaces the page list wholesale, resets the index to
// zero and refreshes the server clock reference. Sticky pauses survive;
// the per-page timer restarts.
func (e *Engine) ApplyPagesSync(ps *models.PagesSync) {
	now := e.clock.Now()

	e.mu.Lock()
	e.pages = ps.Pages
	e.currentIndex = 0
	e.syncEnabled = ps.SyncEnabled
	e.ref = timeRef{serverTime: ps.ServerTime, receivedAt: now}
	e.visits = make(map[int64]int)
	e.resetTimer = true
	e.gen++

	pages := make([]models.Page, len(ps.Pages))
	copy(pages, ps.Pages)
	e.mu.Unlock()

	if e.logger != nil {
		e.logger.Info().Int("pages", len(pages)).Bool("sync_enabled", ps.SyncEnabled).
			Msg("Page list replaced")
	}

	if e.OnPagesReplaced != nil {
		e.OnPagesReplaced(pages)
	}
}

// ApplySyncCommand schedules a fleet-wide realignment. The engine pauses
// with reason sync until the fire time passes. A malformed or missing
// fire time is replaced with a near-future default so the fleet still
// realigns.
func (e *Engine) ApplySyncCommand(cmd *models.SyncCommand) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fleetNow := e.fleetNowLocked()

	fireAt := cmd.SyncAt
	if fireAt <= 0 {
		fireAt = fleetNow + syncFallbackSec
	}

	e.pending = &pendingSync{
		fireAt:      fireAt,
		pageID:      cmd.PageID,
		syncEnabled: cmd.SyncEnabled,
	}
	e.paused = true
	e.pauseReason = PauseSync
	e.gen++

	if e.logger != nil {
		e.logger.Info().Float64("fire_at", fireAt).Float64("fleet_now", fleetNow).
			Msg("Sync realignment scheduled")
	}
}

// Pause pauses rotation with the given reason.
func (e *Engine) Pause(reason PauseReason) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.paused = true
	e.pauseReason = reason
	e.gen++
}

// Resume clears any pause. A pending sync stays queued and still fires.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.paused = false
	e.pauseReason = PauseNone
	e.gen++
}

// Next advances the display one page forward.
func (e *Engine) Next(ctx context.Context) {
	e.step(ctx, 1)
}

// Prev moves the display one page back.
func (e *Engine) Prev(ctx context.Context) {
	e.step(ctx, -1)
}

// Refresh reloads the current page.
func (e *Engine) Refresh(ctx context.Context) {
	if err := e.tabs.Refresh(ctx); err != nil && e.logger != nil {
		e.logger.Warn().Err(err).Msg("Refresh failed")
	}

	e.notifyChange()
}

// GotoPage jumps to the page with the given id, if present.
func (e *Engine) GotoPage(ctx context.Context, pageID int64) {
	e.mu.Lock()
	target := -1

	for i := range e.pages {
		if e.pages[i].ID == pageID {
			target = i
			break
		}
	}
	e.mu.Unlock()

	if target < 0 {
		return
	}

	e.jumpTo(ctx, target)
}

// step performs one next/prev advance plus the visit-based auto-refresh
// bookkeeping, then reports the change.
func (e *Engine) step(ctx context.Context, delta int) {
	e.mu.Lock()

	n := len(e.pages)
	if n == 0 {
		e.mu.Unlock()
		return
	}

	e.currentIndex = ((e.currentIndex+delta)%n + n) % n
	e.resetTimer = true
	e.gen++
	page := e.pages[e.currentIndex]

	needsRefresh := false

	if page.Refresh {
		interval := page.RefreshInterval
		if interval <= 0 {
			interval = 1
		}

		e.visits[page.ID]++
		if e.visits[page.ID] >= interval {
			e.visits[page.ID] = 0
			needsRefresh = true
		}
	}

	e.mu.Unlock()

	var err error
	if delta >= 0 {
		err = e.tabs.NextTab(ctx)
	} else {
		err = e.tabs.PrevTab(ctx)
	}

	if err != nil && e.logger != nil {
		e.logger.Warn().Err(err).Msg("Tab switch failed")
	}

	if needsRefresh {
		// Let the tab switch land before reloading it.
		e.sleep(ctx, refreshSettle)

		if err := e.tabs.Refresh(ctx); err != nil && e.logger != nil {
			e.logger.Warn().Err(err).Msg("Auto-refresh failed")
		} else if e.logger != nil {
			e.logger.Info().Str("page", page.Name).Msg("Auto-refreshed page")
		}
	}

	e.notifyChange()
}

// jumpTo moves directly to target. Already at target is a no-op, which
// makes the jump idempotent: no keystrokes, no timer reset. Slots within
// direct reach use one keystroke; beyond that the engine walks forward
// one step at a time.
func (e *Engine) jumpTo(ctx context.Context, target int) {
	e.mu.Lock()

	n := len(e.pages)
	if n == 0 || target < 0 || target >= n || target == e.currentIndex {
		e.mu.Unlock()
		return
	}

	from := e.currentIndex
	e.currentIndex = target
	e.resetTimer = true
	e.gen++
	e.mu.Unlock()

	if target < maxDirectSlot {
		if err := e.tabs.GotoTab(ctx, target+1); err != nil && e.logger != nil {
			e.logger.Warn().Err(err).Int("slot", target+1).Msg("Direct tab jump failed")
		}
	} else {
		// Sequential walk for slots past direct addressing. Linear in
		// page count; known scaling limit for very large page sets.
		steps := ((target - from) % n + n) % n
		for i := 0; i < steps; i++ {
			if err := e.tabs.NextTab(ctx); err != nil && e.logger != nil {
				e.logger.Warn().Err(err).Msg("Tab step failed during jump")
			}

			if !e.sleep(ctx, stepPacing) {
				break
			}
		}
	}

	e.notifyChange()
}

// fleetNowLocked returns the drift-corrected fleet time, falling back to
// the local clock when no server reference exists yet. Caller holds mu.
func (e *Engine) fleetNowLocked() float64 {
	now := e.clock.Now()

	if e.ref.valid() {
		return e.ref.correctedNow(now)
	}

	return float64(now.UnixNano()) / float64(time.Second)
}

// FleetNow exposes the drift-corrected clock for telemetry.
func (e *Engine) FleetNow() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.fleetNowLocked()
}

func (e *Engine) notifyChange() {
	if e.OnChange != nil {
		e.OnChange()
	}
}

// sleep waits d or until ctx is canceled; returns false on cancellation.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
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
