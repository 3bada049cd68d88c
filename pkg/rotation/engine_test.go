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

package rotation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetdisplay/pkg/connmgr"
	"github.com/carverauto/fleetdisplay/pkg/logger"
	"github.com/carverauto/fleetdisplay/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func (c *fakeClock) Ticker(d time.Duration) connmgr.Ticker {
	return &fakeTicker{ch: make(chan time.Time)}
}

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  {}

type fakeTabs struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTabs) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)
}

func (f *fakeTabs) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.calls))
	copy(out, f.calls)

	return out
}

func (f *fakeTabs) NextTab(_ context.Context) error { f.record("next"); return nil }
func (f *fakeTabs) PrevTab(_ context.Context) error { f.record("prev"); return nil }
func (f *fakeTabs) Refresh(_ context.Context) error { f.record("refresh"); return nil }

func (f *fakeTabs) GotoTab(_ context.Context, slot int) error {
	f.record("goto:" + string(rune('0'+slot)))
	return nil
}

func testPages(durations ...int) []models.Page {
	pages := make([]models.Page, len(durations))
	for i, d := range durations {
		pages[i] = models.Page{
			ID:          int64(i + 1),
			Name:        "page",
			URL:         "http://example.com",
			DurationSec: d,
			Enabled:     true,
		}
	}

	return pages
}

func newTestEngine(t *testing.T, clock *fakeClock, tabs *fakeTabs) *Engine {
	t.Helper()
	return New(clock, tabs, logger.NewTestLogger())
}

func TestComputeSyncTarget(t *testing.T) {
	pages := testPages(10, 20, 30)

	tests := []struct {
		name          string
		offset        float64
		wantIndex     int
		wantRemaining float64
	}{
		{name: "inside second page", offset: 25, wantIndex: 1, wantRemaining: 5},
		{name: "wraps past total", offset: 65, wantIndex: 0, wantRemaining: 5},
		{name: "start of timeline", offset: 0, wantIndex: 0, wantRemaining: 10},
		{name: "boundary enters next page", offset: 10, wantIndex: 1, wantRemaining: 20},
		{name: "exact multiple of total", offset: 120, wantIndex: 0, wantRemaining: 10},
		{name: "negative offset wraps", offset: -5, wantIndex: 2, wantRemaining: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, remaining, ok := ComputeSyncTarget(pages, tt.offset)
			require.True(t, ok)
			assert.Equal(t, tt.wantIndex, idx)
			assert.InDelta(t, tt.wantRemaining, remaining, 1e-9)
		})
	}
}

func TestComputeSyncTargetEmptyTimeline(t *testing.T) {
	_, _, ok := ComputeSyncTarget(nil, 10)
	assert.False(t, ok)

	_, _, ok = ComputeSyncTarget([]models.Page{}, 0)
	assert.False(t, ok)
}

func TestComputeSyncTargetDefaultDuration(t *testing.T) {
	// Zero duration falls back to the 30s default, so the timeline is
	// never zero-length for a non-empty page list.
	pages := testPages(0, 0)

	idx, remaining, ok := ComputeSyncTarget(pages, 35)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.InDelta(t, 25.0, remaining, 1e-9)
}

func TestTimeRefCorrection(t *testing.T) {
	clock := newFakeClock()
	ref := timeRef{serverTime: 1000, receivedAt: clock.Now()}

	clock.Advance(5 * time.Second)
	assert.InDelta(t, 1005.0, ref.correctedNow(clock.Now()), 1e-9)

	clock.Advance(90 * time.Second)
	assert.InDelta(t, 1095.0, ref.correctedNow(clock.Now()), 1e-9)
}

func TestApplyPagesSyncResetsState(t *testing.T) {
	clock := newFakeClock()
	tabs := &fakeTabs{}
	e := newTestEngine(t, clock, tabs)

	var replaced []models.Page

	e.OnPagesReplaced = func(pages []models.Page) { replaced = pages }

	e.ApplyPagesSync(&models.PagesSync{
		Pages:       testPages(10, 20),
		ServerTime:  2000,
		SyncEnabled: true,
	})

	snap := e.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, 2, snap.TotalPages)
	assert.True(t, snap.SyncEnabled)
	require.NotNil(t, snap.CurrentPageID)
	assert.Equal(t, int64(1), *snap.CurrentPageID)
	assert.Len(t, replaced, 2)

	clock.Advance(3 * time.Second)
	assert.InDelta(t, 2003.0, e.FleetNow(), 1e-9)
}

func TestApplyPagesSyncKeepsStickyPause(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), &fakeTabs{})
	e.Pause(PauseAdmin)

	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10), ServerTime: 1, SyncEnabled: false})

	snap := e.Snapshot()
	assert.True(t, snap.Paused)
	assert.Equal(t, PauseAdmin, snap.PauseReason)
}

func TestGotoPageDirectSlot(t *testing.T) {
	tabs := &fakeTabs{}
	e := newTestEngine(t, newFakeClock(), tabs)
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10, 10, 10), ServerTime: 1})

	e.GotoPage(context.Background(), 3)

	assert.Equal(t, []string{"goto:3"}, tabs.Calls())
	assert.Equal(t, 2, e.Snapshot().CurrentIndex)
}

func TestGotoPageIdempotent(t *testing.T) {
	tabs := &fakeTabs{}
	e := newTestEngine(t, newFakeClock(), tabs)
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10, 10, 10), ServerTime: 1})

	e.GotoPage(context.Background(), 2)
	first := tabs.Calls()

	e.GotoPage(context.Background(), 2)

	assert.Equal(t, first, tabs.Calls(), "repeated jump to same page must send no keystrokes")
}

func TestGotoPageUnknownIDIgnored(t *testing.T) {
	tabs := &fakeTabs{}
	e := newTestEngine(t, newFakeClock(), tabs)
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10, 10), ServerTime: 1})

	e.GotoPage(context.Background(), 99)

	assert.Empty(t, tabs.Calls())
	assert.Equal(t, 0, e.Snapshot().CurrentIndex)
}

func TestGotoPageSequentialWalk(t *testing.T) {
	tabs := &fakeTabs{}
	e := newTestEngine(t, newFakeClock(), tabs)

	pages := testPages(10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	e.ApplyPagesSync(&models.PagesSync{Pages: pages, ServerTime: 1})

	// Index 10 is past the direct-slot range, so the engine walks there.
	e.GotoPage(context.Background(), 11)

	calls := tabs.Calls()
	require.Len(t, calls, 10)

	for _, c := range calls {
		assert.Equal(t, "next", c)
	}

	assert.Equal(t, 10, e.Snapshot().CurrentIndex)
}

func TestStepWrapsAround(t *testing.T) {
	tabs := &fakeTabs{}
	e := newTestEngine(t, newFakeClock(), tabs)
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10, 10), ServerTime: 1})

	ctx := context.Background()

	e.Next(ctx)
	assert.Equal(t, 1, e.Snapshot().CurrentIndex)

	e.Next(ctx)
	assert.Equal(t, 0, e.Snapshot().CurrentIndex)

	e.Prev(ctx)
	assert.Equal(t, 1, e.Snapshot().CurrentIndex)
}

func TestStepAutoRefreshAfterVisits(t *testing.T) {
	tabs := &fakeTabs{}
	e := newTestEngine(t, newFakeClock(), tabs)

	pages := testPages(10, 10)
	pages[1].Refresh = true
	pages[1].RefreshInterval = 2
	e.ApplyPagesSync(&models.PagesSync{Pages: pages, ServerTime: 1})

	ctx := context.Background()

	e.Next(ctx) // first visit to page 2, no refresh yet
	e.Next(ctx) // back to page 1
	e.Next(ctx) // second visit to page 2 fires the refresh

	calls := tabs.Calls()
	assert.Equal(t, []string{"next", "next", "next", "refresh"}, calls)
}

func TestSyncCommandPausesUntilFireTime(t *testing.T) {
	clock := newFakeClock()
	tabs := &fakeTabs{}
	e := newTestEngine(t, clock, tabs)
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10, 10, 10), ServerTime: 1000, SyncEnabled: false})

	pageID := int64(3)
	e.ApplySyncCommand(&models.SyncCommand{SyncAt: 1005, PageID: &pageID, SyncEnabled: true})

	snap := e.Snapshot()
	assert.True(t, snap.Paused)
	assert.Equal(t, PauseSync, snap.PauseReason)

	// Not due yet.
	fired, wait := e.firePending(context.Background())
	assert.False(t, fired)
	assert.InDelta(t, float64(5*time.Second), float64(wait), float64(time.Millisecond))

	clock.Advance(6 * time.Second)

	fired, _ = e.firePending(context.Background())
	require.True(t, fired)

	snap = e.Snapshot()
	assert.False(t, snap.Paused)
	assert.True(t, snap.SyncEnabled)
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.Equal(t, []string{"goto:3"}, tabs.Calls())
}

func TestSyncCommandMalformedFireTime(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, &fakeTabs{})
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10), ServerTime: 1000})

	e.ApplySyncCommand(&models.SyncCommand{SyncAt: 0, SyncEnabled: true})

	// Fallback fire time lands shortly in the future, never in the past.
	fired, wait := e.firePending(context.Background())
	assert.False(t, fired)
	assert.Greater(t, wait, time.Duration(0))

	clock.Advance(3 * time.Second)

	fired, _ = e.firePending(context.Background())
	assert.True(t, fired)
}

func TestResumeKeepsPendingSync(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, &fakeTabs{})
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10), ServerTime: 1000})

	e.ApplySyncCommand(&models.SyncCommand{SyncAt: 1010, SyncEnabled: true})
	e.Resume()

	assert.False(t, e.Snapshot().Paused)

	clock.Advance(11 * time.Second)

	fired, _ := e.firePending(context.Background())
	assert.True(t, fired, "realignment still fires after an operator resume")
}

func TestManualPauseSticky(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), &fakeTabs{})
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10), ServerTime: 1})

	e.Pause(PauseManual)
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10, 10), ServerTime: 2})

	snap := e.Snapshot()
	assert.True(t, snap.Paused)
	assert.Equal(t, PauseManual, snap.PauseReason)

	e.Resume()
	assert.False(t, e.Snapshot().Paused)
}

func TestSafeModeSuspendsRotation(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, &fakeTabs{})

	active := true
	e.SafeModeActive = func(time.Time) bool { return active }

	assert.True(t, e.safeModeActive())

	active = false
	assert.False(t, e.safeModeActive())
}

func TestTimerStepToleratesEmptiedPageList(t *testing.T) {
	clock := newFakeClock()
	tabs := &fakeTabs{}
	e := newTestEngine(t, clock, tabs)

	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10), ServerTime: 1000})

	// A sync can clear the page list between the loop's emptiness check
	// and the step; the step must come up empty, not panic.
	e.ApplyPagesSync(&models.PagesSync{ServerTime: 1001})

	e.timerStep(context.Background())

	assert.Equal(t, 0, e.Snapshot().TotalPages)
	assert.Empty(t, tabs.Calls())
}

func TestInterruptedOnStateChange(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), &fakeTabs{})
	e.ApplyPagesSync(&models.PagesSync{Pages: testPages(10, 10), ServerTime: 1})

	e.mu.Lock()
	e.resetTimer = false
	gen := e.gen
	e.mu.Unlock()

	assert.False(t, e.interrupted(gen))

	e.Pause(PauseManual)
	assert.True(t, e.interrupted(gen))

	e.Resume()
	e.mu.Lock()
	gen = e.gen
	e.mu.Unlock()

	e.ApplySyncCommand(&models.SyncCommand{SyncAt: 99999})
	assert.True(t, e.interrupted(gen))
}
