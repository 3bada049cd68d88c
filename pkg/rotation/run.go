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
	"time"
)

// Run drives the rotation loop until ctx is canceled. Ordering per
// iteration: safe-mode suspension first, then any due sync realignment,
// then pause/empty checks, then one synced or timed step.
func (e *Engine) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if e.safeModeActive() {
			if !e.sleep(ctx, idleSleep) {
				return
			}

			continue
		}

		fired, wait := e.firePending(ctx)
		if fired {
			continue
		}

		if wait > 0 {
			// Realignment scheduled but not due; wake no later than its
			// fire time.
			if wait > idleSleep {
				wait = idleSleep
			}

			if !e.sleep(ctx, wait) {
				return
			}

			continue
		}

		e.mu.Lock()
		paused := e.paused
		empty := len(e.pages) == 0
		synced := e.syncEnabled && e.ref.valid()
		e.mu.Unlock()

		if paused || empty {
			if !e.sleep(ctx, idleSleep) {
				return
			}

			continue
		}

		if synced {
			e.syncStep(ctx)
		} else {
			e.timerStep(ctx)
		}
	}
}

func (e *Engine) safeModeActive() bool {
	if e.SafeModeActive == nil {
		return false
	}

	return e.SafeModeActive(e.clock.Now())
}

// firePending consumes a due realignment order. When one is scheduled
// but not yet due it returns the time left until it fires.
func (e *Engine) firePending(ctx context.Context) (fired bool, wait time.Duration) {
	e.mu.Lock()

	p := e.pending
	if p == nil {
		e.mu.Unlock()
		return false, 0
	}

	fleetNow := e.fleetNowLocked()
	if fleetNow < p.fireAt {
		e.mu.Unlock()
		return false, time.Duration((p.fireAt - fleetNow) * float64(time.Second))
	}

	e.pending = nil
	e.syncEnabled = p.syncEnabled

	if e.pauseReason == PauseSync {
		e.paused = false
		e.pauseReason = PauseNone
	}

	target := -1

	if p.pageID != nil {
		for i := range e.pages {
			if e.pages[i].ID == *p.pageID {
				target = i
				break
			}
		}
	}

	e.gen++
	e.mu.Unlock()

	if e.logger != nil {
		e.logger.Info().Float64("fire_at", p.fireAt).Int("target", target).
			Msg("Sync realignment fired")
	}

	if target >= 0 {
		e.jumpTo(ctx, target)
	}

	return true, 0
}

// syncStep aligns the display against the fleet clock: compute which
// page should be on screen right now, jump there if needed, then sleep
// a short slice so corrections stay tight.
func (e *Engine) syncStep(ctx context.Context) {
	e.mu.Lock()
	pages := e.pages
	ref := e.ref
	cur := e.currentIndex
	e.mu.Unlock()

	idx, remaining, ok := ComputeSyncTarget(pages, ref.correctedNow(e.clock.Now()))
	if !ok {
		e.sleep(ctx, idleSleep)
		return
	}

	if idx != cur {
		e.jumpTo(ctx, idx)
	}

	wait := time.Duration(remaining * float64(time.Second))
	if wait > idleSleep {
		wait = idleSleep
	}

	e.sleep(ctx, wait)
}

// timerStep dwells on the current page for its configured duration, then
// advances. Any state change underneath (pause, jump, page replacement,
// scheduled realignment) aborts the dwell without advancing.
func (e *Engine) timerStep(ctx context.Context) {
	e.mu.Lock()
	e.resetTimer = false

	// The page list can be replaced, including with an empty one, between
	// the loop's emptiness check and this step.
	if len(e.pages) == 0 {
		e.mu.Unlock()
		return
	}

	if e.currentIndex >= len(e.pages) {
		e.currentIndex = 0
	}

	page := e.pages[e.currentIndex]
	gen := e.gen
	e.mu.Unlock()

	dwell := page.Rotation()
	start := e.clock.Now()

	for {
		if ctx.Err() != nil {
			return
		}

		elapsed := e.clock.Now().Sub(start)
		if elapsed >= dwell {
			break
		}

		if e.interrupted(gen) {
			return
		}

		slice := dwell - elapsed
		if slice > timerGranularity {
			slice = timerGranularity
		}

		if !e.sleep(ctx, slice) {
			return
		}
	}

	if e.interrupted(gen) {
		return
	}

	e.step(ctx, 1)
}

// interrupted reports whether the dwell that started at generation gen
// is stale: any state mutation since, or safe mode kicking in.
func (e *Engine) interrupted(gen uint64) bool {
	e.mu.Lock()
	stale := e.gen != gen || e.paused || e.pending != nil || e.resetTimer
	e.mu.Unlock()

	return stale || e.safeModeActive()
}
