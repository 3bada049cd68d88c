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

// Package supervisor keeps the renderer process alive and breaks crash
// loops: every renderer exit counts toward a sliding window, and too
// many inside it trip a cooling-off safe mode instead of hammering
// relaunches.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/fleetdisplay/pkg/connmgr"
	"github.com/carverauto/fleetdisplay/pkg/logger"
)

const safeModePoll = 500 * time.Millisecond

// Supervisor launches the renderer, watches its exits and enforces the
// crash-loop policy.
type Supervisor struct {
	cfg      *Config
	clock    connmgr.Clock
	launcher Launcher
	logger   logger.Logger

	// FallbackLauncher, when set, runs for the duration of safe mode so
	// the display shows something instead of a dead screen. Its crashes
	// are not counted; safe mode ends on the timer alone.
	FallbackLauncher Launcher

	// OnSafeModeEnter fires once per safe-mode trip, after the crash
	// window is cleared.
	OnSafeModeEnter func(until time.Time)
	// OnSafeModeExit fires when safe mode expires and the renderer is
	// about to relaunch.
	OnSafeModeExit func()

	mu         sync.Mutex
	crashes    []time.Time
	safeUntil  time.Time
	lastExitAt time.Time
	proc       Process
}

// New creates a Supervisor. A nil clock uses the real clock.
func New(cfg *Config, clock connmgr.Clock, launcher Launcher, log logger.Logger) (*Supervisor, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid supervisor config: %w", err)
	}

	if clock == nil {
		clock = realClock{}
	}

	return &Supervisor{
		cfg:      cfg,
		clock:    clock,
		launcher: launcher,
		logger:   log,
	}, nil
}

// SafeModeActive reports whether the cooling-off period is in effect.
func (s *Supervisor) SafeModeActive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return now.Before(s.safeUntil)
}

// SafeModeUntil returns the safe-mode expiry, zero when inactive.
func (s *Supervisor) SafeModeUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.safeUntil
}

// RecordCrash adds a crash at now to the sliding window and trips safe
// mode when the window fills. It returns true exactly when this crash
// entered safe mode; the window is cleared on entry so one burst trips
// it once.
func (s *Supervisor) RecordCrash(now time.Time) bool {
	s.mu.Lock()

	window := time.Duration(s.cfg.CrashWindow)
	kept := s.crashes[:0]

	for _, t := range s.crashes {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}

	s.crashes = append(kept, now)

	if len(s.crashes) < s.cfg.CrashThreshold {
		s.mu.Unlock()
		return false
	}

	s.crashes = s.crashes[:0]
	s.safeUntil = now.Add(time.Duration(s.cfg.SafeModeDuration))
	until := s.safeUntil
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Error().Time("until", until).
			Int("threshold", s.cfg.CrashThreshold).
			Msg("Crash loop detected, entering safe mode")
	}

	if s.OnSafeModeEnter != nil {
		s.OnSafeModeEnter(until)
	}

	return true
}

// Run launches and relaunches the renderer until ctx is canceled. The
// running process is killed on shutdown.
func (s *Supervisor) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if s.waitOutSafeMode(ctx) {
			return
		}

		proc, err := s.launcher.Launch(ctx)
		if err != nil {
			if s.logger != nil {
				s.logger.Error().Err(err).Msg("Renderer launch failed")
			}

			now := s.clock.Now()
			s.recordExit(now)
			s.RecordCrash(now)

			if !s.sleep(ctx, time.Duration(s.cfg.RelaunchDelay)) {
				return
			}

			continue
		}

		s.setProcess(proc)
		started := s.clock.Now()

		if s.logger != nil {
			s.logger.Info().Int("pid", proc.Pid()).Msg("Renderer started")
		}

		code, waitErr := proc.Wait()
		s.setProcess(nil)

		if ctx.Err() != nil {
			return
		}

		now := s.clock.Now()
		uptime := now.Sub(started)
		s.logExit(proc.Pid(), code, uptime, waitErr)

		// Every exit counts toward the window, however long the renderer
		// had been up.
		prev := s.recordExit(now)
		s.RecordCrash(now)

		if s.SafeModeActive(s.clock.Now()) {
			continue
		}

		// Back-to-back exits get a breather before the relaunch.
		if !prev.IsZero() && now.Sub(prev) < time.Duration(s.cfg.RelaunchDelay) {
			if !s.sleep(ctx, time.Duration(s.cfg.RelaunchDelay)) {
				return
			}
		}
	}
}

// recordExit notes the exit time and returns the previous one.
func (s *Supervisor) recordExit(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.lastExitAt
	s.lastExitAt = now

	return prev
}

// Stop kills the running renderer, if any.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
}

func (s *Supervisor) setProcess(p Process) {
	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
}

// waitOutSafeMode blocks while safe mode is active, keeping the
// fallback renderer up in the meantime. Returns true when ctx was
// canceled while waiting.
func (s *Supervisor) waitOutSafeMode(ctx context.Context) bool {
	if !s.SafeModeActive(s.clock.Now()) {
		return false
	}

	var fallback Process

	if s.FallbackLauncher != nil {
		proc, err := s.FallbackLauncher.Launch(ctx)
		if err != nil {
			if s.logger != nil {
				s.logger.Error().Err(err).Msg("Fallback renderer launch failed")
			}
		} else {
			fallback = proc

			if s.logger != nil {
				s.logger.Info().Int("pid", proc.Pid()).Msg("Fallback renderer up for safe mode")
			}
		}
	}

	defer func() {
		if fallback != nil {
			_ = fallback.Kill()
		}
	}()

	for s.SafeModeActive(s.clock.Now()) {
		if !s.sleep(ctx, safeModePoll) {
			return true
		}
	}

	if s.logger != nil {
		s.logger.Info().Msg("Safe mode expired, relaunching renderer")
	}

	if s.OnSafeModeExit != nil {
		s.OnSafeModeExit()
	}

	return false
}

// logExit records the exit with enough context to tell an OOM kill from
// a plain crash from a clean shutdown.
func (s *Supervisor) logExit(pid, code int, uptime time.Duration, waitErr error) {
	if s.logger == nil {
		return
	}

	evt := s.logger.Warn().
		Int("pid", pid).
		Int("exit_code", code).
		Dur("uptime", uptime).
		Str("diagnosis", diagnoseExit(code))

	if waitErr != nil {
		evt = evt.Err(waitErr)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		evt = evt.Float64("mem_used_pct", vm.UsedPercent)
	}

	evt.Msg("Renderer exited")
}

// diagnoseExit maps renderer exit codes to their usual cause. Negative
// codes are signal numbers.
func diagnoseExit(code int) string {
	switch code {
	case 0:
		return "clean exit"
	case 137:
		return "killed by SIGKILL, likely out of memory"
	case 139:
		return "segmentation fault"
	case 134:
		return "abort"
	case -9:
		return "killed by SIGKILL, likely out of memory"
	case -11:
		return "segmentation fault"
	case -15:
		return "terminated"
	default:
		return "abnormal exit"
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
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
