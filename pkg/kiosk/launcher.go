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
	"sync"

	"github.com/carverauto/fleetdisplay/pkg/supervisor"
)

// fallbackURL keeps the renderer on something harmless until the first
// page list arrives or while the page list is empty.
const fallbackURL = "about:blank"

// rendererLauncher builds the renderer command from the configured base
// plus the current page URLs, one tab per page. The URL set follows the
// rotation state, so relaunches after a crash come up with the current
// pages.
type rendererLauncher struct {
	base    []string
	display string

	mu   sync.Mutex
	urls []string
}

func newRendererLauncher(cfg RendererConfig) *rendererLauncher {
	return &rendererLauncher{
		base:    cfg.Command,
		display: cfg.Display,
	}
}

// SetURLs replaces the tab set used for the next launch.
func (l *rendererLauncher) SetURLs(urls []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.urls = append(l.urls[:0], urls...)
}

// command assembles the argv for the next launch.
func (l *rendererLauncher) command() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	command := append([]string{}, l.base...)

	if len(l.urls) == 0 {
		return append(command, fallbackURL)
	}

	return append(command, l.urls...)
}

func (l *rendererLauncher) Launch(ctx context.Context) (supervisor.Process, error) {
	exec := &supervisor.ExecLauncher{
		Command: l.command(),
		Env:     []string{"DISPLAY=" + l.display},
	}

	return exec.Launch(ctx)
}

// LaunchFallback starts the renderer on the fallback URL only, used
// while the crash supervisor has rotation suspended.
func (l *rendererLauncher) LaunchFallback(ctx context.Context) (supervisor.Process, error) {
	exec := &supervisor.ExecLauncher{
		Command: append(append([]string{}, l.base...), fallbackURL),
		Env:     []string{"DISPLAY=" + l.display},
	}

	return exec.Launch(ctx)
}
