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
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

const keystrokeTimeout = 5 * time.Second

// Xdotool drives the renderer through synthetic keystrokes. The browser
// exposes no richer control surface in kiosk mode, so tab navigation is
// keyboard shortcuts against the X display.
type Xdotool struct {
	Display string

	// run is injectable for tests; nil uses exec.
	run func(ctx context.Context, display string, args ...string) error
}

// NewXdotool creates a keystroke controller for the given X display.
func NewXdotool(display string) *Xdotool {
	if display == "" {
		display = defaultDisplay
	}

	return &Xdotool{Display: display}
}

func (x *Xdotool) NextTab(ctx context.Context) error {
	return x.key(ctx, "ctrl+Tab")
}

func (x *Xdotool) PrevTab(ctx context.Context) error {
	return x.key(ctx, "ctrl+shift+Tab")
}

// GotoTab addresses tab slots 1 through 9 with one keystroke.
func (x *Xdotool) GotoTab(ctx context.Context, slot int) error {
	if slot < 1 || slot > 9 {
		return fmt.Errorf("tab slot %d out of direct range", slot)
	}

	return x.key(ctx, "ctrl+"+strconv.Itoa(slot))
}

func (x *Xdotool) Refresh(ctx context.Context) error {
	return x.key(ctx, "F5")
}

// key sends one keystroke. Modifiers are cleared first so a key stuck
// down on the physical keyboard cannot corrupt the combination.
func (x *Xdotool) key(ctx context.Context, combo string) error {
	if x.run != nil {
		return x.run(ctx, x.Display, "key", "--clearmodifiers", combo)
	}

	keyCtx, cancel := context.WithTimeout(ctx, keystrokeTimeout)
	defer cancel()

	cmd := exec.CommandContext(keyCtx, "xdotool", "key", "--clearmodifiers", combo)
	cmd.Env = append(os.Environ(), "DISPLAY="+x.Display)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("xdotool key %s failed: %w (%s)", combo, err, string(out))
	}

	return nil
}
