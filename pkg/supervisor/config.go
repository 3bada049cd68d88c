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

package supervisor

import (
	"time"

	"github.com/carverauto/fleetdisplay/pkg/models"
)

const (
	defaultCrashWindow      = 300 * time.Second
	defaultCrashThreshold   = 3
	defaultSafeModeDuration = 300 * time.Second
	defaultRelaunchDelay    = 10 * time.Second
)

// Config holds the crash-loop tunables.
type Config struct {
	// CrashWindow is the sliding window over which crashes count toward
	// the threshold.
	CrashWindow models.Duration `json:"crash_window"`
	// CrashThreshold crashes inside CrashWindow trip safe mode.
	CrashThreshold int `json:"crash_threshold"`
	// SafeModeDuration is how long rotation and relaunching stay
	// suspended once tripped.
	SafeModeDuration models.Duration `json:"safe_mode_duration"`
	// RelaunchDelay is the pause before relaunching when the previous
	// exit was less than this long ago.
	RelaunchDelay models.Duration `json:"relaunch_delay"`
}

// Validate applies defaults for unset fields.
func (c *Config) Validate() error {
	if c.CrashWindow == 0 {
		c.CrashWindow = models.Duration(defaultCrashWindow)
	}

	if c.CrashThreshold <= 0 {
		c.CrashThreshold = defaultCrashThreshold
	}

	if c.SafeModeDuration == 0 {
		c.SafeModeDuration = models.Duration(defaultSafeModeDuration)
	}

	if c.RelaunchDelay == 0 {
		c.RelaunchDelay = models.Duration(defaultRelaunchDelay)
	}

	return nil
}
