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

package connmgr

import (
	"time"

	"github.com/carverauto/fleetdisplay/pkg/models"
)

const (
	defaultStabilityWindow      = 30 * time.Second
	defaultSwitchCooldown       = 60 * time.Second
	defaultLocalFailureCooldown = 120 * time.Second
	defaultRescanThreshold      = 30 * time.Second
	defaultUpgradeInterval      = 10 * time.Second
	defaultScanBackoffInitial   = 1 * time.Second
	defaultScanBackoffMax       = 30 * time.Second
)

// Config holds the resilience manager tunables. Zero values take
// defaults in Validate.
type Config struct {
	// StabilityWindow is the minimum continuous-reachable duration a
	// better candidate must show before a switch is allowed.
	StabilityWindow models.Duration `json:"stability_window"`
	// SwitchCooldown is the minimum time between controlled switches.
	SwitchCooldown models.Duration `json:"switch_cooldown"`
	// LocalFailureCooldown excludes local candidates from scanning for
	// this long after a local-path failure was observed.
	LocalFailureCooldown models.Duration `json:"local_failure_cooldown"`
	// RescanThreshold forces an immediate full scan once a disconnect
	// has persisted this long.
	RescanThreshold models.Duration `json:"rescan_threshold"`
	// UpgradeInterval is the cadence of better-path checks while
	// connected below the top priority class.
	UpgradeInterval models.Duration `json:"upgrade_check_interval"`
	// ScanBackoffMax caps the backoff between failed scanning passes.
	ScanBackoffMax models.Duration `json:"scan_backoff_max"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if time.Duration(c.StabilityWindow) <= 0 {
		c.StabilityWindow = models.Duration(defaultStabilityWindow)
	}

	if time.Duration(c.SwitchCooldown) <= 0 {
		c.SwitchCooldown = models.Duration(defaultSwitchCooldown)
	}

	if time.Duration(c.LocalFailureCooldown) <= 0 {
		c.LocalFailureCooldown = models.Duration(defaultLocalFailureCooldown)
	}

	if time.Duration(c.RescanThreshold) <= 0 {
		c.RescanThreshold = models.Duration(defaultRescanThreshold)
	}

	if time.Duration(c.UpgradeInterval) <= 0 {
		c.UpgradeInterval = models.Duration(defaultUpgradeInterval)
	}

	if time.Duration(c.ScanBackoffMax) <= 0 {
		c.ScanBackoffMax = models.Duration(defaultScanBackoffMax)
	}

	return nil
}
