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
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/models"
)

var errMissingSSID = errors.New("wifi config has no ssid")

const wifiTimeout = 45 * time.Second

// WifiConfigurer provisions wireless credentials on the device.
type WifiConfigurer interface {
	Apply(ctx context.Context, cfg *models.WifiConfig) error
}

// NmcliConfigurer applies wifi credentials through NetworkManager.
type NmcliConfigurer struct {
	// run is injectable for tests; nil shells out to nmcli.
	run func(ctx context.Context, args ...string) error
}

func (n *NmcliConfigurer) Apply(ctx context.Context, cfg *models.WifiConfig) error {
	if cfg.SSID == "" {
		return errMissingSSID
	}

	args := []string{"device", "wifi", "connect", cfg.SSID}
	if cfg.Password != "" {
		args = append(args, "password", cfg.Password)
	}

	if cfg.Hidden {
		args = append(args, "hidden", "yes")
	}

	if n.run != nil {
		return n.run(ctx, args...)
	}

	applyCtx, cancel := context.WithTimeout(ctx, wifiTimeout)
	defer cancel()

	cmd := exec.CommandContext(applyCtx, "nmcli", args...)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("nmcli connect %q failed: %w (%s)", cfg.SSID, err, string(out))
	}

	return nil
}
