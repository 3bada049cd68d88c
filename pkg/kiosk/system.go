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
	"os/exec"
	"time"
)

const rebootTimeout = 10 * time.Second

// SystemController performs machine-level actions ordered by the server.
type SystemController interface {
	Reboot(ctx context.Context) error
}

// SystemdController reboots through systemd.
type SystemdController struct {
	// run is injectable for tests; nil shells out to systemctl.
	run func(ctx context.Context, args ...string) error
}

func (s *SystemdController) Reboot(ctx context.Context) error {
	if s.run != nil {
		return s.run(ctx, "reboot")
	}

	rebootCtx, cancel := context.WithTimeout(ctx, rebootTimeout)
	defer cancel()

	cmd := exec.CommandContext(rebootCtx, "systemctl", "reboot")

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl reboot failed: %w (%s)", err, string(out))
	}

	return nil
}
