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

package models

import "time"

const defaultPageDuration = 30 * time.Second

// ScheduleRange is a time-of-day window during which a page is shown.
// Start and End are "HH:MM" wall-clock strings interpreted by the server;
// the agent treats them as opaque.
type ScheduleRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Page is one entry in the display rotation. Owned by the control server;
// the agent treats it as read-only for the duration of a rotation pass.
type Page struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name,omitempty"`
	URL             string          `json:"url"`
	Type            string          `json:"type,omitempty"`
	DurationSec     int             `json:"duration"`
	Enabled         bool            `json:"enabled"`
	Refresh         bool            `json:"refresh,omitempty"`
	RefreshInterval int             `json:"refresh_interval,omitempty"`
	Schedule        []ScheduleRange `json:"schedule_ranges,omitempty"`
}

// Rotation returns how long the page stays on screen.
func (p *Page) Rotation() time.Duration {
	if p.DurationSec <= 0 {
		return defaultPageDuration
	}

	return time.Duration(p.DurationSec) * time.Second
}
