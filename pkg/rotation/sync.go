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
	"time"

	"github.com/carverauto/fleetdisplay/pkg/models"
)

// timeRef anchors the server clock to the local monotonic clock. The
// corrected "fleet time" is ServerTime plus the monotonic elapsed since
// ReceivedAt, so wall-clock jumps on the device never skew alignment.
type timeRef struct {
	serverTime float64 // unix seconds as reported by the server
	receivedAt time.Time
}

func (r timeRef) valid() bool {
	return r.serverTime > 0 && !r.receivedAt.IsZero()
}

// correctedNow returns the drift-corrected fleet time in unix seconds.
func (r timeRef) correctedNow(now time.Time) float64 {
	return r.serverTime + now.Sub(r.receivedAt).Seconds()
}

// ComputeSyncTarget maps an offset into the repeating page timeline to
// the page on display at that instant. The timeline length is the sum of
// all page durations; offset is taken modulo that. Returns the page
// index and the seconds remaining in its interval. ok is false when the
// timeline is empty.
func ComputeSyncTarget(pages []models.Page, offsetSeconds float64) (index int, remaining float64, ok bool) {
	var total float64
	for i := range pages {
		total += pages[i].Rotation().Seconds()
	}

	if total <= 0 {
		return 0, 0, false
	}

	offset := offsetSeconds - total*float64(int64(offsetSeconds/total))
	if offset < 0 {
		offset += total
	}

	var cumulative float64

	for i := range pages {
		d := pages[i].Rotation().Seconds()
		if offset < cumulative+d {
			return i, cumulative + d - offset, true
		}

		cumulative += d
	}

	// Floating point edge at the very end of the timeline wraps to the
	// first page.
	return 0, pages[0].Rotation().Seconds(), true
}
