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
	"context"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/models"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Discoverer produces connection candidates for one scanning pass.
type Discoverer interface {
	Discover(ctx context.Context) []models.Candidate
}

// Prober checks reachability of a single candidate.
type Prober interface {
	Probe(ctx context.Context, url string) (reachable bool, latencyMs float64)
}

// Session is an established transport to the control server. Done is
// closed when the transport observes a disconnect; the manager relies on
// this instead of polling the connection.
type Session interface {
	Done() <-chan struct{}
	Close() error
}

// Dialer establishes a Session against a confirmed-reachable candidate.
type Dialer interface {
	Dial(ctx context.Context, serverURL string) (Session, error)
}
