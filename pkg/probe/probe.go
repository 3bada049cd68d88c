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

// Package probe performs lightweight reachability and latency checks
// against control server candidates.
package probe

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/fleetdisplay/pkg/logger"
)

const (
	statusPath          = "/api/status"
	defaultProbeTimeout = 3 * time.Second
)

// Prober issues status requests against candidate URLs. All failure modes
// collapse to an unreachable result; Probe never returns an error.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	logger  logger.Logger
}

// New creates a Prober. A zero timeout uses the default.
func New(timeout time.Duration, log logger.Logger) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	return &Prober{
		client: &http.Client{
			Timeout: timeout,
			// Candidate probing must observe the real endpoint, not a redirect target.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
		logger:  log,
	}
}

// Probe issues exactly one GET against the candidate's status endpoint.
// It returns (true, latency in ms) on a 200 within the timeout and
// (false, +Inf) on any timeout, refusal or non-success response.
func (p *Prober) Probe(ctx context.Context, candidateURL string) (reachable bool, latencyMs float64) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := strings.TrimRight(candidateURL, "/") + statusPath

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return false, math.Inf(1)
	}

	start := time.Now()

	resp, err := p.client.Do(req)
	if err != nil {
		return false, math.Inf(1)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, math.Inf(1)
	}

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	if p.logger != nil {
		p.logger.Debug().Str("url", candidateURL).Float64("latency_ms", elapsed).Msg("Probe succeeded")
	}

	return true, elapsed
}

// DialPort does a bare TCP connect test, used as a cheap pre-filter when
// scanning overlay peers before the full HTTP probe.
func (p *Prober) DialPort(ctx context.Context, host, port string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = time.Second
	}

	var d net.Dialer

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}
