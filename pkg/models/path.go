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

// PathClass classifies a connection candidate by network path.
type PathClass string

const (
	PathLoopback PathClass = "loopback"
	PathLocal    PathClass = "local"
	PathOverlay  PathClass = "overlay"
	PathUnknown  PathClass = "unknown"
)

// Priority returns the preference rank for the class; lower is preferred.
func (c PathClass) Priority() int {
	switch c {
	case PathLoopback:
		return 0
	case PathLocal:
		return 1
	case PathOverlay:
		return 2
	default:
		return 1
	}
}

// Candidate is one possible route to the control server, produced fresh on
// every discovery pass and never persisted.
type Candidate struct {
	URL       string    `json:"url"`
	Class     PathClass `json:"class"`
	Priority  int       `json:"priority"`
	PeerLabel string    `json:"peer_label,omitempty"`
}
