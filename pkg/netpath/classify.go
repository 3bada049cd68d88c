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

// Package netpath discovers and classifies network paths to the control server.
package netpath

import (
	"net/netip"
	"strings"

	"github.com/carverauto/fleetdisplay/pkg/models"
)

// overlayRange is the CGNAT block overlay meshes hand out stable
// addresses from (Tailscale, Nebula and friends).
var overlayRange = netip.MustParsePrefix("100.64.0.0/10")

// Classify maps a host (IP literal or name) to a path class. Symbolic
// names classify as unknown; they are resolved during discovery and the
// resolved addresses classified individually.
func Classify(host string) models.PathClass {
	if strings.EqualFold(host, "localhost") {
		return models.PathLoopback
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return models.PathUnknown
	}

	return ClassifyAddr(addr)
}

// ClassifyAddr maps an IP address to a path class.
func ClassifyAddr(addr netip.Addr) models.PathClass {
	switch {
	case addr.IsLoopback():
		return models.PathLoopback
	case overlayRange.Contains(addr.Unmap()):
		return models.PathOverlay
	case addr.IsPrivate():
		return models.PathLocal
	default:
		return models.PathUnknown
	}
}

// IsOverlayAddr reports whether addr belongs to the overlay address block.
func IsOverlayAddr(addr netip.Addr) bool {
	return overlayRange.Contains(addr.Unmap())
}
