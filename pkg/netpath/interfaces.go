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

package netpath

import (
	"context"
	"net/netip"
)

// OverlayPeer is one device on the overlay mesh.
type OverlayPeer struct {
	Hostname string
	DNSName  string
	Online   bool
	Addrs    []netip.Addr
}

// OverlayStatus is a snapshot of the overlay membership directory.
type OverlayStatus struct {
	Active       bool
	BackendState string
	Hostname     string
	SelfAddrs    []netip.Addr
	Peers        []OverlayPeer
}

// OverlayDirectory exposes the overlay mesh membership. Implementations
// must bound every call with a short timeout; discovery relies on that.
type OverlayDirectory interface {
	// Status returns the current membership snapshot. An inactive or
	// absent overlay returns a snapshot with Active=false, not an error.
	Status(ctx context.Context) (*OverlayStatus, error)

	// PeerAddr resolves a peer by hostname or DNS name to its overlay
	// IPv4 address. The match is case-insensitive and accepts DNS-name
	// prefixes.
	PeerAddr(ctx context.Context, name string) (netip.Addr, bool)
}

// Resolver abstracts DNS lookups for testability.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}
