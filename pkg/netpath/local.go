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
	"net"
	"net/netip"
)

// LocalPrefixes returns the IPv4 subnets currently assigned to the
// device's interfaces, excluding loopback and overlay addresses. The
// resilience manager uses these to reject local candidates the device
// cannot actually reach anymore.
func LocalPrefixes() []netip.Prefix {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var prefixes []netip.Prefix

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}

			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}

			addr, ok := netip.AddrFromSlice(ip4)
			if !ok || IsOverlayAddr(addr) {
				continue
			}

			ones, _ := ipNet.Mask.Size()
			prefixes = append(prefixes, netip.PrefixFrom(addr, ones).Masked())
		}
	}

	return prefixes
}

// LocalIP returns the device's primary local IPv4 address. It opens a UDP
// socket toward a public address to learn which interface routes out; no
// packets are sent.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}

	defer func() { _ = conn.Close() }()

	if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return udpAddr.IP.String()
	}

	return "127.0.0.1"
}
