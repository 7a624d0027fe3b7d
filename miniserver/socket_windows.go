/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

//go:build windows

package miniserver

import "golang.org/x/sys/windows"

// setPlatformSocketOptions sets SO_EXCLUSIVEADDRUSE:
// "SO_EXCLUSIVEADDRUSE on Windows; no SO_REUSEADDR".
func setPlatformSocketOptions(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_EXCLUSIVEADDRUSE, 1)
}

// setMulticastSocketOptions sets SO_REUSEADDR so the SSDP group-member
// sockets can each bind the same wildcard port 1900 without colliding.
// WinSock has no separate SO_REUSEPORT.
func setMulticastSocketOptions(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
}

// setIPv6Only sets IPV6_V6ONLY on an open, not-yet-bound IPv6 socket.
func setIPv6Only(fd uintptr, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IPV6, windows.IPV6_V6ONLY, v)
}
