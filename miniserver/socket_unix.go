/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

//go:build !windows

package miniserver

import "golang.org/x/sys/unix"

// setPlatformSocketOptions applies the platform-specific options the Socket
// invariant calls for. On non-Windows platforms that is nothing: no
// SO_REUSEADDR is set on Socket.Bind sockets. Only the SSDP multicast
// sockets get it, from setMulticastSocketOptions.
func setPlatformSocketOptions(fd uintptr) error {
	return nil
}

// setMulticastSocketOptions sets SO_REUSEADDR and SO_REUSEPORT so the SSDP
// group-member sockets (IPv4, IPv6 LLA, IPv6 UADGUA) can each bind the same
// wildcard port 1900 without colliding.
func setMulticastSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setIPv6Only sets IPV6_V6ONLY on an open, not-yet-bound IPv6 socket.
func setIPv6Only(fd uintptr, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v)
}
