/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package miniserver

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// multicastControl applies setMulticastSocketOptions in the pre-bind
// Control hook, the same sequencing point socket.go's controlFunc uses.
func multicastControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = setMulticastSocketOptions(fd)
	})
	if err != nil {
		return err
	}
	return opErr
}

// SSDPGroupIPv4 is the single IPv4 SSDP multicast group address.
var SSDPGroupIPv4 = net.ParseIP("239.255.255.250")

// SSDPGroupIPv6LLA is the link-local-scope IPv6 SSDP multicast group.
var SSDPGroupIPv6LLA = net.ParseIP("ff02::c")

// SSDPGroupIPv6UADGUA is the site-local-scope IPv6 SSDP multicast group
// used for unique-local/global addressing.
var SSDPGroupIPv6UADGUA = net.ParseIP("ff05::c")

const ssdpPort = 1900

// newMulticastSocket opens a UDP socket bound to the SSDP port, joins the
// given group on iface, and returns the *Socket wrapping it. Each call
// opens its own socket and joins exactly one group; Start calls it once per
// SSDP group, so the same constructor serves all three SSDP group sockets
// by varying only the group and the IPv4-vs-IPv6 packet-conn wrapper.
func newMulticastSocket(family Family, group net.IP, iface *net.Interface) (*Socket, error) {
	network := "udp4"
	if family == FamilyIPv6 {
		network = "udp6"
	}

	lc := net.ListenConfig{Control: multicastControl}
	pconn, err := lc.ListenPacket(context.Background(), network, fmt.Sprintf(":%d", ssdpPort))
	if err != nil {
		return nil, wrapErr(KindSocketBind, err)
	}
	conn, ok := pconn.(*net.UDPConn)
	if !ok {
		pconn.Close()
		return nil, wrapErr(KindOutOfResources, fmt.Errorf("unexpected packet conn type %T", pconn))
	}

	if family == FamilyIPv4 {
		pc := ipv4.NewPacketConn(conn)
		if jerr := pc.JoinGroup(iface, &net.UDPAddr{IP: group}); jerr != nil {
			conn.Close()
			return nil, wrapErr(KindSocketBind, jerr)
		}
		_ = pc.SetMulticastInterface(iface)
		_ = pc.SetMulticastTTL(4)
	} else {
		pc := ipv6.NewPacketConn(conn)
		if jerr := pc.JoinGroup(iface, &net.UDPAddr{IP: group}); jerr != nil {
			conn.Close()
			return nil, wrapErr(KindSocketBind, jerr)
		}
		_ = pc.SetMulticastInterface(iface)
		_ = pc.SetMulticastHopLimit(4)
	}

	sock := &Socket{family: family, sockType: Datagram, udp: conn, bound: true}
	return sock, nil
}

// newSSDPRequestSocket opens an ephemeral-port unicast UDP socket used only
// to send M-SEARCH requests and receive their unicast responses; it never
// joins a multicast group.
func newSSDPRequestSocket(family Family) (*Socket, error) {
	sock := NewSocket(family, Datagram)
	if err := sock.Bind("", "0", FlagPassive); err != nil {
		return nil, fmt.Errorf("binding ssdp request socket: %w", err)
	}
	return sock, nil
}
