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
	"net"
	"strconv"
	"strings"
)

// resolvedAddr is the AddressResolver's (C7) output: a socket address
// compatible with a requested (family, kind).
type resolvedAddr struct {
	family Family
	ip     net.IP
	port   int
}

// resolveAddr performs numeric-first resolution of (node,
// service) to a socket address. Flags honored: Passive, NumericHost,
// NumericService. An empty node with Passive set yields the wildcard
// address; empty node without Passive yields loopback. IPv6 literals may be
// given bracketed or bare.
func resolveAddr(family Family, _ SockType, node, service string, flags BindFlags) (*resolvedAddr, error) {
	port, err := resolvePort(service, flags)
	if err != nil {
		return nil, err
	}

	if node == "" {
		if flags&FlagPassive != 0 {
			return &resolvedAddr{family: family, ip: wildcardFor(family), port: port}, nil
		}
		return &resolvedAddr{family: family, ip: loopbackFor(family), port: port}, nil
	}

	node = strings.TrimPrefix(strings.TrimSuffix(node, "]"), "[")

	if ip := net.ParseIP(node); ip != nil {
		return &resolvedAddr{family: familyOf(ip), ip: ip, port: port}, nil
	}

	if flags&FlagNumericHost != 0 {
		return nil, newErr(KindNameResolution)
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(context.Background(), node)
	if err != nil {
		return nil, wrapErr(KindNameResolution, err)
	}
	for _, a := range addrs {
		if familyOf(a.IP) == family {
			return &resolvedAddr{family: family, ip: a.IP, port: port}, nil
		}
	}
	return nil, newErr(KindNameResolution)
}

func resolvePort(service string, flags BindFlags) (int, error) {
	if service == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(service); err == nil {
		return n, nil
	}
	if flags&FlagNumericService != 0 {
		return 0, newErr(KindNameResolution)
	}
	for _, network := range []string{"tcp", "udp"} {
		if n, err := net.LookupPort(network, service); err == nil {
			return n, nil
		}
	}
	return 0, newErr(KindNameResolution)
}

func familyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}

func wildcardFor(family Family) net.IP {
	if family == FamilyIPv6 {
		return net.IPv6zero
	}
	return net.IPv4zero
}

func loopbackFor(family Family) net.IP {
	if family == FamilyIPv6 {
		return net.IPv6loopback
	}
	return net.IPv4(127, 0, 0, 1)
}

// isNumericLiteral reports whether host is a numeric IPv4 dotted-quad or a
// bracketed/bare numeric IPv6 literal, excluding the unspecified forms
// "0.0.0.0" and "[::]"/"::", which a DNS-rebind defense must reject.
func isNumericLiteral(host string) bool {
	trimmed := strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	ip := net.ParseIP(trimmed)
	if ip == nil {
		return false
	}
	if ip.IsUnspecified() {
		return false
	}
	return true
}

// stripHostPort splits a Host header value into its host part, tolerating
// both "host:port" and bracketed-IPv6 "[::1]:port" forms, and bare hosts
// with no port.
func stripHostPort(hostHeader string) string {
	if host, _, err := net.SplitHostPort(hostHeader); err == nil {
		return host
	}
	return hostHeader
}
