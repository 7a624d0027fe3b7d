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

import "net"

// RequestKind identifies which callback slot a Dispatcher job routes an
// incoming HTTP request to.
type RequestKind int

// Request kinds a Config's callback registry dispatches.
const (
	RequestSOAP RequestKind = iota
	RequestGENA
	RequestWebGet
)

// HostValidator is an optional callback a caller installs to approve or
// reject a request's Host header beyond the built-in numeric-literal check.
// Returning false causes the request to be rejected the same way a
// non-numeric Host is.
type HostValidator func(host string) bool

// RequestHandler processes one parsed HTTP request and produces a response.
// The entity reader is already fully buffered by the time a handler runs.
type RequestHandler func(req *ParsedRequest) *Response

// SSDPHandler consumes one validated SSDP message. Unlike RequestHandler it
// returns nothing: there is no response to send to a multicast datagram.
type SSDPHandler func(req *ParsedRequest)

// ParsedRequest is what Dispatcher hands to a registered RequestHandler: the
// parsed start line/headers/body plus the peer address the request arrived
// on, which handlers need for GENA subscriber bookkeeping and SSDP-style
// logging.
type ParsedRequest struct {
	// RequestID correlates this request across log lines, the same role
	// a correlation ID plays in request/session tracking elsewhere.
	RequestID  string
	Method     string
	RequestURI string
	Major      int
	Minor      int
	Headers    map[string][]string
	Entity     []byte
	RemoteAddr net.Addr
}

// Response is a handler's reply: status line plus headers plus body. A nil
// *Response from a handler is treated as HTTP 500.
type Response struct {
	StatusCode int
	Reason     string
	Headers    map[string]string
	Entity     []byte
}

// Config holds the callback registry and per-interface addressing data a
// running miniserver needs. It is built once by a caller before Start and
// treated as read-only for the lifetime of the server; Dispatcher and
// SsdpIngress jobs only ever read from it concurrently.
type Config struct {
	// Handlers maps each RequestKind to its callback. A nil entry causes
	// matching requests to fail with a 500 response rather than panic.
	Handlers map[RequestKind]RequestHandler

	// SSDPDeviceHandler receives valid M-SEARCH requests read off the
	// multicast group sockets (the device role answers searches).
	// SSDPCtrlptHandler receives valid NOTIFY messages and M-SEARCH
	// responses (the control-point role tracks presence and search
	// results). A nil handler drops its messages.
	SSDPDeviceHandler SSDPHandler
	SSDPCtrlptHandler SSDPHandler

	// HostValidator, if set, decides a request's Host header outright,
	// numeric or not, in place of the built-in numeric-literal check.
	// Leave nil to accept every numeric-literal Host and fall back to
	// AllowLiteralHostRedirection for non-numeric ones.
	HostValidator HostValidator

	// AllowLiteralHostRedirection controls the DNS-rebind defense's
	// response to a non-numeric Host: when true, Dispatcher replies with
	// an HTTP 307 redirect to the numeric equivalent instead of
	// rejecting the request outright.
	AllowLiteralHostRedirection bool

	// IfaceIndex is the interface index SSDP multicast sends and joins
	// use, resolved once at Start time from InterfaceName.
	InterfaceName string
	IfaceIndex    int

	// Literal addresses of the bound interface plus the port each HTTP
	// listener bound to, used to build the "http://host:port" target for
	// the literal-host redirect. SSDP group joins use the interface itself,
	// not these fields.
	IPv4           net.IP
	IPv4Port       int
	IPv6LLA        net.IP
	IPv6LLAPort    int
	IPv6UADGUA     net.IP
	IPv6UADGUAPort int
}

// NewConfig returns a Config with an empty handler registry and every
// address field unset; callers fill in Handlers and addressing before
// passing it to Start.
func NewConfig() *Config {
	return &Config{Handlers: make(map[RequestKind]RequestHandler)}
}

// handlerFor resolves the callback for a classified request method.
func (c *Config) handlerFor(kind RequestKind) RequestHandler {
	if c == nil || c.Handlers == nil {
		return nil
	}
	return c.Handlers[kind]
}
