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
	"net"
	"strings"

	"go.uber.org/zap"

	"upnpcore/internal/httpmsg"
)

// ssdpBufSize is sized for a single UDP datagram plus one reserved byte the
// parser can use as a NUL terminator without risking a truncation read.
const ssdpBufSize = 2500

// validSSDPHosts lists every literal Host-header value a multicast-group
// member socket accepts (lower-cased for comparison; the wire form may use
// either case), matching the three fixed multicast groups this core joins.
var validSSDPHosts = map[string]bool{
	"239.255.255.250:1900": true,
	"[ff02::c]:1900":       true,
	"[ff05::c]:1900":       true,
}

// SsdpIngress reads and classifies datagrams arriving on the SSDP sockets:
// NOTIFY/M-SEARCH requests on the multicast group sockets, and M-SEARCH
// responses on the two unicast request sockets (control point role only).
type SsdpIngress struct {
	cfg *Config
	ss  *SocketSet
	log *zap.SugaredLogger

	// DeviceHandler receives valid M-SEARCH requests; CtrlptHandler
	// receives valid NOTIFY messages and M-SEARCH responses. Seeded from
	// cfg by NewSsdpIngress.
	DeviceHandler SSDPHandler
	CtrlptHandler SSDPHandler
}

// NewSsdpIngress builds an SsdpIngress bound to cfg and ss, with the
// device/control-point handler slots taken from cfg.
func NewSsdpIngress(cfg *Config, ss *SocketSet, log *zap.SugaredLogger) *SsdpIngress {
	si := &SsdpIngress{cfg: cfg, ss: ss, log: log}
	if cfg != nil {
		si.DeviceHandler = cfg.SSDPDeviceHandler
		si.CtrlptHandler = cfg.SSDPCtrlptHandler
	}
	return si
}

// HandleDatagram is the job function submitted to the worker pool once per
// datagram read off an SSDP socket. sock identifies which socket the
// datagram arrived on, which selects request-grammar vs response-grammar
// parsing.
func (si *SsdpIngress) HandleDatagram(sock *Socket, payload []byte, peer *net.UDPAddr) {
	if si.ss.isSsdpRequestSocket(sock) {
		si.handleOnRequestSocket(payload, peer)
		return
	}
	si.handleOnMulticastSocket(payload, peer)
}

// handleOnMulticastSocket parses payload as a request (NOTIFY or M-SEARCH),
// validating its Host header against the fixed group addresses before
// routing it to the matching handler.
func (si *SsdpIngress) handleOnMulticastSocket(payload []byte, peer *net.UDPAddr) {
	msg, outcome, _ := httpmsg.ParseRequest(payload)
	if outcome != httpmsg.Success {
		if si.log != nil {
			si.log.Debugw("dropping malformed ssdp datagram", "peer", peer.String())
		}
		return
	}

	// Request-grammar messages (NOTIFY, M-SEARCH) must target "*" and
	// carry one of the fixed multicast-group Host values.
	if msg.URIType != httpmsg.URIAsterisk {
		if si.log != nil {
			si.log.Debugw("dropping ssdp datagram with unexpected request-uri", "uri", msg.RequestURI, "peer", peer.String())
		}
		return
	}
	host := strings.ToLower(msg.Header("Host"))
	if !validSSDPHosts[host] {
		if si.log != nil {
			si.log.Debugw("dropping ssdp datagram with unrecognized host", "host", host, "peer", peer.String())
		}
		return
	}

	req := &ParsedRequest{
		Method:     msg.Method.String(),
		RequestURI: msg.RequestURI,
		Major:      msg.Major,
		Minor:      msg.Minor,
		Headers:    map[string][]string(msg.Headers),
		Entity:     msg.Entity,
		RemoteAddr: peer,
	}

	// NOTIFY announcements are control-point input; M-SEARCH requests are
	// device input (the device answers searches).
	switch msg.Method {
	case httpmsg.MethodNotify:
		if si.CtrlptHandler != nil {
			si.CtrlptHandler(req)
		}
	case httpmsg.MethodMSearch:
		if si.DeviceHandler != nil {
			si.DeviceHandler(req)
		}
	default:
		if si.log != nil {
			si.log.Debugw("dropping ssdp datagram with unexpected method", "method", msg.Method.String())
		}
	}
}

// handleOnRequestSocket parses payload as an M-SEARCH response, the only
// traffic a unicast SSDP request socket ever receives. Responses are
// control-point input, like NOTIFY.
func (si *SsdpIngress) handleOnRequestSocket(payload []byte, peer *net.UDPAddr) {
	msg, outcome, _ := httpmsg.ParseResponse(payload, httpmsg.MethodMSearch)
	if outcome != httpmsg.Success {
		if si.log != nil {
			si.log.Debugw("dropping malformed ssdp response", "peer", peer.String())
		}
		return
	}
	if si.CtrlptHandler != nil {
		si.CtrlptHandler(&ParsedRequest{
			Method:     "M-SEARCH-RESPONSE",
			Major:      msg.Major,
			Minor:      msg.Minor,
			Headers:    map[string][]string(msg.Headers),
			Entity:     msg.Entity,
			RemoteAddr: peer,
		})
	}
}
