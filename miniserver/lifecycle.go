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
	"math/rand"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"upnpcore/internal/wpool"
	"upnpcore/internal/zaperr"
)

// Port range a zero-valued requested port is resolved into.
const (
	minEphemeralPort = 49152
	maxEphemeralPort = 65535
)

const (
	startupPollInterval   = 50 * time.Millisecond
	startupMaxIterations  = 10000
	shutdownBusyInterval  = time.Millisecond
	shutdownQuietInterval = time.Second
)

// BoundPorts reports the ports Start actually bound, for callers that
// requested port 0 (pick any free port in the ephemeral range).
type BoundPorts struct {
	V4       int
	V6LLA    int
	V6UADGUA int
}

// Lifecycle owns one running-or-stopped miniserver instance: the socket
// set, worker pool, and the single EventLoop job tying them together.
type Lifecycle struct {
	cfg  *Config
	log  *zap.SugaredLogger
	pool *wpool.Pool

	state stateBox

	ss       *SocketSet
	loop     *eventLoop
	stopPeer *net.UDPAddr
}

// New builds a Lifecycle in the Idle state.
func New(cfg *Config, log *zap.SugaredLogger) *Lifecycle {
	return &Lifecycle{cfg: cfg, log: log}
}

// Start binds the HTTP listeners, the stop socket, and the SSDP sockets,
// then launches the EventLoop as a persistent worker-pool job. A zero port
// is resolved to a random port in the ephemeral range. Start tolerates a
// listener failing to bind on one interface family as long as at least one
// HTTP listener and the stop socket succeed; it does not tolerate any SSDP
// socket failing, since discovery is a hard requirement.
func (l *Lifecycle) Start(ifaceName string, portV4, portV6LLA, portV6UADGUA int) (BoundPorts, error) {
	if !l.state.compareAndSwap(Idle, Running) {
		return BoundPorts{}, newErr(KindAlreadyRunning)
	}

	ss := newSocketSet()
	l.ss = ss

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		l.state.store(Idle)
		return BoundPorts{}, wrapErr(KindNameResolution, err)
	}
	l.cfg.IfaceIndex = iface.Index
	l.cfg.InterfaceName = iface.Name
	ifaceIPv4, ifaceLLA, ifaceGUA := literalAddrsFor(iface)
	l.cfg.IPv4 = ifaceIPv4
	l.cfg.IPv6LLA = ifaceLLA
	l.cfg.IPv6UADGUA = ifaceGUA

	// A single shared random port covers every zero-valued requested port,
	// so Start(iface, 0, 0, 0) hands back three equal bound ports rather
	// than three independently-chosen ones.
	if portV4 == 0 || portV6LLA == 0 || portV6UADGUA == 0 {
		sharedPort := minEphemeralPort + rand.Intn(maxEphemeralPort-minEphemeralPort+1)
		if portV4 == 0 {
			portV4 = sharedPort
		}
		if portV6LLA == 0 {
			portV6LLA = sharedPort
		}
		if portV6UADGUA == 0 {
			portV6UADGUA = sharedPort
		}
	}

	var bound BoundPorts
	var anyHTTP bool

	if ifaceIPv4 != nil {
		if sock, port, err := l.bindHTTP(FamilyIPv4, ifaceIPv4.String(), portV4); err == nil {
			ss.MiniserverV4 = sock
			ss.BoundPortV4 = port
			bound.V4 = port
			l.cfg.IPv4Port = port
			anyHTTP = true
		} else if l.log != nil {
			l.log.Warnw("http listener failed", "err", zaperr.Wrap(err, "bind failed", "family", "ipv4"))
		}
	}
	if ifaceLLA != nil {
		if sock, port, err := l.bindHTTP(FamilyIPv6, ifaceLLA.String(), portV6LLA); err == nil {
			ss.MiniserverV6LLA = sock
			ss.BoundPortV6LLA = port
			bound.V6LLA = port
			l.cfg.IPv6LLAPort = port
			anyHTTP = true
		} else if l.log != nil {
			l.log.Warnw("http listener failed", "err", zaperr.Wrap(err, "bind failed", "family", "ipv6 lla"))
		}
	}
	if ifaceGUA != nil {
		if sock, port, err := l.bindHTTP(FamilyIPv6, ifaceGUA.String(), portV6UADGUA); err == nil {
			ss.MiniserverV6UADGUA = sock
			ss.BoundPortV6UADGUA = port
			bound.V6UADGUA = port
			l.cfg.IPv6UADGUAPort = port
			anyHTTP = true
		} else if l.log != nil {
			l.log.Warnw("http listener failed", "err", zaperr.Wrap(err, "bind failed", "family", "ipv6 uadgua"))
		}
	}

	if !anyHTTP {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, newErr(KindSocketBind)
	}

	stopSock := NewSocket(FamilyIPv4, Datagram)
	if err := stopSock.Bind("127.0.0.1", "0", 0); err != nil {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, wrapErr(KindSocketBind, err)
	}
	ss.Stop = stopSock
	stopPort, _ := stopSock.Port()
	l.stopPeer = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: stopPort}
	ss.StopPort = stopPort

	v4, err := newMulticastSocket(FamilyIPv4, SSDPGroupIPv4, iface)
	if err != nil {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, err
	}
	ss.SsdpV4 = v4

	v6lla, err := newMulticastSocket(FamilyIPv6, SSDPGroupIPv6LLA, iface)
	if err != nil {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, err
	}
	ss.SsdpV6 = v6lla

	v6uadgua, err := newMulticastSocket(FamilyIPv6, SSDPGroupIPv6UADGUA, iface)
	if err != nil {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, err
	}
	ss.SsdpV6UADGUA = v6uadgua

	reqV4, err := newSSDPRequestSocket(FamilyIPv4)
	if err != nil {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, err
	}
	ss.SsdpReqV4 = reqV4

	reqV6, err := newSSDPRequestSocket(FamilyIPv6)
	if err != nil {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, err
	}
	ss.SsdpReqV6 = reqV6

	l.pool = wpool.New(int64(64))
	disp := NewDispatcher(l.cfg, l.log)
	ssdp := NewSsdpIngress(l.cfg, ss, l.log)
	l.loop = newEventLoop(ss, l.pool, disp, ssdp, l.log)

	if err := l.pool.SubmitPersistent(wpool.Job{Work: func(interface{}) { l.loop.run() }}); err != nil {
		ss.closeAll()
		l.state.store(Idle)
		return BoundPorts{}, wrapErr(KindInternalError, err)
	}

	if err := l.awaitStartup(); err != nil {
		l.Stop()
		return BoundPorts{}, err
	}

	return bound, nil
}

// bindHTTP binds a stream socket to the given interface literal and port
// and starts listening. Start has already resolved port to a non-zero value
// and node to the bound interface's literal address for family; each
// listener binds its interface literal, never the wildcard.
func (l *Lifecycle) bindHTTP(family Family, node string, port int) (*Socket, int, error) {
	sock := NewSocket(family, Stream)
	if family == FamilyIPv6 {
		sock.SetV6Only(true)
	}
	if err := sock.Bind(node, portString(port), 0); err != nil {
		return nil, 0, err
	}
	if err := sock.Listen(); err != nil {
		sock.Close()
		return nil, 0, err
	}
	bound, err := sock.Port()
	if err != nil {
		sock.Close()
		return nil, 0, err
	}
	return sock, bound, nil
}

// awaitStartup blocks until the EventLoop signals readiness (its reader
// goroutines are spawned and it is draining events), or the iteration cap
// expires. Bind/listen state alone is not enough: the listeners are live
// before the loop job has even been scheduled.
func (l *Lifecycle) awaitStartup() error {
	for i := 0; i < startupMaxIterations; i++ {
		select {
		case <-l.loop.ready:
			return nil
		case <-time.After(startupPollInterval):
		}
	}
	return newErr(KindInternalError)
}

// Stop sends the shutdown datagram to the stop socket and blocks until the
// EventLoop and worker pool have drained, then returns to Idle. Calling
// Stop when not Running is a no-op.
func (l *Lifecycle) Stop() {
	if !l.state.compareAndSwap(Running, Stopping) {
		return
	}
	defer l.state.store(Idle)

	if l.stopPeer != nil && l.loop != nil {
		conn, err := net.DialUDP("udp4", nil, l.stopPeer)
		if err == nil {
			l.signalShutdown(conn)
			conn.Close()
		}
	}

	if l.pool != nil {
		l.pool.Shutdown()
	}
	if l.ss != nil {
		l.ss.closeAll()
	}
}

// signalShutdown sends the shutdown datagram and keeps resending it until
// the EventLoop acknowledges by closing its done channel. A single UDP send,
// even on loopback, has no delivery guarantee, so the sender retries on a
// short-then-long cadence rather than trusting one write.
func (l *Lifecycle) signalShutdown(conn *net.UDPConn) {
	interval := shutdownBusyInterval
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		_, _ = conn.Write(stopDatagram)
		select {
		case <-l.loop.done:
			return
		case <-time.After(interval):
			interval = shutdownQuietInterval
		}
	}
}

func portString(p int) string {
	return strconv.Itoa(p)
}

// literalAddrsFor picks the first IPv4, link-local IPv6, and unique-local-
// or-global IPv6 address configured on iface, for use as the bound-address
// literals a DNS-rebind redirect or diagnostic log names.
func literalAddrsFor(iface *net.Interface) (v4, lla, gua net.IP) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil, nil
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipn.IP
		switch {
		case ip.To4() != nil:
			if v4 == nil {
				v4 = ip
			}
		case ip.IsLinkLocalUnicast():
			if lla == nil {
				lla = ip
			}
		default:
			if gua == nil {
				gua = ip
			}
		}
	}
	return v4, lla, gua
}
