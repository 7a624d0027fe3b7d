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

	"go.uber.org/zap"

	"upnpcore/internal/wpool"
	"upnpcore/internal/zaperr"
)

// stopDatagram is the literal shutdown signal a loopback UDP write to the
// stop socket must carry, byte for byte, to be honored.
var stopDatagram = []byte("ShutDown\000")

// eventLoop replaces a single-threaded select(2) readiness loop with one
// blocking reader goroutine per socket, fanned into a shared channel that a
// single goroutine drains with a Go select statement; the multiplexing
// contract (one readiness source wakes exactly one consumer) is preserved,
// only the OS primitive implementing it differs.
type eventLoop struct {
	ss   *SocketSet
	pool *wpool.Pool
	disp *Dispatcher
	ssdp *SsdpIngress
	log  *zap.SugaredLogger

	events chan loopEvent
	ready  chan struct{}
	done   chan struct{}
}

type loopEvent struct {
	conn    net.Conn
	sock    *Socket
	payload []byte
	peer    *net.UDPAddr
	isStop  bool
}

func newEventLoop(ss *SocketSet, pool *wpool.Pool, disp *Dispatcher, ssdp *SsdpIngress, log *zap.SugaredLogger) *eventLoop {
	return &eventLoop{
		ss:     ss,
		pool:   pool,
		disp:   disp,
		ssdp:   ssdp,
		log:    log,
		events: make(chan loopEvent, 32),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// run is submitted as a persistent worker-pool job; it returns only once
// the stop socket receives the exact shutdown datagram from 127.0.0.1,
// after closing every socket in the set. Reader goroutines exiting on
// socket errors do not end it.
func (el *eventLoop) run() {
	for _, sock := range el.ss.httpListeners() {
		if sock == nil || !sock.IsListening() {
			continue
		}
		go el.acceptLoop(sock)
	}
	for _, sock := range el.ss.ssdpReadSockets() {
		if sock == nil {
			continue
		}
		go el.datagramLoop(sock)
	}
	if el.ss.Stop != nil {
		go el.stopLoop(el.ss.Stop)
	}

	// Readiness signal the startup barrier gates on: every reader is
	// spawned and the loop is about to drain events.
	close(el.ready)

	for {
		ev := <-el.events
		if ev.isStop {
			el.ss.closeAll()
			close(el.done)
			return
		}
		el.dispatch(ev)
	}
}

func (el *eventLoop) dispatch(ev loopEvent) {
	switch {
	case ev.conn != nil:
		job := wpool.Job{
			Work: func(arg interface{}) { el.disp.HandleConnection(arg.(net.Conn)) },
			Arg:  ev.conn,
		}
		if _, err := el.pool.Submit(job, wpool.PriorityMedium); err != nil {
			ev.conn.Close()
		}
	case ev.sock != nil:
		sock, payload, peer := ev.sock, ev.payload, ev.peer
		job := wpool.Job{
			Work: func(interface{}) { el.ssdp.HandleDatagram(sock, payload, peer) },
		}
		_, _ = el.pool.Submit(job, wpool.PriorityLow)
	}
}

func (el *eventLoop) acceptLoop(sock *Socket) {
	for {
		conn, err := sock.Accept()
		if err != nil {
			if el.log != nil {
				el.log.Debugw("http listener accept loop exiting", "err", zaperr.Wrap(err, "accept failed"))
			}
			return
		}
		select {
		case el.events <- loopEvent{conn: conn}:
		case <-el.done:
			conn.Close()
			return
		}
	}
}

func (el *eventLoop) datagramLoop(sock *Socket) {
	buf := make([]byte, ssdpBufSize)
	for {
		n, peer, err := sock.ReadFromUDP(buf[:ssdpBufSize-1])
		if err != nil {
			if el.log != nil {
				el.log.Debugw("ssdp read loop exiting", "err", zaperr.Wrap(err, "recvfrom failed"))
			}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		select {
		case el.events <- loopEvent{sock: sock, payload: payload, peer: peer}:
		case <-el.done:
			return
		}
	}
}

// stopPeerIP is the exact address a shutdown datagram must originate from;
// the broader 127.0.0.0/8 loopback range (or ::1) is not accepted.
var stopPeerIP = net.IPv4(127, 0, 0, 1)

// stopLoop blocks on the stop socket until it reads the exact shutdown
// payload from exactly 127.0.0.1; any other datagram is ignored, so a
// stray packet reaching the loopback-bound stop socket cannot terminate the
// server.
func (el *eventLoop) stopLoop(sock *Socket) {
	buf := make([]byte, len(stopDatagram)+1)
	for {
		n, peer, err := sock.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n != len(stopDatagram) || string(buf[:n]) != string(stopDatagram) {
			continue
		}
		if !peer.IP.Equal(stopPeerIP) {
			if el.log != nil {
				el.log.Warnw("ignoring shutdown datagram from peer other than 127.0.0.1", "peer", peer.String())
			}
			continue
		}
		select {
		case el.events <- loopEvent{isStop: true}:
		case <-el.done:
		}
		return
	}
}
