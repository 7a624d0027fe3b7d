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

// SocketSet is the fixed nine-slot collection of sockets a running
// miniserver owns. It is a plain container: all behavior
// lives in Socket (C1) and Lifecycle (C6). It is heap-allocated by Start,
// handed by value-semantics (a pointer, since Go has no move constructors)
// to the EventLoop goroutine tree, and freed by the EventLoop on exit; no
// other goroutine may touch it once Start has submitted the EventLoop job.
type SocketSet struct {
	MiniserverV4       *Socket // HTTP listener, IPv4
	MiniserverV6LLA    *Socket // HTTP listener, IPv6 link-local
	MiniserverV6UADGUA *Socket // HTTP listener, IPv6 unique-local/global

	Stop *Socket // UDP loopback shutdown socket

	SsdpV4       *Socket // SSDP multicast group member, IPv4
	SsdpV6       *Socket // SSDP multicast group member, IPv6 link-local
	SsdpV6UADGUA *Socket // SSDP multicast group member, IPv6 site/global

	SsdpReqV4 *Socket // SSDP unicast request socket, IPv4 (control point only)
	SsdpReqV6 *Socket // SSDP unicast request socket, IPv6 (control point only)

	BoundPortV4       int
	BoundPortV6LLA    int
	BoundPortV6UADGUA int
	StopPort          int
}

// newSocketSet initializes every slot to nil (the "invalid" sentinel).
func newSocketSet() *SocketSet {
	return &SocketSet{}
}

// httpListeners returns the three HTTP listener slots in the fixed
// examination order HTTP accept-polling requires (no short-circuiting
// across listeners).
func (ss *SocketSet) httpListeners() []*Socket {
	return []*Socket{ss.MiniserverV4, ss.MiniserverV6LLA, ss.MiniserverV6UADGUA}
}

// ssdpReadSockets returns every socket SsdpIngress (C4) reads datagrams
// from: the three multicast-joined group sockets plus the two unicast
// request sockets.
func (ss *SocketSet) ssdpReadSockets() []*Socket {
	return []*Socket{ss.SsdpV4, ss.SsdpV6, ss.SsdpV6UADGUA, ss.SsdpReqV4, ss.SsdpReqV6}
}

// isSsdpRequestSocket reports whether sock is one of the unicast SSDP
// request sockets, which parse with the response grammar.
func (ss *SocketSet) isSsdpRequestSocket(sock *Socket) bool {
	return sock == ss.SsdpReqV4 || sock == ss.SsdpReqV6
}

// all returns every non-nil slot, for close-everything shutdown.
func (ss *SocketSet) all() []*Socket {
	slots := []*Socket{
		ss.MiniserverV4, ss.MiniserverV6LLA, ss.MiniserverV6UADGUA,
		ss.Stop,
		ss.SsdpV4, ss.SsdpV6, ss.SsdpV6UADGUA,
		ss.SsdpReqV4, ss.SsdpReqV6,
	}
	out := make([]*Socket, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// closeAll closes every valid slot; closing an invalid (nil) slot is
// already a no-op by construction.
func (ss *SocketSet) closeAll() {
	for _, s := range ss.all() {
		_ = s.Close()
	}
}
