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
	"strconv"
	"sync"
	"syscall"
)

// Family is the socket's address family.
type Family int

// Address families this core binds.
const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// SockType is the socket's transport kind.
type SockType int

// Socket kinds this core opens.
const (
	Stream SockType = iota
	Datagram
)

// BindFlags mirror getaddrinfo's AI_PASSIVE/AI_NUMERICHOST/AI_NUMERICSERV,
// style flags.
type BindFlags int

// Flags recognized by Socket.Bind and the AddressResolver.
const (
	FlagPassive BindFlags = 1 << iota
	FlagNumericHost
	FlagNumericService
)

// Socket owns one OS socket handle. Copying a Socket value (as opposed to
// the pointer) is a defect: two owners of one raw handle. An empty Socket
// (the zero value) is a valid target for every getter; they all fail with
// KindNotConnected.
type Socket struct {
	family   Family
	sockType SockType

	// bindMu guards bound/v6Only*, separate from listenMu because
	// getsockname-style queries can race a concurrent Listen call on the
	// same object.
	bindMu    sync.Mutex
	bound     bool
	v6OnlySet bool
	v6Only    bool

	listenMu  sync.Mutex
	listening bool

	ln  net.Listener // set once Bind succeeds, if sockType == Stream
	udp *net.UDPConn // set once Bind succeeds, if sockType == Datagram
}

// NewSocket constructs a Socket hint for the given family/kind. The
// underlying OS socket is not allocated until Bind succeeds; Go's net
// package performs socket()+bind() as one atomic operation, so the
// separate new()/bind() phases are preserved at the API level (distinct
// error points, idempotent Bind) rather than as distinct syscalls.
func NewSocket(family Family, kind SockType) *Socket {
	return &Socket{family: family, sockType: kind}
}

// SetV6Only requests IPV6_V6ONLY for a not-yet-bound IPv6 socket. It is
// silently ignored after Bind and for IPv4 sockets. Only IPv6 datagram
// sockets take the requested value: IPv6 stream sockets always bind with
// IPV6_V6ONLY set, whatever was requested.
func (s *Socket) SetV6Only(v bool) {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if s.bound {
		return
	}
	s.v6OnlySet = true
	s.v6Only = v
}

func netNetwork(family Family, kind SockType) string {
	suffix := "4"
	if family == FamilyIPv6 {
		suffix = "6"
	}
	if kind == Stream {
		return "tcp" + suffix
	}
	return "udp" + suffix
}

// controlFunc applies pre-bind socket options: it runs after socket() but
// before bind(), which is exactly when net.ListenConfig.Control fires.
func (s *Socket) controlFunc() func(string, string, syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if s.family == FamilyIPv6 && s.sockType == Stream {
				// Stream IPv6 sockets always end up V6ONLY=true after
				// bind, regardless of what was requested beforehand, so
				// behavior is identical across BSD sockets (false by
				// default) and WinSock (true by default).
				opErr = setIPv6Only(fd, true)
			} else if s.family == FamilyIPv6 && s.v6OnlySet {
				opErr = setIPv6Only(fd, s.v6Only)
			}
			if opErr == nil {
				opErr = setPlatformSocketOptions(fd)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// Bind resolves (node, service) via the AddressResolver and binds the
// socket to it. flags recognizes Passive, NumericHost, NumericService per
// Passive with an empty node yields the wildcard address; a
// non-empty node ignores Passive.
func (s *Socket) Bind(node, service string, flags BindFlags) error {
	resolved, err := resolveAddr(s.family, s.sockType, node, service, flags)
	if err != nil {
		return wrapErr(KindNameResolution, err)
	}
	if resolved.family != s.family {
		return newErr(KindWrongFamily)
	}

	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if s.bound {
		return newErr(KindAlreadyBound)
	}

	lc := net.ListenConfig{Control: s.controlFunc()}
	network := netNetwork(s.family, s.sockType)
	addr := net.JoinHostPort(resolved.ip.String(), strconv.Itoa(resolved.port))
	ctx := context.Background()

	switch s.sockType {
	case Stream:
		ln, lerr := lc.Listen(ctx, network, addr)
		if lerr != nil {
			return wrapErr(KindSocketBind, lerr)
		}
		s.ln = ln
		s.listenMu.Lock()
		s.listening = true // net.Listen already performs listen(2)
		s.listenMu.Unlock()
	case Datagram:
		pc, lerr := lc.ListenPacket(ctx, network, addr)
		if lerr != nil {
			return wrapErr(KindSocketBind, lerr)
		}
		udpConn, ok := pc.(*net.UDPConn)
		if !ok {
			pc.Close()
			return wrapErr(KindOutOfResources, fmt.Errorf("unexpected packet conn type %T", pc))
		}
		s.udp = udpConn
	}
	s.bound = true
	return nil
}

// Listen marks a stream socket accepting. It is idempotent, and fails with
// KindWrongKind for datagram sockets. The OS-level listen(2) already
// happened inside Bind (net.Listen performs bind+listen atomically); this
// method exists so callers follow a two-step bind-then-listen shape with
// distinct error points (WrongKind, idempotency).
func (s *Socket) Listen() error {
	if s.sockType != Stream {
		return newErr(KindWrongKind)
	}
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if !s.bound {
		return newErr(KindNotConnected)
	}
	s.listening = true
	return nil
}

// IsListening reports whether Listen has completed.
func (s *Socket) IsListening() bool {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	return s.listening
}

// IsBound reports whether the socket currently has a local address, per
// getsockname-based definition.
func (s *Socket) IsBound() bool {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	return s.bound
}

// Family returns the socket's address family.
func (s *Socket) Family() Family { return s.family }

// Type returns the socket's transport kind.
func (s *Socket) Type() SockType { return s.sockType }

func (s *Socket) localAddr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	if s.udp != nil {
		return s.udp.LocalAddr()
	}
	return nil
}

// Port returns the bound port, or KindNotConnected if the socket is empty.
func (s *Socket) Port() (int, error) {
	addr := s.localAddr()
	if addr == nil {
		return 0, newErr(KindNotConnected)
	}
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, wrapErr(KindNotConnected, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, wrapErr(KindNotConnected, err)
	}
	return port, nil
}

// Netaddr returns the bound host address without a port. IPv6 addresses
// are returned without brackets ("::1", not "[::1]"); NetaddrP is the
// bracketed form with the port.
func (s *Socket) Netaddr() (string, error) {
	addr := s.localAddr()
	if addr == nil {
		return "", newErr(KindNotConnected)
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", wrapErr(KindNotConnected, err)
	}
	return host, nil
}

// NetaddrP formats the bound address with its port: "[addr]:port" for IPv6,
// "addr:port" for IPv4.
func (s *Socket) NetaddrP() (string, error) {
	port, err := s.Port()
	if err != nil {
		return "", err
	}
	host, err := s.Netaddr()
	if err != nil {
		return "", err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", newErr(KindNotConnected)
	}
	return formatNumeric(ip, port, s.family), nil
}

// formatNumeric formats a numeric address: bracketed
// host[:port] for IPv6, plain host[:port] for IPv4.
func formatNumeric(ip net.IP, port int, family Family) string {
	host := ip.String()
	if family == FamilyIPv6 {
		if port > 0 {
			return fmt.Sprintf("[%s]:%d", host, port)
		}
		return fmt.Sprintf("[%s]", host)
	}
	if port > 0 {
		return fmt.Sprintf("%s:%d", host, port)
	}
	return host
}

// Accept accepts one connection on a listening stream socket.
func (s *Socket) Accept() (net.Conn, error) {
	if s.ln == nil {
		return nil, newErr(KindNotConnected)
	}
	conn, err := s.ln.Accept()
	if err != nil {
		return nil, wrapErr(KindOutOfResources, err)
	}
	return conn, nil
}

// ReadFromUDP reads one datagram from a bound datagram socket.
func (s *Socket) ReadFromUDP(buf []byte) (int, *net.UDPAddr, error) {
	if s.udp == nil {
		return 0, nil, newErr(KindNotConnected)
	}
	return s.udp.ReadFromUDP(buf)
}

// WriteToUDP writes one datagram on a bound datagram socket.
func (s *Socket) WriteToUDP(buf []byte, addr *net.UDPAddr) (int, error) {
	if s.udp == nil {
		return 0, newErr(KindNotConnected)
	}
	return s.udp.WriteToUDP(buf, addr)
}

// RawFD returns the socket's raw file descriptor for readiness screening
// (for FD_SETSIZE/handle-range validity screening), or -1 if the
// socket has no live OS handle.
func (s *Socket) RawFD() int {
	var sc syscall.Conn
	switch {
	case s.ln != nil:
		if tl, ok := s.ln.(*net.TCPListener); ok {
			sc = tl
		}
	case s.udp != nil:
		sc = s.udp
	}
	if sc == nil {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	raw.Control(func(p uintptr) { fd = int(p) })
	return fd
}

// Close closes the socket. Closing an already-empty or already-closed
// Socket is a no-op.
func (s *Socket) Close() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
		s.ln = nil
	}
	if s.udp != nil {
		if cerr := s.udp.Close(); err == nil {
			err = cerr
		}
		s.udp = nil
	}
	s.bindMu.Lock()
	s.bound = false
	s.bindMu.Unlock()
	return err
}
