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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketBindStreamThenListen(t *testing.T) {
	s := NewSocket(FamilyIPv4, Stream)
	require.NoError(t, s.Bind("127.0.0.1", "0", 0))
	assert.True(t, s.IsBound())
	assert.True(t, s.IsListening(), "net.Listen already performs listen(2)")
	require.NoError(t, s.Listen(), "Listen must be idempotent")

	port, err := s.Port()
	require.NoError(t, err)
	assert.NotZero(t, port)
	assert.GreaterOrEqual(t, s.RawFD(), 3, "bound socket must expose a live descriptor above stdio")

	defer s.Close()
}

func TestSocketBindTwiceFails(t *testing.T) {
	s := NewSocket(FamilyIPv4, Stream)
	require.NoError(t, s.Bind("127.0.0.1", "0", 0))
	defer s.Close()

	err := s.Bind("127.0.0.1", "0", 0)
	assert.Equal(t, KindAlreadyBound, KindOf(err))
}

func TestSocketListenOnDatagramFails(t *testing.T) {
	s := NewSocket(FamilyIPv4, Datagram)
	require.NoError(t, s.Bind("127.0.0.1", "0", 0))
	defer s.Close()

	err := s.Listen()
	assert.Equal(t, KindWrongKind, KindOf(err))
}

func TestSocketUnboundGettersFail(t *testing.T) {
	s := NewSocket(FamilyIPv4, Stream)
	_, err := s.Port()
	assert.Equal(t, KindNotConnected, KindOf(err))

	_, err = s.Netaddr()
	assert.Equal(t, KindNotConnected, KindOf(err))

	assert.False(t, s.IsBound())
	assert.False(t, s.IsListening())
	assert.Equal(t, -1, s.RawFD())
}

func TestSocketDatagramRoundTrip(t *testing.T) {
	a := NewSocket(FamilyIPv4, Datagram)
	require.NoError(t, a.Bind("127.0.0.1", "0", 0))
	defer a.Close()

	b := NewSocket(FamilyIPv4, Datagram)
	require.NoError(t, b.Bind("127.0.0.1", "0", 0))
	defer b.Close()

	addrStr, err := a.NetaddrP()
	require.NoError(t, err)
	assert.Regexp(t, `^127\.0\.0\.1:\d+$`, addrStr)

	aPort, err := a.Port()
	require.NoError(t, err)

	n, err := b.WriteToUDP([]byte("ping"), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: aPort})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 16)
	n, peer, err := a.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.Equal(t, "127.0.0.1", peer.IP.String())
}

func TestSocketCloseIsIdempotent(t *testing.T) {
	s := NewSocket(FamilyIPv4, Stream)
	require.NoError(t, s.Bind("127.0.0.1", "0", 0))
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestFormatNumeric(t *testing.T) {
	assert.Equal(t, "127.0.0.1:80", formatNumeric(loopbackFor(FamilyIPv4), 80, FamilyIPv4))
	assert.Equal(t, "[::1]:80", formatNumeric(loopbackFor(FamilyIPv6), 80, FamilyIPv6))
	assert.Equal(t, "[::1]", formatNumeric(loopbackFor(FamilyIPv6), 0, FamilyIPv6))
}
