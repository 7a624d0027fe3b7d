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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindHTTPBindsGivenLiteralAndPort(t *testing.T) {
	l := New(NewConfig(), nil)
	sock, port, err := l.bindHTTP(FamilyIPv4, "127.0.0.1", 0)
	require.NoError(t, err)
	defer sock.Close()
	assert.True(t, sock.IsListening())
	addr, err := sock.Netaddr()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr)
	assert.NotZero(t, port)
}

func TestBindHTTPExplicitPort(t *testing.T) {
	l := New(NewConfig(), nil)
	probe := NewSocket(FamilyIPv4, Stream)
	require.NoError(t, probe.Bind("127.0.0.1", "0", 0))
	wantPort, err := probe.Port()
	require.NoError(t, err)
	probe.Close()

	sock, port, err := l.bindHTTP(FamilyIPv4, "127.0.0.1", wantPort)
	require.NoError(t, err)
	defer sock.Close()
	assert.Equal(t, wantPort, port)
}

func TestStartSharesOneEphemeralPortAcrossZeroSlots(t *testing.T) {
	l := New(NewConfig(), nil)
	bound, err := l.Start("lo", 0, 0, 0)
	require.NoError(t, err)
	defer l.Stop()

	var nonZero []int
	for _, p := range []int{bound.V4, bound.V6LLA, bound.V6UADGUA} {
		if p != 0 {
			nonZero = append(nonZero, p)
		}
	}
	require.NotEmpty(t, nonZero)
	for _, p := range nonZero {
		assert.Equal(t, nonZero[0], p)
		assert.GreaterOrEqual(t, p, minEphemeralPort)
		assert.LessOrEqual(t, p, maxEphemeralPort)
	}
}

func TestStopWhenNotRunningIsNoop(t *testing.T) {
	l := New(NewConfig(), nil)
	assert.Equal(t, Idle, l.state.load())
	l.Stop()
	assert.Equal(t, Idle, l.state.load())
}

func TestStartTwiceFailsSecondCall(t *testing.T) {
	l := New(NewConfig(), nil)
	l.state.store(Running)
	_, err := l.Start("lo", 0, 0, 0)
	assert.Equal(t, KindAlreadyRunning, KindOf(err))
	l.state.store(Idle)
}
