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

import "sync/atomic"

// State is the miniserver's lifecycle state. The only valid transitions are
// Idle -> Running (via Start) and Running -> Stopping -> Idle (via Stop and
// the EventLoop's subsequent exit).
type State int32

// Lifecycle states, in the order the state machine allows traversing
// them.
const (
	Idle State = iota
	Running
	Stopping
)

var stateNames = map[State]string{
	Idle:     "idle",
	Running:  "running",
	Stopping: "stopping",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// stateBox is a sequentially-consistent holder for the server's lifecycle
// state, read and updated without locking by Start/Stop callers.
type stateBox struct {
	v int32
}

func (b *stateBox) load() State {
	return State(atomic.LoadInt32(&b.v))
}

func (b *stateBox) store(s State) {
	atomic.StoreInt32(&b.v, int32(s))
}

// compareAndSwap transitions the state iff it currently equals from,
// returning whether the transition happened. Used to make "two concurrent
// Start calls cannot both succeed" hold.
func (b *stateBox) compareAndSwap(from, to State) bool {
	return atomic.CompareAndSwapInt32(&b.v, int32(from), int32(to))
}
