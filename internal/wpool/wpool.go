/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package wpool is a minimal worker pool offering submit(job, priority) ->
// JobID|Err, submit_persistent(job), and shutdown(). Concurrency is bounded
// with a weighted semaphore, the same device used elsewhere to cap
// per-bucket and per-object ingestion workers.
package wpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Priority is the scheduling class requested for a submitted job. The core
// only ever uses PriorityMedium for dispatch jobs, but the contract exposes
// the full small set a real pool would offer.
type Priority int

// Priority classes, lowest first.
const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// JobID identifies a submitted job for logging/diagnostics purposes.
type JobID uint64

// Job is one unit of work: Work runs on a pool goroutine, and Free disposes
// of Arg afterward (or inline, if submission itself fails).
type Job struct {
	Work func(arg interface{})
	Arg  interface{}
	Free func(arg interface{})
}

func (j Job) run() {
	defer func() {
		if j.Free != nil {
			j.Free(j.Arg)
		}
	}()
	if j.Work != nil {
		j.Work(j.Arg)
	}
}

// ErrShuttingDown is returned by Submit/SubmitPersistent once Shutdown has
// been called.
var ErrShuttingDown = errors.New("wpool: shutting down")

// Pool is a bounded worker pool. The zero value is not usable; use New.
type Pool struct {
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	nextID   uint64
	mu       sync.Mutex
	draining bool
}

// New builds a pool that runs at most maxConcurrent transient jobs at once.
// Persistent jobs (the EventLoop) are exempt from that cap, since the pool
// must always be able to seat the one long-lived loop job a running
// miniserver needs.
func New(maxConcurrent int64) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pool{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Submit schedules a transient job at the given priority class. Priority is
// presently advisory bookkeeping only: every accepted job runs as soon as a
// semaphore slot is free, whichever class it was submitted at.
func (p *Pool) Submit(job Job, _ Priority) (JobID, error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		if job.Free != nil {
			job.Free(job.Arg)
		}
		return 0, ErrShuttingDown
	}
	p.mu.Unlock()

	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		if job.Free != nil {
			job.Free(job.Arg)
		}
		return 0, errors.Wrap(err, "acquiring worker slot")
	}

	id := JobID(atomic.AddUint64(&p.nextID, 1))
	p.wg.Add(1)
	go func() {
		defer p.sem.Release(1)
		defer p.wg.Done()
		job.run()
	}()
	return id, nil
}

// SubmitPersistent runs job on its own goroutine, outside the bounded
// semaphore, for the lifetime of the pool. Used for exactly one job: the
// EventLoop.
func (p *Pool) SubmitPersistent(job Job) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		if job.Free != nil {
			job.Free(job.Arg)
		}
		return ErrShuttingDown
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		job.run()
	}()
	return nil
}

// Shutdown marks the pool as draining (no further submissions accepted) and
// waits for in-flight jobs to finish. It does not cancel running jobs:
// in-flight workers are never cancelled, only waited for.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
	p.wg.Wait()
}
