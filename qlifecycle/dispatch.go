// File: qlifecycle/dispatch.go
// Package qlifecycle drives the QP state machine and the per-queue
// dispatch shim that stands in for the teacher's function-pointer burst
// callbacks (C4, spec §4.4, §5, §9 "Function-pointer dispatch").
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on internal/concurrency/eventloop.go's atomic.Value handler
// swap: the spec's "small enum {Real, Scattered, Removed} plus a
// dispatch shim... swap via an atomic store with a Release-ordered
// fence" is exactly the teacher's lock-free handler-list swap, narrowed
// to a single enum value instead of a slice.

package qlifecycle

import (
	"runtime"
	"sync/atomic"
	"time"
)

// DispatchMode selects which burst implementation a queue's data path
// currently uses.
type DispatchMode int32

const (
	// DispatchReal is the normal, variant-appropriate burst path.
	DispatchReal DispatchMode = iota
	// DispatchScattered forces the scattered Rx path (set after a
	// rehash that switched variants).
	DispatchScattered
	// DispatchRemoved is the no-op path installed while the control
	// path performs an unsafe mutation on a running queue.
	DispatchRemoved
)

// Dispatch is the atomically-swapped mode cell one worker thread reads
// before every burst call. Swapping it is the core's substitute for a
// full RCU (§5 "Data path vs control path interlock").
type Dispatch struct {
	mode atomic.Int32
}

// Mode loads the current dispatch mode. Call this once at the top of
// every burst call; the barrier below guarantees freshness after a
// Quiesce/Resume pair.
func (d *Dispatch) Mode() DispatchMode { return DispatchMode(d.mode.Load()) }

// set stores a new mode with release ordering, matching the spec's
// "atomic store with a Release-ordered fence."
func (d *Dispatch) set(m DispatchMode) { d.mode.Store(int32(m)) }

// Quiesce installs the "removed" no-op callback, issues a write
// barrier (implicit in the atomic store on every Go-supported
// architecture), and sleeps briefly to let any in-flight burst drain on
// sibling threads before the caller mutates queue state (§5). It
// returns the mode that was active before quiescing, so Resume can
// restore it.
func (d *Dispatch) Quiesce() DispatchMode {
	prev := d.Mode()
	d.set(DispatchRemoved)
	runtime.Gosched()
	time.Sleep(time.Millisecond)
	return prev
}

// Resume restores a previously active mode after a Quiesce-guarded
// mutation completes.
func (d *Dispatch) Resume(prev DispatchMode) {
	d.set(prev)
}
