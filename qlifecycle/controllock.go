// File: qlifecycle/controllock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The per-port control lock (§5 "Control path"): a spin lock serializing
// queue setup/release, start/stop, MTU change, MAC change, flow
// create/destroy, link-state change, and interrupt install/uninstall.
// Grounded on internal/concurrency/eventloop.go's spin-wait backoff loop
// (runtime.Gosched + exponential backoff), adapted from an idle-poll
// loop into a mutual-exclusion primitive.

package qlifecycle

import (
	"runtime"
	"sync/atomic"
)

// ControlLock is a spin lock. Hold times are bounded by Verbs calls plus
// small in-user work, so spinning (rather than blocking on a mutex that
// would hand off to the scheduler) matches the spec's stated cost model.
type ControlLock struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired, backing off with runtime.Gosched
// to avoid starving other goroutines on a GOMAXPROCS=1 build.
func (l *ControlLock) Lock() {
	spins := 0
	for !l.held.CompareAndSwap(false, true) {
		spins++
		if spins > 64 {
			runtime.Gosched()
			spins = 0
		}
	}
}

// Unlock releases the lock. Unlocking an already-unlocked lock is a
// programming error and is not guarded against, matching a spin lock's
// usual contract.
func (l *ControlLock) Unlock() {
	l.held.Store(false)
}

// TryLock attempts to acquire the lock without spinning and reports
// whether it succeeded. Port.Start and Port.Stop do not use it; they
// call Lock.
func (l *ControlLock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}
