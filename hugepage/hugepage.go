// File: hugepage/hugepage.go
// Package hugepage detects the host's huge-page size and rounds MR
// registration ranges outward to huge-page boundaries (spec §4.1 step 4).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-specific probing mirrors pool/numa_linux.go vs.
// pool/numa_stub.go: a Linux implementation reads the real value, other
// platforms fall back to a conservative default.

package hugepage

// Size returns the host's default huge-page size in bytes, as reported by
// the platform-specific probe.
func Size() uintptr {
	return probeSize()
}

// RoundOutward rounds [start, end) outward to the host's huge-page
// boundary. The upstream behavior this mirrors only applies the rounding
// when the range falls within one matched huge-page segment and otherwise
// leaves the question underspecified (§9); this module does not track
// live segment maps, so it always rounds against the single reported
// huge-page size, which is exact whenever a mempool's backing allocation
// is itself huge-page sized or smaller — the common case.
func RoundOutward(start, end uintptr) (uintptr, uintptr) {
	hp := Size()
	if hp == 0 {
		return start, end
	}
	alignedStart := start &^ (hp - 1)
	alignedEnd := (end + hp - 1) &^ (hp - 1)
	return alignedStart, alignedEnd
}
