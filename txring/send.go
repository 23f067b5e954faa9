// File: txring/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// burst_send / complete (§4.2, §4.2.2).

package txring

import (
	"log"

	"github.com/momentics/mlx4-core/api"
)

// InlineThreshold is the per-packet single-segment length at or below
// which BurstSend uses the inline-send primitive instead of an SGE.
// Bounded by maxInline, the effective value the transport granted at
// queue creation (§4.4 step 3).
func (r *Ring) InlineThreshold() int { return r.maxInline }

// BurstSend implements `burst_send(pkts, k)` (§4.2). It never returns an
// error: the number of packets actually posted is the whole contract.
func (r *Ring) BurstSend(pkts []*api.Mbuf) int {
	r.complete()

	max := r.n - r.Used()
	max-- // sentinel slot
	if max < 0 {
		max = 0
	}
	if max > len(pkts) {
		max = len(pkts)
	}
	if max == 0 {
		return 0
	}

	wrs := make([]api.SendWR, 0, max)
	compDelta := 0
	posted := 0

	for i := 0; i < max; i++ {
		slot := r.head % r.n

		// Lazy-free the prior occupant. The guard on elt.buf != nil
		// (here: mbuf != nil) matters on the very first burst, where
		// slot 0 has never held anything (§9 open question).
		if r.elts[slot].mbuf != nil {
			r.elts[slot].mbuf.Free()
			r.elts[slot].mbuf = nil
		}

		pkt := pkts[i]
		signaled := false
		r.compCountdown--
		if r.compCountdown <= 0 {
			r.compCountdown = r.compCountdownInit
			compDelta++
			signaled = true
		}

		wr, err := r.buildWR(slot, pkt, signaled)
		if err != nil {
			// Per-packet runtime fault: drop this packet, truncate the
			// burst here, and make sure the slot isn't mistaken for an
			// occupant that needs freeing later.
			pkt.Free()
			r.Odropped++
			r.elts[slot].mbuf = nil
			// Undo the countdown/signal bookkeeping for the packet that
			// never made it onto the wire.
			if signaled {
				compDelta--
				r.compCountdown = 1
			} else {
				r.compCountdown++
			}
			break
		}

		r.elts[slot].mbuf = pkt
		wrs = append(wrs, wr)
		r.head++
		posted++
		r.Opackets++
		r.Obytes += uint64(pkt.PktLen())
	}

	if len(wrs) > 0 {
		if err := r.dev.PostSend(r.qp, wrs); err != nil {
			log.Printf("txring: post_send failed: %v", err)
		}
	}

	r.compPending += compDelta
	return posted
}

// complete harvests prior completions and advances tail (§4.2.2). It
// never returns an error to the caller: a poll_cq failure is logged and
// treated as zero completions this call, per §4.2.2 ("the next burst
// retries").
func (r *Ring) complete() {
	if r.compPending == 0 {
		return
	}
	wcs, err := r.dev.PollCQ(r.cq, r.compPending)
	if err != nil {
		log.Printf("txring: poll_cq failed: %v", err)
		return
	}

	// §9 open question: guard against a spurious/duplicated completion
	// overrunning comp_pending, which would otherwise walk tail past
	// head.
	n := len(wcs)
	if n > r.compPending {
		n = r.compPending
	}

	r.tail = (r.tail + n*r.compCountdownInit) % r.n
	r.compPending -= n
}
