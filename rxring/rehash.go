// File: rxring/rehash.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// rxq_rehash (§4.3): switches the Rx variant in place after an MTU
// change without allocating a single mbuf — the old slots' mbufs are
// snatched into a flat array and redistributed into the new layout.

package rxring

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/mlxconst"
)

// Rehash reconfigures the ring for a new max_rx_pkt_len / scatter
// setting, reusing the mbufs already held by the old slots rather than
// allocating fresh ones. The caller (C4) is expected to have already
// installed the "removed" dispatch callback and quiesced data-path
// access before calling this.
func (r *Ring) Rehash(cfg Config, cqSize int) error {
	portNum := r.qp.PortNum

	if err := r.dev.ModifyQP(r.qp, api.QPReset, portNum); err != nil {
		return fmt.Errorf("rehash: qp to reset: %w", err)
	}
	if err := r.dev.ResizeCQ(r.cq, cqSize); err != nil {
		return fmt.Errorf("rehash: resize cq: %w", err)
	}
	if err := r.dev.ModifyQP(r.qp, api.QPInit, portNum); err != nil {
		return fmt.Errorf("rehash: qp to init: %w", err)
	}

	pooled := make([]*api.Mbuf, 0, r.n*r.segPerSlot)
	for i := range r.slots {
		pooled = append(pooled, r.slots[i].mbufs...)
	}

	variant, segPerSlot, n := selectVariant(cfg, r.pool.DataRoom)
	needed := n * segPerSlot
	if needed > len(pooled) {
		return fmt.Errorf("%w: rehash needs %d mbufs, snapshot holds %d",
			api.ErrResourceExhausted, needed, len(pooled))
	}

	newSlots := make([]slot, n)
	idx := 0
	for i := 0; i < n; i++ {
		mbufs := make([]*api.Mbuf, segPerSlot)
		sges := make([]api.SGE, segPerSlot)
		for s := 0; s < segPerSlot; s++ {
			m := pooled[idx]
			idx++
			headroom := m.Headroom()
			if s > 0 {
				headroom = 0
			}
			m.SetData(headroom, 0)
			mbufs[s] = m
			avail := m.Headroom() + m.Capacity() - headroom
			sges[s] = api.SGE{Addr: m.DataPtr(), Length: uint32(avail), Lkey: r.mr.Lkey}
		}
		newSlots[i] = slot{mbufs: mbufs, sges: sges}
	}
	for ; idx < len(pooled); idx++ {
		pooled[idx].Free()
	}

	r.slots = newSlots
	r.variant = variant
	r.segPerSlot = segPerSlot
	r.n = n
	r.head = 0

	if err := r.postChain(0, n); err != nil {
		return fmt.Errorf("rehash: posting rehashed chain: %w", err)
	}
	if err := r.dev.ModifyQP(r.qp, api.QPRTR, portNum); err != nil {
		return fmt.Errorf("rehash: qp to rtr: %w", err)
	}
	return nil
}

func selectVariant(cfg Config, dataRoom int) (Variant, int, int) {
	var variant Variant
	var segPerSlot, n int
	switch {
	case cfg.MaxRxPktLen <= dataRoom:
		variant, segPerSlot, n = VariantSingleSegment, 1, cfg.Descriptors
	case cfg.ScatterOK:
		variant, segPerSlot, n = VariantScattered, mlxconst.MaxSGEWR, cfg.Descriptors/mlxconst.MaxSGEWR
	default:
		variant, segPerSlot, n = VariantSingleSegment, 1, cfg.Descriptors
	}
	if n < 1 {
		n = 1
	}
	return variant, segPerSlot, n
}
