// File: rxring/rxring.go
// Package rxring implements the Rx descriptor ring and its single-segment
// and scattered variants (C3, spec §4.3).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structurally grounded on txring's head-only ring (Rx has no tail: every
// slot is always either posted or mid-delivery) and on pool/bufferpool.go
// for the replacement-allocation shape. Like txring, this is deliberately
// not atomic: each Rx queue is pinned to one worker thread (§5).

package rxring

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
)

// Variant selects the Rx descriptor layout, chosen at Setup or rehash
// time by comparing the configured max frame length against the pool's
// data-room size (§4.3 "Setup").
type Variant int

const (
	VariantSingleSegment Variant = iota
	VariantScattered
)

// slot is one Rx descriptor: up to mlxconst.MaxSGEWR segments for the
// scattered variant, exactly one for single-segment.
type slot struct {
	mbufs []*api.Mbuf
	sges  []api.SGE
}

// Config configures Rx queue setup.
type Config struct {
	Descriptors  int  // D
	MaxRxPktLen  int  // max_rx_pkt_len, drives variant selection
	ScatterOK    bool // scatter enabled in the port config
}

// Ring is the Rx descriptor ring (C3).
type Ring struct {
	dev api.Device
	pd  *api.PD
	qp  *api.QP
	cq  *api.CQ

	pool *api.Mempool
	mr   *api.MR

	variant    Variant
	segPerSlot int
	n          int
	head       int
	slots      []slot

	// soft counters (§7)
	Ipackets  uint64
	Ibytes    uint64
	Idropped  uint64
	RxNombuf  uint64
}

// Setup chooses the Rx variant, registers the pool, allocates the
// descriptor array and initial mbufs, posts the whole chain, and drives
// the QP from INIT to RTR (§4.3 "Setup").
func Setup(dev api.Device, pd *api.PD, qp *api.QP, cq *api.CQ, pool *api.Mempool, cfg Config) (*Ring, error) {
	if cfg.Descriptors <= 0 {
		return nil, fmt.Errorf("%w: descriptor count %d", api.ErrInvalidArgument, cfg.Descriptors)
	}
	if !pool.IsContiguous() {
		return nil, api.ErrNonContiguousPool
	}

	r := &Ring{dev: dev, pd: pd, qp: qp, cq: cq, pool: pool}
	r.variant, r.segPerSlot, r.n = selectVariant(cfg, pool.DataRoom)

	start, end := pool.Bounds()
	mr, err := dev.RegMR(pd, start, end-start, api.AccessLocalWrite)
	if err != nil {
		return nil, fmt.Errorf("registering rx pool: %w", err)
	}
	r.mr = mr

	r.slots = make([]slot, r.n)
	for i := range r.slots {
		if err := r.fillSlot(i); err != nil {
			return nil, err
		}
	}

	if err := r.postChain(0, r.n); err != nil {
		return nil, fmt.Errorf("posting initial rx chain: %w", err)
	}

	if err := dev.ModifyQP(qp, api.QPRTR, qp.PortNum); err != nil {
		return nil, fmt.Errorf("transitioning rx qp to rtr: %w", err)
	}
	return r, nil
}

// N returns the descriptor slot count.
func (r *Ring) N() int { return r.n }

// Head exposes the current consult index for tests.
func (r *Ring) Head() int { return r.head }

// Variant reports the currently active layout.
func (r *Ring) Variant() Variant { return r.variant }

// fillSlot allocates segPerSlot fresh mbufs for slot i and builds its
// SGEs: the first segment keeps the pool's configured headroom, later
// scattered segments give up headroom entirely so the full data room is
// available (§3 "Scattered variant").
func (r *Ring) fillSlot(i int) error {
	mbufs := make([]*api.Mbuf, r.segPerSlot)
	sges := make([]api.SGE, r.segPerSlot)
	for s := 0; s < r.segPerSlot; s++ {
		m := r.pool.Alloc()
		if m == nil {
			return fmt.Errorf("%w: rx pool exhausted at setup", api.ErrResourceExhausted)
		}
		headroom := m.Headroom()
		if s > 0 {
			headroom = 0
		}
		m.SetData(headroom, 0)
		mbufs[s] = m
		avail := m.Headroom() + m.Capacity() - headroom
		sges[s] = api.SGE{Addr: m.DataPtr(), Length: uint32(avail), Lkey: r.mr.Lkey}
	}
	r.slots[i] = slot{mbufs: mbufs, sges: sges}
	r.wireWRID(i)
	return nil
}

// wireWRID recomputes the slot's encoded WR id, used both at setup and
// after a replacement mbuf is installed.
func (r *Ring) wireWRID(i int) uint64 {
	base := r.slots[i].mbufs[0].BaseAddr()
	addr := r.slots[i].sges[0].Addr
	offset := uint16(addr - base)
	return encodeWRID(i, offset)
}

// postChain builds the WR chain for slots [from, from+count) and posts
// it as a single self-terminating list (§3 Rx Ring invariant: the last
// WR's next must be null).
func (r *Ring) postChain(from, count int) error {
	if count == 0 {
		return nil
	}
	var head, tail *api.RecvWR
	for i := from; i < from+count; i++ {
		idx := i % r.n
		wr := &api.RecvWR{ID: r.wireWRID(idx), SGEs: append([]api.SGE(nil), r.slots[idx].sges...)}
		if head == nil {
			head = wr
		} else {
			tail.Next = wr
		}
		tail = wr
	}
	return r.dev.PostRecv(r.qp, head)
}

// Close deregisters the pool MR and returns every slot's mbufs to their
// home pool.
func (r *Ring) Close() error {
	for i := range r.slots {
		for _, m := range r.slots[i].mbufs {
			if m != nil {
				m.Free()
			}
		}
	}
	return r.dev.DeregMR(r.mr)
}
