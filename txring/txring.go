// File: txring/txring.go
// Package txring implements the Tx descriptor ring and its lifecycle (C2,
// spec §4.2).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structurally grounded on pool/ring.go's head/tail/mask layout, but
// deliberately NOT atomic: §5's scheduling model pins each Tx queue to one
// worker thread, so burst_send and complete() are always called from that
// single thread and plain ints are correct and cheaper than the teacher's
// cross-thread RingBuffer.

package txring

import (
	"fmt"
	"unsafe"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/mlxconst"
	"github.com/momentics/mlx4-core/mrcache"
)

// elt is one Tx descriptor slot (§3 "elts[n]").
type elt struct {
	mbuf *api.Mbuf
}

// Config configures Tx queue setup.
type Config struct {
	Descriptors  int // D, requested descriptor count
	MaxInline    int // requested max inline-send size
	LinearBufLen int // size of each slot's fallback linearization buffer
}

// Ring is the Tx descriptor ring (C2).
type Ring struct {
	dev api.Device
	qp  *api.QP
	cq  *api.CQ

	n    int
	head int
	tail int

	compPending       int
	compCountdown     int
	compCountdownInit int

	elts      []elt
	linearBuf [][]byte
	linearMR  *api.MR
	maxInline int

	mp2mr *mrcache.Cache

	// soft counters (§7 "Per-packet counters")
	Opackets uint64
	Obytes   uint64
	Odropped uint64
}

// Setup computes the effective slot count and allocates ring state
// (§4.2 "Setup"). D must be a multiple of mlxconst.MaxSGEWR.
func Setup(dev api.Device, pd *api.PD, qp *api.QP, cq *api.CQ, maxQPWR uint32, cfg Config) (*Ring, error) {
	if cfg.Descriptors <= 0 || cfg.Descriptors%mlxconst.MaxSGEWR != 0 {
		return nil, fmt.Errorf("%w: descriptor count %d not a multiple of %d",
			api.ErrInvalidArgument, cfg.Descriptors, mlxconst.MaxSGEWR)
	}

	n := cfg.Descriptors / mlxconst.MaxSGEWR
	if maxQPWR > 0 && uint32(n) > maxQPWR {
		n = int(maxQPWR)
	}
	if n < 2 {
		n = 2
	}

	linearLen := cfg.LinearBufLen
	if linearLen <= 0 {
		linearLen = 2048
	}
	linearBacking := make([]byte, n*linearLen)
	var linearMR *api.MR
	if dev != nil {
		var err error
		linearMR, err = dev.RegMR(pd, addrOf(linearBacking), uintptr(len(linearBacking)), api.AccessLocalWrite)
		if err != nil {
			return nil, fmt.Errorf("registering linear buffer: %w", err)
		}
	}

	linearBuf := make([][]byte, n)
	for i := 0; i < n; i++ {
		linearBuf[i] = linearBacking[i*linearLen : (i+1)*linearLen]
	}

	countdownInit := mlxconst.TxPerCompReq
	if q := n / 4; q < countdownInit {
		countdownInit = q
	}

	r := &Ring{
		dev:               dev,
		qp:                qp,
		cq:                cq,
		n:                 n,
		elts:              make([]elt, n),
		linearBuf:         linearBuf,
		linearMR:          linearMR,
		maxInline:         cfg.MaxInline,
		compCountdown:     countdownInit,
		compCountdownInit: countdownInit,
		mp2mr:             mrcache.New(dev, pd, mlxconst.DefaultMRCacheCapacity),
	}
	return r, nil
}

// N returns the slot count.
func (r *Ring) N() int { return r.n }

// Head and Tail expose the ring indices for invariant checks and tests.
func (r *Ring) Head() int { return r.head }
func (r *Ring) Tail() int { return r.tail }

// Used returns the number of slots currently occupied, (head-tail) mod n.
func (r *Ring) Used() int {
	return ((r.head - r.tail) % r.n + r.n) % r.n
}

// CompCountdownInit returns comp_countdown_init = min(TX_PER_COMP_REQ,
// n/4), with no lower-bound floor (§3).
func (r *Ring) CompCountdownInit() int { return r.compCountdownInit }

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Close releases the MR cache and the linear buffer's memory region. Any
// mbufs still occupying the ring between tail and head are freed.
func (r *Ring) Close() error {
	for r.tail != r.head {
		slot := r.tail % r.n
		if r.elts[slot].mbuf != nil {
			r.elts[slot].mbuf.Free()
			r.elts[slot].mbuf = nil
		}
		r.tail++
	}
	if err := r.mp2mr.Close(); err != nil {
		return err
	}
	if r.linearMR != nil {
		return r.dev.DeregMR(r.linearMR)
	}
	return nil
}
