// File: rxring/burst.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// rx_burst for the single-segment and scattered variants (§4.3).

package rxring

import (
	"log"

	"github.com/momentics/mlx4-core/api"
)

// RxBurst implements `rx_burst(k)` (§4.3). Never returns an error: a
// poll_cq failure is logged and treated as zero completions.
func (r *Ring) RxBurst(k int) []*api.Mbuf {
	wcs, err := r.dev.PollCQ(r.cq, k)
	if err != nil {
		log.Printf("rxring: poll_cq failed: %v", err)
		return nil
	}
	if len(wcs) == 0 {
		return nil
	}

	if r.variant == VariantScattered {
		return r.burstScattered(wcs)
	}
	return r.burstSingle(wcs)
}

// burstSingle implements the single-segment path (§4.3 steps 2a-2e).
func (r *Ring) burstSingle(wcs []api.WC) []*api.Mbuf {
	startHead := r.head
	delivered := make([]*api.Mbuf, 0, len(wcs))

	for _, wc := range wcs {
		slotIdx, _ := decodeWRID(wc.WRID)
		sl := &r.slots[slotIdx]
		orig := sl.mbufs[0]

		if wc.Status != api.WCSuccess {
			r.Idropped++
			r.head++
			continue
		}

		rep := r.pool.Alloc()
		if rep == nil {
			r.RxNombuf++
			r.head++
			continue
		}

		orig.SetData(orig.Headroom(), int(wc.Bytes))
		orig.SetPktLen(int(wc.Bytes))
		orig.SetNbSegs(1)
		delivered = append(delivered, orig)

		rep.SetData(rep.Headroom(), 0)
		sl.mbufs[0] = rep
		sl.sges[0] = api.SGE{Addr: rep.DataPtr(), Length: uint32(rep.Capacity()), Lkey: r.mr.Lkey}

		r.Ipackets++
		r.Ibytes += uint64(wc.Bytes)
		r.head++
	}

	if err := r.postChain(startHead, len(wcs)); err != nil {
		log.Fatalf("rxring: post_recv failed after rx_burst, queue is unrecoverable: %v", err)
	}
	return delivered
}

// burstScattered implements the scattered path: one completion consumes
// up to mlxconst.MaxSGEWR slots of a single packet. On a mid-packet
// replacement failure, the already-chained delivery mbufs are freed back
// to the pool and the slot is reposted: segments consumed before the
// failure keep the replacement mbufs already installed for them, and
// only the segments from the failed one onward keep their original
// mbufs and SGEs (§4.3 "Scattered variant").
func (r *Ring) burstScattered(wcs []api.WC) []*api.Mbuf {
	startHead := r.head
	delivered := make([]*api.Mbuf, 0, len(wcs))

	for _, wc := range wcs {
		slotIdx, _ := decodeWRID(wc.WRID)
		sl := &r.slots[slotIdx]

		if wc.Status != api.WCSuccess {
			r.Idropped++
			r.head++
			continue
		}

		remaining := int(wc.Bytes)
		var headSeg *api.Mbuf
		failed := false

		for s := 0; s < r.segPerSlot && remaining > 0; s++ {
			orig := sl.mbufs[s]
			segHeadroom := 0
			if s == 0 {
				segHeadroom = orig.Headroom()
			}
			segLen := orig.Headroom() + orig.Capacity() - segHeadroom
			if segLen > remaining {
				segLen = remaining
			}

			rep := r.pool.Alloc()
			if rep == nil {
				r.RxNombuf++
				failed = true
				break
			}

			orig.SetData(segHeadroom, segLen)
			if headSeg == nil {
				headSeg = orig
			} else {
				headSeg.Append(orig)
			}

			repHeadroom := 0
			if s == 0 {
				repHeadroom = rep.Headroom()
			}
			rep.SetData(repHeadroom, 0)
			sl.mbufs[s] = rep
			sl.sges[s] = api.SGE{Addr: rep.DataPtr(), Length: uint32(rep.Headroom() + rep.Capacity() - repHeadroom), Lkey: r.mr.Lkey}

			remaining -= segLen
		}

		if failed {
			if headSeg != nil {
				headSeg.Free()
			}
			r.head++
			continue
		}

		if headSeg != nil {
			headSeg.SetPktLen(int(wc.Bytes))
			delivered = append(delivered, headSeg)
			r.Ipackets++
			r.Ibytes += uint64(wc.Bytes)
		}
		r.head++
	}

	if err := r.postChain(startHead, len(wcs)); err != nil {
		log.Fatalf("rxring: post_recv failed after rx_burst, queue is unrecoverable: %v", err)
	}
	return delivered
}
