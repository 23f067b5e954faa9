// File: txring/scatter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The scatter/gather builder (§4.2.1) and the single-segment inline/SGE
// fast paths it sits beside.

package txring

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/mlxconst"
)

// buildWR constructs the send work request for one packet occupying
// slot, implementing §4.2 steps c/d and the §4.2.1 scatter/gather
// builder.
func (r *Ring) buildWR(slot int, pkt *api.Mbuf, signaled bool) (api.SendWR, error) {
	wr := api.SendWR{ID: uint64(slot)}
	if signaled {
		wr.Flags |= api.WRSignaled
	}

	segs := pkt.NbSegs()
	if segs == 1 {
		data := pkt.Data()
		if len(data) <= r.maxInline {
			wr.Flags |= api.WRInline
			wr.Inline = data
			return wr, nil
		}
		lkey, err := r.mp2mr.LookupOrRegister(pkt.HomePool())
		if err != nil {
			return wr, err
		}
		wr.SGEs = []api.SGE{{Addr: pkt.DataPtr(), Length: uint32(len(data)), Lkey: lkey}}
		return wr, nil
	}

	return r.buildScatterGather(slot, pkt, wr)
}

// buildScatterGather implements §4.2.1: up to MaxSGEWR-1 segments become
// SGEs directly; any remaining segments are copied into the slot's linear
// buffer and emitted as one final SGE.
func (r *Ring) buildScatterGather(slot int, pkt *api.Mbuf, wr api.SendWR) (api.SendWR, error) {
	if pkt.NbSegs() <= mlxconst.MaxSGEWR {
		sges := make([]api.SGE, 0, pkt.NbSegs())
		for seg := pkt; seg != nil; seg = seg.Next() {
			lkey, err := r.mp2mr.LookupOrRegister(seg.HomePool())
			if err != nil {
				return wr, err
			}
			data := seg.Data()
			sges = append(sges, api.SGE{Addr: seg.DataPtr(), Length: uint32(len(data)), Lkey: lkey})
		}
		wr.SGEs = sges
		return wr, nil
	}

	sges := make([]api.SGE, 0, mlxconst.MaxSGEWR)
	seg := pkt
	for i := 0; i < mlxconst.MaxSGEWR-1; i++ {
		lkey, err := r.mp2mr.LookupOrRegister(seg.HomePool())
		if err != nil {
			return wr, err
		}
		data := seg.Data()
		sges = append(sges, api.SGE{Addr: seg.DataPtr(), Length: uint32(len(data)), Lkey: lkey})
		seg = seg.Next()
	}

	linear := r.linearBuf[slot][:0]
	for ; seg != nil; seg = seg.Next() {
		data := seg.Data()
		if len(linear)+len(data) > cap(r.linearBuf[slot]) {
			return wr, fmt.Errorf("%w: linearization of %d bytes exceeds linear buffer of %d",
				api.ErrResourceExhausted, len(linear)+len(data), cap(r.linearBuf[slot]))
		}
		linear = append(linear, data...)
	}
	sges = append(sges, api.SGE{Addr: addrOf(linear), Length: uint32(len(linear)), Lkey: r.linearMR.Lkey})
	wr.SGEs = sges
	return wr, nil
}
