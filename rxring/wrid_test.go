package rxring

import (
	"testing"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/verbssim"
)

func TestEncodeDecodeWRIDRoundTrips(t *testing.T) {
	cases := []struct {
		slot   int
		offset uint16
	}{
		{0, 0},
		{3, 128},
		{127, 65535},
	}
	for _, c := range cases {
		id := encodeWRID(c.slot, c.offset)
		slot, offset := decodeWRID(id)
		if slot != c.slot || offset != c.offset {
			t.Fatalf("round-trip mismatch: got slot=%d offset=%d, want slot=%d offset=%d",
				slot, offset, c.slot, c.offset)
		}
	}
}

// TestSlotWRIDResolvesSGEAddress exercises the §8 invariant: the encoded
// offset, subtracted from the SGE address, reproduces the mbuf's base
// address ("For every Rx slot: the SGE address minus the WR-id offset
// equals the mbuf's base address").
func TestSlotWRIDResolvesSGEAddress(t *testing.T) {
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 4096, MaxSGE: 32})
	pd, _ := dev.AllocPD()
	cq, _ := dev.CreateCQ(16, nil)
	qp, _ := dev.CreateQP(pd, api.QPInitAttr{Type: api.QPTypeRawPacket, RecvCQ: cq})
	_ = dev.ModifyQP(qp, api.QPInit, 1)

	pool := api.NewMempool("p", 8, 128, 2048)
	r, err := Setup(dev, pd, qp, cq, pool, Config{Descriptors: 4, MaxRxPktLen: 1500})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	for i, sl := range r.slots {
		wantBase := sl.mbufs[0].BaseAddr()
		wrid := r.wireWRID(i)
		slot, offset := decodeWRID(wrid)
		if slot != i {
			t.Fatalf("slot %d: decoded slot index %d", i, slot)
		}
		gotBase := sl.sges[0].Addr - uintptr(offset)
		if gotBase != wantBase {
			t.Fatalf("slot %d: sge.addr-offset=%#x, want mbuf base %#x", i, gotBase, wantBase)
		}
	}
}
