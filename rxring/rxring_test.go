package rxring_test

import (
	"testing"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/rxring"
	"github.com/momentics/mlx4-core/verbssim"
)

func newRxSetup(t *testing.T, pool *api.Mempool, cfg rxring.Config) (*rxring.Ring, *verbssim.Device, *api.QP) {
	t.Helper()
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 4096, MaxSGE: 32})
	pd, err := dev.AllocPD()
	if err != nil {
		t.Fatalf("AllocPD: %v", err)
	}
	cq, err := dev.CreateCQ(64, nil)
	if err != nil {
		t.Fatalf("CreateCQ: %v", err)
	}
	qp, err := dev.CreateQP(pd, api.QPInitAttr{Type: api.QPTypeRawPacket, RecvCQ: cq})
	if err != nil {
		t.Fatalf("CreateQP: %v", err)
	}
	if err := dev.ModifyQP(qp, api.QPInit, 1); err != nil {
		t.Fatalf("ModifyQP init: %v", err)
	}
	ring, err := rxring.Setup(dev, pd, qp, cq, pool, cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return ring, dev, qp
}

func TestSingleSegmentRxBurstDeliversAndReposts(t *testing.T) {
	pool := api.NewMempool("p", 8, 128, 2048)
	ring, dev, qp := newRxSetup(t, pool, rxring.Config{Descriptors: 4, MaxRxPktLen: 1500})
	if ring.Variant() != rxring.VariantSingleSegment {
		t.Fatalf("expected single-segment variant")
	}

	dev.DeliverRecv(qp, 0, 100, api.WCSuccess)

	delivered := ring.RxBurst(4)
	if len(delivered) != 1 {
		t.Fatalf("expected 1 delivered mbuf, got %d", len(delivered))
	}
	if delivered[0].PktLen() != 100 {
		t.Fatalf("expected pkt_len 100, got %d", delivered[0].PktLen())
	}
	if ring.Ipackets != 1 || ring.Ibytes != 100 {
		t.Fatalf("unexpected counters: packets=%d bytes=%d", ring.Ipackets, ring.Ibytes)
	}
}

func TestSingleSegmentRxBurstExhaustionIsPartial(t *testing.T) {
	// Exactly enough mbufs to fill the initial 4 slots; none left for
	// replacement (§8 "Rx pool exhausted mid-burst").
	pool := api.NewMempool("p", 4, 128, 2048)
	ring, dev, qp := newRxSetup(t, pool, rxring.Config{Descriptors: 4, MaxRxPktLen: 1500})

	dev.DeliverRecv(qp, 0, 64, api.WCSuccess)
	dev.DeliverRecv(qp, 1, 64, api.WCSuccess)

	delivered := ring.RxBurst(4)
	if len(delivered) != 0 {
		t.Fatalf("expected 0 delivered (no replacement mbufs available), got %d", len(delivered))
	}
	if ring.RxNombuf != 2 {
		t.Fatalf("expected rx_nombuf incremented twice, got %d", ring.RxNombuf)
	}
}

func TestScatteredRxBurstChainsSegments(t *testing.T) {
	pool := api.NewMempool("p", 32, 128, 512)
	ring, dev, qp := newRxSetup(t, pool, rxring.Config{
		Descriptors: 16,
		MaxRxPktLen: 9000,
		ScatterOK:   true,
	})
	if ring.Variant() != rxring.VariantScattered {
		t.Fatalf("expected scattered variant")
	}

	dev.DeliverRecv(qp, 0, 1200, api.WCSuccess)

	delivered := ring.RxBurst(4)
	if len(delivered) != 1 {
		t.Fatalf("expected 1 delivered packet, got %d", len(delivered))
	}
	pkt := delivered[0]
	if pkt.PktLen() != 1200 {
		t.Fatalf("expected pkt_len 1200, got %d", pkt.PktLen())
	}
	if pkt.NbSegs() != 3 {
		t.Fatalf("expected 3 segments covering 1200 bytes, got %d", pkt.NbSegs())
	}
}

func TestRehashSwitchesToScatteredWithoutLeakingMbufs(t *testing.T) {
	pool := api.NewMempool("p", 64, 128, 2048)
	ring, _, _ := newRxSetup(t, pool, rxring.Config{Descriptors: 4, MaxRxPktLen: 1500})

	if err := ring.Rehash(rxring.Config{Descriptors: 16, MaxRxPktLen: 9000, ScatterOK: true}, 64); err != nil {
		t.Fatalf("Rehash: %v", err)
	}
	if ring.Variant() != rxring.VariantScattered {
		t.Fatalf("expected scattered variant after rehash")
	}
	if ring.N() != 4 {
		t.Fatalf("expected 4 slots (16 descriptors / MaxSGEWR), got %d", ring.N())
	}
	if ring.RxNombuf != 0 {
		t.Fatalf("rehash must not touch rx_nombuf, got %d", ring.RxNombuf)
	}
}
