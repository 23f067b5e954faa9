package txring_test

import (
	"testing"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/mlxconst"
	"github.com/momentics/mlx4-core/txring"
	"github.com/momentics/mlx4-core/verbssim"
)

func newRing(t *testing.T, descriptors int) (*txring.Ring, *verbssim.Device, *api.QP) {
	t.Helper()
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 4096, MaxSGE: 32, MaxInlineData: 256})
	pd, err := dev.AllocPD()
	if err != nil {
		t.Fatalf("AllocPD: %v", err)
	}
	cq, err := dev.CreateCQ(256, nil)
	if err != nil {
		t.Fatalf("CreateCQ: %v", err)
	}
	qp, err := dev.CreateQP(pd, api.QPInitAttr{Type: api.QPTypeRawPacket, SendCQ: cq})
	if err != nil {
		t.Fatalf("CreateQP: %v", err)
	}
	ring, err := txring.Setup(dev, pd, qp, cq, 4096, txring.Config{Descriptors: descriptors, MaxInline: 64})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return ring, dev, qp
}

// Scenario 1 (§8): single-segment Tx, 128-slot ring, one burst of 129
// 64-byte packets.
func TestBurstSendSingleSegment(t *testing.T) {
	ring, _, _ := newRing(t, 128*mlxconst.MaxSGEWR)
	pool := api.NewMempool("p", 256, 64, 2048)

	pkts := make([]*api.Mbuf, 129)
	for i := range pkts {
		m := pool.Alloc()
		m.SetData(m.Headroom(), 64)
		m.SetPktLen(64)
		pkts[i] = m
	}

	posted := ring.BurstSend(pkts)
	if posted != 127 {
		t.Fatalf("expected 127 posted (one sentinel slot kept free), got %d", posted)
	}
}

// Scenario 2 (§8): Tx scatter-with-linearize. MAX_SGE_WR=4 (fixed by
// mlxconst). 6 segments of 128 bytes each; first 3 become SGEs, the
// trailing 3 (384 bytes) are linearized into one SGE.
func TestBurstSendScatterLinearize(t *testing.T) {
	ring, dev, qp := newRing(t, 64*mlxconst.MaxSGEWR)
	pool := api.NewMempool("p", 64, 64, 2048)

	head := pool.Alloc()
	head.SetData(head.Headroom(), 128)
	head.SetPktLen(128)
	for i := 1; i < 6; i++ {
		seg := pool.Alloc()
		seg.SetData(seg.Headroom(), 128)
		head.Append(seg)
	}

	posted := ring.BurstSend([]*api.Mbuf{head})
	if posted != 1 {
		t.Fatalf("expected 1 packet posted, got %d", posted)
	}
	if ring.Odropped != 0 {
		t.Fatalf("expected no drops, got %d", ring.Odropped)
	}
	if ring.Obytes != 768 {
		t.Fatalf("expected 768 bytes on wire, got %d", ring.Obytes)
	}
	_ = dev
	_ = qp
}

// A packet whose overflow segments exceed the linear buffer must be
// dropped, truncating the burst at that point (§8 boundary behavior).
func TestBurstSendLinearizeOverflowDrops(t *testing.T) {
	ring, err := setupTinyLinearRing(t)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	pool := api.NewMempool("p", 64, 64, 4096)

	head := pool.Alloc()
	head.SetData(head.Headroom(), 128)
	head.SetPktLen(128)
	for i := 1; i < 8; i++ {
		seg := pool.Alloc()
		seg.SetData(seg.Headroom(), 1024)
		head.Append(seg)
	}

	posted := ring.BurstSend([]*api.Mbuf{head})
	if posted != 0 {
		t.Fatalf("expected packet to be dropped (0 posted), got %d", posted)
	}
	if ring.Odropped != 1 {
		t.Fatalf("expected 1 drop recorded, got %d", ring.Odropped)
	}
}

func setupTinyLinearRing(t *testing.T) (*txring.Ring, error) {
	t.Helper()
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 4096, MaxSGE: 32, MaxInlineData: 64})
	pd, err := dev.AllocPD()
	if err != nil {
		return nil, err
	}
	cq, err := dev.CreateCQ(64, nil)
	if err != nil {
		return nil, err
	}
	qp, err := dev.CreateQP(pd, api.QPInitAttr{Type: api.QPTypeRawPacket, SendCQ: cq})
	if err != nil {
		return nil, err
	}
	return txring.Setup(dev, pd, qp, cq, 4096, txring.Config{
		Descriptors:  16 * mlxconst.MaxSGEWR,
		MaxInline:    64,
		LinearBufLen: 512,
	})
}

// comp_countdown_init = min(TX_PER_COMP_REQ, n/4) has no lower-bound
// floor (§3; original mlx4_txq.c computes exactly this ternary with no
// minimum). For a small ring (n=8), n/4=2 must win outright, not be
// clamped up to some floor.
func TestCompCountdownInitHasNoFloorOnSmallRing(t *testing.T) {
	ring, _, _ := newRing(t, 8*mlxconst.MaxSGEWR) // slot count n=8
	if got, want := ring.CompCountdownInit(), 2; got != want {
		t.Fatalf("comp_countdown_init = min(TX_PER_COMP_REQ, n/4) = min(32, 2): expected %d, got %d", want, got)
	}
}

func TestSetupRejectsNonMultipleDescriptorCount(t *testing.T) {
	dev := verbssim.New(api.DeviceAttr{})
	pd, _ := dev.AllocPD()
	cq, _ := dev.CreateCQ(16, nil)
	qp, _ := dev.CreateQP(pd, api.QPInitAttr{SendCQ: cq})
	_, err := txring.Setup(dev, pd, qp, cq, 1024, txring.Config{Descriptors: 17})
	if err == nil {
		t.Fatal("expected EINVAL-flavored error for non-multiple descriptor count")
	}
}
