package mrcache_test

import (
	"testing"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/mrcache"
	"github.com/momentics/mlx4-core/verbssim"
)

func newCache(t *testing.T, capacity int) (*mrcache.Cache, *verbssim.Device) {
	t.Helper()
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 1024, MaxSGE: 32})
	pd, err := dev.AllocPD()
	if err != nil {
		t.Fatalf("AllocPD: %v", err)
	}
	return mrcache.New(dev, pd, capacity), dev
}

func TestLookupOrRegisterCachesLkey(t *testing.T) {
	c, _ := newCache(t, 8)
	pool := api.NewMempool("p0", 4, 64, 2048)

	lkey1, err := c.LookupOrRegister(pool)
	if err != nil {
		t.Fatalf("LookupOrRegister: %v", err)
	}
	lkey2, err := c.LookupOrRegister(pool)
	if err != nil {
		t.Fatalf("LookupOrRegister (cached): %v", err)
	}
	if lkey1 != lkey2 {
		t.Fatalf("expected cached lkey to match: %d != %d", lkey1, lkey2)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestEvictionIsFIFO(t *testing.T) {
	c, _ := newCache(t, 8)

	pools := make([]*api.Mempool, 9)
	for i := range pools {
		pools[i] = api.NewMempool("p", 2, 64, 2048)
	}

	for i, p := range pools {
		if _, err := c.LookupOrRegister(p); err != nil {
			t.Fatalf("pool %d: %v", i, err)
		}
	}

	if c.Len() != 8 {
		t.Fatalf("expected cache full at 8, got %d", c.Len())
	}
	if _, ok := c.Lookup(pools[0]); ok {
		t.Fatal("pool 0 should have been evicted")
	}
	for i := 1; i < 9; i++ {
		if _, ok := c.Lookup(pools[i]); !ok {
			t.Fatalf("pool %d should still be cached", i)
		}
	}
}

func TestLookupOrRegisterFailurePropagates(t *testing.T) {
	c, dev := newCache(t, 8)
	pool := api.NewMempool("p0", 2, 64, 2048)

	dev.SetRegMRError(api.ErrResourceExhausted)
	if _, err := c.LookupOrRegister(pool); err == nil {
		t.Fatal("expected registration error")
	}
	if c.Len() != 0 {
		t.Fatalf("failed registration must not occupy a slot, got %d", c.Len())
	}
}
