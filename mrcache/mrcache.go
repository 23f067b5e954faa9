// File: mrcache/mrcache.go
// Package mrcache implements the per-Tx-queue mempool-to-memory-region
// cache (C1, spec §4.1).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Modeled on pool/bufferpool.go's NUMA-segmented pool manager: a small,
// linearly-scanned table keyed by an external object (there a NUMA node,
// here a *api.Mempool), lazily populated on first use. Unlike the
// teacher's manager this table has a hard capacity and evicts FIFO rather
// than growing a map, because the spec requires a fixed-size, cache-line
// friendly array walked on every send.

package mrcache

import (
	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/hugepage"
	"github.com/momentics/mlx4-core/mlxconst"
)

// DefaultCapacity is the implementation constant N from §3 ("typically 8").
const DefaultCapacity = mlxconst.DefaultMRCacheCapacity

// entry is one MR-cache slot: `{ mempool_ptr, mr_handle, lkey }`.
type entry struct {
	pool *api.Mempool
	mr   *api.MR
}

// Cache is the per-Tx-queue MR cache (C1). It is not safe for concurrent
// use: each Tx queue is pinned to one worker thread (§5) and the cache is
// only ever touched from that thread's burst_send/complete path.
type Cache struct {
	dev      api.Device
	pd       *api.PD
	entries  []entry // occupied prefix, len <= cap
	cap      int
}

// New creates an MR cache of the given capacity (0 means DefaultCapacity).
func New(dev api.Device, pd *api.PD, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{dev: dev, pd: pd, entries: make([]entry, 0, capacity), cap: capacity}
}

// Lookup returns the lkey registered for pool, if any.
func (c *Cache) Lookup(pool *api.Mempool) (uint32, bool) {
	for i := range c.entries {
		if c.entries[i].pool == pool {
			return c.entries[i].mr.Lkey, true
		}
	}
	return 0, false
}

// LookupOrRegister implements `lookup_or_register(pool)` (§4.1).
//
// The registration prerequisite (pool must be virtually contiguous) is
// NOT checked here. txring.Setup takes no mempool and does not check it
// either, so a non-contiguous pool reaching the Tx path is registered
// over its Bounds() range as-is; only rxring.Setup rejects
// non-contiguous pools.
func (c *Cache) LookupOrRegister(pool *api.Mempool) (uint32, error) {
	for i := range c.entries {
		if c.entries[i].pool == pool {
			return c.entries[i].mr.Lkey, nil
		}
	}

	if len(c.entries) == c.cap {
		c.evictOldest()
	}

	start, end := pool.Bounds()
	start, end = hugepage.RoundOutward(start, end)

	mr, err := c.dev.RegMR(c.pd, start, end-start, api.AccessLocalWrite)
	if err != nil {
		return 0, err
	}

	c.entries = append(c.entries, entry{pool: pool, mr: mr})
	return mr.Lkey, nil
}

// evictOldest deregisters slot 0 and shifts the remaining entries down,
// the FIFO eviction scheme described in §4.1.
func (c *Cache) evictOldest() {
	victim := c.entries[0]
	_ = c.dev.DeregMR(victim.mr)
	copy(c.entries, c.entries[1:])
	c.entries = c.entries[:len(c.entries)-1]
}

// Len reports the number of occupied entries, for tests and invariant
// checks (§8: "either the first i slots are occupied ... or all N are").
func (c *Cache) Len() int { return len(c.entries) }

// Cap reports the cache's fixed capacity N.
func (c *Cache) Cap() int { return c.cap }

// Close deregisters every remaining entry, used on Tx queue teardown.
func (c *Cache) Close() error {
	for len(c.entries) > 0 {
		c.evictOldest()
	}
	return nil
}

// MbufPool returns the data-bearing pool for mbuf: the helper
// `mbuf_to_pool` from §4.1.
func MbufPool(mbuf *api.Mbuf) *api.Mempool {
	return mbuf.HomePool()
}
