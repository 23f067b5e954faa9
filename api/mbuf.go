// File: api/mbuf.go
// Package api defines the external mbuf/mempool data model (§3).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Mempool and Mbuf are owned by the host packet-processing framework; the
// core only consumes them. They are modeled here as concrete Go types
// (rather than opaque handles) so the rest of the module has something
// real to allocate from and register with Verbs during tests and
// standalone operation.

package api

import "unsafe"

// Chunk is one virtually-contiguous slab backing a Mempool. A pool is built
// from one or more chunks; MR registration requires the whole pool to
// reduce to a single contiguous range (§4.1 "Registration prerequisite").
type Chunk struct {
	Addr uintptr
	Len  uintptr
}

// end returns the exclusive end address of the chunk.
func (c Chunk) end() uintptr { return c.Addr + c.Len }

// Mempool is a slab of fixed-size packet buffers. The core requires a pool
// to be virtually contiguous: iterating Chunks in address order, each
// chunk must abut the previous one exactly.
type Mempool struct {
	Name        string
	ElemSize    int // per-mbuf total size including headroom
	Headroom    int
	DataRoom    int // usable data area per mbuf (ElemSize - Headroom)
	Chunks      []Chunk
	free        []*Mbuf
}

// NewMempool allocates a pool of n mbufs from one contiguous backing chunk.
// This is the only constructor the core itself needs: in production the
// mempool is supplied by the host framework, but a single-chunk pool is
// sufficient to exercise every invariant the spec describes.
func NewMempool(name string, n, headroom, dataRoom int) *Mempool {
	elemSize := headroom + dataRoom
	buf := make([]byte, n*elemSize)
	base := uintptr(unsafe.Pointer(&buf[0]))
	p := &Mempool{
		Name:     name,
		ElemSize: elemSize,
		Headroom: headroom,
		DataRoom: dataRoom,
		Chunks:   []Chunk{{Addr: base, Len: uintptr(n * elemSize)}},
	}
	p.free = make([]*Mbuf, 0, n)
	for i := 0; i < n; i++ {
		off := i * elemSize
		m := &Mbuf{
			pool: p,
			raw:  buf[off : off+elemSize],
			buf:  buf[off+headroom : off+elemSize],
		}
		p.free = append(p.free, m)
	}
	return p
}

// IsContiguous walks Chunks in address order and verifies each one abuts
// the next, per §4.1's registration prerequisite.
func (p *Mempool) IsContiguous() bool {
	if len(p.Chunks) == 0 {
		return false
	}
	sorted := append([]Chunk(nil), p.Chunks...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Addr < sorted[j-1].Addr; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Addr != sorted[i-1].end() {
			return false
		}
	}
	return true
}

// Bounds returns the lowest chunk address and the highest chunk
// address+length, the registration range the MR cache computes in
// §4.1 step 4.
func (p *Mempool) Bounds() (start, end uintptr) {
	if len(p.Chunks) == 0 {
		return 0, 0
	}
	start, end = p.Chunks[0].Addr, p.Chunks[0].end()
	for _, c := range p.Chunks[1:] {
		if c.Addr < start {
			start = c.Addr
		}
		if c.end() > end {
			end = c.end()
		}
	}
	return start, end
}

// Alloc removes and returns one free mbuf, or nil when exhausted.
func (p *Mempool) Alloc() *Mbuf {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	m := p.free[n-1]
	p.free = p.free[:n-1]
	m.refcnt = 1
	m.next = nil
	m.dataOff = p.Headroom
	m.dataLen = 0
	m.pktLen = 0
	m.nbSegs = 1
	m.indirectOf = nil
	return m
}

// put returns an mbuf to its home pool's free list.
func (p *Mempool) put(m *Mbuf) {
	p.free = append(p.free, m)
}

// Mbuf is a reference-counted packet buffer (§3). The segment chain is a
// simple singly-linked list via Next; Indirect mbufs borrow their data from
// another mbuf's pool while carrying their own metadata.
type Mbuf struct {
	pool       *Mempool
	raw        []byte // full per-slot allocation (headroom + data room)
	buf        []byte // raw[Headroom:]

	next       *Mbuf
	indirectOf *Mbuf // non-nil when this mbuf is an indirect clone

	dataOff int // offset of data start within raw (0 when headroom is stripped)
	dataLen int // length of this segment's data
	pktLen  int // total length across the whole chain (only meaningful on seg 0)
	nbSegs  int
	PortID  uint16
	refcnt  int32
}

// Pool returns the mbuf's own home pool (its metadata pool, not
// necessarily the data-bearing pool — see HomePool).
func (m *Mbuf) Pool() *Mempool { return m.pool }

// IsIndirect reports whether this mbuf's data is owned by another mbuf.
func (m *Mbuf) IsIndirect() bool { return m.indirectOf != nil }

// HomePool returns the data-bearing pool: the indirect parent's pool when
// the mbuf is indirect, else the mbuf's own pool. This is the helper
// `mbuf_to_pool` from §4.1.
func (m *Mbuf) HomePool() *Mempool {
	if m.indirectOf != nil {
		return m.indirectOf.pool
	}
	return m.pool
}

// Data returns the mbuf's current segment payload.
func (m *Mbuf) Data() []byte {
	return m.raw[m.dataOff : m.dataOff+m.dataLen]
}

// DataPtr returns the address of the current segment's data, as used in
// an SGE's addr field.
func (m *Mbuf) DataPtr() uintptr {
	return uintptr(unsafe.Pointer(&m.raw[m.dataOff]))
}

// BaseAddr returns the address of the start of this mbuf's backing
// allocation (raw[0]), i.e. the address an SGE-minus-headroom-offset
// computation must reproduce (§6 "Work-request ID encoding").
func (m *Mbuf) BaseAddr() uintptr {
	return uintptr(unsafe.Pointer(&m.raw[0]))
}

// Headroom returns the configured headroom of the home pool.
func (m *Mbuf) Headroom() int { return m.pool.Headroom }

// SetData sets this segment's data window (offset within raw and
// length). It does not change the packet length; see SetPktLen.
func (m *Mbuf) SetData(off, length int) {
	m.dataOff = off
	m.dataLen = length
}

// Next returns the following segment in the chain, or nil.
func (m *Mbuf) Next() *Mbuf { return m.next }

// Append chains seg onto the end of m's segment list and updates nb_segs
// and pkt_len on the head segment.
func (m *Mbuf) Append(seg *Mbuf) {
	tail := m
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = seg
	m.nbSegs++
	m.pktLen += seg.dataLen
}

// NbSegs returns the number of segments in the chain (meaningful on seg 0).
func (m *Mbuf) NbSegs() int { return m.nbSegs }

// PktLen returns the total packet length across all segments (meaningful
// on seg 0).
func (m *Mbuf) PktLen() int { return m.pktLen }

// SetPktLen overrides the head segment's cached total length, used once
// all segments of a freshly received packet are known.
func (m *Mbuf) SetPktLen(n int) { m.pktLen = n }

// SetNbSegs overrides the head segment's segment count.
func (m *Mbuf) SetNbSegs(n int) { m.nbSegs = n }

// Capacity returns the full usable data room of this segment's buffer.
func (m *Mbuf) Capacity() int { return len(m.buf) }

// Free releases the entire segment chain back to each segment's own home
// pool, decrementing refcounts and only returning a segment to its pool
// once its refcount reaches zero.
func (m *Mbuf) Free() {
	seg := m
	for seg != nil {
		next := seg.next
		seg.refcnt--
		if seg.refcnt <= 0 {
			seg.next = nil
			seg.pool.put(seg)
		}
		seg = next
	}
}
