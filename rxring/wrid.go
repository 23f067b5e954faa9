// File: rxring/wrid.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The single-segment work-request ID encoding from §6: lower 32 bits are
// the slot index, upper 16 bits are the headroom offset the SGE address
// was pushed forward by.

package rxring

// encodeWRID packs slot and headroom offset into one WR id.
func encodeWRID(slot int, offset uint16) uint64 {
	return uint64(uint32(slot)) | uint64(offset)<<32
}

// decodeWRID recovers the slot index and headroom offset from a WR id.
func decodeWRID(id uint64) (slot int, offset uint16) {
	return int(uint32(id)), uint16(id >> 32)
}
