// File: flow/compile.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Packed Verbs flow-spec compiler. Grounded on
// core/protocol/frame_codec.go's manual encoding/binary offset-tracking
// style: every field is written at an explicit byte offset with no
// struct-tag reflection and no reliance on Go struct layout, matching
// §9's "annotate each packed record with an explicit repr that disables
// reordering and padding" for a language without repr attributes.
//
// Header layout (little-endian, 14 bytes):
//
//	type        uint32  (reserved, always 0 for this core)
//	size        uint16  total buffer length including this header
//	priority    uint16  min per-item priority across the pattern
//	num_of_specs uint8  count of emitted item records
//	port        uint8   target port number
//	flags       uint32  reserved, always 0
//
// Each item record:
//
//	type  uint32  ItemType
//	size  uint16  record length including this 6-byte header
//	val   []byte  masked spec value, dst_size-6 bytes / 2
//	mask  []byte  mask, dst_size-6 bytes / 2
package flow

import "encoding/binary"

const headerSize = 14

// compiler accumulates one packed flow-spec buffer.
type compiler struct {
	buf        []byte
	off        int
	numSpecs   uint8
	minPriorty int
}

func newCompiler(size int) *compiler {
	return &compiler{buf: make([]byte, size), minPriorty: 1<<31 - 1}
}

func (c *compiler) notePriority(p int) {
	if p < c.minPriorty {
		c.minPriorty = p
	}
}

// writeRecord appends one {type,size}+val+mask record and returns the
// slice it wrote, for callers (e.g. VLAN) that patch fields of an
// already-emitted record rather than writing a new one.
func (c *compiler) writeRecord(t ItemType, val, mask []byte) []byte {
	size := recordHeaderSize + len(val) + len(mask)
	start := c.off
	binary.LittleEndian.PutUint32(c.buf[start:], uint32(t))
	binary.LittleEndian.PutUint16(c.buf[start+4:], uint16(size))
	copy(c.buf[start+recordHeaderSize:], val)
	copy(c.buf[start+recordHeaderSize+len(val):], mask)
	c.off += size
	c.numSpecs++
	return c.buf[start : start+size]
}

// finish writes the header (computed only now that numSpecs/priority are
// known) and returns the completed buffer.
func (c *compiler) finish(port uint8) []byte {
	binary.LittleEndian.PutUint32(c.buf[0:], 0)
	binary.LittleEndian.PutUint16(c.buf[4:], uint16(len(c.buf)))
	if c.minPriorty == 1<<31-1 {
		c.minPriorty = 0
	}
	binary.LittleEndian.PutUint16(c.buf[6:], uint16(c.minPriorty))
	c.buf[8] = c.numSpecs
	c.buf[9] = port
	binary.LittleEndian.PutUint32(c.buf[10:], 0)
	return c.buf
}

func convertETH(c *compiler, spec, mask []byte) error {
	c.notePriority(graph[ItemETH].priority)
	c.writeRecord(ItemETH, spec, mask)
	return nil
}

// convertVLAN never emits its own record (§4.5 "VLAN ... folds into the
// already-emitted ETH spec"): it patches the vlan_tci val/mask fields
// that convertETH left zeroed at the tail of the most recent ETH
// record.
func convertVLAN(c *compiler, spec, mask []byte) error {
	c.notePriority(graph[ItemVLAN].priority)
	if c.off < ethMaskSize*2+recordHeaderSize {
		return errNoPrecedingETH
	}
	ethStart := c.off - (ethMaskSize*2 + recordHeaderSize)
	valOff := ethStart + recordHeaderSize + ethMaskSize - 2
	maskOff := ethStart + recordHeaderSize + 2*ethMaskSize - 2
	copy(c.buf[valOff:valOff+2], spec)
	copy(c.buf[maskOff:maskOff+2], mask)
	return nil
}

func convertIPV4(c *compiler, spec, mask []byte) error {
	c.notePriority(graph[ItemIPV4].priority)
	c.writeRecord(ItemIPV4, spec, mask)
	return nil
}

func convertUDP(c *compiler, spec, mask []byte) error {
	c.notePriority(graph[ItemUDP].priority)
	c.writeRecord(ItemUDP, spec, mask)
	return nil
}

func convertTCP(c *compiler, spec, mask []byte) error {
	c.notePriority(graph[ItemTCP].priority)
	c.writeRecord(ItemTCP, spec, mask)
	return nil
}
