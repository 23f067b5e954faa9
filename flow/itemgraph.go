// File: flow/itemgraph.go
// Package flow implements the flow-steering rule compiler and flow
// table (C5, spec §4.5).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The layered item graph and per-item byte-exact record layout. Grounded
// on original_source/drivers/net/mlx4/mlx4_flow.c's mlx4_flow_items
// table (validate/convert/dst_sz per item type) and on
// core/protocol/frame_codec.go's manual binary.LittleEndian field-by-
// field packing style — no struct-literal encoding is used anywhere in
// this package, matching the spec's "annotate each packed record with
// an explicit repr that disables reordering and padding" (§9): a
// hand-written byte writer is this core's equivalent of that repr.

package flow

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
)

// ItemType identifies one pattern item type.
type ItemType int

const (
	ItemETH ItemType = iota
	ItemVLAN
	ItemIPV4
	ItemUDP
	ItemTCP
)

func (t ItemType) String() string {
	switch t {
	case ItemETH:
		return "eth"
	case ItemVLAN:
		return "vlan"
	case ItemIPV4:
		return "ipv4"
	case ItemUDP:
		return "udp"
	case ItemTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// itemDef is one item graph node: the record layout, the supported
// successor set, and the validate/convert callbacks (§4.5 "Item
// graph").
type itemDef struct {
	allowed       map[ItemType]bool
	maskSize      int    // byte width of the item's own val/mask fields
	defaultMask   []byte // used when the caller supplies none
	headerSize    int    // {type, size} header bytes for this record
	dstSize       int    // total bytes this item contributes to the buffer
	priority      int    // per-item priority (lower value == more specific)
	extraValidate func(spec, mask, last []byte) error
	convert       func(c *compiler, spec, mask []byte) error
}

// recordHeaderSize is {type uint32, size uint16}, written manually by
// every convert callback that emits a new record.
const recordHeaderSize = 6

var graph map[ItemType]*itemDef

func init() {
	graph = map[ItemType]*itemDef{
		ItemETH: {
			allowed:     set(ItemVLAN, ItemIPV4),
			maskSize:    ethMaskSize,
			defaultMask: ethDefaultMask(),
			headerSize:  recordHeaderSize,
			dstSize:     recordHeaderSize + 2*ethMaskSize,
			priority:    2,
			convert:     convertETH,
		},
		ItemVLAN: {
			allowed:       set(ItemIPV4),
			maskSize:      vlanMaskSize,
			defaultMask:   vlanDefaultMask(),
			headerSize:    0,
			dstSize:       0, // folds into the already-emitted ETH record
			priority:      2,
			extraValidate: validateVLANTCI,
			convert:       convertVLAN,
		},
		ItemIPV4: {
			allowed:     set(ItemUDP, ItemTCP),
			maskSize:    ipv4MaskSize,
			defaultMask: ipv4DefaultMask(),
			headerSize:  recordHeaderSize,
			dstSize:     recordHeaderSize + 2*ipv4MaskSize,
			priority:    1,
			convert:     convertIPV4,
		},
		ItemUDP: {
			allowed:     nil,
			maskSize:    portMaskSize,
			defaultMask: portDefaultMask(),
			headerSize:  recordHeaderSize,
			dstSize:     recordHeaderSize + 2*portMaskSize,
			priority:    0,
			convert:     convertUDP,
		},
		ItemTCP: {
			allowed:     nil,
			maskSize:    portMaskSize,
			defaultMask: portDefaultMask(),
			headerSize:  recordHeaderSize,
			dstSize:     recordHeaderSize + 2*portMaskSize,
			priority:    0,
			convert:     convertTCP,
		},
	}
}

func set(types ...ItemType) map[ItemType]bool {
	m := make(map[ItemType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func allOnes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

const (
	ethMaskSize  = 16 // dst_mac(6) + src_mac(6) + ether_type(2) + vlan_tci(2)
	vlanMaskSize = 2  // tci, folded into the eth record's vlan_tci field
	ipv4MaskSize = 8  // src_ip(4) + dst_ip(4)
	portMaskSize = 4  // src_port(2) + dst_port(2)
)

func ethDefaultMask() []byte  { return allOnes(ethMaskSize) }
func vlanDefaultMask() []byte { return []byte{0x0F, 0xFF} }
func ipv4DefaultMask() []byte { return allOnes(ipv4MaskSize) }
func portDefaultMask() []byte { return allOnes(portMaskSize) }

// isSubset reports whether every bit set in sub is also set in of.
func isSubset(sub, of []byte) bool {
	if len(sub) != len(of) {
		return false
	}
	for i := range sub {
		if sub[i]&^of[i] != 0 {
			return false
		}
	}
	return true
}

func maskBytes(b []byte, mask []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] & mask[i]
	}
	return out
}

// validateVLANTCI enforces §4.5's item-specific rule: "the VLAN TCI mask
// must be either zero or exactly 0x0FFF."
func validateVLANTCI(spec, mask, last []byte) error {
	if mask == nil {
		return nil
	}
	var zero [2]byte
	if string(mask) == string(zero[:]) {
		return nil
	}
	if mask[0] == 0x0F && mask[1] == 0xFF {
		return nil
	}
	return fmt.Errorf("%w: vlan tci mask must be 0 or 0x0fff", api.ErrNotSupported)
}
