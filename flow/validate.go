// File: flow/validate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Attribute, pattern, and action validation (§4.5 "Validation rules"),
// ported from the control-flow of
// original_source/drivers/net/mlx4/mlx4_flow.c's priv_flow_validate():
// group/priority/egress/ingress checks first, then a single pass that
// walks the item graph validating mask-subset and item-specific rules,
// then action-list validation requiring exactly one target.

package flow

import (
	"errors"
	"fmt"

	"github.com/momentics/mlx4-core/api"
)

var errNoPrecedingETH = errors.New("flow: vlan item with no preceding eth record")

// Attr mirrors the rte_flow_attr subset this core validates (§4.5).
type Attr struct {
	Group    uint32
	Priority uint32
	Egress   bool
	Ingress  bool
}

// Item is one pattern item: a type plus optional spec/mask/last byte
// payloads. A nil Spec on the first (ETH) item means "match everything"
// and the pattern must contain no other items.
type Item struct {
	Type ItemType
	Spec []byte
	Mask []byte
	Last []byte
}

// ActionType enumerates the supported action kinds (§4.5).
type ActionType int

const (
	ActionVoid ActionType = iota
	ActionDrop
	ActionQueue
	ActionRSS
	ActionEnd
)

// Action is one entry in the action list.
type Action struct {
	Type   ActionType
	Queue  int
	Queues []int
}

// TargetKind discriminates which field of Target is meaningful.
type TargetKind int

const (
	TargetDrop TargetKind = iota
	TargetQueue
	TargetRSS
)

// Target is the resolved single action target (§4.5 "exactly one
// target must be selected").
type Target struct {
	Kind   TargetKind
	Queue  int
	Queues []int // populated for TargetRSS
}

func validateAttr(a Attr) error {
	if a.Group != 0 {
		return fmt.Errorf("%w: flow groups are not supported", api.ErrNotSupported)
	}
	if a.Priority != 0 {
		return fmt.Errorf("%w: nonzero flow priority is not supported", api.ErrNotSupported)
	}
	if a.Egress {
		return fmt.Errorf("%w: egress flows are not supported", api.ErrNotSupported)
	}
	if !a.Ingress {
		return fmt.Errorf("%w: flow must be ingress", api.ErrInvalidArgument)
	}
	return nil
}

// walkPattern validates the item chain against the graph and, when c is
// non-nil, invokes each item's convert callback to emit packed records.
// Passing c == nil runs a size-only pre-pass (§4.5 "Compilation").
func walkPattern(items []Item, c *compiler) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: empty pattern", api.ErrInvalidArgument)
	}
	if items[0].Type != ItemETH {
		return 0, fmt.Errorf("%w: first pattern item must be eth", api.ErrInvalidArgument)
	}
	if items[0].Spec == nil {
		if len(items) != 1 {
			return 0, fmt.Errorf("%w: null eth spec must be the only pattern item", api.ErrInvalidArgument)
		}
	}

	size := 0
	var prev ItemType
	for i, it := range items {
		def, ok := graph[it.Type]
		if !ok {
			return 0, fmt.Errorf("%w: unknown item type", api.ErrNotSupported)
		}
		if i > 0 {
			prevDef := graph[prev]
			if !prevDef.allowed[it.Type] {
				return 0, fmt.Errorf("%w: item %s cannot follow %s", api.ErrInvalidArgument, it.Type, prev)
			}
		}

		mask := it.Mask
		if mask == nil {
			mask = def.defaultMask
		}
		if it.Spec != nil {
			if !isSubset(mask, def.defaultMask) {
				return 0, fmt.Errorf("%w: %s mask exceeds supported fields", api.ErrNotSupported, it.Type)
			}
			if it.Last != nil {
				if string(maskBytes(it.Spec, mask)) == string(maskBytes(it.Last, mask)) {
					return 0, fmt.Errorf("%w: %s spec and last must differ once masked", api.ErrInvalidArgument, it.Type)
				}
			}
			if it.Type == ItemETH && isDstMACMaskSet(mask) && !isAllOnes(mask[:6]) {
				return 0, fmt.Errorf("%w: destination mac mask must be all-ones", api.ErrNotSupported)
			}
		}
		if def.extraValidate != nil {
			if err := def.extraValidate(it.Spec, it.Mask, it.Last); err != nil {
				return 0, err
			}
		}

		size += def.dstSize
		if c != nil && it.Spec != nil {
			val := maskBytes(it.Spec, mask)
			if err := def.convert(c, val, mask); err != nil {
				return 0, err
			}
		}
		prev = it.Type
	}
	return size, nil
}

// isDstMACMaskSet reports whether the destination-MAC field (the first
// 6 bytes of the ETH mask) is non-zero, i.e. the caller asked to match
// on it at all.
func isDstMACMaskSet(mask []byte) bool {
	for i := 0; i < 6 && i < len(mask); i++ {
		if mask[i] != 0 {
			return true
		}
	}
	return false
}

func isAllOnes(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

// resolveTarget implements the action-level rules (§4.5): exactly one
// of DROP/QUEUE/RSS must be selected.
func resolveTarget(actions []Action, rxQueueCount, maxRSSTblSize int, isolated bool) (Target, error) {
	var target Target
	haveTarget := false

	for _, a := range actions {
		switch a.Type {
		case ActionVoid:
			continue
		case ActionEnd:
			if !haveTarget {
				return Target{}, fmt.Errorf("%w: no valid action in flow rule", api.ErrInvalidArgument)
			}
			return target, nil
		case ActionDrop:
			if haveTarget {
				return Target{}, fmt.Errorf("%w: multiple action targets", api.ErrInvalidArgument)
			}
			target = Target{Kind: TargetDrop}
			haveTarget = true
		case ActionQueue:
			if haveTarget {
				return Target{}, fmt.Errorf("%w: multiple action targets", api.ErrInvalidArgument)
			}
			if a.Queue < 0 || a.Queue >= rxQueueCount {
				return Target{}, fmt.Errorf("%w: queue index out of range", api.ErrInvalidArgument)
			}
			target = Target{Kind: TargetQueue, Queue: a.Queue}
			haveTarget = true
		case ActionRSS:
			if haveTarget {
				return Target{}, fmt.Errorf("%w: multiple action targets", api.ErrInvalidArgument)
			}
			if !isolated {
				return Target{}, fmt.Errorf("%w: rss action requires isolated mode", api.ErrNotSupported)
			}
			n := len(a.Queues)
			if n == 0 || n&(n-1) != 0 {
				return Target{}, fmt.Errorf("%w: rss queue count must be a power of two", api.ErrInvalidArgument)
			}
			if n > maxRSSTblSize {
				return Target{}, fmt.Errorf("%w: rss queue count exceeds max_rss_tbl_sz", api.ErrInvalidArgument)
			}
			seen := make(map[int]bool, n)
			for _, q := range a.Queues {
				if q < 0 || q >= rxQueueCount {
					return Target{}, fmt.Errorf("%w: rss queue index out of range", api.ErrInvalidArgument)
				}
				if seen[q] {
					return Target{}, fmt.Errorf("%w: rss queue indices must be distinct", api.ErrInvalidArgument)
				}
				seen[q] = true
			}
			target = Target{Kind: TargetRSS, Queues: append([]int(nil), a.Queues...)}
			haveTarget = true
		default:
			return Target{}, fmt.Errorf("%w: unknown action type", api.ErrNotSupported)
		}
	}
	if !haveTarget {
		return Target{}, fmt.Errorf("%w: no valid action in flow rule", api.ErrInvalidArgument)
	}
	return target, nil
}

// Validate runs the full attribute + pattern + action validation
// without compiling a buffer, for callers that only want a validity
// check (e.g. rte_flow_validate semantics).
func Validate(attr Attr, pattern []Item, actions []Action, rxQueueCount, maxRSSTblSize int, isolated bool) (Target, error) {
	if err := validateAttr(attr); err != nil {
		return Target{}, err
	}
	if _, err := walkPattern(pattern, nil); err != nil {
		return Target{}, err
	}
	return resolveTarget(actions, rxQueueCount, maxRSSTblSize, isolated)
}

// Compile validates and compiles a pattern into a packed flow-spec
// buffer (§4.5 "Compilation"): a size-only pre-pass sizes the buffer,
// then a second pass with conversion enabled fills it in.
func Compile(attr Attr, pattern []Item, actions []Action, portNum uint8, rxQueueCount, maxRSSTblSize int, isolated bool) (api.FlowAttr, Target, error) {
	if err := validateAttr(attr); err != nil {
		return api.FlowAttr{}, Target{}, err
	}
	size, err := walkPattern(pattern, nil)
	if err != nil {
		return api.FlowAttr{}, Target{}, err
	}
	target, err := resolveTarget(actions, rxQueueCount, maxRSSTblSize, isolated)
	if err != nil {
		return api.FlowAttr{}, Target{}, err
	}

	c := newCompiler(headerSize + size)
	c.off = headerSize
	if _, err := walkPattern(pattern, c); err != nil {
		return api.FlowAttr{}, Target{}, err
	}

	return api.FlowAttr{Bytes: c.finish(portNum)}, target, nil
}
