package flow_test

import (
	"testing"

	"github.com/momentics/mlx4-core/flow"
)

func ethItem(spec, mask []byte) flow.Item {
	return flow.Item{Type: flow.ItemETH, Spec: spec, Mask: mask}
}

func fullETHSpec() []byte {
	return make([]byte, 16)
}

func TestVLANTCIMaskRejectsInvalidValue(t *testing.T) {
	pattern := []flow.Item{
		ethItem(fullETHSpec(), nil),
		{Type: flow.ItemVLAN, Spec: []byte{0x00, 0x01}, Mask: []byte{0x0F, 0xF0}},
	}
	_, err := flow.Validate(flow.Attr{Ingress: true}, pattern, []flow.Action{{Type: flow.ActionDrop}}, 4, 128, false)
	if err == nil {
		t.Fatal("expected vlan tci mask 0x0FF0 to be rejected")
	}
}

func TestVLANTCIMaskAcceptsZeroAndFull(t *testing.T) {
	for _, mask := range [][]byte{{0x00, 0x00}, {0x0F, 0xFF}} {
		pattern := []flow.Item{
			ethItem(fullETHSpec(), nil),
			{Type: flow.ItemVLAN, Spec: []byte{0x00, 0x01}, Mask: mask},
		}
		if _, err := flow.Validate(flow.Attr{Ingress: true}, pattern, []flow.Action{{Type: flow.ActionDrop}}, 4, 128, false); err != nil {
			t.Fatalf("expected vlan tci mask %x to be accepted, got %v", mask, err)
		}
	}
}

func TestDestinationMACMaskMustBeAllOnes(t *testing.T) {
	mask := make([]byte, 16)
	for i := range mask {
		mask[i] = 0xFF
	}
	mask[0] = 0xFE // partial dst mac mask
	pattern := []flow.Item{ethItem(fullETHSpec(), mask)}
	_, err := flow.Validate(flow.Attr{Ingress: true}, pattern, []flow.Action{{Type: flow.ActionDrop}}, 4, 128, false)
	if err == nil {
		t.Fatal("expected partial destination mac mask to be rejected")
	}
}

func TestAttributeValidationRejectsGroupPriorityEgress(t *testing.T) {
	pattern := []flow.Item{ethItem(nil, nil)}
	actions := []flow.Action{{Type: flow.ActionDrop}}

	cases := []flow.Attr{
		{Group: 1, Ingress: true},
		{Priority: 1, Ingress: true},
		{Egress: true, Ingress: true},
		{Ingress: false},
	}
	for _, attr := range cases {
		if _, err := flow.Validate(attr, pattern, actions, 4, 128, false); err == nil {
			t.Fatalf("expected attr %+v to be rejected", attr)
		}
	}
}

func TestNullETHSpecMustBeOnlyItem(t *testing.T) {
	pattern := []flow.Item{
		ethItem(nil, nil),
		{Type: flow.ItemIPV4, Spec: make([]byte, 8)},
	}
	if _, err := flow.Validate(flow.Attr{Ingress: true}, pattern, []flow.Action{{Type: flow.ActionDrop}}, 4, 128, false); err == nil {
		t.Fatal("expected null eth spec followed by more items to be rejected")
	}
}

func TestActionListRequiresExactlyOneTarget(t *testing.T) {
	pattern := []flow.Item{ethItem(nil, nil)}
	if _, err := flow.Validate(flow.Attr{Ingress: true}, pattern, []flow.Action{{Type: flow.ActionVoid}}, 4, 128, false); err == nil {
		t.Fatal("expected an action list with no target to be rejected")
	}
	if _, err := flow.Validate(flow.Attr{Ingress: true}, pattern,
		[]flow.Action{{Type: flow.ActionDrop}, {Type: flow.ActionQueue, Queue: 0}}, 4, 128, false); err == nil {
		t.Fatal("expected an action list with two targets to be rejected")
	}
}

func TestRSSActionValidation(t *testing.T) {
	pattern := []flow.Item{ethItem(nil, nil)}

	// Not isolated -> rejected.
	if _, err := flow.Validate(flow.Attr{Ingress: true}, pattern,
		[]flow.Action{{Type: flow.ActionRSS, Queues: []int{0, 1}}}, 4, 128, false); err == nil {
		t.Fatal("expected rss action without isolated mode to be rejected")
	}

	// Non power-of-two queue count -> rejected.
	if _, err := flow.Validate(flow.Attr{Ingress: true}, pattern,
		[]flow.Action{{Type: flow.ActionRSS, Queues: []int{0, 1, 2}}}, 4, 128, true); err == nil {
		t.Fatal("expected non power-of-two rss queue count to be rejected")
	}

	// Duplicate index -> rejected.
	if _, err := flow.Validate(flow.Attr{Ingress: true}, pattern,
		[]flow.Action{{Type: flow.ActionRSS, Queues: []int{0, 0}}}, 4, 128, true); err == nil {
		t.Fatal("expected duplicate rss queue indices to be rejected")
	}

	target, err := flow.Validate(flow.Attr{Ingress: true}, pattern,
		[]flow.Action{{Type: flow.ActionRSS, Queues: []int{0, 1}}}, 4, 128, true)
	if err != nil {
		t.Fatalf("expected a valid rss action to pass, got %v", err)
	}
	if target.Kind != flow.TargetRSS || len(target.Queues) != 2 {
		t.Fatalf("unexpected target: %+v", target)
	}
}
