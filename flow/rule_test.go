package flow_test

import (
	"bytes"
	"testing"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/flow"
	"github.com/momentics/mlx4-core/verbssim"
)

func newTestTable(t *testing.T, rxQueues int) (*flow.Table, *verbssim.Device, *api.PD, []*api.QP) {
	t.Helper()
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 256, MaxSGE: 4, MaxRSSTblSize: 128})
	pd, err := dev.AllocPD()
	if err != nil {
		t.Fatalf("AllocPD: %v", err)
	}

	qps := make([]*api.QP, rxQueues)
	for i := range qps {
		qp, err := dev.CreateQP(pd, api.QPInitAttr{Type: api.QPTypeRawPacket})
		if err != nil {
			t.Fatalf("CreateQP: %v", err)
		}
		qps[i] = qp
	}

	tbl := flow.NewTable(dev, pd, 1, rxQueues, 128, true)
	tbl.QueueQP = func(idx int) *api.QP { return qps[idx] }
	return tbl, dev, pd, qps
}

func TestRSSParentSharingScenario(t *testing.T) {
	tbl, _, _, _ := newTestTable(t, 4)

	f1, err := tbl.CreateRule(flow.Attr{Ingress: true}, []flow.Item{{Type: flow.ItemETH}},
		[]flow.Action{{Type: flow.ActionRSS, Queues: []int{0, 1}}, {Type: flow.ActionEnd}})
	if err != nil {
		t.Fatalf("F1: %v", err)
	}

	f2, err := tbl.CreateRule(flow.Attr{Ingress: true}, []flow.Item{{Type: flow.ItemETH}},
		[]flow.Action{{Type: flow.ActionRSS, Queues: []int{0, 1}}, {Type: flow.ActionEnd}})
	if err != nil {
		t.Fatalf("F2: %v", err)
	}

	if f1.TargetQP != f2.TargetQP {
		t.Fatal("expected F1 and F2 to share a single rss parent QP")
	}

	_, err = tbl.CreateRule(flow.Attr{Ingress: true}, []flow.Item{{Type: flow.ItemETH}},
		[]flow.Action{{Type: flow.ActionRSS, Queues: []int{0, 2}}, {Type: flow.ActionEnd}})
	if err == nil {
		t.Fatal("expected F3 with overlapping-but-unequal rss queue set to be rejected")
	}
}

func TestDropFlowWithoutStartedPortDefersInstallation(t *testing.T) {
	tbl, dev, _, _ := newTestTable(t, 2)

	rule, err := tbl.CreateRule(flow.Attr{Ingress: true}, []flow.Item{{Type: flow.ItemETH}},
		[]flow.Action{{Type: flow.ActionDrop}, {Type: flow.ActionEnd}})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.Handle != nil {
		t.Fatal("expected no verbs flow handle before port start")
	}

	if err := tbl.ActivateFlows(); err != nil {
		t.Fatalf("ActivateFlows: %v", err)
	}
	if rule.Handle == nil {
		t.Fatal("expected the drop flow to be installed once the port starts")
	}
	_ = dev
}

func TestFlowCompileIsByteIdenticalAcrossRuns(t *testing.T) {
	attr := flow.Attr{Ingress: true}
	pattern := []flow.Item{
		{Type: flow.ItemETH, Spec: make([]byte, 16), Mask: nil},
		{Type: flow.ItemIPV4, Spec: make([]byte, 8), Mask: nil},
	}
	actions := []flow.Action{{Type: flow.ActionQueue, Queue: 0}, {Type: flow.ActionEnd}}

	a, _, err := flow.Compile(attr, pattern, actions, 1, 4, 128, false)
	if err != nil {
		t.Fatalf("first compile: %v", err)
	}
	b, _, err := flow.Compile(attr, pattern, actions, 1, 4, 128, false)
	if err != nil {
		t.Fatalf("second compile: %v", err)
	}
	if !bytes.Equal(a.Bytes, b.Bytes) {
		t.Fatal("expected repeated compilation of the same inputs to be byte-identical")
	}
}

func TestDestroyRuleIsIdempotent(t *testing.T) {
	tbl, _, _, _ := newTestTable(t, 2)
	rule, err := tbl.CreateRule(flow.Attr{Ingress: true}, []flow.Item{{Type: flow.ItemETH}},
		[]flow.Action{{Type: flow.ActionQueue, Queue: 0}, {Type: flow.ActionEnd}})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := tbl.DestroyRule(rule.ID); err != nil {
		t.Fatalf("first DestroyRule: %v", err)
	}
	if err := tbl.DestroyRule(rule.ID); err != nil {
		t.Fatalf("second DestroyRule (already removed) should succeed, got %v", err)
	}
	if err := tbl.DestroyRule(999999); err != nil {
		t.Fatalf("DestroyRule on unknown id should succeed, got %v", err)
	}
}
