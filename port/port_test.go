package port_test

import (
	"testing"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/flow"
	"github.com/momentics/mlx4-core/port"
	"github.com/momentics/mlx4-core/verbssim"
)

func newTestPort(t *testing.T) (*port.Port, *api.Mempool) {
	t.Helper()
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 4096, MaxSGE: 32, MaxInlineData: 256, MaxRSSTblSize: 128})
	cfg := port.DefaultConfig()
	cfg.PortNum = 1
	cfg.MAC = []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	cfg.RxDescriptors = 4
	cfg.TxDescriptors = 128

	p, err := port.New(dev, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool := api.NewMempool("p", 8, 128, 2048)
	if err := p.Configure(pool); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return p, pool
}

func TestConfigureStartStopInstallsAndRemovesMACFlow(t *testing.T) {
	p, _ := newTestPort(t)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second Start (idempotent) failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFlowCreateAndStatsRoundTrip(t *testing.T) {
	p, _ := newTestPort(t)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rule, err := p.FlowCreate(flow.Attr{Ingress: true}, []flow.Item{{Type: flow.ItemETH}},
		[]flow.Action{{Type: flow.ActionQueue, Queue: 0}, {Type: flow.ActionEnd}})
	if err != nil {
		t.Fatalf("FlowCreate: %v", err)
	}
	if rule.Handle == nil {
		t.Fatal("expected the flow to install immediately against a started port")
	}

	snap := p.StatsGet()
	if snap.Opackets != 0 {
		t.Fatalf("expected a freshly configured port to report zero tx packets, got %+v", snap)
	}

	if err := p.FlowDestroy(rule.ID); err != nil {
		t.Fatalf("FlowDestroy: %v", err)
	}
	if err := p.FlowDestroy(rule.ID); err != nil {
		t.Fatalf("second FlowDestroy should be idempotent, got %v", err)
	}
}

func TestMTUSetRehashesRxQueues(t *testing.T) {
	p, _ := newTestPort(t)
	if err := p.MTUSet(9000); err != nil {
		t.Fatalf("MTUSet: %v", err)
	}
}

func TestPinQueueIsNoopWithoutConfiguredCPU(t *testing.T) {
	p, _ := newTestPort(t)
	if err := p.PinRxQueue(0); err != nil {
		t.Fatalf("PinRxQueue with no RxCPUIDs configured should be a no-op, got %v", err)
	}
	if err := p.PinTxQueue(5); err != nil {
		t.Fatalf("PinTxQueue out of range should be a no-op, got %v", err)
	}
}

func TestDebugDumpReportsLinkAndQueueState(t *testing.T) {
	p, _ := newTestPort(t)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.SetLinkUp(); err != nil {
		t.Fatalf("SetLinkUp: %v", err)
	}

	dump := p.DebugDump()
	if up, ok := dump["link.up"].(bool); !ok || !up {
		t.Fatalf("expected link.up=true in debug dump, got %+v", dump)
	}
	if rx, ok := dump["rx.queues"].(int); !ok || rx != 1 {
		t.Fatalf("expected rx.queues=1 in debug dump, got %+v", dump)
	}
	if _, ok := dump["flows.active"]; !ok {
		t.Fatalf("expected flows.active probe in debug dump, got %+v", dump)
	}
}
