package qlifecycle_test

import (
	"testing"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/qlifecycle"
	"github.com/momentics/mlx4-core/verbssim"
)

func TestCreateTxQueueReachesRTS(t *testing.T) {
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 4096, MaxSGE: 32, MaxInlineData: 256})
	pd, err := dev.AllocPD()
	if err != nil {
		t.Fatalf("AllocPD: %v", err)
	}

	q, err := qlifecycle.CreateTxQueue(dev, pd, qlifecycle.TxQueueConfig{
		CQSize:      256,
		PortNum:     1,
		MaxQPWR:     4096,
		Descriptors: 128 * 4,
		MaxInline:   64,
	})
	if err != nil {
		t.Fatalf("CreateTxQueue: %v", err)
	}
	if q.QP.State != api.QPRTS {
		t.Fatalf("expected QP in RTS, got %v", q.QP.State)
	}
	if q.Tx == nil {
		t.Fatal("expected a Tx ring to be attached")
	}
	if q.RD == nil {
		t.Fatal("expected a resource domain to be allocated as creation step 1")
	}

	if err := q.Destroy(dev); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestCreateRxQueueReachesRTR(t *testing.T) {
	dev := verbssim.New(api.DeviceAttr{MaxQPWR: 4096, MaxSGE: 32})
	pd, err := dev.AllocPD()
	if err != nil {
		t.Fatalf("AllocPD: %v", err)
	}
	pool := api.NewMempool("p", 8, 128, 2048)

	q, err := qlifecycle.CreateRxQueue(dev, pd, pool, qlifecycle.RxQueueConfig{
		CQSize:      64,
		PortNum:     1,
		Descriptors: 4,
		MaxRxPktLen: 1500,
	})
	if err != nil {
		t.Fatalf("CreateRxQueue: %v", err)
	}
	if q.QP.State != api.QPRTR {
		t.Fatalf("expected QP in RTR (Rx stops here), got %v", q.QP.State)
	}
	if q.Rx == nil {
		t.Fatal("expected an Rx ring to be attached")
	}
	if q.RD == nil {
		t.Fatal("expected a resource domain to be allocated as creation step 1")
	}

	if err := q.Destroy(dev); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestDestroyToleratesPartialQueue(t *testing.T) {
	q := &qlifecycle.Queue{}
	dev := verbssim.New(api.DeviceAttr{})
	if err := q.Destroy(dev); err != nil {
		t.Fatalf("expected partial/empty queue destroy to succeed, got %v", err)
	}
}
