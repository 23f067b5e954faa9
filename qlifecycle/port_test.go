package qlifecycle_test

import (
	"testing"

	"github.com/momentics/mlx4-core/qlifecycle"
)

func TestPortStartStopIsIdempotent(t *testing.T) {
	installs, removes, activates, deactivates := 0, 0, 0, 0
	p := &qlifecycle.Port{
		InstallMACFlow:  func() error { installs++; return nil },
		RemoveMACFlow:   func() error { removes++; return nil },
		ActivateFlows:   func() error { activates++; return nil },
		DeactivateFlows: func() error { deactivates++; return nil },
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if installs != 1 || activates != 1 {
		t.Fatalf("expected start side effects to run once, got installs=%d activates=%d", installs, activates)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if removes != 1 || deactivates != 1 {
		t.Fatalf("expected stop side effects to run once, got removes=%d deactivates=%d", removes, deactivates)
	}
}

func TestPortStartPropagatesMACFlowError(t *testing.T) {
	wantErr := errBoom
	p := &qlifecycle.Port{
		InstallMACFlow: func() error { return wantErr },
	}
	if err := p.Start(); err != wantErr {
		t.Fatalf("expected MAC flow error to propagate, got %v", err)
	}
	if p.Started {
		t.Fatal("port must not be marked started on a failed Start")
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
