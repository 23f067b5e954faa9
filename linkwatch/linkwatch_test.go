package linkwatch_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/mlx4-core/linkwatch"
)

func TestNotifyInconsistentFiresOnceAfterDelay(t *testing.T) {
	var fires atomic.Int32
	done := make(chan struct{})
	w := linkwatch.New(func() {
		fires.Add(1)
		close(done)
	})

	w.NotifyInconsistent()
	w.NotifyInconsistent() // second call before the delay must not schedule a second timer

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced recheck")
	}

	if got := fires.Load(); got != 1 {
		t.Fatalf("expected exactly one recheck, got %d", got)
	}
}

func TestCancelPreventsPendingRecheck(t *testing.T) {
	var fires atomic.Int32
	w := linkwatch.New(func() { fires.Add(1) })

	w.NotifyInconsistent()
	w.Cancel()

	time.Sleep(150 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Fatalf("expected cancellation to suppress the recheck, got %d fires", got)
	}
}
