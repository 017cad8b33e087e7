package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeVMBackend struct {
	mu        sync.Mutex
	running   map[string]bool
	destroyed []string
	shutdown  []string
}

func newFakeVMBackend(names ...string) *fakeVMBackend {
	f := &fakeVMBackend{running: map[string]bool{}}
	for _, n := range names {
		f.running[n] = true
	}
	return f
}

func (f *fakeVMBackend) ListRunning(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name, up := range f.running {
		if up {
			out = append(out, name)
		}
	}
	return out, nil
}

func (f *fakeVMBackend) Shutdown(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = append(f.shutdown, name)
	// Simulate the VM actually stopping in response to the graceful request.
	f.running[name] = false
	return nil
}

func (f *fakeVMBackend) Destroy(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, name)
	f.running[name] = false
	return nil
}

func TestShutdownAllVMsNoneRunning(t *testing.T) {
	b := newFakeVMBackend()
	if err := shutdownAllVMs(context.Background(), b, time.Second, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.shutdown) != 0 || len(b.destroyed) != 0 {
		t.Fatalf("expected no shutdown/destroy calls, got %v / %v", b.shutdown, b.destroyed)
	}
}

func TestShutdownAllVMsGracefulStopSkipsDestroy(t *testing.T) {
	b := newFakeVMBackend("vm1", "vm2")
	if err := shutdownAllVMs(context.Background(), b, 5*time.Second, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.shutdown) != 2 {
		t.Fatalf("expected 2 graceful shutdowns, got %d", len(b.shutdown))
	}
	if len(b.destroyed) != 0 {
		t.Fatalf("expected no force-destroys when VMs stop gracefully, got %v", b.destroyed)
	}
}

func TestShutdownAllVMsForceDestroysAfterTimeout(t *testing.T) {
	b := &fakeVMBackend{running: map[string]bool{"stuck": true}}
	b.running["stuck"] = true
	// Override Shutdown via a wrapper that never actually stops the VM.
	stuckBackend := &neverStopsBackend{fakeVMBackend: b}

	if err := shutdownAllVMs(context.Background(), stuckBackend, 100*time.Millisecond, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.destroyed) != 1 || b.destroyed[0] != "stuck" {
		t.Fatalf("expected stuck VM to be force-destroyed, got %v", b.destroyed)
	}
}

// neverStopsBackend answers Shutdown without actually clearing the
// running flag, so shutdownAllVMs's poll loop always finds it still up.
type neverStopsBackend struct {
	*fakeVMBackend
}

func (n *neverStopsBackend) Shutdown(ctx context.Context, name string) error {
	n.mu.Lock()
	n.shutdown = append(n.shutdown, name)
	n.mu.Unlock()
	return nil
}

func TestShutdownAllVMsDryRunTakesNoAction(t *testing.T) {
	b := newFakeVMBackend("vm1")
	if err := shutdownAllVMs(context.Background(), b, time.Second, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.shutdown) != 0 || len(b.destroyed) != 0 {
		t.Fatalf("dry-run must not call Shutdown or Destroy, got %v / %v", b.shutdown, b.destroyed)
	}
}
