package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/m4r1k/eneru/internal/config"
)

// vmBackend lists and controls virtual machines. virshBackend is the
// default (spec.md §6 pins virsh as the external interface); the
// libvirt-tagged build additionally offers libvirtBackend as a
// drop-in replacement (grounded on the go-libvirt manager/manager_stub
// pair in the example pack).
type vmBackend interface {
	ListRunning(ctx context.Context) ([]string, error)
	Shutdown(ctx context.Context, name string) error
	Destroy(ctx context.Context, name string) error
}

const vmPollInterval = 2 * time.Second

func newVMBackend(cfg config.VMConfig) vmBackend {
	if cfg.Backend == "libvirt" {
		return newLibvirtBackend(cfg.SocketPath)
	}
	return virshBackend{}
}

// shutdownAllVMs lists running VMs, requests a graceful shutdown for
// each, polls until the population drains or maxWait elapses, then
// force-destroys whatever remains (spec.md §4.4 Stage A).
func shutdownAllVMs(ctx context.Context, b vmBackend, maxWait time.Duration, dryRun bool) error {
	running, err := b.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running vms: %w", err)
	}
	if len(running) == 0 {
		log.Printf("[orchestrator] stage A: no running VMs found")
		return nil
	}

	for _, vm := range running {
		if dryRun {
			log.Printf("[orchestrator] stage A: [DRY-RUN] would shut down VM %s", vm)
			continue
		}
		log.Printf("[orchestrator] stage A: shutting down VM %s", vm)
		if err := b.Shutdown(ctx, vm); err != nil {
			log.Printf("[orchestrator] stage A: shutdown %s: %v", vm, err)
		}
	}
	if dryRun {
		return nil
	}

	deadline := time.Now().Add(maxWait)
	remaining := running
	for time.Now().Before(deadline) {
		stillRunning, err := b.ListRunning(ctx)
		if err != nil {
			break
		}
		remaining = intersect(running, stillRunning)
		if len(remaining) == 0 {
			log.Printf("[orchestrator] stage A: all VMs stopped gracefully")
			return nil
		}
		log.Printf("[orchestrator] stage A: still waiting for %s", strings.Join(remaining, ", "))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(vmPollInterval):
		}
	}

	for _, vm := range remaining {
		log.Printf("[orchestrator] stage A: force destroying VM %s", vm)
		if err := b.Destroy(ctx, vm); err != nil {
			log.Printf("[orchestrator] stage A: destroy %s: %v", vm, err)
		}
	}
	return nil
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// virshBackend shells out to the virsh CLI (spec.md §6).
type virshBackend struct{}

const virshDeadline = 15 * time.Second

func (virshBackend) ListRunning(ctx context.Context) ([]string, error) {
	if !commandExists("virsh") {
		return nil, nil
	}
	_, out, err := runCommand(ctx, virshDeadline, "virsh", "list", "--name", "--state-running")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (virshBackend) Shutdown(ctx context.Context, name string) error {
	_, _, err := runCommand(ctx, virshDeadline, "virsh", "shutdown", name)
	return err
}

func (virshBackend) Destroy(ctx context.Context, name string) error {
	_, _, err := runCommand(ctx, virshDeadline, "virsh", "destroy", name)
	return err
}
