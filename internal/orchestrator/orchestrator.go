// Package orchestrator runs the multi-stage shutdown sequence: virtual
// machines, containers, filesystems, remote servers, a final grace
// window, then local shutdown (spec.md §4.4). Every stage is
// independently enableable and best-effort: a per-item failure is
// logged and the stage continues.
package orchestrator

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/m4r1k/eneru/internal/config"
	"github.com/m4r1k/eneru/internal/notify"
)

// Orchestrator owns the shutdown-armed latch and drives stages A-F.
type Orchestrator struct {
	cfg    *config.Config
	notify *notify.Worker

	vms         vmBackend
	containers  *ContainerStage
	filesystems *FilesystemStage
	remote      *RemoteStage
	local       *LocalStage

	armed bool
}

// New builds an Orchestrator wired to the given config and notifier.
func New(cfg *config.Config, worker *notify.Worker) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		notify:      worker,
		vms:         newVMBackend(cfg.VirtualMachines),
		containers:  NewContainerStage(cfg.Containers, cfg.Behavior.DryRun),
		filesystems: NewFilesystemStage(cfg.Filesystems, cfg.Behavior.DryRun),
		remote:      NewRemoteStage(cfg.RemoteServers, cfg.Behavior.DryRun),
		local:       NewLocalStage(cfg.LocalShutdown, cfg.Behavior.DryRun),
	}
}

// Armed reports whether the shutdown sequence has already started in
// this process. Evaluate should stop firing once true (spec.md §4.4).
func (o *Orchestrator) Armed() bool {
	return o.armed
}

// Run executes the full shutdown sequence exactly once. It writes the
// sentinel marker before any side effect so a restarted process can
// detect a shutdown already in flight.
func (o *Orchestrator) Run(ctx context.Context, cause string) {
	if o.armed {
		return
	}
	o.armed = true

	if err := writeSentinel(o.cfg.Paths.ShutdownScheduledFile); err != nil {
		log.Printf("[orchestrator] failed to write shutdown sentinel: %v", err)
	}

	log.Printf("[orchestrator] ========== INITIATING SHUTDOWN SEQUENCE (cause=%s) ==========", cause)
	if o.cfg.Behavior.DryRun {
		log.Printf("[orchestrator] *** DRY-RUN MODE: no actual shutdown will occur ***")
	}
	o.notifyStage("Emergency shutdown sequence starting (cause: " + cause + ")")

	o.runStageA(ctx)
	o.notifyStage("Stage A (virtual machines) complete")

	o.containers.Run(ctx)
	o.notifyStage("Stage B (containers) complete")

	o.filesystems.Run(ctx)
	o.notifyStage("Stage C (filesystems) complete")

	o.remote.Run(ctx)
	o.notifyStage("Stage D (remote servers) complete")

	log.Printf("[orchestrator] Stage E: final grace sleep")
	select {
	case <-ctx.Done():
	case <-time.After(finalGraceDuration):
	}

	o.runStageF()

	if !o.cfg.Behavior.DryRun {
		removeSentinel(o.cfg.Paths.ShutdownScheduledFile)
	}
	log.Printf("[orchestrator] ========== SHUTDOWN SEQUENCE COMPLETE ==========")
}

const finalGraceDuration = 5 * time.Second

func (o *Orchestrator) runStageA(ctx context.Context) {
	if !o.cfg.VirtualMachines.Enabled {
		return
	}
	log.Printf("[orchestrator] Stage A: shutting down virtual machines")
	if err := shutdownAllVMs(ctx, o.vms, time.Duration(o.cfg.VirtualMachines.MaxWaitS)*time.Second, o.cfg.Behavior.DryRun); err != nil {
		log.Printf("[orchestrator] stage A: %v", err)
	}
}

func (o *Orchestrator) runStageF() {
	o.local.Run()
}

func (o *Orchestrator) notifyStage(body string) {
	if o.notify == nil {
		return
	}
	o.notify.Enqueue(notify.Message{Body: body, Severity: notify.SeverityCritical, CreatedAt: time.Now()})
}

func writeSentinel(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}

func removeSentinel(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[orchestrator] failed to remove shutdown sentinel: %v", err)
	}
}

// Preflight checks which external tools and capabilities are present
// and logs warnings for anything missing, without ever failing
// startup (spec.md §9).
func Preflight(cfg *config.Config) {
	check := func(enabled bool, bin, label string) {
		if !enabled {
			return
		}
		if !commandExists(bin) {
			log.Printf("[orchestrator] preflight: %s enabled but %q not found on PATH", label, bin)
		}
	}
	check(cfg.VirtualMachines.Enabled && cfg.VirtualMachines.Backend == "virsh", "virsh", "virtual_machines")
	check(cfg.Containers.Enabled, "docker", "containers (docker)")
	check(cfg.Containers.Enabled, "podman", "containers (podman)")
	check(len(cfg.RemoteServers) > 0, "ssh", "remote_servers")
	check(cfg.Filesystems.SyncEnabled, "sync", "filesystems")
}
