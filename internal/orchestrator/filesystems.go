package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/m4r1k/eneru/internal/config"
)

// FilesystemStage implements Stage C: sync, a brief settle sleep, then
// per-mount unmount with flags and a deadline (spec.md §4.4).
type FilesystemStage struct {
	cfg    config.FilesystemsConfig
	dryRun bool
}

// NewFilesystemStage builds a Stage C runner from configuration.
func NewFilesystemStage(cfg config.FilesystemsConfig, dryRun bool) *FilesystemStage {
	return &FilesystemStage{cfg: cfg, dryRun: dryRun}
}

func (s *FilesystemStage) Run(ctx context.Context) {
	if s.cfg.SyncEnabled {
		s.sync(ctx)
	}
	for _, mount := range s.cfg.Unmount.Mounts {
		s.unmount(ctx, mount)
	}
}

func (s *FilesystemStage) sync(ctx context.Context) {
	if s.dryRun {
		log.Printf("[orchestrator] stage C: [DRY-RUN] would sync filesystems")
		return
	}
	log.Printf("[orchestrator] stage C: syncing filesystems")
	syncFilesystems()

	sleep := s.cfg.PostSyncSleepS
	if sleep <= 0 {
		sleep = config.DefaultPostSyncSleepS
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(sleep) * time.Second):
	}
}

func (s *FilesystemStage) unmount(ctx context.Context, mount config.MountConfig) {
	deadline := time.Duration(s.cfg.Unmount.TimeoutS) * time.Second
	if deadline <= 0 {
		deadline = time.Duration(config.DefaultUnmountTimeoutS) * time.Second
	}

	if s.dryRun {
		log.Printf("[orchestrator] stage C: [DRY-RUN] would unmount %s (flags %q)", mount.Path, mount.Flags)
		return
	}

	log.Printf("[orchestrator] stage C: unmounting %s", mount.Path)
	args := []string{}
	if mount.Flags != "" {
		args = append(args, mount.Flags)
	}
	args = append(args, mount.Path)

	exitCode, _, err := runCommand(ctx, deadline, "umount", args...)
	switch {
	case err == nil:
		log.Printf("[orchestrator] stage C: %s unmounted successfully", mount.Path)
	case exitCode == 124:
		log.Printf("[orchestrator] stage C: %s unmount timed out, proceeding anyway", mount.Path)
	default:
		if _, _, mErr := runCommand(ctx, 5*time.Second, "mountpoint", "-q", mount.Path); mErr != nil {
			log.Printf("[orchestrator] stage C: %s was likely not mounted", mount.Path)
		} else {
			log.Printf("[orchestrator] stage C: failed to unmount %s (%v), proceeding anyway", mount.Path, err)
		}
	}
}

// syncFilesystems shells out to sync(1), the same way the original did;
// the standard library only exposes per-file Sync, not a bare sync(2).
func syncFilesystems() {
	if !commandExists("sync") {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, err := runCommand(ctx, 10*time.Second, "sync"); err != nil {
		log.Printf("[orchestrator] stage C: sync: %v", err)
	}
}
