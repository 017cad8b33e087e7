package orchestrator

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/m4r1k/eneru/internal/config"
)

// LocalStage implements Stage F: run the configured shutdown command
// on the local host (spec.md §4.4).
type LocalStage struct {
	cfg    config.LocalShutdownConfig
	dryRun bool
}

// NewLocalStage builds a Stage F runner from configuration.
func NewLocalStage(cfg config.LocalShutdownConfig, dryRun bool) *LocalStage {
	return &LocalStage{cfg: cfg, dryRun: dryRun}
}

func (s *LocalStage) Run() {
	if !s.cfg.Enabled {
		log.Printf("[orchestrator] stage F: local shutdown disabled, leaving host running")
		return
	}

	parts := strings.Fields(s.cfg.Command)
	if s.cfg.Message != "" {
		parts = append(parts, s.cfg.Message)
	}
	if len(parts) == 0 {
		log.Printf("[orchestrator] stage F: local_shutdown.command is empty, skipping")
		return
	}

	if s.dryRun {
		log.Printf("[orchestrator] stage F: [DRY-RUN] would execute: %s", s.cfg.Command)
		return
	}

	log.Printf("[orchestrator] stage F: shutting down local host now")
	if _, _, err := runCommand(context.Background(), 30*time.Second, parts[0], parts[1:]...); err != nil {
		log.Printf("[orchestrator] stage F: local shutdown command failed: %v", err)
	}
}
