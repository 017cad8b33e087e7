package orchestrator

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/m4r1k/eneru/internal/config"
)

// ContainerStage implements Stage B: stop compose-managed containers,
// then anything else still running, then (Podman only) rootless user
// containers (spec.md §4.4).
type ContainerStage struct {
	cfg    config.ContainersConfig
	dryRun bool
}

// NewContainerStage builds a Stage B runner from configuration.
func NewContainerStage(cfg config.ContainersConfig, dryRun bool) *ContainerStage {
	return &ContainerStage{cfg: cfg, dryRun: dryRun}
}

func (s *ContainerStage) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	runtime := s.resolveRuntime()
	if runtime == "" {
		log.Printf("[orchestrator] stage B: no container runtime available, skipping")
		return
	}
	log.Printf("[orchestrator] stage B: stopping %s containers", runtime)

	for _, cf := range s.cfg.ComposeFiles {
		s.stopCompose(ctx, runtime, cf)
	}

	if s.cfg.ShutdownAllRemaining {
		s.stopAllRunning(ctx, runtime)
	}

	if runtime == "podman" && s.cfg.IncludeUserContainers {
		s.stopRootlessUserContainers(ctx)
	}
}

func (s *ContainerStage) resolveRuntime() string {
	switch s.cfg.Runtime {
	case "docker", "podman":
		if commandExists(s.cfg.Runtime) {
			return s.cfg.Runtime
		}
		return ""
	default: // "auto"
		if commandExists("podman") {
			return "podman"
		}
		if commandExists("docker") {
			return "docker"
		}
		return ""
	}
}

func (s *ContainerStage) stopCompose(ctx context.Context, runtime string, cf config.ComposeFileConfig) {
	timeout := s.cfg.StopTimeoutS
	if cf.StopTimeoutS != nil {
		timeout = *cf.StopTimeoutS
	}
	if s.dryRun {
		log.Printf("[orchestrator] stage B: [DRY-RUN] would stop compose file %s (timeout %ds)", cf.Path, timeout)
		return
	}
	log.Printf("[orchestrator] stage B: stopping compose file %s", cf.Path)
	deadline := time.Duration(timeout+30) * time.Second
	_, _, err := runCommand(ctx, deadline, runtime, "compose", "-f", cf.Path, "down", "--timeout", strconv.Itoa(timeout))
	if err != nil {
		log.Printf("[orchestrator] stage B: stop compose %s: %v", cf.Path, err)
	}
}

func (s *ContainerStage) stopAllRunning(ctx context.Context, runtime string) {
	deadline := 15 * time.Second
	_, out, err := runCommand(ctx, deadline, runtime, "ps", "-q")
	if err != nil {
		log.Printf("[orchestrator] stage B: list %s containers: %v", runtime, err)
		return
	}
	ids := splitNonEmpty(out)
	if len(ids) == 0 {
		log.Printf("[orchestrator] stage B: no running %s containers", runtime)
		return
	}
	if s.dryRun {
		log.Printf("[orchestrator] stage B: [DRY-RUN] would stop %d %s container(s)", len(ids), runtime)
		return
	}
	args := append([]string{"stop", "--time", strconv.Itoa(s.cfg.StopTimeoutS)}, ids...)
	stopDeadline := time.Duration(s.cfg.StopTimeoutS+30) * time.Second
	if _, _, err := runCommand(ctx, stopDeadline, runtime, args...); err != nil {
		log.Printf("[orchestrator] stage B: stop %s containers: %v", runtime, err)
	}
}

func (s *ContainerStage) stopRootlessUserContainers(ctx context.Context) {
	if s.dryRun {
		log.Printf("[orchestrator] stage B: [DRY-RUN] would stop rootless podman containers for all users")
		return
	}
	_, out, err := runCommand(ctx, 10*time.Second, "loginctl", "list-users", "--no-legend")
	if err != nil {
		log.Printf("[orchestrator] stage B: list users for rootless containers: %v", err)
		return
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		uid, username := fields[0], fields[1]
		n, err := strconv.Atoi(uid)
		if err != nil || n < 1000 {
			continue
		}
		s.stopUserPodmanContainers(ctx, username)
	}
}

func (s *ContainerStage) stopUserPodmanContainers(ctx context.Context, username string) {
	_, out, err := runCommand(ctx, 10*time.Second, "sudo", "-u", username, "podman", "ps", "-q")
	if err != nil || strings.TrimSpace(out) == "" {
		return
	}
	ids := splitNonEmpty(out)
	log.Printf("[orchestrator] stage B: stopping %d container(s) for user %s", len(ids), username)
	args := append([]string{"-u", username, "podman", "stop", "--time", strconv.Itoa(s.cfg.StopTimeoutS)}, ids...)
	deadline := time.Duration(s.cfg.StopTimeoutS+30) * time.Second
	if _, _, err := runCommand(ctx, deadline, "sudo", args...); err != nil {
		log.Printf("[orchestrator] stage B: stop containers for %s: %v", username, err)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
