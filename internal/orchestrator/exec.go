package orchestrator

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// runCommand runs name with args under a wall-clock deadline, capturing
// combined stdout/stderr. It mirrors the original's run_command helper
// (spec.md §6: every subprocess invocation has a deadline).
func runCommand(ctx context.Context, deadline time.Duration, name string, args ...string) (exitCode int, out string, err error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	runErr := cmd.Run()

	if runErr == nil {
		return 0, buf.String(), nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return 124, buf.String(), ctx.Err()
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), buf.String(), runErr
	}
	return -1, buf.String(), runErr
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
