package daemon

import (
	"fmt"
	"os"
	"time"

	"github.com/m4r1k/eneru/internal/monitor"
	"github.com/m4r1k/eneru/internal/nut"
)

// writeStateFile atomically persists the current reading and derived
// state to path, written via a temp-file-then-rename so a reader never
// observes a partial write (spec.md §6).
func writeStateFile(path string, r nut.UPSReading, s *monitor.State) error {
	if path == "" {
		return nil
	}
	body := fmt.Sprintf(
		"derived=%s\nstatus=%s\nbattery_percent=%s\nruntime_seconds=%s\nload_percent=%s\ninput_voltage=%s\noutput_voltage=%s\nupdated_at=%s\n",
		s.Derived,
		r.StatusFlags.String(),
		formatFloatPtr(r.BatteryPercent),
		formatIntPtr(r.RuntimeSeconds),
		formatFloatPtr(r.LoadPercent),
		formatFloatPtr(r.InputVoltage),
		formatFloatPtr(r.OutputVoltage),
		time.Now().UTC().Format(time.RFC3339),
	)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state file into place: %w", err)
	}
	return nil
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *f)
}

func formatIntPtr(i *int) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%d", *i)
}

// shutdownScheduledPending reports whether the sentinel file from a
// previous run is still present. It does not log; Run logs a warning
// when it returns true and never blocks startup (spec.md §6, §9).
func shutdownScheduledPending(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
