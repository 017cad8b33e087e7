// Package durfmt formats durations the way notification text needs
// them: compact, human-readable, and never fractional (grounded on
// the original's format_seconds helper).
package durfmt

import (
	"fmt"
	"time"
)

// Format renders d as "1h 5m 3s", dropping any leading zero units and
// falling back to "0s" for a non-positive duration.
func Format(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
