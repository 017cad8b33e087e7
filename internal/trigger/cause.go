// Package trigger decides, from a single reading and the tracker's
// current state, whether a shutdown should be armed right now
// (spec.md §4.3).
package trigger

// Cause names which rule fired. NoAction means none did.
type Cause string

const (
	NoAction               Cause = "NO_ACTION"
	ForcedShutdown         Cause = "FSD"
	FailsafeConnectionLost Cause = "FAILSAFE_CONNECTION_LOST"
	LowBattery             Cause = "LOW_BATTERY"
	CriticalRuntime        Cause = "CRITICAL_RUNTIME"
	DepletionRate          Cause = "DEPLETION_RATE"
	ExtendedTime           Cause = "EXTENDED_TIME"
)

// Decision is the evaluator's verdict, carrying whichever numeric
// values triggered it for logging and notification bodies.
type Decision struct {
	Cause Cause

	BatteryPercent  *float64
	RuntimeSeconds  *int
	OnBatteryFor    string // human-readable, filled by the caller if wanted
	DepletionRatePM *float64
}

// Fired reports whether this decision should arm a shutdown.
func (d Decision) Fired() bool {
	return d.Cause != NoAction
}
