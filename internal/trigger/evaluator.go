package trigger

import (
	"time"

	"github.com/m4r1k/eneru/internal/config"
	"github.com/m4r1k/eneru/internal/monitor"
	"github.com/m4r1k/eneru/internal/nut"
)

// Evaluate applies the rules in strict first-match-wins order: FSD,
// failsafe connection-lost, low battery, critical runtime, depletion
// rate (with grace), extended time (spec.md §4.3). It is a pure
// function of its three arguments; it never mutates state.
func Evaluate(r nut.UPSReading, s *monitor.State, cfg *config.Config) Decision {
	if r.StatusFlags.Has(nut.FlagForcedShutdown) {
		return Decision{Cause: ForcedShutdown}
	}

	if s.ConnectionLost() {
		return Decision{Cause: FailsafeConnectionLost}
	}

	// The remaining rules only apply while actually running on battery;
	// a reading that failed to fetch carries no numeric fields to
	// evaluate against.
	if s.Derived != monitor.OnBattery || !r.OK() {
		return Decision{Cause: NoAction}
	}

	if r.BatteryPercent != nil && *r.BatteryPercent < cfg.Triggers.LowBatteryPercent {
		return Decision{Cause: LowBattery, BatteryPercent: r.BatteryPercent}
	}

	if r.RuntimeSeconds != nil && *r.RuntimeSeconds < cfg.Triggers.CriticalRuntimeS {
		return Decision{Cause: CriticalRuntime, RuntimeSeconds: r.RuntimeSeconds}
	}

	if d, ok := evaluateDepletion(s, cfg); ok {
		return d
	}

	if cfg.Triggers.ExtendedTime.Enabled && s.OnBatterySince != nil {
		elapsed := r.FetchedAt.Sub(*s.OnBatterySince)
		if elapsed > time.Duration(cfg.Triggers.ExtendedTime.ThresholdS)*time.Second {
			return Decision{Cause: ExtendedTime}
		}
	}

	return Decision{Cause: NoAction}
}

// evaluateDepletion estimates %/min drain from the oldest and newest
// samples of the rolling history and fires when that rate is strictly
// above the critical rate and the newest sample lies strictly more than
// depletion.grace_s after on-battery began (spec.md §4.3, §7).
func evaluateDepletion(s *monitor.State, cfg *config.Config) (Decision, bool) {
	d := cfg.Triggers.Depletion
	if len(s.History) < d.MinSamples {
		return Decision{}, false
	}
	if s.OnBatterySince == nil {
		return Decision{}, false
	}

	first := s.History[0]
	last := s.History[len(s.History)-1]
	elapsedMin := last.At.Sub(first.At).Minutes()
	if elapsedMin <= 0 {
		return Decision{}, false
	}

	rate := (first.Percent - last.Percent) / elapsedMin
	if rate <= d.CriticalRatePctPerMin {
		return Decision{}, false
	}

	onBatteryElapsed := last.At.Sub(*s.OnBatterySince)
	if onBatteryElapsed <= time.Duration(d.GraceS)*time.Second {
		return Decision{}, false
	}

	return Decision{Cause: DepletionRate, DepletionRatePM: &rate}, true
}
