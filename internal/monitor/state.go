// Package monitor holds the power-state tracker: it turns a stream of
// nut.UPSReading values into a derived MonitorState plus the edge
// events that cross a state boundary (spec.md §2, §4.2).
package monitor

import (
	"time"

	"github.com/m4r1k/eneru/internal/nut"
)

// Derived is one of the four states a MonitorState can occupy.
type Derived string

const (
	Unknown       Derived = "UNKNOWN"
	Online        Derived = "ONLINE"
	OnBattery     Derived = "ON_BATTERY"
	ShutdownArmed Derived = "SHUTDOWN_ARMED"
)

// Sample is one (timestamp, battery_percent) point in the rolling
// depletion history.
type Sample struct {
	At      time.Time
	Percent float64
}

// QualityLatches tracks whether each independent quality condition is
// currently active, so State.Apply can emit an event on entry and one
// on exit without spamming on every tick (spec.md §4.2).
type QualityLatches struct {
	Brownout bool
	Surge    bool
	AVRBoost bool
	AVRTrim  bool
	Bypass   bool
	Overload bool
}

// Thresholds carries the configuration State needs to classify
// readings; it is resolved once at startup from config.Config.
type Thresholds struct {
	MaxStaleTolerance int
	DepletionWindow   time.Duration
	BrownoutRatio     float64
	SurgeRatio        float64
	NominalOverride   *float64
}

// State is the StateTracker's mutable record (spec.md §3 MonitorState).
//
// State is owned exclusively by the main loop goroutine; Evaluate
// reads a consistent snapshot of it (spec.md §5).
type State struct {
	Derived         Derived
	OnBatterySince  *time.Time
	ConsecutiveStale int
	History         []Sample
	LastStatusFlags nut.StatusFlagSet
	ShutdownArmedLatch bool

	Quality QualityLatches
	// LastVoltageRegime is informational only, derived from Quality for
	// logging (spec.md §3 notes it logs regime changes, not repeats).
	LastVoltageRegime string

	thresholds   Thresholds
	lastOK       *nut.UPSReading
	connectionLost bool
}

// New builds a fresh State in the UNKNOWN derived state.
func New(t Thresholds) *State {
	return &State{
		Derived:           Unknown,
		LastVoltageRegime: "NORMAL",
		thresholds:        t,
	}
}

// Arm latches ShutdownArmed. Once true it never clears in-process
// (spec.md §3).
func (s *State) Arm() {
	s.ShutdownArmedLatch = true
	s.Derived = ShutdownArmed
}

// Apply advances the state machine for one reading and returns the
// edge events it crossed, in the order they occurred (spec.md §4.2).
func (s *State) Apply(r nut.UPSReading) []Event {
	var events []Event

	stale := s.isStaleReading(r)
	if stale {
		s.ConsecutiveStale++
	} else {
		s.ConsecutiveStale = 0
	}

	if s.ConsecutiveStale > s.thresholds.MaxStaleTolerance && !s.connectionLost {
		s.connectionLost = true
		events = append(events, Event{Kind: EventConnectionLost, At: r.FetchedAt})
	} else if s.ConsecutiveStale <= s.thresholds.MaxStaleTolerance && s.connectionLost {
		s.connectionLost = false
		events = append(events, Event{Kind: EventConnectionRestored, At: r.FetchedAt})
	}

	if r.OK() {
		events = append(events, s.applyDerivedTransition(r)...)
		events = append(events, s.applyQualityEvents(r)...)
		s.maybeAppendHistory(r)
		cp := r
		s.lastOK = &cp
	}

	s.LastStatusFlags = r.StatusFlags
	return events
}

// ConnectionLost reports whether CONNECTION_LOST is currently latched.
func (s *State) ConnectionLost() bool {
	return s.connectionLost
}

func (s *State) isStaleReading(r nut.UPSReading) bool {
	if !r.OK() {
		return true
	}
	if r.BatteryPercent == nil && r.RuntimeSeconds == nil && r.LoadPercent == nil && r.InputVoltage == nil {
		// A status-only reading has nothing to compare, so it counts as fresh.
		return false
	}
	if s.lastOK == nil {
		return false
	}
	return identicalNumeric(r, *s.lastOK)
}

func identicalNumeric(a, b nut.UPSReading) bool {
	return floatPtrEqual(a.BatteryPercent, b.BatteryPercent) &&
		intPtrEqual(a.RuntimeSeconds, b.RuntimeSeconds) &&
		floatPtrEqual(a.LoadPercent, b.LoadPercent) &&
		floatPtrEqual(a.InputVoltage, b.InputVoltage)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *State) applyDerivedTransition(r nut.UPSReading) []Event {
	var events []Event
	online := r.StatusFlags.Has(nut.FlagOnline) && !r.StatusFlags.Has(nut.FlagOnBattery)
	onBattery := r.StatusFlags.Has(nut.FlagOnBattery)

	switch s.Derived {
	case Unknown:
		if online {
			s.Derived = Online
		} else {
			s.Derived = OnBattery
			t := r.FetchedAt
			s.OnBatterySince = &t
		}
	case Online:
		if onBattery {
			s.Derived = OnBattery
			t := r.FetchedAt
			s.OnBatterySince = &t
			s.History = nil
			events = append(events, Event{
				Kind: EventOnBattery, At: r.FetchedAt,
				BatteryPercent: r.BatteryPercent, RuntimeSeconds: r.RuntimeSeconds, LoadPercent: r.LoadPercent,
			})
		}
	case OnBattery:
		if online {
			var dur time.Duration
			if s.OnBatterySince != nil {
				dur = r.FetchedAt.Sub(*s.OnBatterySince)
			}
			s.OnBatterySince = nil
			s.History = nil
			events = append(events, Event{Kind: EventPowerRestored, At: r.FetchedAt, OutageDuration: dur})
			s.Derived = Online
		}
	case ShutdownArmed:
		// No further derived transitions (spec.md §4.2).
	}
	return events
}

func (s *State) maybeAppendHistory(r nut.UPSReading) {
	if s.Derived != OnBattery || r.BatteryPercent == nil {
		return
	}
	s.History = append(s.History, Sample{At: r.FetchedAt, Percent: *r.BatteryPercent})
	s.evictOldSamples(r.FetchedAt)
}

func (s *State) evictOldSamples(now time.Time) {
	cutoff := now.Add(-s.thresholds.DepletionWindow)
	i := 0
	for i < len(s.History) && s.History[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.History = s.History[i:]
	}
}

func (s *State) applyQualityEvents(r nut.UPSReading) []Event {
	var events []Event

	nominal := s.thresholds.NominalOverride
	if nominal == nil {
		nominal = r.NominalVoltage
	}

	if nominal != nil && r.InputVoltage != nil {
		brownout := *r.InputVoltage < s.thresholds.BrownoutRatio*(*nominal)
		surge := *r.InputVoltage > s.thresholds.SurgeRatio*(*nominal)

		if brownout && !s.Quality.Brownout {
			s.Quality.Brownout = true
			s.LastVoltageRegime = "BROWNOUT"
			events = append(events, Event{Kind: EventBrownout, At: r.FetchedAt})
		} else if !brownout && s.Quality.Brownout {
			s.Quality.Brownout = false
			s.LastVoltageRegime = "NORMAL"
			events = append(events, Event{Kind: EventBrownoutCleared, At: r.FetchedAt})
		}

		if surge && !s.Quality.Surge {
			s.Quality.Surge = true
			s.LastVoltageRegime = "SURGE"
			events = append(events, Event{Kind: EventSurge, At: r.FetchedAt})
		} else if !surge && s.Quality.Surge {
			s.Quality.Surge = false
			s.LastVoltageRegime = "NORMAL"
			events = append(events, Event{Kind: EventSurgeCleared, At: r.FetchedAt})
		}
	}

	boost := r.StatusFlags.Has(nut.FlagAVRBoost)
	if boost && !s.Quality.AVRBoost {
		s.Quality.AVRBoost = true
		events = append(events, Event{Kind: EventAVRBoost, At: r.FetchedAt})
	} else if !boost && s.Quality.AVRBoost {
		s.Quality.AVRBoost = false
		events = append(events, Event{Kind: EventAVRBoostCleared, At: r.FetchedAt})
	}

	trim := r.StatusFlags.Has(nut.FlagAVRTrim)
	if trim && !s.Quality.AVRTrim {
		s.Quality.AVRTrim = true
		events = append(events, Event{Kind: EventAVRTrim, At: r.FetchedAt})
	} else if !trim && s.Quality.AVRTrim {
		s.Quality.AVRTrim = false
		events = append(events, Event{Kind: EventAVRTrimCleared, At: r.FetchedAt})
	}

	bypass := r.StatusFlags.Has(nut.FlagBypass)
	if bypass && !s.Quality.Bypass {
		s.Quality.Bypass = true
		events = append(events, Event{Kind: EventBypass, At: r.FetchedAt})
	} else if !bypass && s.Quality.Bypass {
		s.Quality.Bypass = false
		events = append(events, Event{Kind: EventBypassCleared, At: r.FetchedAt})
	}

	overload := r.StatusFlags.Has(nut.FlagOverload)
	if overload && !s.Quality.Overload {
		s.Quality.Overload = true
		events = append(events, Event{Kind: EventOverload, At: r.FetchedAt})
	} else if !overload && s.Quality.Overload {
		s.Quality.Overload = false
		events = append(events, Event{Kind: EventOverloadCleared, At: r.FetchedAt})
	}

	return events
}
