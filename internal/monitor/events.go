package monitor

import "time"

// EventKind names one of the edge or quality events the tracker emits
// (spec.md §2, §4.2).
type EventKind string

const (
	EventOnBattery        EventKind = "ON_BATTERY"
	EventPowerRestored    EventKind = "POWER_RESTORED"
	EventConnectionLost   EventKind = "CONNECTION_LOST"
	EventConnectionRestored EventKind = "CONNECTION_RESTORED"
	EventBrownout         EventKind = "BROWNOUT"
	EventBrownoutCleared  EventKind = "BROWNOUT_CLEARED"
	EventSurge            EventKind = "SURGE"
	EventSurgeCleared     EventKind = "SURGE_CLEARED"
	EventAVRBoost         EventKind = "AVR_BOOST"
	EventAVRBoostCleared  EventKind = "AVR_BOOST_CLEARED"
	EventAVRTrim          EventKind = "AVR_TRIM"
	EventAVRTrimCleared   EventKind = "AVR_TRIM_CLEARED"
	EventBypass           EventKind = "BYPASS"
	EventBypassCleared    EventKind = "BYPASS_CLEARED"
	EventOverload         EventKind = "OVERLOAD"
	EventOverloadCleared  EventKind = "OVERLOAD_CLEARED"
)

// Event is one edge-triggered notification raised by Apply.
type Event struct {
	Kind           EventKind
	At             time.Time
	BatteryPercent *float64
	RuntimeSeconds *int
	LoadPercent    *float64
	OutageDuration time.Duration // set only on EventPowerRestored
	Details        string
}
