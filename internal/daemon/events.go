package daemon

import (
	"fmt"

	"github.com/m4r1k/eneru/internal/durfmt"
	"github.com/m4r1k/eneru/internal/monitor"
	"github.com/m4r1k/eneru/internal/notify"
)

// eventMessage renders a monitor.Event as the human-readable line that
// goes to both the log and the notification sinks, grounded on the
// original monitor's per-event notification text.
func eventMessage(ev monitor.Event) string {
	switch ev.Kind {
	case monitor.EventOnBattery:
		return "power failure detected, system running on battery"
	case monitor.EventPowerRestored:
		return fmt.Sprintf("power restored after %s on battery", durfmt.Format(ev.OutageDuration))
	case monitor.EventConnectionLost:
		return "lost contact with the UPS"
	case monitor.EventConnectionRestored:
		return "connection to the UPS restored, monitoring is active"
	case monitor.EventBrownout:
		return "input voltage brownout detected"
	case monitor.EventBrownoutCleared:
		return "input voltage brownout cleared"
	case monitor.EventSurge:
		return "input voltage surge detected"
	case monitor.EventSurgeCleared:
		return "input voltage surge cleared"
	case monitor.EventAVRBoost:
		return "AVR boost active"
	case monitor.EventAVRBoostCleared:
		return "AVR boost inactive"
	case monitor.EventAVRTrim:
		return "AVR trim active"
	case monitor.EventAVRTrimCleared:
		return "AVR trim inactive"
	case monitor.EventBypass:
		return "UPS in bypass mode, no protection active"
	case monitor.EventBypassCleared:
		return "bypass mode inactive, protection restored"
	case monitor.EventOverload:
		return "UPS overload detected"
	case monitor.EventOverloadCleared:
		return "UPS overload resolved"
	default:
		return string(ev.Kind)
	}
}

func eventSeverity(kind monitor.EventKind) notify.Severity {
	switch kind {
	case monitor.EventOnBattery, monitor.EventBypass, monitor.EventOverload, monitor.EventConnectionLost:
		return notify.SeverityWarning
	case monitor.EventPowerRestored, monitor.EventConnectionRestored, monitor.EventBypassCleared, monitor.EventOverloadCleared, monitor.EventBrownoutCleared, monitor.EventSurgeCleared:
		return notify.SeverityResolved
	case monitor.EventBrownout, monitor.EventSurge, monitor.EventAVRBoost, monitor.EventAVRTrim, monitor.EventAVRBoostCleared, monitor.EventAVRTrimCleared:
		return notify.SeverityNormal
	default:
		return notify.SeverityInfo
	}
}
