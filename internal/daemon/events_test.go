package daemon

import (
	"strings"
	"testing"
	"time"

	"github.com/m4r1k/eneru/internal/monitor"
	"github.com/m4r1k/eneru/internal/notify"
)

func TestEventMessagePowerRestoredIncludesDuration(t *testing.T) {
	ev := monitor.Event{Kind: monitor.EventPowerRestored, OutageDuration: 65 * time.Second}
	msg := eventMessage(ev)
	if !strings.Contains(msg, "1m 5s") {
		t.Errorf("expected formatted duration in message, got %q", msg)
	}
}

func TestEventMessageCoversEveryKind(t *testing.T) {
	kinds := []monitor.EventKind{
		monitor.EventOnBattery, monitor.EventPowerRestored,
		monitor.EventConnectionLost, monitor.EventConnectionRestored,
		monitor.EventBrownout, monitor.EventBrownoutCleared,
		monitor.EventSurge, monitor.EventSurgeCleared,
		monitor.EventAVRBoost, monitor.EventAVRBoostCleared,
		monitor.EventAVRTrim, monitor.EventAVRTrimCleared,
		monitor.EventBypass, monitor.EventBypassCleared,
		monitor.EventOverload, monitor.EventOverloadCleared,
	}
	for _, k := range kinds {
		if msg := eventMessage(monitor.Event{Kind: k}); msg == "" {
			t.Errorf("eventMessage(%s) returned empty string", k)
		}
	}
}

func TestEventSeverityByKind(t *testing.T) {
	cases := map[monitor.EventKind]notify.Severity{
		monitor.EventOnBattery:          notify.SeverityWarning,
		monitor.EventConnectionLost:     notify.SeverityWarning,
		monitor.EventPowerRestored:      notify.SeverityResolved,
		monitor.EventConnectionRestored: notify.SeverityResolved,
		monitor.EventBrownout:           notify.SeverityNormal,
	}
	for kind, want := range cases {
		if got := eventSeverity(kind); got != want {
			t.Errorf("eventSeverity(%s) = %s, want %s", kind, got, want)
		}
	}
}
