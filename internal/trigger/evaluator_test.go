package trigger

import (
	"testing"
	"time"

	"github.com/m4r1k/eneru/internal/config"
	"github.com/m4r1k/eneru/internal/monitor"
	"github.com/m4r1k/eneru/internal/nut"
)

func floatp(f float64) *float64 { return &f }
func intp(i int) *int           { return &i }

func baseConfig() *config.Config {
	return config.Default()
}

func onBatteryState(since time.Time) *monitor.State {
	s := monitor.New(monitor.Thresholds{MaxStaleTolerance: 3, DepletionWindow: 300 * time.Second})
	s.Derived = monitor.OnBattery
	s.OnBatterySince = &since
	return s
}

func TestEvaluateForcedShutdownWinsOverEverythingElse(t *testing.T) {
	now := time.Now()
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB FSD"),
		BatteryPercent: floatp(5),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(now.Add(-time.Hour))
	d := Evaluate(r, s, baseConfig())
	if d.Cause != ForcedShutdown {
		t.Fatalf("want ForcedShutdown, got %v", d.Cause)
	}
}

func TestEvaluateFailsafeConnectionLostBeatsLowBattery(t *testing.T) {
	now := time.Now()
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(5),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(now.Add(-time.Hour))
	// force the connection-lost latch via Apply on a run of unreachable reads.
	for i := 0; i < 5; i++ {
		s.Apply(nut.UPSReading{FetchedAt: now, FetchOutcome: nut.FetchUnreachable})
	}
	d := Evaluate(r, s, baseConfig())
	if d.Cause != FailsafeConnectionLost {
		t.Fatalf("want FailsafeConnectionLost, got %v", d.Cause)
	}
}

func TestEvaluateLowBattery(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(cfg.Triggers.LowBatteryPercent - 1),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(now.Add(-time.Minute))
	d := Evaluate(r, s, cfg)
	if d.Cause != LowBattery {
		t.Fatalf("want LowBattery, got %v", d.Cause)
	}
}

func TestEvaluateLowBatteryExactBoundaryDoesNotFire(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(cfg.Triggers.LowBatteryPercent),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(now.Add(-time.Minute))
	d := Evaluate(r, s, cfg)
	if d.Cause == LowBattery {
		t.Fatalf("battery_percent == low_battery_percent must not fire (strict <), got %v", d.Cause)
	}
}

func TestEvaluateCriticalRuntimeBeatsExtendedTime(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(80),
		RuntimeSeconds: intp(cfg.Triggers.CriticalRuntimeS - 1),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(now.Add(-time.Hour))
	d := Evaluate(r, s, cfg)
	if d.Cause != CriticalRuntime {
		t.Fatalf("want CriticalRuntime, got %v", d.Cause)
	}
}

func TestEvaluateCriticalRuntimeExactBoundaryDoesNotFire(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(80),
		RuntimeSeconds: intp(cfg.Triggers.CriticalRuntimeS),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(now.Add(-time.Hour))
	d := Evaluate(r, s, cfg)
	if d.Cause == CriticalRuntime {
		t.Fatalf("runtime_seconds == critical_runtime_s must not fire (strict <), got %v", d.Cause)
	}
}

func TestEvaluateExtendedTime(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	since := now.Add(-time.Duration(cfg.Triggers.ExtendedTime.ThresholdS)*time.Second - time.Second)
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(80),
		RuntimeSeconds: intp(100000),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(since)
	d := Evaluate(r, s, cfg)
	if d.Cause != ExtendedTime {
		t.Fatalf("want ExtendedTime, got %v", d.Cause)
	}
}

func TestEvaluateExtendedTimeExactBoundaryDoesNotFire(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	since := now.Add(-time.Duration(cfg.Triggers.ExtendedTime.ThresholdS) * time.Second)
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(80),
		RuntimeSeconds: intp(100000),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := onBatteryState(since)
	d := Evaluate(r, s, cfg)
	if d.Cause == ExtendedTime {
		t.Fatalf("elapsed == threshold_s must not fire (strict >), got %v", d.Cause)
	}
}

func TestEvaluateNoActionWhenOnline(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OL"),
		BatteryPercent: floatp(5),
		FetchedAt:      now,
		FetchOutcome:   nut.FetchOK,
	}
	s := monitor.New(monitor.Thresholds{MaxStaleTolerance: 3})
	s.Derived = monitor.Online
	d := Evaluate(r, s, cfg)
	if d.Cause != NoAction {
		t.Fatalf("want NoAction, got %v", d.Cause)
	}
}

func TestEvaluateDepletionRateRequiresGraceAndMinSamples(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	cfg.Triggers.Depletion.MinSamples = 3
	cfg.Triggers.Depletion.CriticalRatePctPerMin = 1.0
	cfg.Triggers.Depletion.GraceS = 60

	since := now.Add(-5 * time.Minute)
	s := onBatteryState(since)
	s.History = []monitor.Sample{
		{At: since, Percent: 90},
		{At: since.Add(2 * time.Minute), Percent: 70},
		{At: since.Add(4 * time.Minute), Percent: 50},
	}
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(50),
		RuntimeSeconds: intp(1000),
		FetchedAt:      since.Add(4 * time.Minute),
		FetchOutcome:   nut.FetchOK,
	}
	d := Evaluate(r, s, cfg)
	if d.Cause != DepletionRate {
		t.Fatalf("want DepletionRate, got %v", d.Cause)
	}
}

func TestEvaluateDepletionRateExactBoundariesDoNotFire(t *testing.T) {
	now := time.Now()
	cfg := baseConfig()
	cfg.Triggers.Depletion.MinSamples = 2
	cfg.Triggers.Depletion.CriticalRatePctPerMin = 5.0
	cfg.Triggers.Depletion.GraceS = 120

	since := now.Add(-2 * time.Minute)
	s := onBatteryState(since)
	// rate is exactly the critical rate: (90-80)/2min = 5%/min.
	s.History = []monitor.Sample{
		{At: since, Percent: 90},
		{At: since.Add(2 * time.Minute), Percent: 80},
	}
	r := nut.UPSReading{
		StatusFlags:    nut.NewStatusFlagSet("OB"),
		BatteryPercent: floatp(80),
		RuntimeSeconds: intp(1000),
		FetchedAt:      since.Add(2 * time.Minute),
		FetchOutcome:   nut.FetchOK,
	}
	d := Evaluate(r, s, cfg)
	if d.Cause == DepletionRate {
		t.Fatalf("rate == critical_rate_pct_per_min must not fire (strict >), got %v", d.Cause)
	}

	// Now the rate clears the bar, but on-battery elapsed exactly equals grace_s.
	cfg.Triggers.Depletion.GraceS = 120
	s2 := onBatteryState(since)
	s2.History = []monitor.Sample{
		{At: since, Percent: 90},
		{At: since.Add(2 * time.Minute), Percent: 70},
	}
	d2 := Evaluate(r, s2, cfg)
	if d2.Cause == DepletionRate {
		t.Fatalf("on-battery elapsed == grace_s must not fire (strict >), got %v", d2.Cause)
	}
}
