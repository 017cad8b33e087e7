// Package daemon wires the Poller, State Tracker, Trigger Evaluator,
// Shutdown Orchestrator, and Notification Worker into the single
// process lifecycle described by spec.md §2 and §5.
package daemon

import (
	"context"
	"fmt"
	"log"
	"log/syslog"
	"time"

	"github.com/m4r1k/eneru/internal/config"
	"github.com/m4r1k/eneru/internal/eventlog"
	"github.com/m4r1k/eneru/internal/livestate"
	"github.com/m4r1k/eneru/internal/monitor"
	"github.com/m4r1k/eneru/internal/notify"
	"github.com/m4r1k/eneru/internal/nut"
	"github.com/m4r1k/eneru/internal/orchestrator"
	"github.com/m4r1k/eneru/internal/statusapi"
	"github.com/m4r1k/eneru/internal/trigger"
)

// Daemon owns every long-lived component for one process lifetime.
type Daemon struct {
	cfg *config.Config

	poller       *nut.Poller
	state        *monitor.State
	orchestrator *orchestrator.Orchestrator
	notifyWorker *notify.Worker

	livestateMirror *livestate.Mirror
	auditLog        *eventlog.Log
	status          *statusapi.Server

	syslogWriter *syslog.Writer

	manualTrigger chan string

	// ExitAfterShutdown makes Run return as soon as the shutdown
	// sequence completes, instead of relying on the host actually
	// powering off (spec.md §6 CLI surface).
	ExitAfterShutdown bool
}

// New builds a Daemon from a fully-loaded configuration. Optional
// components (livestate, audit log, status API) are wired only if
// configured; a failure to connect one is logged and the daemon
// proceeds without it. The notification worker is always built, even
// with zero URLs configured; a URL whose sink cannot be built is logged
// and skipped.
func New(cfg *config.Config) *Daemon {
	d := &Daemon{
		cfg:           cfg,
		manualTrigger: make(chan string, 1),
		poller:        nut.NewPoller(cfg.UPS.Name, cfg.CheckInterval()),
		state: monitor.New(monitor.Thresholds{
			MaxStaleTolerance: cfg.UPS.MaxStaleTolerance,
			DepletionWindow:   time.Duration(cfg.Triggers.Depletion.WindowS) * time.Second,
			BrownoutRatio:     cfg.Triggers.Voltage.BrownoutRatio,
			SurgeRatio:        cfg.Triggers.Voltage.SurgeRatio,
			NominalOverride:   cfg.Triggers.Voltage.NominalVoltageOverride,
		}),
	}

	var sinks []notify.Sink
	for _, url := range cfg.Notifications.URLs {
		sink, err := notify.NewSink(url, time.Duration(cfg.Notifications.SendTimeoutS)*time.Second)
		if err != nil {
			log.Printf("[daemon] skipping notification sink %q: %v", url, err)
			continue
		}
		sinks = append(sinks, sink)
	}
	d.notifyWorker = notify.NewWorker(
		cfg.Notifications.Title,
		cfg.Notifications.AvatarURL,
		sinks,
		time.Duration(cfg.Notifications.RetryIntervalS)*time.Second,
	)

	d.orchestrator = orchestrator.New(cfg, d.notifyWorker)

	if cfg.Behavior.SyslogMirror {
		if w, err := syslog.New(syslog.LOG_NOTICE, "eneru"); err == nil {
			d.syslogWriter = w
		} else {
			log.Printf("[daemon] syslog mirroring requested but unavailable: %v", err)
		}
	}

	if cfg.Livestate.RedisURL != "" {
		ttl := time.Duration(cfg.Livestate.TTLS) * time.Second
		mirror, err := livestate.New(cfg.Livestate.RedisURL, ttl)
		if err != nil {
			log.Printf("[daemon] livestate mirror disabled: %v", err)
		} else {
			d.livestateMirror = mirror
		}
	}

	if cfg.Audit.PostgresURL != "" {
		auditLog, err := eventlog.New(context.Background(), cfg.Audit.PostgresURL)
		if err != nil {
			log.Printf("[daemon] audit log disabled: %v", err)
		} else {
			d.auditLog = auditLog
		}
	}

	if cfg.StatusAPI.Enabled {
		d.status = statusapi.New()
		go func() {
			if err := d.status.Listen(cfg.StatusAPI.Listen); err != nil {
				log.Printf("[daemon] status api stopped: %v", err)
			}
		}()
	}

	return d
}

// Run executes the main tick loop until ctx is cancelled or a shutdown
// is armed and completes. A cancellation mid-tick finishes the
// in-flight poll, drains the notification worker for up to
// send_timeout_s+retry_interval_s, then returns (spec.md §5).
func (d *Daemon) Run(ctx context.Context) error {
	if shutdownScheduledPending(d.cfg.Paths.ShutdownScheduledFile) {
		log.Printf("[daemon] warning: shutdown-scheduled sentinel present from a previous run (%s); a prior orchestration may not have completed", d.cfg.Paths.ShutdownScheduledFile)
	}

	orchestrator.Preflight(d.cfg)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go d.notifyWorker.Run(workerCtx)

	d.logAndMirror("eneru started, watching " + d.cfg.UPS.Name)

	ticker := time.NewTicker(d.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drainNotifyWorker()
			return nil
		case cause := <-d.manualTrigger:
			if d.orchestrator.Armed() {
				continue
			}
			d.beginShutdown(cause)
			d.drainNotifyWorker()
			return d.afterShutdown(ctx)
		case <-ticker.C:
			if done := d.tick(ctx); done {
				return d.afterShutdown(ctx)
			}
		}
	}
}

// TriggerManualShutdown requests an immediate shutdown outside the
// normal trigger evaluation, the same entrypoint an operator-sent
// SIGUSR1 uses (spec.md §9 supplemented feature). It never blocks; a
// request arriving while one is already pending or armed is dropped.
func (d *Daemon) TriggerManualShutdown(cause string) {
	select {
	case d.manualTrigger <- cause:
	default:
	}
}

// afterShutdown decides what Run does once the orchestrator has
// finished. With a real (non-dry-run) local shutdown enabled, the
// host is expected to power off on its own; Run blocks rather than
// letting the process exit and appear to have failed, unless
// ExitAfterShutdown was requested (the test-harness CLI flag).
func (d *Daemon) afterShutdown(ctx context.Context) error {
	if d.ExitAfterShutdown || d.cfg.Behavior.DryRun || !d.cfg.LocalShutdown.Enabled {
		return nil
	}
	<-ctx.Done()
	return nil
}

// tick runs one poll-evaluate cycle and returns true once a shutdown
// has been armed and has finished running.
func (d *Daemon) tick(ctx context.Context) bool {
	reading := d.poller.Poll(ctx)
	events := d.state.Apply(reading)

	for _, ev := range events {
		d.handleEvent(ev)
	}

	if err := writeStateFile(d.cfg.Paths.StateFile, reading, d.state); err != nil {
		log.Printf("[daemon] failed to persist state file: %v", err)
	}
	d.mirrorLivestate(reading)

	if d.orchestrator.Armed() {
		return false
	}

	decision := trigger.Evaluate(reading, d.state, d.cfg)
	if !decision.Fired() {
		return false
	}

	d.logAuditDecision(decision)
	d.beginShutdown(string(decision.Cause))
	d.drainNotifyWorker()
	return true
}

// beginShutdown logs and notifies the trigger, arms the monitor state,
// and runs the orchestrator to completion. Both the evaluator path and
// the manual-trigger path funnel through here.
func (d *Daemon) beginShutdown(cause string) {
	d.logAndMirror(fmt.Sprintf("shutdown trigger fired: %s", cause))
	d.notifyWorker.Enqueue(notify.Message{
		Body:     fmt.Sprintf("UPS shutdown triggered (%s)", cause),
		Severity: notify.SeverityCritical,
	})
	d.state.Arm()
	d.orchestrator.Run(context.Background(), cause)
}

func (d *Daemon) handleEvent(ev monitor.Event) {
	msg := eventMessage(ev)
	d.logAndMirror(msg)
	d.notifyWorker.Enqueue(notify.Message{Body: msg, Severity: eventSeverity(ev.Kind)})
	if d.auditLog != nil {
		if err := d.auditLog.RecordEvent(context.Background(), string(ev.Kind), msg); err != nil {
			log.Printf("[daemon] audit log write failed: %v", err)
		}
	}
}

func (d *Daemon) logAndMirror(msg string) {
	log.Printf("[eneru] %s", msg)
	if d.syslogWriter != nil {
		if err := d.syslogWriter.Notice(msg); err != nil {
			log.Printf("[daemon] syslog mirror failed: %v", err)
		}
	}
}

func (d *Daemon) logAuditDecision(decision trigger.Decision) {
	if d.auditLog == nil {
		return
	}
	if err := d.auditLog.RecordShutdownDecision(context.Background(), string(decision.Cause), d.cfg.Behavior.DryRun); err != nil {
		log.Printf("[daemon] audit log write failed: %v", err)
	}
}

func (d *Daemon) mirrorLivestate(r nut.UPSReading) {
	if d.livestateMirror == nil && d.status == nil {
		return
	}
	snap := livestate.Snapshot{
		Derived:        string(d.state.Derived),
		BatteryPercent: r.BatteryPercent,
		RuntimeSeconds: r.RuntimeSeconds,
		LoadPercent:    r.LoadPercent,
		VoltageRegime:  d.state.LastVoltageRegime,
		OnBatterySince: d.state.OnBatterySince,
		ShutdownArmed:  d.orchestrator.Armed(),
		UpdatedAt:      time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if d.livestateMirror != nil {
		if err := d.livestateMirror.Publish(ctx, snap); err != nil {
			log.Printf("[daemon] livestate mirror publish failed: %v", err)
		}
	}
	if d.status != nil {
		d.status.Update(statusapi.Status{
			Derived:        string(d.state.Derived),
			BatteryPercent: r.BatteryPercent,
			RuntimeSeconds: r.RuntimeSeconds,
			LoadPercent:    r.LoadPercent,
			VoltageRegime:  d.state.LastVoltageRegime,
			ShutdownArmed:  d.orchestrator.Armed(),
			ConnectionLost: d.state.ConnectionLost(),
			UpdatedAtUnix:  time.Now().Unix(),
		})
	}
}

func (d *Daemon) drainNotifyWorker() {
	grace := time.Duration(d.cfg.Notifications.SendTimeoutS+d.cfg.Notifications.RetryIntervalS) * time.Second
	deadline := time.Now().Add(grace)
	for d.notifyWorker.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
}

// RunNotificationsOnly starts the notification worker, enqueues one
// probe message, and blocks until it drains or ctx expires. It backs
// the test-notifications CLI subcommand, which has no need for the
// full poll/evaluate loop (spec.md §6).
func (d *Daemon) RunNotificationsOnly(ctx context.Context) {
	workerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go d.notifyWorker.Run(workerCtx)

	d.notifyWorker.Enqueue(notify.Message{Body: "eneru test notification", Severity: notify.SeverityInfo})

	for d.notifyWorker.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}
