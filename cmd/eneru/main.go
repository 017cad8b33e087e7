package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/m4r1k/eneru/internal/config"
	"github.com/m4r1k/eneru/internal/daemon"
)

// version is a hard-coded constant, mirroring the teacher's bare
// version string rather than a build-time ldflags dance.
const version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runDaemon(args)
		return
	}

	switch args[0] {
	case "run":
		runDaemon(args[1:])
	case "validate-config":
		validateConfig(args[1:])
	case "test-notifications":
		testNotifications(args[1:])
	case "version":
		fmt.Println("eneru", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		runDaemon(args)
	}
}

func printUsage() {
	fmt.Println(`eneru: UPS power-supply monitor and multi-stage shutdown orchestrator

Usage:
  eneru [run] [-config path] [-dry-run] [-exit-after-shutdown]
  eneru validate-config [-config path]
  eneru test-notifications [-config path]
  eneru version
  eneru help`)
}

func loadConfig(args []string) (*config.Config, bool) {
	fs := flag.NewFlagSet("eneru", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	dryRun := fs.Bool("dry-run", false, "override behavior.dry_run to true")
	exitAfter := fs.Bool("exit-after-shutdown", false, "exit once the shutdown sequence completes instead of waiting for the host to power off")
	_ = fs.Parse(args)

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dryRun {
		cfg.Behavior.DryRun = true
	}
	return cfg, *exitAfter
}

func runDaemon(args []string) {
	cfg, exitAfter := loadConfig(args)
	d := daemon.New(cfg)
	d.ExitAfterShutdown = exitAfter

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manual := make(chan os.Signal, 1)
	signal.Notify(manual, syscall.SIGUSR1)
	go func() {
		for range manual {
			d.TriggerManualShutdown("manual_trigger")
		}
	}()
	defer signal.Stop(manual)

	if err := d.Run(ctx); err != nil {
		log.Fatalf("eneru: %v", err)
	}
}

func validateConfig(args []string) {
	fs := flag.NewFlagSet("validate-config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid:", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid:", err)
		os.Exit(1)
	}
	fmt.Println("config OK")
}

func testNotifications(args []string) {
	cfg, _ := loadConfig(args)
	d := daemon.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	d.RunNotificationsOnly(ctx)
	if ctx.Err() != nil {
		fmt.Println("timed out waiting for test notification delivery")
		os.Exit(1)
	}
	fmt.Println("test notification sent")
}
