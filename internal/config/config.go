// Package config loads and validates eneru's YAML configuration file,
// applying the same defaults the daemon would use if no file were
// found at all.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror spec.md §3 exactly.
const (
	DefaultCheckIntervalS    = 1
	DefaultMaxStaleTolerance = 3

	DefaultLowBatteryPercent    = 20
	DefaultCriticalRuntimeS     = 600
	DefaultDepletionWindowS     = 300
	DefaultDepletionCriticalPM  = 15.0
	DefaultDepletionGraceS      = 90
	DefaultDepletionMinSamples  = 30
	DefaultExtendedTimeEnabled  = true
	DefaultExtendedThresholdS   = 900

	DefaultBrownoutRatio = 0.76
	DefaultSurgeRatio    = 1.20

	DefaultSendTimeoutS   = 10
	DefaultRetryIntervalS = 5

	DefaultVMMaxWaitS      = 30
	DefaultContainerStopS  = 60
	DefaultUnmountTimeoutS = 15
	DefaultPostSyncSleepS  = 2
	DefaultConnectTimeoutS = 10
	DefaultCommandTimeoutS = 30
	DefaultFinalGraceS     = 5

	DefaultStateFile             = "/var/run/eneru.state"
	DefaultBatteryHistoryFile    = "/var/run/eneru-battery-history"
	DefaultShutdownScheduledFile = "/var/run/eneru-shutdown-scheduled"
)

// UPSConfig groups NUT polling settings.
type UPSConfig struct {
	Name              string `yaml:"name"`
	CheckIntervalS    int    `yaml:"check_interval_s"`
	MaxStaleTolerance int    `yaml:"max_stale_tolerance"`
}

// VoltageConfig controls brownout/surge regime detection.
type VoltageConfig struct {
	BrownoutRatio          float64  `yaml:"brownout_ratio"`
	SurgeRatio             float64  `yaml:"surge_ratio"`
	NominalVoltageOverride *float64 `yaml:"nominal_voltage_override"`
}

// DepletionConfig controls the rolling depletion-rate estimator.
type DepletionConfig struct {
	WindowS               int     `yaml:"window_s"`
	CriticalRatePctPerMin float64 `yaml:"critical_rate_pct_per_min"`
	GraceS                int     `yaml:"grace_s"`
	MinSamples            int     `yaml:"min_samples"`
}

// ExtendedTimeConfig controls the extended-time-on-battery trigger.
type ExtendedTimeConfig struct {
	Enabled    bool `yaml:"enabled"`
	ThresholdS int  `yaml:"threshold_s"`
}

// TriggersConfig groups every shutdown-trigger threshold.
type TriggersConfig struct {
	LowBatteryPercent float64            `yaml:"low_battery_percent"`
	CriticalRuntimeS  int                `yaml:"critical_runtime_s"`
	Depletion         DepletionConfig    `yaml:"depletion"`
	ExtendedTime      ExtendedTimeConfig `yaml:"extended_time"`
	Voltage           VoltageConfig      `yaml:"voltage"`
}

// BehaviorConfig groups process-wide behavior switches.
type BehaviorConfig struct {
	DryRun       bool `yaml:"dry_run"`
	SyslogMirror bool `yaml:"syslog_mirror"`
}

// PathsConfig groups persisted-state file locations (spec.md §6).
type PathsConfig struct {
	StateFile             string `yaml:"state_file"`
	BatteryHistoryFile    string `yaml:"battery_history_file"`
	ShutdownScheduledFile string `yaml:"shutdown_scheduled_file"`
}

// NotificationsConfig groups the pluggable notification sinks.
type NotificationsConfig struct {
	URLs           []string `yaml:"urls"`
	Title          string   `yaml:"title"`
	AvatarURL      string   `yaml:"avatar_url"`
	SendTimeoutS   int      `yaml:"send_timeout_s"`
	RetryIntervalS int      `yaml:"retry_interval_s"`

	// Legacy is translated into URLs by Load; core code never sees it.
	Legacy legacyNotificationsConfig `yaml:"discord"`
}

type legacyNotificationsConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// VMConfig controls Stage A (virtual machines).
type VMConfig struct {
	Enabled    bool   `yaml:"enabled"`
	MaxWaitS   int    `yaml:"max_wait_s"`
	Backend    string `yaml:"backend"`     // "virsh" (default) or "libvirt"
	SocketPath string `yaml:"socket_path"` // used only by the libvirt backend
}

// ComposeFileConfig is one entry in containers.compose_files.
// The original source accepts either a bare path string or a
// {path, stop_timeout_s} object; config loading normalizes both into
// this single canonical shape (spec.md §9).
type ComposeFileConfig struct {
	Path         string `yaml:"path"`
	StopTimeoutS *int   `yaml:"stop_timeout_s"`
}

// UnmarshalYAML accepts either a bare string or a mapping.
func (c *ComposeFileConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Path = value.Value
		return nil
	}
	type raw ComposeFileConfig
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	*c = ComposeFileConfig(r)
	return nil
}

// ContainersConfig controls Stage B (containers).
type ContainersConfig struct {
	Enabled               bool                `yaml:"enabled"`
	Runtime               string              `yaml:"runtime"` // auto|docker|podman
	StopTimeoutS          int                 `yaml:"stop_timeout_s"`
	ComposeFiles          []ComposeFileConfig `yaml:"compose_files"`
	ShutdownAllRemaining  bool                `yaml:"shutdown_all_remaining"`
	IncludeUserContainers bool                `yaml:"include_user_containers"`
}

// MountConfig is one entry in filesystems.unmount.mounts. Accepts
// either a bare path string or a {path, flags} object.
type MountConfig struct {
	Path  string `yaml:"path"`
	Flags string `yaml:"flags"`
}

func (m *MountConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		m.Path = value.Value
		return nil
	}
	type raw MountConfig
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	*m = MountConfig(r)
	return nil
}

// UnmountConfig controls the unmount phase of Stage C.
type UnmountConfig struct {
	TimeoutS int           `yaml:"timeout_s"`
	Mounts   []MountConfig `yaml:"mounts"`
}

// FilesystemsConfig controls Stage C (filesystems).
type FilesystemsConfig struct {
	SyncEnabled    bool          `yaml:"sync_enabled"`
	PostSyncSleepS int           `yaml:"post_sync_sleep_s"`
	Unmount        UnmountConfig `yaml:"unmount"`
}

// PreShutdownCommandKind tags whether a remote pre-shutdown command is
// a predefined named action or a raw command string (spec.md §9).
type PreShutdownCommandKind int

const (
	PreShutdownRaw PreShutdownCommandKind = iota
	PreShutdownPredefined
)

// PredefinedAction names one of the recognized remote-action templates.
type PredefinedAction string

const (
	ActionStopContainers PredefinedAction = "stop_containers"
	ActionStopVMs        PredefinedAction = "stop_vms"
	ActionStopProxmoxVMs PredefinedAction = "stop_proxmox_vms"
	ActionStopProxmoxCTs PredefinedAction = "stop_proxmox_cts"
	ActionStopXCPngVMs   PredefinedAction = "stop_xcpng_vms"
	ActionStopESXiVMs    PredefinedAction = "stop_esxi_vms"
	ActionStopCompose    PredefinedAction = "stop_compose"
	ActionSync           PredefinedAction = "sync"
)

// PreShutdownCommand is the canonical, tagged shape every
// pre_shutdown_commands entry is normalized into at load time.
type PreShutdownCommand struct {
	Kind     PreShutdownCommandKind
	Action   PredefinedAction // set when Kind == PreShutdownPredefined
	Path     string           // set for ActionStopCompose
	Raw      string           // set when Kind == PreShutdownRaw
	TimeoutS int              // 0 means "use the server's command_timeout_s"
}

func (p *PreShutdownCommand) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		p.Kind = PreShutdownRaw
		p.Raw = value.Value
		return nil
	}
	var raw struct {
		Action   string `yaml:"action"`
		Command  string `yaml:"command"`
		Path     string `yaml:"path"`
		TimeoutS int    `yaml:"timeout_s"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.TimeoutS = raw.TimeoutS
	p.Path = raw.Path
	if raw.Action != "" {
		p.Kind = PreShutdownPredefined
		p.Action = PredefinedAction(raw.Action)
	} else {
		p.Kind = PreShutdownRaw
		p.Raw = raw.Command
	}
	return nil
}

// RemoteServerConfig is one entry in remote_servers.
type RemoteServerConfig struct {
	Name                string               `yaml:"name"`
	Enabled             bool                 `yaml:"enabled"`
	Host                string               `yaml:"host"`
	User                string               `yaml:"user"`
	Port                int                  `yaml:"port"`
	ConnectTimeoutS     int                  `yaml:"connect_timeout_s"`
	CommandTimeoutS     int                  `yaml:"command_timeout_s"`
	ShutdownCommand     string               `yaml:"shutdown_command"`
	SSHOptions          []string             `yaml:"ssh_options"`
	Parallel            bool                 `yaml:"parallel"`
	PreShutdownCommands []PreShutdownCommand `yaml:"pre_shutdown_commands"`
	PrivateKeyPath      string               `yaml:"private_key_path"`
}

// LocalShutdownConfig controls Stage F.
type LocalShutdownConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
	Message string `yaml:"message"`
}

// LivestateConfig controls the optional Redis live-state mirror.
type LivestateConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTLS     int    `yaml:"ttl_s"`
}

// AuditConfig controls the optional Postgres event audit trail.
type AuditConfig struct {
	PostgresURL string `yaml:"postgres_url"`
}

// StatusAPIConfig controls the optional local HTTP status endpoint.
type StatusAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the top-level configuration container (spec.md §3).
type Config struct {
	UPS             UPSConfig            `yaml:"ups"`
	Triggers        TriggersConfig       `yaml:"triggers"`
	Behavior        BehaviorConfig       `yaml:"behavior"`
	Paths           PathsConfig          `yaml:"paths"`
	Notifications   NotificationsConfig  `yaml:"notifications"`
	VirtualMachines VMConfig             `yaml:"virtual_machines"`
	Containers      ContainersConfig     `yaml:"containers"`
	Filesystems     FilesystemsConfig    `yaml:"filesystems"`
	RemoteServers   []RemoteServerConfig `yaml:"remote_servers"`
	LocalShutdown   LocalShutdownConfig  `yaml:"local_shutdown"`
	Livestate       LivestateConfig      `yaml:"livestate"`
	Audit           AuditConfig          `yaml:"audit"`
	StatusAPI       StatusAPIConfig      `yaml:"status_api"`
}

// DefaultSearchPaths mirrors the original's ConfigLoader.DEFAULT_CONFIG_PATHS.
var DefaultSearchPaths = []string{
	"/etc/eneru/config.yaml",
	"/etc/eneru/config.yml",
	"./config.yaml",
	"./config.yml",
}

// Default returns a Config populated with every spec.md §3 default.
func Default() *Config {
	return &Config{
		UPS: UPSConfig{
			Name:              "NAME@HOST",
			CheckIntervalS:    DefaultCheckIntervalS,
			MaxStaleTolerance: DefaultMaxStaleTolerance,
		},
		Triggers: TriggersConfig{
			LowBatteryPercent: DefaultLowBatteryPercent,
			CriticalRuntimeS:  DefaultCriticalRuntimeS,
			Depletion: DepletionConfig{
				WindowS:               DefaultDepletionWindowS,
				CriticalRatePctPerMin: DefaultDepletionCriticalPM,
				GraceS:                DefaultDepletionGraceS,
				MinSamples:            DefaultDepletionMinSamples,
			},
			ExtendedTime: ExtendedTimeConfig{
				Enabled:    DefaultExtendedTimeEnabled,
				ThresholdS: DefaultExtendedThresholdS,
			},
			Voltage: VoltageConfig{
				BrownoutRatio: DefaultBrownoutRatio,
				SurgeRatio:    DefaultSurgeRatio,
			},
		},
		Behavior: BehaviorConfig{
			DryRun:       false,
			SyslogMirror: true,
		},
		Paths: PathsConfig{
			StateFile:             DefaultStateFile,
			BatteryHistoryFile:    DefaultBatteryHistoryFile,
			ShutdownScheduledFile: DefaultShutdownScheduledFile,
		},
		Notifications: NotificationsConfig{
			SendTimeoutS:   DefaultSendTimeoutS,
			RetryIntervalS: DefaultRetryIntervalS,
		},
		VirtualMachines: VMConfig{
			Enabled:  false,
			MaxWaitS: DefaultVMMaxWaitS,
			Backend:  "virsh",
		},
		Containers: ContainersConfig{
			Enabled:               false,
			Runtime:               "auto",
			StopTimeoutS:          DefaultContainerStopS,
			ShutdownAllRemaining:  true,
			IncludeUserContainers: false,
		},
		Filesystems: FilesystemsConfig{
			SyncEnabled:    true,
			PostSyncSleepS: DefaultPostSyncSleepS,
			Unmount: UnmountConfig{
				TimeoutS: DefaultUnmountTimeoutS,
			},
		},
		LocalShutdown: LocalShutdownConfig{
			Enabled: false,
			Command: "shutdown -h now",
			Message: "UPS battery critical - emergency shutdown",
		},
	}
}

// Load finds and parses the configuration file, applying defaults for
// anything the file omits. A missing file at an explicit path is an
// error; a missing file when searching the default paths falls back
// to Default() (mirroring ConfigLoader.load in the original).
func Load(path string) (*Config, error) {
	cfg := Default()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		for _, candidate := range DefaultSearchPaths {
			data, err = os.ReadFile(candidate)
			if err == nil {
				break
			}
		}
		if data == nil {
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyLegacyNotifications(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	for i := range cfg.RemoteServers {
		fillRemoteServerDefaults(&cfg.RemoteServers[i])
	}
	for i := range cfg.Containers.ComposeFiles {
		if cfg.Containers.ComposeFiles[i].StopTimeoutS == nil {
			t := cfg.Containers.StopTimeoutS
			cfg.Containers.ComposeFiles[i].StopTimeoutS = &t
		}
	}

	return cfg, nil
}

func fillRemoteServerDefaults(s *RemoteServerConfig) {
	if s.ConnectTimeoutS == 0 {
		s.ConnectTimeoutS = DefaultConnectTimeoutS
	}
	if s.CommandTimeoutS == 0 {
		s.CommandTimeoutS = DefaultCommandTimeoutS
	}
	if s.ShutdownCommand == "" {
		s.ShutdownCommand = "sudo shutdown -h now"
	}
	if s.Port == 0 {
		s.Port = 22
	}
}

// Validate performs the load-time checks the CLI's validate-config
// subcommand reports on (spec.md §6).
func Validate(cfg *Config) error {
	if cfg.UPS.Name == "" {
		return fmt.Errorf("ups.name must not be empty")
	}
	if cfg.UPS.CheckIntervalS <= 0 {
		return fmt.Errorf("ups.check_interval_s must be positive")
	}
	if cfg.Triggers.Depletion.WindowS <= 0 {
		return fmt.Errorf("triggers.depletion.window_s must be positive")
	}
	if cfg.Triggers.Depletion.MinSamples <= 0 {
		return fmt.Errorf("triggers.depletion.min_samples must be positive")
	}
	for _, s := range cfg.RemoteServers {
		if s.Enabled && s.Host == "" {
			return fmt.Errorf("remote server %q: host must not be empty", s.Name)
		}
	}
	for _, c := range cfg.Containers.ComposeFiles {
		if c.Path == "" {
			return fmt.Errorf("containers.compose_files: path must not be empty")
		}
	}
	return nil
}

// CheckInterval returns the configured polling cadence as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.UPS.CheckIntervalS) * time.Second
}
