package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/m4r1k/eneru/internal/config"
)

// RemoteStage implements Stage D: a sequential phase for servers with
// parallel=false, then every remaining server concurrently (spec.md
// §4.4). It connects over native SSH rather than shelling to the ssh
// binary.
type RemoteStage struct {
	servers []config.RemoteServerConfig
	dryRun  bool
}

// NewRemoteStage builds a Stage D runner from the configured server list.
func NewRemoteStage(servers []config.RemoteServerConfig, dryRun bool) *RemoteStage {
	return &RemoteStage{servers: servers, dryRun: dryRun}
}

func (s *RemoteStage) Run(ctx context.Context) {
	var sequential, parallel []config.RemoteServerConfig
	for _, srv := range s.servers {
		if !srv.Enabled {
			continue
		}
		if srv.Parallel {
			parallel = append(parallel, srv)
		} else {
			sequential = append(sequential, srv)
		}
	}
	if len(sequential) == 0 && len(parallel) == 0 {
		return
	}

	for _, srv := range sequential {
		s.shutdownServer(ctx, srv)
	}

	var wg sync.WaitGroup
	for _, srv := range parallel {
		wg.Add(1)
		go func(srv config.RemoteServerConfig) {
			defer wg.Done()
			s.shutdownServer(ctx, srv)
		}(srv)
	}
	wg.Wait()
}

func (s *RemoteStage) shutdownServer(ctx context.Context, srv config.RemoteServerConfig) {
	displayName := srv.Name
	if displayName == "" {
		displayName = srv.Host
	}
	log.Printf("[orchestrator] stage D: initiating remote shutdown on %s (%s)", displayName, srv.Host)

	if s.dryRun {
		log.Printf("[orchestrator] stage D: [DRY-RUN] would send %q to %s@%s", srv.ShutdownCommand, srv.User, srv.Host)
		return
	}

	if !remoteHostReachable(srv.Host) {
		log.Printf("[orchestrator] stage D: %s unreachable, skipping", displayName)
		return
	}

	client, err := dialSSH(ctx, srv)
	if err != nil {
		log.Printf("[orchestrator] stage D: connect to %s: %v", displayName, err)
		return
	}
	defer client.Close()

	for _, cmd := range srv.PreShutdownCommands {
		s.runPreShutdownCommand(client, srv, cmd)
	}

	timeout := time.Duration(srv.CommandTimeoutS) * time.Second
	if out, err := runSSHCommand(client, srv.ShutdownCommand, timeout); err != nil {
		log.Printf("[orchestrator] stage D: shutdown command on %s failed: %v", displayName, err)
	} else {
		log.Printf("[orchestrator] stage D: %s shutdown command sent successfully", displayName)
		_ = out
	}
}

func (s *RemoteStage) runPreShutdownCommand(client *ssh.Client, srv config.RemoteServerConfig, cmd config.PreShutdownCommand) {
	command := cmd.Raw
	if cmd.Kind == config.PreShutdownPredefined {
		command = predefinedActionCommand(cmd.Action, cmd.Path)
	}
	if command == "" {
		return
	}
	timeout := time.Duration(cmd.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(srv.CommandTimeoutS) * time.Second
	}
	if _, err := runSSHCommand(client, command, timeout); err != nil {
		log.Printf("[orchestrator] stage D: pre-shutdown command %q on %s failed: %v", command, srv.Host, err)
	}
}

// predefinedActionCommand realizes a named action as a short shell
// script executed on the remote host (spec.md §4.4).
func predefinedActionCommand(action config.PredefinedAction, path string) string {
	switch action {
	case config.ActionStopContainers:
		return "docker stop $(docker ps -q) 2>/dev/null || podman stop $(podman ps -q) 2>/dev/null || true"
	case config.ActionStopVMs:
		return "for v in $(virsh list --name --state-running); do virsh shutdown \"$v\"; done"
	case config.ActionStopProxmoxVMs:
		return "for v in $(qm list | awk 'NR>1 && $3==\"running\"{print $1}'); do qm shutdown \"$v\"; done"
	case config.ActionStopProxmoxCTs:
		return "for c in $(pct list | awk 'NR>1 && $2==\"running\"{print $1}'); do pct shutdown \"$c\"; done"
	case config.ActionStopXCPngVMs:
		return "for v in $(xe vm-list power-state=running is-control-domain=false params=uuid --minimal | tr ',' ' '); do xe vm-shutdown uuid=\"$v\"; done"
	case config.ActionStopESXiVMs:
		return "for v in $(vim-cmd vmsvc/getallvms | awk 'NR>1{print $1}'); do vim-cmd vmsvc/power.shutdown \"$v\"; done"
	case config.ActionStopCompose:
		return fmt.Sprintf("docker compose -f %s stop || podman-compose -f %s stop", path, path)
	case config.ActionSync:
		return "sync"
	default:
		return ""
	}
}

// remoteHostReachable ICMP-pings the host before attempting SSH, so a
// dead host fails fast instead of waiting on a TCP timeout (spec.md
// §9 enrichment, grounded on the teacher's internal/ping.PingHost).
func remoteHostReachable(host string) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return true // can't probe; let the SSH dial attempt decide
	}
	pinger.Count = 2
	pinger.Timeout = 3 * time.Second
	pinger.SetPrivileged(true)
	if err := pinger.Run(); err != nil {
		return true
	}
	return pinger.Statistics().PacketsRecv > 0
}

func dialSSH(ctx context.Context, srv config.RemoteServerConfig) (*ssh.Client, error) {
	auth, err := sshAuthMethod(srv.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	displayName := srv.Name
	if displayName == "" {
		displayName = srv.Host
	}
	cfg := &ssh.ClientConfig{
		User:            srv.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallbackFromOptions(displayName, srv.SSHOptions),
		Timeout:         time.Duration(srv.ConnectTimeoutS) * time.Second,
	}
	addr := net.JoinHostPort(srv.Host, fmt.Sprintf("%d", srv.Port))
	return ssh.Dial("tcp", addr, cfg)
}

// hostKeyCallbackFromOptions translates the "-o Key=Value"-style entries
// ssh_options carries into a native HostKeyCallback. StrictHostKeyChecking
// policy is the operator's responsibility via ssh_options (spec.md §6); the
// native client honors it only when paired with a UserKnownHostsFile entry
// it can load. Any other entry is not recognized by the native client and
// is logged rather than silently dropped.
func hostKeyCallbackFromOptions(name string, opts []string) ssh.HostKeyCallback {
	var strict bool
	var knownHostsFile string

	for _, opt := range opts {
		key, value, ok := strings.Cut(strings.TrimPrefix(strings.TrimSpace(opt), "-o"), "=")
		if !ok {
			log.Printf("[orchestrator] stage D: %s: ssh_options entry %q is not recognized by the native SSH client and is ignored", name, opt)
			continue
		}
		switch strings.TrimSpace(key) {
		case "StrictHostKeyChecking":
			strict = strings.EqualFold(strings.TrimSpace(value), "yes")
		case "UserKnownHostsFile":
			knownHostsFile = strings.TrimSpace(value)
		default:
			log.Printf("[orchestrator] stage D: %s: ssh_options entry %q is not recognized by the native SSH client and is ignored", name, opt)
		}
	}

	if !strict {
		return ssh.InsecureIgnoreHostKey()
	}
	if knownHostsFile == "" {
		log.Printf("[orchestrator] stage D: %s: ssh_options requested StrictHostKeyChecking=yes with no UserKnownHostsFile, falling back to insecure host key checking", name)
		return ssh.InsecureIgnoreHostKey()
	}
	callback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		log.Printf("[orchestrator] stage D: %s: failed to load known_hosts %s: %v, falling back to insecure host key checking", name, knownHostsFile, err)
		return ssh.InsecureIgnoreHostKey()
	}
	return callback
}

func sshAuthMethod(privateKeyPath string) (ssh.AuthMethod, error) {
	if privateKeyPath == "" {
		return nil, fmt.Errorf("remote_servers: private_key_path is required")
	}
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", privateKeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", privateKeyPath, err)
	}
	return ssh.PublicKeys(signer), nil
}

func runSSHCommand(client *ssh.Client, command string, timeout time.Duration) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		return out.String(), err
	case <-time.After(timeout):
		session.Close()
		return out.String(), fmt.Errorf("command timed out after %s", timeout)
	}
}
