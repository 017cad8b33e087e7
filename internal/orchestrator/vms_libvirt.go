//go:build libvirt

// This file provides the production libvirtBackend, compiled only
// with -tags libvirt. It talks to the libvirt daemon over its Unix
// socket via the pure-Go RPC client instead of shelling to virsh
// (grounded on JamesPrial's internal/vm/manager.go pattern).
package orchestrator

import (
	"context"
	"fmt"
	"net"

	"github.com/digitalocean/go-libvirt"
)

type libvirtBackend struct {
	socketPath string
}

func newLibvirtBackend(socketPath string) vmBackend {
	return &libvirtBackend{socketPath: socketPath}
}

func (b *libvirtBackend) dial() (*libvirt.Libvirt, func(), error) {
	conn, err := net.Dial("unix", b.socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("dial libvirt socket %q: %w", b.socketPath, err)
	}
	l := libvirt.New(conn)
	if err := l.Connect(); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("libvirt connect: %w", err)
	}
	return l, func() { l.Disconnect() }, nil
}

func (b *libvirtBackend) ListRunning(ctx context.Context) ([]string, error) {
	l, closeFn, err := b.dial()
	if err != nil {
		return nil, err
	}
	defer closeFn()

	domains, _, err := l.ConnectListAllDomains(1, libvirt.ConnectListDomainsActive)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	names := make([]string, 0, len(domains))
	for _, d := range domains {
		names = append(names, d.Name)
	}
	return names, nil
}

func (b *libvirtBackend) Shutdown(ctx context.Context, name string) error {
	l, closeFn, err := b.dial()
	if err != nil {
		return err
	}
	defer closeFn()

	dom, err := l.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("vm %q not found: %w", name, err)
	}
	return l.DomainShutdown(dom)
}

func (b *libvirtBackend) Destroy(ctx context.Context, name string) error {
	l, closeFn, err := b.dial()
	if err != nil {
		return err
	}
	defer closeFn()

	dom, err := l.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("vm %q not found: %w", name, err)
	}
	return l.DomainDestroy(dom)
}
