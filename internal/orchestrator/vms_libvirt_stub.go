//go:build !libvirt

// This stub is compiled when the "libvirt" build tag is absent.
// Selecting virtual_machines.backend: libvirt without that tag logs a
// one-time warning and falls back to the virsh backend rather than
// failing startup outright.
package orchestrator

import "log"

func newLibvirtBackend(socketPath string) vmBackend {
	log.Printf("[orchestrator] libvirt backend requested but not compiled in (build with -tags libvirt); falling back to virsh")
	return virshBackend{}
}
