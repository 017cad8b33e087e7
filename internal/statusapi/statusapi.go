// Package statusapi exposes a read-only local HTTP endpoint reporting
// the daemon's current state, disabled by default (spec.md §9,
// grounded on the teacher's cmd/server/main.go + internal/handlers).
package statusapi

import (
	"sync"

	"github.com/gofiber/fiber/v2"
)

// Status is the JSON body served at GET /status.
type Status struct {
	Derived          string   `json:"derived"`
	BatteryPercent   *float64 `json:"battery_percent,omitempty"`
	RuntimeSeconds   *int     `json:"runtime_seconds,omitempty"`
	LoadPercent      *float64 `json:"load_percent,omitempty"`
	VoltageRegime    string   `json:"voltage_regime"`
	ShutdownArmed    bool     `json:"shutdown_armed"`
	ConnectionLost   bool     `json:"connection_lost"`
	UpdatedAtUnix    int64    `json:"updated_at_unix"`
}

// Server serves the current Status over HTTP, updated by the caller on
// every tick.
type Server struct {
	app *fiber.App

	mu      sync.RWMutex
	current Status
}

// New builds a Server bound to no address yet; call Listen to start it.
func New() *Server {
	s := &Server{app: fiber.New(fiber.Config{DisableStartupMessage: true})}
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return s
}

// Update replaces the status snapshot served by the next request.
func (s *Server) Update(st Status) {
	s.mu.Lock()
	s.current = st
	s.mu.Unlock()
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	st := s.current
	s.mu.RUnlock()
	return c.JSON(st)
}

// Listen blocks serving on addr until the process is shut down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
