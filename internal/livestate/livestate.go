// Package livestate mirrors the current monitor state into Redis so
// other tools on the network can read it without talking to the
// daemon directly. It is entirely fire-and-forget: a mirror failure
// never affects the shutdown decision path (spec.md §9, grounded on
// the teacher's internal/cache.Cache).
package livestate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const stateKey = "eneru:state"

// Mirror writes the daemon's current snapshot to Redis.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

// Snapshot is the JSON shape written to Redis on every reading.
type Snapshot struct {
	Derived          string     `json:"derived"`
	BatteryPercent   *float64   `json:"battery_percent,omitempty"`
	RuntimeSeconds   *int       `json:"runtime_seconds,omitempty"`
	LoadPercent      *float64   `json:"load_percent,omitempty"`
	VoltageRegime    string     `json:"voltage_regime"`
	OnBatterySince   *time.Time `json:"on_battery_since,omitempty"`
	ShutdownArmed    bool       `json:"shutdown_armed"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// New connects to redisURL. A connection failure is returned to the
// caller, who may choose to run without a mirror (spec.md §9).
func New(redisURL string, ttl time.Duration) (*Mirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Mirror{client: client, ttl: ttl}, nil
}

// Close releases the Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// Publish writes the snapshot and returns any error to the caller,
// which logs it and carries on, since this mirror is never on the
// shutdown-decision critical path.
func (m *Mirror) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return m.client.Set(ctx, stateKey, data, m.ttl).Err()
}
