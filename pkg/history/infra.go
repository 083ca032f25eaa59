// Package history owns every write to the session tables. Operations are
// grouped by concern (sessions, stages, queue, interactions, chats,
// maintenance, tracking, timeline) and share one BaseInfra, so they share
// one health flag and one retry policy.
package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/telemetry"
)

// RetryConfig controls RetryDatabaseOperation.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns 3 retries with 100ms base and 2s max delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// Infra is what the retry wrapper needs from the persistence layer.
type Infra interface {
	IsHealthy() bool
	Driver() string
	RetryConfig() RetryConfig
	Metrics() *telemetry.Metrics
}

// ClientOpener opens and migrates a database client.
type ClientOpener func(ctx context.Context) (*database.Client, error)

// BaseInfra holds the shared client and health state.
type BaseInfra struct {
	open    ClientOpener
	retry   RetryConfig
	metrics *telemetry.Metrics

	mu      sync.RWMutex
	client  *database.Client
	healthy atomic.Bool
}

// NewBaseInfra returns an uninitialized infra. Call Initialize before use.
func NewBaseInfra(open ClientOpener, retry RetryConfig, metrics *telemetry.Metrics) *BaseInfra {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &BaseInfra{open: open, retry: retry, metrics: metrics}
}

// NewInfraFromClient wraps an open, migrated client and marks it healthy.
func NewInfraFromClient(client *database.Client, retry RetryConfig, metrics *telemetry.Metrics) *BaseInfra {
	infra := NewBaseInfra(nil, retry, metrics)
	infra.client = client
	infra.healthy.Store(client != nil)
	return infra
}

// Initialize makes one attempt to open the database and apply migrations.
// It never retries: on failure the infra stays unhealthy for the lifetime of
// the process and every operation becomes a no-op returning its zero value.
func (b *BaseInfra) Initialize(ctx context.Context) bool {
	if b.open == nil {
		return b.IsHealthy()
	}
	client, err := b.open(ctx)
	if err != nil {
		slog.Error("History database initialization failed, running without persistence", "error", err)
		b.healthy.Store(false)
		return false
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	b.healthy.Store(true)

	slog.Info("History database initialized", "driver", client.Driver())
	return true
}

// IsHealthy reports whether Initialize succeeded.
func (b *BaseInfra) IsHealthy() bool {
	return b.healthy.Load()
}

// Client returns the database client, or nil when uninitialized.
func (b *BaseInfra) Client() *database.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

// Driver returns the backend driver name, or "" when uninitialized.
func (b *BaseInfra) Driver() string {
	if c := b.Client(); c != nil {
		return c.Driver()
	}
	return ""
}

// RetryConfig returns the retry policy.
func (b *BaseInfra) RetryConfig() RetryConfig {
	return b.retry
}

// Metrics returns the shared instruments.
func (b *BaseInfra) Metrics() *telemetry.Metrics {
	return b.metrics
}

// Close closes the client if one is open.
func (b *BaseInfra) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy.Store(false)
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *BaseInfra) repo() *repository {
	return &repository{client: b.Client()}
}
