package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	"github.com/codeready-toolchain/tarsy-core/pkg/telemetry"
)

func TestSessionRunnerTerminalStatus(t *testing.T) {
	tests := []struct {
		name        string
		stored      models.SessionStatus
		timeout     time.Duration
		cancelFirst bool
		process     ProcessCallback
		wantStatus  models.SessionStatus
		wantMessage string
		wantErr     bool
	}{
		{
			name:       "success completes",
			process:    noopProcess,
			wantStatus: models.SessionStatusCompleted,
		},
		{
			name: "error fails with message",
			process: func(context.Context, string, *models.ChainContext) error {
				return errors.New("llm unavailable")
			},
			wantStatus:  models.SessionStatusFailed,
			wantMessage: "llm unavailable",
			wantErr:     true,
		},
		{
			name: "panic fails",
			process: func(context.Context, string, *models.ChainContext) error {
				panic("nil map")
			},
			wantStatus:  models.SessionStatusFailed,
			wantMessage: "session processor panicked: nil map",
			wantErr:     true,
		},
		{
			name:    "deadline times out",
			timeout: 20 * time.Millisecond,
			process: func(ctx context.Context, _ string, _ *models.ChainContext) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantStatus:  models.SessionStatusTimedOut,
			wantMessage: "Session timed out after 20ms",
			wantErr:     true,
		},
		{
			name:        "cancel after canceling status",
			stored:      models.SessionStatusCanceling,
			cancelFirst: true,
			process: func(ctx context.Context, _ string, _ *models.ChainContext) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantStatus: models.SessionStatusCancelled,
			wantErr:    true,
		},
		{
			name:        "cancel without canceling status fails",
			cancelFirst: true,
			process: func(ctx context.Context, _ string, _ *models.ChainContext) error {
				<-ctx.Done()
				return nil
			},
			wantStatus:  models.SessionStatusFailed,
			wantMessage: "Session processing was interrupted",
		},
		{
			name:       "paused session is left alone",
			stored:     models.SessionStatusPaused,
			process:    noopProcess,
			wantStatus: models.SessionStatusPaused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			s := pendingSession("s1")
			s.Status = models.SessionStatusInProgress
			if tt.stored != "" {
				s.Status = tt.stored
			}
			store.add(s)

			cfg := testQueueConfig()
			if tt.timeout > 0 {
				cfg.SessionTimeout = tt.timeout
			}
			runner := NewSessionRunner(store, cfg, tt.process, nil)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelFirst {
				cancel()
			}

			err := runner.Process(ctx, "s1", &models.ChainContext{SessionID: "s1"})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, store.status("s1"))
			assert.Equal(t, tt.wantMessage, store.errorMessage("s1"))
		})
	}
}

func TestSessionRunnerKeepsProcessorTerminalStatus(t *testing.T) {
	store := newFakeStore()
	s := pendingSession("s1")
	s.Status = models.SessionStatusInProgress
	store.add(s)

	metrics, reader := telemetry.NewTestMetrics(t)
	runner := NewSessionRunner(store, testQueueConfig(), func(ctx context.Context, id string, _ *models.ChainContext) error {
		msg := "agent gave up"
		store.UpdateSessionStatus(ctx, id, models.SessionStatusFailed, models.SessionStatusUpdate{ErrorMessage: &msg})
		return nil
	}, metrics)

	require.NoError(t, runner.Process(context.Background(), "s1", &models.ChainContext{SessionID: "s1"}))
	assert.Equal(t, models.SessionStatusFailed, store.status("s1"))
	assert.Equal(t, "agent gave up", store.errorMessage("s1"))
	assert.Zero(t, telemetry.SumInt64(t, reader, "tarsy.session.outcomes"))
}

func TestSessionRunnerHeartbeat(t *testing.T) {
	store := newFakeStore()
	s := pendingSession("s1")
	s.Status = models.SessionStatusInProgress
	store.add(s)

	cfg := testQueueConfig()
	cfg.HeartbeatInterval = 5 * time.Millisecond
	metrics, reader := telemetry.NewTestMetrics(t)
	runner := NewSessionRunner(store, cfg, func(ctx context.Context, _ string, _ *models.ChainContext) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	}, metrics)

	require.NoError(t, runner.Process(context.Background(), "s1", &models.ChainContext{SessionID: "s1"}))
	assert.Positive(t, store.heartbeatCount("s1"))
	assert.Equal(t, models.SessionStatusCompleted, store.status("s1"))
	assert.Equal(t, int64(1), telemetry.SumInt64(t, reader, "tarsy.session.outcomes"))
}

func TestSessionRunnerStopsWhenCancelledElsewhere(t *testing.T) {
	store := newFakeStore()
	s := pendingSession("s1")
	s.Status = models.SessionStatusInProgress
	store.add(s)

	cfg := testQueueConfig()
	cfg.HeartbeatInterval = 5 * time.Millisecond
	runner := NewSessionRunner(store, cfg, func(ctx context.Context, id string, _ *models.ChainContext) error {
		// Another pod's cancel request lands while the session runs here.
		store.UpdateSessionStatus(context.Background(), id, models.SessionStatusCanceling, models.SessionStatusUpdate{})
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	err := runner.Process(context.Background(), "s1", &models.ChainContext{SessionID: "s1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.SessionStatusCancelled, store.status("s1"))
}

func TestSessionRunnerLeavesSessionWhenLookupFails(t *testing.T) {
	tests := []struct {
		name    string
		process func(store *fakeStore) ProcessCallback
		want    models.SessionStatus
		wantErr bool
	}{
		{
			name: "processor paused the session",
			process: func(store *fakeStore) ProcessCallback {
				return func(ctx context.Context, id string, _ *models.ChainContext) error {
					require.True(t, store.UpdateSessionStatus(ctx, id, models.SessionStatusPaused, models.SessionStatusUpdate{}))
					store.failLookups()
					return nil
				}
			},
			want: models.SessionStatusPaused,
		},
		{
			name: "processor failed",
			process: func(store *fakeStore) ProcessCallback {
				return func(context.Context, string, *models.ChainContext) error {
					store.failLookups()
					return errors.New("llm unavailable")
				}
			},
			want:    models.SessionStatusInProgress,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			s := pendingSession("s1")
			s.Status = models.SessionStatusInProgress
			store.add(s)

			metrics, reader := telemetry.NewTestMetrics(t)
			runner := NewSessionRunner(store, testQueueConfig(), tt.process(store), metrics)

			err := runner.Process(context.Background(), "s1", &models.ChainContext{SessionID: "s1"})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, store.status("s1"))
			assert.Zero(t, telemetry.SumInt64(t, reader, "tarsy.session.outcomes"))
		})
	}
}
