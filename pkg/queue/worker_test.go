package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	"github.com/codeready-toolchain/tarsy-core/pkg/telemetry"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		MaxGlobalConcurrent:     3,
		ClaimInterval:           1 * time.Second,
		ClaimIntervalJitter:     500 * time.Millisecond,
		StopTimeout:             5 * time.Second,
		SessionTimeout:          15 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         30 * time.Minute,
	}
}

func noopProcess(context.Context, string, *models.ChainContext) error { return nil }

func TestWorkerClaimInterval(t *testing.T) {
	w := NewSessionClaimWorker("pod-1", newFakeStore(), testQueueConfig(), noopProcess, nil)

	// Interval should be within [base - jitter, base + jitter]
	for range 100 {
		d := w.claimInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWorkerClaimIntervalNoJitter(t *testing.T) {
	cfg := testQueueConfig()
	cfg.ClaimIntervalJitter = 0
	w := NewSessionClaimWorker("pod-1", newFakeStore(), cfg, noopProcess, nil)

	for range 10 {
		assert.Equal(t, 1*time.Second, w.claimInterval())
	}
}

func TestWorkerInitialHealth(t *testing.T) {
	w := NewSessionClaimWorker("pod-1", newFakeStore(), testQueueConfig(), noopProcess, nil)

	h := w.Health()
	assert.Equal(t, "pod-1", h.PodID)
	assert.Equal(t, WorkerStateStopped, h.State)
	assert.Equal(t, 3, h.MaxGlobalConcurrent)
	assert.Zero(t, h.SessionsClaimed)
	assert.Zero(t, h.InFlight)
	assert.True(t, h.LastClaimAt.IsZero())
}

func TestWorkerClaimAndDispatch(t *testing.T) {
	tests := []struct {
		name       string
		inProgress int
		pending    int
		countFails bool
		wantErr    error
		wantClaims int
	}{
		{name: "claims when below capacity", inProgress: 2, pending: 1, wantClaims: 1},
		{name: "at capacity", inProgress: 3, pending: 1, wantErr: ErrAtCapacity},
		{name: "empty queue", wantErr: ErrNoSessionsAvailable},
		{name: "count failure", pending: 1, countFails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.countFails = tt.countFails
			for i := range tt.inProgress {
				s := pendingSession("running-" + string(rune('a'+i)))
				s.Status = models.SessionStatusInProgress
				store.add(s)
			}
			for i := range tt.pending {
				store.add(pendingSession("pending-" + string(rune('a'+i))))
			}

			w := NewSessionClaimWorker("pod-1", store, testQueueConfig(), noopProcess, nil)
			w.sessionBase = context.Background()
			err := w.claimAndDispatch(context.Background())

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.countFails:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
			require.True(t, w.waitInFlight(after(5*time.Second)))
			assert.Equal(t, tt.wantClaims, w.Health().SessionsClaimed)
		})
	}
}

func TestWorkerDispatchFailureMarksSessionFailed(t *testing.T) {
	store := newFakeStore()
	broken := pendingSession("broken")
	broken.AlertData = nil
	store.add(broken)

	metrics, reader := telemetry.NewTestMetrics(t)
	w := NewSessionClaimWorker("pod-1", store, testQueueConfig(), noopProcess, metrics)
	w.sessionBase = context.Background()

	require.NoError(t, w.claimAndDispatch(context.Background()))

	assert.Equal(t, models.SessionStatusFailed, store.status("broken"))
	assert.Contains(t, store.errorMessage("broken"), "Failed to start session processing")
	assert.Equal(t, 1, w.Health().DispatchFailures)
	assert.Equal(t, int64(1), telemetry.SumInt64(t, reader, "tarsy.queue.dispatch_failures"))
	assert.Equal(t, int64(1), telemetry.SumInt64(t, reader, "tarsy.queue.claims"))
}

func TestWorkerNilProcessorFailsDispatch(t *testing.T) {
	store := newFakeStore()
	store.add(pendingSession("s1"))
	w := NewSessionClaimWorker("pod-1", store, testQueueConfig(), nil, nil)
	w.sessionBase = context.Background()

	require.NoError(t, w.claimAndDispatch(context.Background()))
	assert.Equal(t, models.SessionStatusFailed, store.status("s1"))
}

func TestWorkerProcessorPanicMarksSessionFailed(t *testing.T) {
	store := newFakeStore()
	store.add(pendingSession("s1"))
	w := NewSessionClaimWorker("pod-1", store, testQueueConfig(), func(context.Context, string, *models.ChainContext) error {
		panic("boom")
	}, nil)
	w.sessionBase = context.Background()

	require.NoError(t, w.claimAndDispatch(context.Background()))
	require.True(t, w.waitInFlight(after(5*time.Second)))

	assert.Equal(t, models.SessionStatusFailed, store.status("s1"))
	assert.Contains(t, store.errorMessage("s1"), "boom")
	assert.Zero(t, w.Health().InFlight)
}

func TestWorkerCancelSession(t *testing.T) {
	store := newFakeStore()
	store.add(pendingSession("s1"))

	started := make(chan struct{})
	var gotErr error
	var mu sync.Mutex
	w := NewSessionClaimWorker("pod-1", store, testQueueConfig(), func(ctx context.Context, _ string, _ *models.ChainContext) error {
		close(started)
		<-ctx.Done()
		mu.Lock()
		gotErr = ctx.Err()
		mu.Unlock()
		return ctx.Err()
	}, nil)
	w.sessionBase = context.Background()

	require.NoError(t, w.claimAndDispatch(context.Background()))
	<-started

	h := w.Health()
	assert.Equal(t, 1, h.InFlight)
	assert.Equal(t, []string{"s1"}, h.InFlightSessionIDs)

	assert.False(t, w.CancelSession("other"))
	assert.True(t, w.CancelSession("s1"))
	require.True(t, w.waitInFlight(after(5*time.Second)))

	mu.Lock()
	assert.ErrorIs(t, gotErr, context.Canceled)
	mu.Unlock()
	assert.Zero(t, w.Health().InFlight)
}

func TestWorkerIterateRecoversPanic(t *testing.T) {
	store := newFakeStore()
	store.countHook = func(context.Context) { panic("driver exploded") }
	w := NewSessionClaimWorker("pod-1", store, testQueueConfig(), noopProcess, nil)

	err := w.iterate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver exploded")
}

func TestWorkerStopTimeoutCancelsLoop(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	store := newFakeStore()
	store.countHook = func(ctx context.Context) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
	}

	cfg := testQueueConfig()
	cfg.StopTimeout = 50 * time.Millisecond
	w := NewSessionClaimWorker("pod-1", store, cfg, noopProcess, nil)
	w.Start(context.Background())
	<-entered

	assert.Equal(t, WorkerStateRunning, w.Health().State)

	start := time.Now()
	w.Stop()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, WorkerStateStopped, w.Health().State)

	// Repeated Stop is a no-op.
	w.Stop()
	assert.Equal(t, WorkerStateStopped, w.Health().State)
}

func TestWorkerStartTwiceIsNoop(t *testing.T) {
	cfg := testQueueConfig()
	cfg.ClaimInterval = 10 * time.Millisecond
	cfg.ClaimIntervalJitter = 0
	w := NewSessionClaimWorker("pod-1", newFakeStore(), cfg, noopProcess, nil)

	w.Start(context.Background())
	w.Start(context.Background())
	assert.Equal(t, WorkerStateRunning, w.Health().State)
	w.Stop()
	assert.Equal(t, WorkerStateStopped, w.Health().State)
}

func TestWorkerShutdownCancelsLongSessions(t *testing.T) {
	store := newFakeStore()
	store.add(pendingSession("s1"))

	cfg := testQueueConfig()
	cfg.ClaimInterval = 10 * time.Millisecond
	cfg.ClaimIntervalJitter = 0
	cfg.StopTimeout = time.Second

	started := make(chan struct{})
	w := NewSessionClaimWorker("pod-1", store, cfg, func(ctx context.Context, _ string, _ *models.ChainContext) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	w.Start(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, 1, w.Shutdown(ctx))
	assert.Zero(t, w.Health().InFlight)
}

func TestSessionRegistry(t *testing.T) {
	r := newSessionRegistry()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	r.register("b", cancel2)
	r.register("a", cancel1)
	assert.Equal(t, []string{"a", "b"}, r.ids())

	assert.True(t, r.cancel("a"))
	assert.Error(t, ctx1.Err())
	assert.NoError(t, ctx2.Err())
	assert.False(t, r.cancel("unknown"))

	r.unregister("a")
	assert.False(t, r.cancel("a"))

	assert.Equal(t, 1, r.cancelAll())
	assert.True(t, errors.Is(ctx2.Err(), context.Canceled))
}

// after returns a channel closed after d.
func after(d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	time.AfterFunc(d, func() { close(ch) })
	return ch
}
