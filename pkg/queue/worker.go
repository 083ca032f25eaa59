package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	"github.com/codeready-toolchain/tarsy-core/pkg/telemetry"
)

// SessionClaimWorker is the per-pod claim loop. It claims pending sessions
// while the cluster-wide IN_PROGRESS count is below MaxGlobalConcurrent and
// hands each one to the process callback on its own goroutine.
type SessionClaimWorker struct {
	podID   string
	store   SessionStore
	config  *config.QueueConfig
	process ProcessCallback
	metrics *telemetry.Metrics

	mu          sync.Mutex
	state       WorkerState
	stopCh      chan struct{}
	loopDone    chan struct{}
	cancelLoop  context.CancelFunc
	sessionBase context.Context

	registry *sessionRegistry
	inFlight sync.WaitGroup

	statsMu          sync.RWMutex
	sessionsClaimed  int
	dispatchFailures int
	lastClaimAt      time.Time
}

// NewSessionClaimWorker creates a stopped claim worker.
// metrics may be nil.
func NewSessionClaimWorker(podID string, store SessionStore, cfg *config.QueueConfig, process ProcessCallback, metrics *telemetry.Metrics) *SessionClaimWorker {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &SessionClaimWorker{
		podID:    podID,
		store:    store,
		config:   cfg,
		process:  process,
		metrics:  metrics,
		state:    WorkerStateStopped,
		registry: newSessionRegistry(),
	}
}

// Start spawns the claim loop. Calling Start on a worker that is not
// stopped is a no-op.
//
// Dispatched sessions do not inherit ctx cancellation: they are stopped
// through CancelSession, CancelInFlight or Shutdown.
func (w *SessionClaimWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != WorkerStateStopped {
		slog.Warn("Claim worker already started, ignoring duplicate Start call", "pod_id", w.podID, "state", w.state)
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	w.sessionBase = context.WithoutCancel(ctx)
	w.stopCh = make(chan struct{})
	w.loopDone = make(chan struct{})
	w.state = WorkerStateRunning

	slog.Info("Starting session claim worker",
		"pod_id", w.podID,
		"max_global_concurrent", w.config.MaxGlobalConcurrent,
		"claim_interval", w.config.ClaimInterval)

	go w.run(loopCtx, w.stopCh, w.loopDone)
}

// Stop signals the claim loop to exit and waits up to StopTimeout for it,
// then cancels the loop context. Sessions already dispatched keep running.
// It is safe to call Stop multiple times.
func (w *SessionClaimWorker) Stop() {
	w.mu.Lock()
	if w.state != WorkerStateRunning {
		w.mu.Unlock()
		return
	}
	w.state = WorkerStateStopping
	close(w.stopCh)
	done := w.loopDone
	cancel := w.cancelLoop
	w.mu.Unlock()

	select {
	case <-done:
	case <-time.After(w.config.StopTimeout):
		slog.Warn("Claim loop did not stop in time, cancelling", "pod_id", w.podID, "timeout", w.config.StopTimeout)
		cancel()
		<-done
	}
	cancel()

	w.mu.Lock()
	w.state = WorkerStateStopped
	w.mu.Unlock()
	slog.Info("Session claim worker stopped", "pod_id", w.podID)
}

// Shutdown stops claiming and waits for in-flight sessions until ctx is
// done. Sessions still running then are cancelled and given StopTimeout to
// record their outcome. It returns the number of sessions that had to be
// cancelled.
func (w *SessionClaimWorker) Shutdown(ctx context.Context) int {
	w.Stop()

	if active := w.registry.ids(); len(active) > 0 {
		slog.Info("Waiting for in-flight sessions to complete",
			"pod_id", w.podID,
			"count", len(active),
			"session_ids", active)
	}
	if w.waitInFlight(ctx.Done()) {
		return 0
	}

	cancelled := w.CancelInFlight()
	slog.Warn("Graceful shutdown timeout reached, cancelled in-flight sessions",
		"pod_id", w.podID, "count", cancelled)

	waitCtx, cancelWait := context.WithTimeout(context.Background(), w.config.StopTimeout)
	defer cancelWait()
	if !w.waitInFlight(waitCtx.Done()) {
		slog.Warn("In-flight sessions did not finish after cancellation", "pod_id", w.podID)
	}
	return cancelled
}

// waitInFlight reports whether all dispatched sessions finished before
// abort fired.
func (w *SessionClaimWorker) waitInFlight(abort <-chan struct{}) bool {
	done := make(chan struct{})
	go func() {
		w.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-abort:
		return false
	}
}

// CancelSession cancels a session running on this pod.
// Returns true if the session was found here.
func (w *SessionClaimWorker) CancelSession(sessionID string) bool {
	return w.registry.cancel(sessionID)
}

// CancelInFlight cancels every session running on this pod and returns
// how many there were.
func (w *SessionClaimWorker) CancelInFlight() int {
	return w.registry.cancelAll()
}

// Health returns the current worker health status.
func (w *SessionClaimWorker) Health() WorkerHealth {
	w.mu.Lock()
	state := w.state
	w.mu.Unlock()

	ids := w.registry.ids()

	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return WorkerHealth{
		PodID:               w.podID,
		State:               state,
		MaxGlobalConcurrent: w.config.MaxGlobalConcurrent,
		SessionsClaimed:     w.sessionsClaimed,
		DispatchFailures:    w.dispatchFailures,
		InFlight:            len(ids),
		InFlightSessionIDs:  ids,
		LastClaimAt:         w.lastClaimAt,
	}
}

func (w *SessionClaimWorker) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	log := slog.With("pod_id", w.podID)
	log.Info("Claim loop started")

	for {
		select {
		case <-stopCh:
			log.Info("Claim loop shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, claim loop shutting down")
			return
		default:
		}

		err := w.iterate(ctx)
		if err == nil {
			// Claimed one; check for more right away.
			continue
		}
		if !errors.Is(err, ErrNoSessionsAvailable) && !errors.Is(err, ErrAtCapacity) {
			log.Error("Claim loop iteration failed", "error", err)
		}
		w.sleep(ctx, stopCh, w.claimInterval())
	}
}

// iterate runs one claim attempt. Panics are returned as errors so the
// loop survives them.
func (w *SessionClaimWorker) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in claim loop: %v", r)
		}
	}()
	return w.claimAndDispatch(ctx)
}

// claimAndDispatch checks global capacity, claims a session and dispatches it.
func (w *SessionClaimWorker) claimAndDispatch(ctx context.Context) error {
	// The count spans all pods. Two pods may both pass it and overshoot by
	// one claim each until their next iteration.
	active, ok := w.store.CountSessionsByStatus(ctx, models.SessionStatusInProgress)
	if !ok {
		return errors.New("counting in-progress sessions failed")
	}
	if active >= w.config.MaxGlobalConcurrent {
		return ErrAtCapacity
	}

	session := w.store.ClaimNextPendingSession(ctx, w.podID)
	if session == nil {
		return ErrNoSessionsAvailable
	}

	log := slog.With("session_id", session.ID, "pod_id", w.podID)
	log.Info("Session claimed", "alert_type", session.AlertType, "chain_id", session.ChainID)
	w.metrics.SessionsClaimed.Add(ctx, 1)
	w.statsMu.Lock()
	w.sessionsClaimed++
	w.lastClaimAt = time.Now()
	w.statsMu.Unlock()

	cc, err := models.ChainContextFromSession(session)
	if err != nil {
		w.failDispatch(ctx, session.ID, err)
		return nil
	}
	if err := w.dispatch(session.ID, cc); err != nil {
		w.failDispatch(ctx, session.ID, err)
	}
	return nil
}

// dispatch starts the process callback for a session without waiting for it.
func (w *SessionClaimWorker) dispatch(sessionID string, cc *models.ChainContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while dispatching: %v", r)
		}
	}()
	if w.process == nil {
		return errors.New("no session processor configured")
	}

	sessionCtx, cancel := context.WithCancel(w.sessionBase)
	w.registry.register(sessionID, cancel)
	w.inFlight.Add(1)
	w.metrics.InFlightSessions.Add(sessionCtx, 1)

	go func() {
		log := slog.With("session_id", sessionID, "pod_id", w.podID)
		defer func() {
			if r := recover(); r != nil {
				log.Error("Session processor panicked", "panic", r)
				w.markFailed(sessionID, fmt.Sprintf("Session processing panicked: %v", r))
			}
			w.registry.unregister(sessionID)
			cancel()
			w.metrics.InFlightSessions.Add(context.Background(), -1)
			w.inFlight.Done()
		}()

		if err := w.process(sessionCtx, sessionID, cc); err != nil {
			log.Warn("Session processing returned error", "error", err)
		}
	}()
	return nil
}

// failDispatch marks a claimed session FAILED when it never reached the
// processor, so it is not left IN_PROGRESS.
func (w *SessionClaimWorker) failDispatch(ctx context.Context, sessionID string, cause error) {
	slog.Error("Failed to dispatch claimed session", "session_id", sessionID, "pod_id", w.podID, "error", cause)
	w.metrics.DispatchFailures.Add(ctx, 1)
	w.statsMu.Lock()
	w.dispatchFailures++
	w.statsMu.Unlock()
	w.markFailed(sessionID, fmt.Sprintf("Failed to start session processing: %v", cause))
}

func (w *SessionClaimWorker) markFailed(sessionID, message string) {
	if !w.store.UpdateSessionStatus(context.Background(), sessionID, models.SessionStatusFailed, models.SessionStatusUpdate{ErrorMessage: &message}) {
		slog.Error("Failed to mark session as failed", "session_id", sessionID, "pod_id", w.podID)
	}
}

// sleep waits for d or until the loop is stopped.
func (w *SessionClaimWorker) sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stopCh:
	case <-ctx.Done():
	case <-timer.C:
	}
}

// claimInterval returns the sleep duration with jitter.
func (w *SessionClaimWorker) claimInterval() time.Duration {
	base := w.config.ClaimInterval
	jitter := w.config.ClaimIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}
