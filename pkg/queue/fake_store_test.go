package queue

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// fakeStore is an in-memory SessionStore.
type fakeStore struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	pending    []string
	countFails bool
	getFails   bool
	countHook  func(ctx context.Context)
	heartbeats map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:   make(map[string]*models.Session),
		heartbeats: make(map[string]int),
	}
}

func (f *fakeStore) add(s *models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	if s.Status == models.SessionStatusPending {
		f.pending = append(f.pending, s.ID)
	}
}

func (f *fakeStore) status(id string) models.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].Status
}

func (f *fakeStore) errorMessage(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].ErrorMessage
}

func (f *fakeStore) heartbeatCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats[id]
}

func (f *fakeStore) CountSessionsByStatus(ctx context.Context, status models.SessionStatus) (int, bool) {
	if f.countHook != nil {
		f.countHook(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countFails {
		return 0, false
	}
	n := 0
	for _, s := range f.sessions {
		if s.Status == status {
			n++
		}
	}
	return n, true
}

func (f *fakeStore) ClaimNextPendingSession(_ context.Context, podID string) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil
	}
	id := f.pending[0]
	f.pending = f.pending[1:]
	s := f.sessions[id]
	s.Status = models.SessionStatusInProgress
	s.PodID = podID
	cp := *s
	return &cp
}

func (f *fakeStore) GetSession(_ context.Context, sessionID string) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getFails {
		return nil
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (f *fakeStore) UpdateSessionStatus(_ context.Context, sessionID string, status models.SessionStatus, upd models.SessionStatusUpdate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || !models.CanTransition(s.Status, status) {
		return false
	}
	s.Status = status
	if upd.ErrorMessage != nil {
		s.ErrorMessage = *upd.ErrorMessage
	}
	return true
}

func (f *fakeStore) failLookups() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getFails = true
}

func (f *fakeStore) RecordSessionInteraction(_ context.Context, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats[sessionID]++
	return true
}

func pendingSession(id string) *models.Session {
	return &models.Session{
		ID:        id,
		AlertType: "PodCrashLoop",
		ChainID:   "kubernetes-agent-chain",
		Status:    models.SessionStatusPending,
		AlertData: []byte(`{"pod":"api-0"}`),
	}
}
