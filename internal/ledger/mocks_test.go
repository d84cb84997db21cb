package ledger

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/progression/internal/domain"
)

// memStore is an in-memory Store with the same uniqueness and version
// semantics as the SQL backends. The hook fields let tests inject failures.
type memStore struct {
	mu      sync.Mutex
	xp      map[string]*domain.XPRecord     // by id
	streaks map[string]*domain.StreakRecord // by id
	owners  map[string]bool

	insertXPCalls int
	updateXPCalls int

	insertXPFn    func(r *domain.XPRecord) error
	updateXPFn    func(r *domain.XPRecord) error
	createOwnerFn func(userID string) error
	listXPFn      func(ctx context.Context, userID string) error
}

func newMemStore() *memStore {
	return &memStore{
		xp:      make(map[string]*domain.XPRecord),
		streaks: make(map[string]*domain.StreakRecord),
		owners:  make(map[string]bool),
	}
}

func key(id domain.Identity) string {
	return id.UserID + "\x00" + domain.NormalizeProfileID(id.ProfileID)
}

func (m *memStore) ListXP(ctx context.Context, userID string) ([]*domain.XPRecord, error) {
	if m.listXPFn != nil {
		if err := m.listXPFn(ctx, userID); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.XPRecord
	for _, r := range m.xp {
		if r.Identity.UserID == userID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memStore) InsertXP(ctx context.Context, r *domain.XPRecord) error {
	m.mu.Lock()
	m.insertXPCalls++
	m.mu.Unlock()
	if m.insertXPFn != nil {
		if err := m.insertXPFn(r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.xp {
		if key(existing.Identity) == key(r.Identity) {
			return domain.ErrDuplicate
		}
	}
	m.xp[r.ID] = r.Clone()
	return nil
}

func (m *memStore) UpdateXP(ctx context.Context, r *domain.XPRecord) error {
	m.mu.Lock()
	m.updateXPCalls++
	m.mu.Unlock()
	if m.updateXPFn != nil {
		if err := m.updateXPFn(r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.xp[r.ID]
	if !ok || existing.Version != r.Version {
		return domain.ErrStaleWrite
	}
	r.Version++
	m.xp[r.ID] = r.Clone()
	return nil
}

func (m *memStore) ListStreaks(ctx context.Context, userID string) ([]*domain.StreakRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.StreakRecord
	for _, r := range m.streaks {
		if r.Identity.UserID == userID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memStore) InsertStreak(ctx context.Context, r *domain.StreakRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.streaks {
		if key(existing.Identity) == key(r.Identity) {
			return domain.ErrDuplicate
		}
	}
	m.streaks[r.ID] = r.Clone()
	return nil
}

func (m *memStore) UpdateStreak(ctx context.Context, r *domain.StreakRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.streaks[r.ID]
	if !ok || existing.Version != r.Version {
		return domain.ErrStaleWrite
	}
	r.Version++
	m.streaks[r.ID] = r.Clone()
	return nil
}

func (m *memStore) OwnerExists(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[userID], nil
}

func (m *memStore) CreateOwner(ctx context.Context, userID string) error {
	if m.createOwnerFn != nil {
		if err := m.createOwnerFn(userID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[userID] {
		return domain.ErrDuplicate
	}
	m.owners[userID] = true
	return nil
}

func (m *memStore) DeleteUser(ctx context.Context, userID string) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &DeleteResult{}
	for id, r := range m.xp {
		if r.Identity.UserID == userID {
			delete(m.xp, id)
			res.XPRecords++
		}
	}
	for id, r := range m.streaks {
		if r.Identity.UserID == userID {
			delete(m.streaks, id)
			res.StreakRecords++
		}
	}
	if m.owners[userID] {
		delete(m.owners, userID)
		res.Owners++
	}
	return res, nil
}

func (m *memStore) xpRows(id domain.Identity) []*domain.XPRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.XPRecord
	for _, r := range m.xp {
		if key(r.Identity) == key(id) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memStore) streakRows(id domain.Identity) []*domain.StreakRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.StreakRecord
	for _, r := range m.streaks {
		if key(r.Identity) == key(id) {
			out = append(out, r)
		}
	}
	return out
}

// mockHistory implements HistoryStore
type mockHistory struct {
	mu       sync.Mutex
	attempts []domain.ProblemAttempt

	recordFn func(a *domain.ProblemAttempt) error
}

func (h *mockHistory) RecordAttempt(ctx context.Context, a *domain.ProblemAttempt) error {
	if h.recordFn != nil {
		if err := h.recordFn(a); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.attempts {
		if existing.ID == a.ID {
			return domain.ErrDuplicate
		}
	}
	h.attempts = append(h.attempts, *a)
	return nil
}

func (h *mockHistory) RecentAttempts(ctx context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.ProblemAttempt
	for i := len(h.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if h.attempts[i].Identity == id {
			out = append(out, h.attempts[i])
		}
	}
	return out, nil
}

func (h *mockHistory) DeleteAttempts(ctx context.Context, userID string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var kept []domain.ProblemAttempt
	var n int64
	for _, a := range h.attempts {
		if a.Identity.UserID == userID {
			n++
			continue
		}
		kept = append(kept, a)
	}
	h.attempts = kept
	return n, nil
}
