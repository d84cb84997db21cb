package local

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/storage"
)

const (
	xpCollection       = "xp"
	streakCollection   = "streaks"
	ownerCollection    = "owners"
	attemptsCollection = "attempts"

	// personalKey names the file of a record without a profile. It cannot
	// collide with an encoded profile because '@' is outside the base64url
	// alphabet.
	personalKey = "@personal"
)

// userKey encodes a user id into a path-safe directory name.
func userKey(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// profileKey is the file name of an identity's record. One file per
// identity gives the same uniqueness the SQL backends get from their index.
func profileKey(id domain.Identity) string {
	if !id.HasProfile() {
		return personalKey
	}
	return base64.RawURLEncoding.EncodeToString([]byte(id.ProfileID))
}

type xpFile struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ProfileID     *string         `json:"profile_id"`
	TotalXP       int             `json:"total_xp"`
	Level         int             `json:"level"`
	XPToNextLevel int             `json:"xp_to_next_level"`
	History       json.RawMessage `json:"xp_history"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type streakFile struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ProfileID     *string   `json:"profile_id"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	LastStudyDate string    `json:"last_study_date,omitempty"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ownerFile struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func profilePtr(id domain.Identity) *string {
	if !id.HasProfile() {
		return nil
	}
	p := id.ProfileID
	return &p
}

// LedgerStore implements ledger persistence on top of the JSON file store.
// Version checks run under a store-wide lock, so concurrent writers in one
// process see the same stale-write semantics as the SQL backends.
type LedgerStore struct {
	store *Store
	mu    sync.Mutex
}

// NewLedgerStore creates a ledger store rooted in the given JSON store
func NewLedgerStore(store *Store) *LedgerStore {
	return &LedgerStore{store: store}
}

// ListXP returns every XP record of the user
func (s *LedgerStore) ListXP(_ context.Context, userID string) ([]*domain.XPRecord, error) {
	collection := path.Join(xpCollection, userKey(userID))
	ids, err := s.store.List(collection)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.XPRecord, 0, len(ids))
	for _, id := range ids {
		var f xpFile
		if err := s.store.Load(collection, id, &f); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		r, err := f.record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *xpFile) record() (*domain.XPRecord, error) {
	history, err := storage.DecodeXPHistory(f.History)
	if err != nil {
		return nil, fmt.Errorf("xp record %s: %w", f.ID, err)
	}
	return &domain.XPRecord{
		ID:            f.ID,
		Identity:      domain.Identity{UserID: f.UserID, ProfileID: storage.ProfileFromColumn(f.ProfileID)},
		TotalXP:       f.TotalXP,
		Level:         f.Level,
		XPToNextLevel: f.XPToNextLevel,
		History:       history,
		Version:       f.Version,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}, nil
}

func newXPFile(r *domain.XPRecord) (*xpFile, error) {
	history, err := storage.EncodeXPHistory(r.History)
	if err != nil {
		return nil, err
	}
	return &xpFile{
		ID:            r.ID,
		UserID:        r.Identity.UserID,
		ProfileID:     profilePtr(r.Identity),
		TotalXP:       r.TotalXP,
		Level:         r.Level,
		XPToNextLevel: r.XPToNextLevel,
		History:       history,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}, nil
}

// InsertXP creates the identity's XP record
func (s *LedgerStore) InsertXP(_ context.Context, r *domain.XPRecord) error {
	f, err := newXPFile(r)
	if err != nil {
		return err
	}
	err = s.store.Create(path.Join(xpCollection, userKey(r.Identity.UserID)), profileKey(r.Identity), f)
	if errors.Is(err, ErrExists) {
		return fmt.Errorf("insert xp record %s: %w", r.Identity, domain.ErrDuplicate)
	}
	return err
}

// UpdateXP replaces the record when the stored version still matches
func (s *LedgerStore) UpdateXP(_ context.Context, r *domain.XPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection := path.Join(xpCollection, userKey(r.Identity.UserID))
	key := profileKey(r.Identity)

	var current xpFile
	if err := s.store.Load(collection, key, &current); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("record %s: %w", r.ID, domain.ErrStaleWrite)
		}
		return err
	}
	if current.ID != r.ID || current.Version != r.Version {
		return fmt.Errorf("record %s: %w", r.ID, domain.ErrStaleWrite)
	}

	f, err := newXPFile(r)
	if err != nil {
		return err
	}
	f.Version = r.Version + 1
	f.CreatedAt = current.CreatedAt
	if err := s.store.Save(collection, key, f); err != nil {
		return err
	}
	r.Version++
	return nil
}

// ListStreaks returns every streak record of the user
func (s *LedgerStore) ListStreaks(_ context.Context, userID string) ([]*domain.StreakRecord, error) {
	collection := path.Join(streakCollection, userKey(userID))
	ids, err := s.store.List(collection)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.StreakRecord, 0, len(ids))
	for _, id := range ids {
		var f streakFile
		if err := s.store.Load(collection, id, &f); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		r := &domain.StreakRecord{
			ID:            f.ID,
			Identity:      domain.Identity{UserID: f.UserID, ProfileID: storage.ProfileFromColumn(f.ProfileID)},
			CurrentStreak: f.CurrentStreak,
			LongestStreak: f.LongestStreak,
			Version:       f.Version,
			CreatedAt:     f.CreatedAt,
			UpdatedAt:     f.UpdatedAt,
		}
		if f.LastStudyDate != "" {
			d, err := storage.ParseDate(f.LastStudyDate)
			if err != nil {
				return nil, fmt.Errorf("streak record %s: %w", f.ID, err)
			}
			r.LastStudyDate = &d
		}
		out = append(out, r)
	}
	return out, nil
}

func newStreakFile(r *domain.StreakRecord) *streakFile {
	f := &streakFile{
		ID:            r.ID,
		UserID:        r.Identity.UserID,
		ProfileID:     profilePtr(r.Identity),
		CurrentStreak: r.CurrentStreak,
		LongestStreak: r.LongestStreak,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.LastStudyDate != nil {
		f.LastStudyDate = domain.DateOf(*r.LastStudyDate).Format(storage.DateLayout)
	}
	return f
}

// InsertStreak creates the identity's streak record
func (s *LedgerStore) InsertStreak(_ context.Context, r *domain.StreakRecord) error {
	err := s.store.Create(path.Join(streakCollection, userKey(r.Identity.UserID)), profileKey(r.Identity), newStreakFile(r))
	if errors.Is(err, ErrExists) {
		return fmt.Errorf("insert streak record %s: %w", r.Identity, domain.ErrDuplicate)
	}
	return err
}

// UpdateStreak replaces the record when the stored version still matches
func (s *LedgerStore) UpdateStreak(_ context.Context, r *domain.StreakRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection := path.Join(streakCollection, userKey(r.Identity.UserID))
	key := profileKey(r.Identity)

	var current streakFile
	if err := s.store.Load(collection, key, &current); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("record %s: %w", r.ID, domain.ErrStaleWrite)
		}
		return err
	}
	if current.ID != r.ID || current.Version != r.Version {
		return fmt.Errorf("record %s: %w", r.ID, domain.ErrStaleWrite)
	}

	f := newStreakFile(r)
	f.Version = r.Version + 1
	f.CreatedAt = current.CreatedAt
	if err := s.store.Save(collection, key, f); err != nil {
		return err
	}
	r.Version++
	return nil
}

// OwnerExists checks for the owner profile record
func (s *LedgerStore) OwnerExists(_ context.Context, userID string) (bool, error) {
	return s.store.Exists(ownerCollection, userKey(userID)), nil
}

// CreateOwner writes the owner profile record
func (s *LedgerStore) CreateOwner(_ context.Context, userID string) error {
	err := s.store.Create(ownerCollection, userKey(userID), ownerFile{UserID: userID, CreatedAt: time.Now().UTC()})
	if errors.Is(err, ErrExists) {
		return domain.ErrDuplicate
	}
	return err
}

// DeleteUser removes XP, streak and owner records for the user
func (s *LedgerStore) DeleteUser(_ context.Context, userID string) (*ledger.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(userID)
	res := &ledger.DeleteResult{}
	var err error
	if res.XPRecords, err = s.store.Purge(path.Join(xpCollection, key)); err != nil {
		return nil, fmt.Errorf("delete xp records: %w", err)
	}
	if res.StreakRecords, err = s.store.Purge(path.Join(streakCollection, key)); err != nil {
		return nil, fmt.Errorf("delete streak records: %w", err)
	}
	switch err := s.store.Delete(ownerCollection, key); {
	case err == nil:
		res.Owners = 1
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("delete owner profile: %w", err)
	}
	return res, nil
}

type attemptFile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ProfileID  *string   `json:"profile_id"`
	Subject    string    `json:"subject"`
	Difficulty string    `json:"difficulty"`
	Solved     bool      `json:"solved"`
	HintsUsed  int       `json:"hints_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryStore keeps problem attempts as one JSON file each
type HistoryStore struct {
	store *Store
}

// NewHistoryStore creates a history store rooted in the given JSON store
func NewHistoryStore(store *Store) *HistoryStore {
	return &HistoryStore{store: store}
}

func attemptsDir(id domain.Identity) string {
	return path.Join(attemptsCollection, userKey(id.UserID), profileKey(id))
}

// RecordAttempt appends one attempt
func (s *HistoryStore) RecordAttempt(_ context.Context, a *domain.ProblemAttempt) error {
	f := attemptFile{
		ID:         a.ID,
		UserID:     a.Identity.UserID,
		ProfileID:  profilePtr(a.Identity),
		Subject:    a.Subject,
		Difficulty: string(a.Difficulty),
		Solved:     a.Solved,
		HintsUsed:  a.HintsUsed,
		CreatedAt:  a.CreatedAt.UTC(),
	}
	err := s.store.Create(attemptsDir(a.Identity), base64.RawURLEncoding.EncodeToString([]byte(a.ID)), f)
	if errors.Is(err, ErrExists) {
		return fmt.Errorf("insert attempt %s: %w", a.ID, domain.ErrDuplicate)
	}
	return err
}

// RecentAttempts returns the newest attempts for the identity, newest first
func (s *HistoryStore) RecentAttempts(_ context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error) {
	dir := attemptsDir(id)
	ids, err := s.store.List(dir)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProblemAttempt, 0, len(ids))
	for _, key := range ids {
		var f attemptFile
		if err := s.store.Load(dir, key, &f); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, domain.ProblemAttempt{
			ID:         f.ID,
			Identity:   domain.Identity{UserID: f.UserID, ProfileID: storage.ProfileFromColumn(f.ProfileID)},
			Subject:    f.Subject,
			Difficulty: domain.Difficulty(f.Difficulty),
			Solved:     f.Solved,
			HintsUsed:  f.HintsUsed,
			CreatedAt:  f.CreatedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteAttempts removes every attempt of the user across profiles
func (s *HistoryStore) DeleteAttempts(_ context.Context, userID string) (int64, error) {
	return s.store.Purge(path.Join(attemptsCollection, userKey(userID)))
}

var (
	_ ledger.Store        = (*LedgerStore)(nil)
	_ ledger.HistoryStore = (*HistoryStore)(nil)
)
