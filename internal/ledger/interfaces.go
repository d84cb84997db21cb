package ledger

import (
	"context"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
)

// LedgerService defines the progression operations used by the daemon
// handlers, the MCP tools and the queue dispatcher.
type LedgerService interface {
	// GetProgress returns XP state, or zero-state when none exists
	GetProgress(ctx context.Context, id domain.Identity) (*Progress, error)

	// Award adds delta XP with a free-form reason
	Award(ctx context.Context, id domain.Identity, delta int, reason string) (*domain.AwardResult, error)

	// AwardProblemXP awards XP for a solved problem
	AwardProblemXP(ctx context.Context, id domain.Identity, difficulty domain.Difficulty, hintsUsed int) (*domain.AwardResult, error)

	// AwardLoginBonus awards the daily login bonus
	AwardLoginBonus(ctx context.Context, id domain.Identity, firstLogin bool) (*domain.AwardResult, error)

	// RecordStudyEvent advances the streak for date
	RecordStudyEvent(ctx context.Context, id domain.Identity, date time.Time) (*StreakResult, error)

	// GetStreak returns streak state, or zero-state when none exists
	GetStreak(ctx context.Context, id domain.Identity) (*StreakResult, error)

	// CompleteProblem records an attempt and rewards it when solved
	CompleteProblem(ctx context.Context, attempt domain.ProblemAttempt) (*ProblemOutcome, error)

	// DeleteProgress erases every ledger row for a user
	DeleteProgress(ctx context.Context, userID string) (*DeleteResult, error)
}

// Ensure Service implements LedgerService
var _ LedgerService = (*Service)(nil)

// XPStore persists XP records. Inserts report a uniqueness violation on the
// identity key as domain.ErrDuplicate. Updates only apply while the stored
// version still equals r.Version, then increment r.Version; a lost race is
// reported as domain.ErrStaleWrite.
type XPStore interface {
	// ListXP returns every XP row of the user across all profiles.
	// Callers filter by profile themselves.
	ListXP(ctx context.Context, userID string) ([]*domain.XPRecord, error)
	InsertXP(ctx context.Context, r *domain.XPRecord) error
	UpdateXP(ctx context.Context, r *domain.XPRecord) error
}

// StreakStore persists streak records with the same contract as XPStore.
type StreakStore interface {
	ListStreaks(ctx context.Context, userID string) ([]*domain.StreakRecord, error)
	InsertStreak(ctx context.Context, r *domain.StreakRecord) error
	UpdateStreak(ctx context.Context, r *domain.StreakRecord) error
}

// OwnerStore bootstraps the coarse per-user profile row. Creating an owner
// that already exists returns domain.ErrDuplicate.
type OwnerStore interface {
	OwnerExists(ctx context.Context, userID string) (bool, error)
	CreateOwner(ctx context.Context, userID string) error
}

// Store is the complete row store the ledger needs. The SQLite, Postgres and
// JSON file backends all implement it.
type Store interface {
	XPStore
	StreakStore
	OwnerStore

	// DeleteUser removes XP, streak and owner rows for userID.
	DeleteUser(ctx context.Context, userID string) (*DeleteResult, error)
}

// HistoryStore records and reads problem history.
type HistoryStore interface {
	RecordAttempt(ctx context.Context, a *domain.ProblemAttempt) error

	// RecentAttempts returns up to limit attempts for the identity, newest first.
	RecentAttempts(ctx context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error)

	DeleteAttempts(ctx context.Context, userID string) (int64, error)
}
