package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/storage"
)

// HistoryStore implements problem history persistence backed by SQLite.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new SQLite-backed history store.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// RecordAttempt appends one attempt.
func (s *HistoryStore) RecordAttempt(ctx context.Context, a *domain.ProblemAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO problem_attempts (id, user_id, profile_id, subject, difficulty,
			solved, hints_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Identity.UserID, storage.ProfileColumn(a.Identity), a.Subject,
		string(a.Difficulty), a.Solved, a.HintsUsed, a.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert attempt %s: %w", a.ID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns the newest attempts for the identity. History rows
// are append-only and never raced, so the profile predicate is pushed down
// through the same COALESCE expression the index uses.
func (s *HistoryStore) RecentAttempts(ctx context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, profile_id, subject, difficulty, solved, hints_used, created_at
		FROM problem_attempts
		WHERE user_id = ? AND COALESCE(profile_id, '') = ?
		ORDER BY created_at DESC
		LIMIT ?`, id.UserID, id.ProfileID, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.ProblemAttempt
	for rows.Next() {
		var (
			a          domain.ProblemAttempt
			profileID  sql.NullString
			difficulty string
		)
		if err := rows.Scan(&a.ID, &a.Identity.UserID, &profileID, &a.Subject,
			&difficulty, &a.Solved, &a.HintsUsed, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Identity.ProfileID = profileFromNull(profileID)
		a.Difficulty = domain.Difficulty(difficulty)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttempts removes every attempt of the user across profiles.
func (s *HistoryStore) DeleteAttempts(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM problem_attempts WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return res.RowsAffected()
}
