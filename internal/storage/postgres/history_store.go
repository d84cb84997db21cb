package postgres

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/storage"
)

// HistoryStore implements problem history persistence using PostgreSQL
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new PostgreSQL history store
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// RecordAttempt appends one attempt
func (s *HistoryStore) RecordAttempt(ctx context.Context, a *domain.ProblemAttempt) error {
	query := `
		INSERT INTO problem_attempts (id, user_id, profile_id, subject, difficulty,
			solved, hints_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Exec(ctx, query,
		a.ID, a.Identity.UserID, storage.ProfileColumn(a.Identity), a.Subject,
		string(a.Difficulty), a.Solved, a.HintsUsed, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert attempt %s: %w", a.ID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns the newest attempts for the identity, newest first
func (s *HistoryStore) RecentAttempts(ctx context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error) {
	query := `
		SELECT id, user_id, profile_id, subject, difficulty, solved, hints_used, created_at
		FROM problem_attempts
		WHERE user_id = $1 AND COALESCE(profile_id, '') = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.db.Query(ctx, query, id.UserID, id.ProfileID, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.ProblemAttempt
	for rows.Next() {
		var (
			a          domain.ProblemAttempt
			profileID  *string
			difficulty string
		)
		if err := rows.Scan(&a.ID, &a.Identity.UserID, &profileID, &a.Subject,
			&difficulty, &a.Solved, &a.HintsUsed, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Identity.ProfileID = storage.ProfileFromColumn(profileID)
		a.Difficulty = domain.Difficulty(difficulty)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttempts removes every attempt of the user across profiles
func (s *HistoryStore) DeleteAttempts(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM problem_attempts WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
