package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/storage"
)

// LedgerStore implements ledger persistence backed by SQLite.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new SQLite-backed ledger store.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// ListXP returns every XP row for the user. Profile filtering is left to the
// caller.
func (s *LedgerStore) ListXP(ctx context.Context, userID string) ([]*domain.XPRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, profile_id, total_xp, level, xp_to_next_level,
			xp_history, version, created_at, updated_at
		FROM xp_records WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query xp records: %w", err)
	}
	defer rows.Close()

	var out []*domain.XPRecord
	for rows.Next() {
		var (
			r         domain.XPRecord
			profileID sql.NullString
			history   string
		)
		if err := rows.Scan(&r.ID, &r.Identity.UserID, &profileID, &r.TotalXP, &r.Level,
			&r.XPToNextLevel, &history, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan xp record: %w", err)
		}
		r.Identity.ProfileID = profileFromNull(profileID)
		if r.History, err = storage.DecodeXPHistory([]byte(history)); err != nil {
			return nil, fmt.Errorf("xp record %s: %w", r.ID, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertXP creates a new XP row. A row for the same identity already
// existing is reported as domain.ErrDuplicate.
func (s *LedgerStore) InsertXP(ctx context.Context, r *domain.XPRecord) error {
	history, err := storage.EncodeXPHistory(r.History)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO xp_records (id, user_id, profile_id, total_xp, level,
			xp_to_next_level, xp_history, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Identity.UserID, storage.ProfileColumn(r.Identity), r.TotalXP, r.Level,
		r.XPToNextLevel, string(history), r.Version, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert xp record %s: %w", r.Identity, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert xp record: %w", err)
	}
	return nil
}

// UpdateXP overwrites the row if nobody else wrote it since it was read.
func (s *LedgerStore) UpdateXP(ctx context.Context, r *domain.XPRecord) error {
	history, err := storage.EncodeXPHistory(r.History)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE xp_records SET
			total_xp = ?, level = ?, xp_to_next_level = ?, xp_history = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.TotalXP, r.Level, r.XPToNextLevel, string(history), r.UpdatedAt.UTC(),
		r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update xp record: %w", err)
	}
	if err := checkVersioned(res, r.ID); err != nil {
		return err
	}
	r.Version++
	return nil
}

// ListStreaks returns every streak row for the user.
func (s *LedgerStore) ListStreaks(ctx context.Context, userID string) ([]*domain.StreakRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, profile_id, current_streak, longest_streak,
			last_study_date, version, created_at, updated_at
		FROM streak_records WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query streak records: %w", err)
	}
	defer rows.Close()

	var out []*domain.StreakRecord
	for rows.Next() {
		var (
			r         domain.StreakRecord
			profileID sql.NullString
			lastStudy sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Identity.UserID, &profileID, &r.CurrentStreak,
			&r.LongestStreak, &lastStudy, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan streak record: %w", err)
		}
		r.Identity.ProfileID = profileFromNull(profileID)
		if lastStudy.Valid && lastStudy.String != "" {
			d, err := storage.ParseDate(lastStudy.String)
			if err != nil {
				return nil, fmt.Errorf("streak record %s: %w", r.ID, err)
			}
			r.LastStudyDate = &d
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertStreak creates a new streak row, reporting domain.ErrDuplicate when
// the identity already has one.
func (s *LedgerStore) InsertStreak(ctx context.Context, r *domain.StreakRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO streak_records (id, user_id, profile_id, current_streak,
			longest_streak, last_study_date, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Identity.UserID, storage.ProfileColumn(r.Identity), r.CurrentStreak,
		r.LongestStreak, storage.FormatDate(r.LastStudyDate), r.Version,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert streak record %s: %w", r.Identity, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert streak record: %w", err)
	}
	return nil
}

// UpdateStreak overwrites the row if its version still matches.
func (s *LedgerStore) UpdateStreak(ctx context.Context, r *domain.StreakRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE streak_records SET
			current_streak = ?, longest_streak = ?, last_study_date = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.CurrentStreak, r.LongestStreak, storage.FormatDate(r.LastStudyDate),
		r.UpdatedAt.UTC(), r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update streak record: %w", err)
	}
	if err := checkVersioned(res, r.ID); err != nil {
		return err
	}
	r.Version++
	return nil
}

// OwnerExists checks for the owner profile row.
func (s *LedgerStore) OwnerExists(ctx context.Context, userID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM owner_profiles WHERE user_id = ?)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check owner profile: %w", err)
	}
	return exists == 1, nil
}

// CreateOwner inserts the owner profile row.
func (s *LedgerStore) CreateOwner(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO owner_profiles (user_id, created_at) VALUES (?, ?)", userID, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create owner profile: %w", err)
	}
	return nil
}

// DeleteUser removes XP, streak and owner rows for the user in one transaction.
func (s *LedgerStore) DeleteUser(ctx context.Context, userID string) (*ledger.DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res := &ledger.DeleteResult{}
	counts := []struct {
		query string
		n     *int64
	}{
		{"DELETE FROM xp_records WHERE user_id = ?", &res.XPRecords},
		{"DELETE FROM streak_records WHERE user_id = ?", &res.StreakRecords},
		{"DELETE FROM owner_profiles WHERE user_id = ?", &res.Owners},
	}
	for _, c := range counts {
		r, err := tx.ExecContext(ctx, c.query, userID)
		if err != nil {
			return nil, fmt.Errorf("delete user rows: %w", err)
		}
		if *c.n, err = r.RowsAffected(); err != nil {
			return nil, fmt.Errorf("delete user rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return res, nil
}

func checkVersioned(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, domain.ErrStaleWrite)
	}
	return nil
}

func profileFromNull(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return storage.ProfileFromColumn(&ns.String)
}
