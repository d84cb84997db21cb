package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/storage"
	"github.com/jackc/pgx/v5/pgconn"
)

// LedgerStore implements ledger persistence using PostgreSQL
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new PostgreSQL ledger store
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// ListXP returns every XP row for the user
func (s *LedgerStore) ListXP(ctx context.Context, userID string) ([]*domain.XPRecord, error) {
	query := `
		SELECT id::text, user_id, profile_id, total_xp, level, xp_to_next_level,
			xp_history, version, created_at, updated_at
		FROM xp_records WHERE user_id = $1
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query xp records: %w", err)
	}
	defer rows.Close()

	var out []*domain.XPRecord
	for rows.Next() {
		var (
			r         domain.XPRecord
			profileID *string
			history   []byte
		)
		if err := rows.Scan(&r.ID, &r.Identity.UserID, &profileID, &r.TotalXP, &r.Level,
			&r.XPToNextLevel, &history, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan xp record: %w", err)
		}
		r.Identity.ProfileID = storage.ProfileFromColumn(profileID)
		if r.History, err = storage.DecodeXPHistory(history); err != nil {
			return nil, fmt.Errorf("xp record %s: %w", r.ID, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertXP creates the XP row, reporting domain.ErrDuplicate on an identity collision
func (s *LedgerStore) InsertXP(ctx context.Context, r *domain.XPRecord) error {
	history, err := storage.EncodeXPHistory(r.History)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO xp_records (id, user_id, profile_id, total_xp, level,
			xp_to_next_level, xp_history, version, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
	`
	_, err = s.db.Exec(ctx, query,
		r.ID, r.Identity.UserID, storage.ProfileColumn(r.Identity), r.TotalXP, r.Level,
		r.XPToNextLevel, string(history), r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert xp record %s: %w", r.Identity, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert xp record: %w", err)
	}
	return nil
}

// UpdateXP overwrites the row when its version is unchanged
func (s *LedgerStore) UpdateXP(ctx context.Context, r *domain.XPRecord) error {
	history, err := storage.EncodeXPHistory(r.History)
	if err != nil {
		return err
	}
	query := `
		UPDATE xp_records SET
			total_xp = $1, level = $2, xp_to_next_level = $3, xp_history = $4::jsonb,
			version = version + 1, updated_at = $5
		WHERE id = $6::uuid AND version = $7
	`
	tag, err := s.db.Exec(ctx, query,
		r.TotalXP, r.Level, r.XPToNextLevel, string(history), r.UpdatedAt, r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update xp record: %w", err)
	}
	if err := checkVersioned(tag, r.ID); err != nil {
		return err
	}
	r.Version++
	return nil
}

// ListStreaks returns every streak row for the user
func (s *LedgerStore) ListStreaks(ctx context.Context, userID string) ([]*domain.StreakRecord, error) {
	query := `
		SELECT id::text, user_id, profile_id, current_streak, longest_streak,
			last_study_date, version, created_at, updated_at
		FROM streak_records WHERE user_id = $1
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query streak records: %w", err)
	}
	defer rows.Close()

	var out []*domain.StreakRecord
	for rows.Next() {
		var (
			r         domain.StreakRecord
			profileID *string
			lastStudy *time.Time
		)
		if err := rows.Scan(&r.ID, &r.Identity.UserID, &profileID, &r.CurrentStreak,
			&r.LongestStreak, &lastStudy, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan streak record: %w", err)
		}
		r.Identity.ProfileID = storage.ProfileFromColumn(profileID)
		if lastStudy != nil {
			d := domain.DateOf(*lastStudy)
			r.LastStudyDate = &d
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertStreak creates the streak row, reporting domain.ErrDuplicate on an identity collision
func (s *LedgerStore) InsertStreak(ctx context.Context, r *domain.StreakRecord) error {
	query := `
		INSERT INTO streak_records (id, user_id, profile_id, current_streak,
			longest_streak, last_study_date, version, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::date, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		r.ID, r.Identity.UserID, storage.ProfileColumn(r.Identity), r.CurrentStreak,
		r.LongestStreak, storage.FormatDate(r.LastStudyDate), r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert streak record %s: %w", r.Identity, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert streak record: %w", err)
	}
	return nil
}

// UpdateStreak overwrites the row when its version is unchanged
func (s *LedgerStore) UpdateStreak(ctx context.Context, r *domain.StreakRecord) error {
	query := `
		UPDATE streak_records SET
			current_streak = $1, longest_streak = $2, last_study_date = $3::date,
			version = version + 1, updated_at = $4
		WHERE id = $5::uuid AND version = $6
	`
	tag, err := s.db.Exec(ctx, query,
		r.CurrentStreak, r.LongestStreak, storage.FormatDate(r.LastStudyDate),
		r.UpdatedAt, r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update streak record: %w", err)
	}
	if err := checkVersioned(tag, r.ID); err != nil {
		return err
	}
	r.Version++
	return nil
}

// OwnerExists checks for the owner profile row
func (s *LedgerStore) OwnerExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM owner_profiles WHERE user_id = $1)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check owner profile: %w", err)
	}
	return exists, nil
}

// CreateOwner inserts the owner profile row
func (s *LedgerStore) CreateOwner(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO owner_profiles (user_id, created_at) VALUES ($1, $2)", userID, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create owner profile: %w", err)
	}
	return nil
}

// DeleteUser removes XP, streak and owner rows for the user in one transaction
func (s *LedgerStore) DeleteUser(ctx context.Context, userID string) (*ledger.DeleteResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	res := &ledger.DeleteResult{}
	counts := []struct {
		query string
		n     *int64
	}{
		{"DELETE FROM xp_records WHERE user_id = $1", &res.XPRecords},
		{"DELETE FROM streak_records WHERE user_id = $1", &res.StreakRecords},
		{"DELETE FROM owner_profiles WHERE user_id = $1", &res.Owners},
	}
	for _, c := range counts {
		tag, err := tx.Exec(ctx, c.query, userID)
		if err != nil {
			return nil, fmt.Errorf("delete user rows: %w", err)
		}
		*c.n = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return res, nil
}

func checkVersioned(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, domain.ErrStaleWrite)
	}
	return nil
}
