package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/google/uuid"
)

// DefaultOpTimeout bounds a ledger operation whose context has no deadline.
const DefaultOpTimeout = 5 * time.Second

// Award reasons recorded in XP history
const (
	ReasonProblemSolved = "problem_solved"
	ReasonFirstLogin    = "first_login"
	ReasonDailyLogin    = "daily_login"
)

// Progress is the read model returned by GetProgress
type Progress struct {
	Identity      domain.Identity
	TotalXP       int
	Level         int
	XPToNextLevel int
	History       []domain.XPEntry
	Exists        bool // false for zero-state
	Inherited     bool // read from the personal row; the sub-profile has none yet
}

// StreakResult is the streak state after a read or a study event
type StreakResult struct {
	Identity      domain.Identity
	CurrentStreak int
	LongestStreak int
	LastStudyDate *time.Time
	Outcome       domain.StreakOutcome // empty for reads
	Inherited     bool                 // read from the personal row
}

// ProblemOutcome is the result of CompleteProblem
type ProblemOutcome struct {
	Attempt domain.ProblemAttempt
	Award   *domain.AwardResult // nil when the problem was not solved
	Streak  *StreakResult       // nil when the problem was not solved
}

// DeleteResult counts rows removed by DeleteProgress
type DeleteResult struct {
	XPRecords       int64
	StreakRecords   int64
	Owners          int64
	ProblemAttempts int64
}

// Config holds service settings
type Config struct {
	Retry     RetryConfig
	OpTimeout time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service is the progression ledger. It holds no per-identity state between
// calls; every write re-reads storage and relies on the store's uniqueness
// and version checks plus bounded retry for correctness.
type Service struct {
	store     Store
	history   HistoryStore
	resolver  *Resolver
	retry     RetryConfig
	opTimeout time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a ledger service. store may be nil, in which case reads
// return zero-state and writes fail with domain.ErrNotConfigured. history may
// be nil when problem history is not kept.
func NewService(store Store, history HistoryStore, cfg Config) *Service {
	s := &Service{
		store:     store,
		history:   history,
		retry:     cfg.Retry.withDefaults(),
		opTimeout: cfg.OpTimeout,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.opTimeout <= 0 {
		s.opTimeout = DefaultOpTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if store != nil {
		s.resolver = NewResolver(store, store)
	}
	return s
}

// Configured reports whether a store is attached
func (s *Service) Configured() bool {
	return s.store != nil
}

// GetProgress returns the XP state for id. A sub-profile without a record of
// its own reads the personal record. A missing record or a missing store
// yields zero-state, not an error.
func (s *Service) GetProgress(ctx context.Context, id domain.Identity) (*Progress, error) {
	id, err := id.Canonical()
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return zeroProgress(id), nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rec, err := s.resolver.ReadXP(ctx, id)
	observeOp("get_progress", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("get progress failed", "identity", id.String(), "error", err)
		return nil, &domain.OpError{Op: "get progress", Identity: id, Err: err}
	}
	if rec == nil {
		return zeroProgress(id), nil
	}

	return &Progress{
		Identity:      id,
		TotalXP:       rec.TotalXP,
		Level:         rec.Level,
		XPToNextLevel: rec.XPToNextLevel,
		History:       rec.History,
		Exists:        true,
		Inherited:     rec.Identity.ProfileID != id.ProfileID,
	}, nil
}

func zeroProgress(id domain.Identity) *Progress {
	return &Progress{
		Identity:      id,
		Level:         1,
		XPToNextLevel: domain.XPToNextLevel(1, 0),
		History:       []domain.XPEntry{},
	}
}

// Award adds delta XP to the identity's record, creating it on first use.
// A conflicting concurrent write causes the whole read-compute-write to be
// repeated so the other writer's XP is never lost.
func (s *Service) Award(ctx context.Context, id domain.Identity, delta int, reason string) (*domain.AwardResult, error) {
	return s.awardFor(ctx, id, delta, reason, "")
}

// awardFor is Award with an optional attempt id. When attemptID is set and
// the record already holds its award, nothing is written and the result is
// nil.
func (s *Service) awardFor(ctx context.Context, id domain.Identity, delta int, reason, attemptID string) (*domain.AwardResult, error) {
	id, err := id.Canonical()
	if err != nil {
		return nil, err
	}
	if delta < 0 {
		return nil, &domain.ValidationError{Field: "xp", Reason: "must not be negative", Err: domain.ErrNegativeXP}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reason", "must not be empty")
	}
	if s.store == nil {
		return nil, &domain.OpError{Op: "award", Identity: id, Err: domain.ErrNotConfigured}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.award(ctx, id, delta, reason, attemptID)
	observeOp("award", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("award failed", "identity", id.String(), "xp", delta, "reason", reason, "error", err)
		return nil, &domain.OpError{Op: "award", Identity: id, Err: err}
	}
	if res == nil {
		s.logger.Debug("award already applied", "identity", id.String(), "attempt_id", attemptID)
		return nil, nil
	}

	xpAwarded.WithLabelValues(reason).Add(float64(res.XPGained))
	if res.LeveledUp {
		levelUps.Inc()
		s.logger.Info("level up", "identity", id.String(), "level", res.NewLevel, "total_xp", res.NewTotal)
	}
	return res, nil
}

func (s *Service) award(ctx context.Context, id domain.Identity, delta int, reason, attemptID string) (*domain.AwardResult, error) {
	if err := s.ensureOwner(ctx, id.UserID); err != nil {
		return nil, err
	}

	return retryOnConflict(ctx, s.retry, s.logger, "award", func(ctx context.Context) (*domain.AwardResult, error) {
		rec, err := s.resolver.LoadXP(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			rec = domain.NewXPRecord(id)
		}
		if rec.AwardedFor(attemptID) {
			return nil, nil
		}

		res, err := rec.Apply(delta, reason, s.now())
		if err != nil {
			return nil, err
		}
		rec.History[len(rec.History)-1].AttemptID = attemptID
		if err := s.persistXP(ctx, rec); err != nil {
			return nil, err
		}
		return &res, nil
	})
}

// persistXP writes the whole record: insert when new, version-guarded
// update otherwise.
func (s *Service) persistXP(ctx context.Context, rec *domain.XPRecord) error {
	if rec.IsNew() {
		rec.ID = uuid.NewString()
		rec.Version = 1
		if err := s.store.InsertXP(ctx, rec); err != nil {
			return fmt.Errorf("insert xp record: %w", err)
		}
		return nil
	}
	if err := s.store.UpdateXP(ctx, rec); err != nil {
		return fmt.Errorf("update xp record: %w", err)
	}
	return nil
}

// AwardProblemXP awards max(5, round(15 * multiplier - 2 * hints)) XP
func (s *Service) AwardProblemXP(ctx context.Context, id domain.Identity, difficulty domain.Difficulty, hintsUsed int) (*domain.AwardResult, error) {
	if !difficulty.Valid() {
		return nil, &domain.ValidationError{Field: "difficulty", Reason: string(difficulty), Err: domain.ErrUnknownDifficulty}
	}
	if hintsUsed < 0 {
		return nil, domain.NewValidationError("hints_used", "must not be negative")
	}
	return s.Award(ctx, id, domain.ProblemXP(difficulty, hintsUsed), ReasonProblemSolved)
}

// AwardLoginBonus awards the first-login or daily-login bonus
func (s *Service) AwardLoginBonus(ctx context.Context, id domain.Identity, firstLogin bool) (*domain.AwardResult, error) {
	reason := ReasonDailyLogin
	if firstLogin {
		reason = ReasonFirstLogin
	}
	return s.Award(ctx, id, domain.LoginBonus(firstLogin), reason)
}

// GetStreak returns the streak state for id, zero-state when absent.
func (s *Service) GetStreak(ctx context.Context, id domain.Identity) (*StreakResult, error) {
	id, err := id.Canonical()
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return &StreakResult{Identity: id}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.resolver.ReadStreak(ctx, id)
	if err != nil {
		s.logger.Error("get streak failed", "identity", id.String(), "error", err)
		return nil, &domain.OpError{Op: "get streak", Identity: id, Err: err}
	}
	if rec == nil {
		return &StreakResult{Identity: id}, nil
	}
	res := streakResult(rec, "")
	res.Identity = id
	res.Inherited = rec.Identity.ProfileID != id.ProfileID
	return res, nil
}

// RecordStudyEvent advances the streak for a study event on date. A zero
// date means today. Repeated events on the same day do not write.
func (s *Service) RecordStudyEvent(ctx context.Context, id domain.Identity, date time.Time) (*StreakResult, error) {
	return s.recordStudyEvent(ctx, id, date, false)
}

// recordStudyEvent is RecordStudyEvent. With replay set, a date the streak
// has already passed is a noop instead of a reset, so redelivering an old
// event cannot break a streak that moved on.
func (s *Service) recordStudyEvent(ctx context.Context, id domain.Identity, date time.Time, replay bool) (*StreakResult, error) {
	id, err := id.Canonical()
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, &domain.OpError{Op: "record study", Identity: id, Err: domain.ErrNotConfigured}
	}
	if date.IsZero() {
		date = s.now()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.recordStudy(ctx, id, date, replay)
	observeOp("record_study", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("record study failed", "identity", id.String(), "date", domain.DateOf(date).Format(time.DateOnly), "error", err)
		return nil, &domain.OpError{Op: "record study", Identity: id, Err: err}
	}

	streakEvents.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (s *Service) recordStudy(ctx context.Context, id domain.Identity, date time.Time, replay bool) (*StreakResult, error) {
	if err := s.ensureOwner(ctx, id.UserID); err != nil {
		return nil, err
	}

	return retryOnConflict(ctx, s.retry, s.logger, "record_study", func(ctx context.Context) (*StreakResult, error) {
		rec, err := s.resolver.LoadStreak(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			rec = domain.NewStreakRecord(id)
		}
		if replay && rec.LastStudyDate != nil && !domain.DateOf(date).After(domain.DateOf(*rec.LastStudyDate)) {
			return streakResult(rec, domain.StreakNoop), nil
		}

		outcome := rec.Advance(date)
		if !outcome.Changed() {
			return streakResult(rec, outcome), nil
		}

		now := s.now()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if err := s.persistStreak(ctx, rec); err != nil {
			return nil, err
		}
		return streakResult(rec, outcome), nil
	})
}

func (s *Service) persistStreak(ctx context.Context, rec *domain.StreakRecord) error {
	if rec.IsNew() {
		rec.ID = uuid.NewString()
		rec.Version = 1
		if err := s.store.InsertStreak(ctx, rec); err != nil {
			return fmt.Errorf("insert streak record: %w", err)
		}
		return nil
	}
	if err := s.store.UpdateStreak(ctx, rec); err != nil {
		return fmt.Errorf("update streak record: %w", err)
	}
	return nil
}

func streakResult(rec *domain.StreakRecord, outcome domain.StreakOutcome) *StreakResult {
	return &StreakResult{
		Identity:      rec.Identity,
		CurrentStreak: rec.CurrentStreak,
		LongestStreak: rec.LongestStreak,
		LastStudyDate: rec.LastStudyDate,
		Outcome:       outcome,
	}
}

// CompleteProblem records a problem attempt in history. A solved attempt is
// also rewarded with problem XP and counts as a study event on its date.
//
// The attempt id makes the call safe to repeat. When history already holds
// the id, the call finishes whatever an earlier try left undone: the award is
// skipped if the XP history carries it, and a study date the streak already
// covers is not applied again. A repeat with nothing left to do fails with
// domain.ErrDuplicate.
func (s *Service) CompleteProblem(ctx context.Context, attempt domain.ProblemAttempt) (*ProblemOutcome, error) {
	attempt.Subject = domain.NormalizeSubject(attempt.Subject)
	if err := attempt.Validate(); err != nil {
		return nil, err
	}
	attempt.Identity, _ = attempt.Identity.Canonical()
	if s.store == nil {
		return nil, &domain.OpError{Op: "complete problem", Identity: attempt.Identity, Err: domain.ErrNotConfigured}
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}

	var replayErr error
	if s.history != nil {
		hctx, cancel := s.withTimeout(ctx)
		err := s.history.RecordAttempt(hctx, &attempt)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrDuplicate) && attempt.Solved:
			replayErr = fmt.Errorf("record attempt: %w", err)
			s.logger.Info("resuming repeated attempt", "identity", attempt.Identity.String(), "attempt_id", attempt.ID)
		default:
			s.logger.Error("record attempt failed", "identity", attempt.Identity.String(), "subject", attempt.Subject, "error", err)
			return nil, &domain.OpError{Op: "complete problem", Identity: attempt.Identity, Err: fmt.Errorf("record attempt: %w", err)}
		}
	}

	outcome := &ProblemOutcome{Attempt: attempt}
	if !attempt.Solved {
		return outcome, nil
	}

	xp := domain.ProblemXP(attempt.Difficulty, attempt.HintsUsed)
	award, err := s.awardFor(ctx, attempt.Identity, xp, ReasonProblemSolved, attempt.ID)
	if err != nil {
		return nil, err
	}
	outcome.Award = award

	streak, err := s.recordStudyEvent(ctx, attempt.Identity, attempt.CreatedAt, replayErr != nil)
	if err != nil {
		return nil, err
	}
	outcome.Streak = streak

	if replayErr != nil && award == nil && streak.Outcome == domain.StreakNoop {
		return nil, &domain.OpError{Op: "complete problem", Identity: attempt.Identity, Err: replayErr}
	}
	return outcome, nil
}

// DeleteProgress erases XP, streak, owner and history rows for userID across
// every profile. It is used by account erasure only.
func (s *Service) DeleteProgress(ctx context.Context, userID string) (*DeleteResult, error) {
	id, err := domain.ParseIdentity(userID, "")
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, &domain.OpError{Op: "delete progress", Identity: id, Err: domain.ErrNotConfigured}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.store.DeleteUser(ctx, id.UserID)
	if err != nil {
		s.logger.Error("delete progress failed", "user_id", id.UserID, "error", err)
		return nil, &domain.OpError{Op: "delete progress", Identity: id, Err: err}
	}
	if s.history != nil {
		n, err := s.history.DeleteAttempts(ctx, id.UserID)
		if err != nil {
			s.logger.Error("delete problem history failed", "user_id", id.UserID, "error", err)
			return nil, &domain.OpError{Op: "delete progress", Identity: id, Err: fmt.Errorf("delete attempts: %w", err)}
		}
		res.ProblemAttempts = n
	}

	s.logger.Info("progress deleted",
		"user_id", id.UserID,
		"xp_records", res.XPRecords,
		"streak_records", res.StreakRecords,
		"problem_attempts", res.ProblemAttempts)
	return res, nil
}

// ensureOwner makes sure the owner profile row exists. Losing the creation
// race to another writer counts as success.
func (s *Service) ensureOwner(ctx context.Context, userID string) error {
	exists, err := s.store.OwnerExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("check owner profile: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.store.CreateOwner(ctx, userID); err != nil && !errors.Is(err, domain.ErrDuplicate) {
		return fmt.Errorf("create owner profile: %w", err)
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
