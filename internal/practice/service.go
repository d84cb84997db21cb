package practice

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
)

// DefaultHistoryWindow is how many recent attempts feed a recommendation
const DefaultHistoryWindow = 50

// ProgressReader supplies the learner's level
type ProgressReader interface {
	GetProgress(ctx context.Context, id domain.Identity) (*ledger.Progress, error)
}

// HistoryReader supplies recent problem history, newest first
type HistoryReader interface {
	RecentAttempts(ctx context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error)
}

// Config holds practice service settings
type Config struct {
	HistoryWindow int
	Rotation      []string
	Logger        *slog.Logger
}

// Service answers practice-session and performance requests. It runs on
// demand and keeps no state between calls.
type Service struct {
	progress    ProgressReader
	history     HistoryReader
	recommender *Recommender
	window      int
	logger      *slog.Logger
}

// NewService creates a practice service. history may be nil, in which case
// every session is a cold start.
func NewService(progress ProgressReader, history HistoryReader, cfg Config) *Service {
	s := &Service{
		progress:    progress,
		history:     history,
		recommender: NewRecommender(cfg.Rotation),
		window:      cfg.HistoryWindow,
		logger:      cfg.Logger,
	}
	if s.window <= 0 {
		s.window = DefaultHistoryWindow
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GetRecommendedPracticeSession builds a session plan for id. Storage
// failures degrade to a cold-start plan rather than failing; only invalid
// input is an error.
func (s *Service) GetRecommendedPracticeSession(ctx context.Context, id domain.Identity, sessionType string, count int) (*SessionPlan, error) {
	id, err := id.Canonical()
	if err != nil {
		return nil, err
	}
	st, err := ParseSessionType(sessionType)
	if err != nil {
		return nil, err
	}

	degraded := false
	attempts, err := s.recentAttempts(ctx, id)
	if err != nil {
		s.logger.Warn("problem history unavailable", "identity", id.String(), "error", err)
		attempts = nil
		degraded = true
	}

	level := 1
	if s.progress != nil {
		p, err := s.progress.GetProgress(ctx, id)
		if err != nil {
			s.logger.Warn("progress unavailable for practice session", "identity", id.String(), "error", err)
			degraded = true
		} else {
			level = p.Level
		}
	}

	plan, err := s.recommender.BuildSession(st, count, attempts, level)
	if err != nil {
		return nil, err
	}
	plan.Degraded = degraded

	s.logger.Debug("practice session built",
		"identity", id.String(),
		"type", plan.Type,
		"difficulty", plan.RecommendedDifficulty,
		"problems", len(plan.Problems),
		"cold_start", plan.ColdStart)
	return plan, nil
}

// GetPerformance returns per-subject statistics and the recommended tier.
func (s *Service) GetPerformance(ctx context.Context, id domain.Identity) (*PerformanceReport, error) {
	id, err := id.Canonical()
	if err != nil {
		return nil, err
	}
	attempts, err := s.recentAttempts(ctx, id)
	if err != nil {
		return nil, &domain.OpError{Op: "get performance", Identity: id, Err: err}
	}
	tracker := TrackerFromAttempts(attempts)
	return &PerformanceReport{
		Performance:           Analyze(attempts),
		Tiers:                 tracker.Stats(),
		RecommendedDifficulty: tracker.RecommendedDifficulty(),
	}, nil
}

// PerformanceReport combines subject analysis with per-tier counters
type PerformanceReport struct {
	Performance
	Tiers                 map[domain.Difficulty]TierStats
	RecommendedDifficulty domain.Difficulty
}

func (s *Service) recentAttempts(ctx context.Context, id domain.Identity) ([]domain.ProblemAttempt, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.RecentAttempts(ctx, id, s.window)
}
