package practice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
)

type mockProgress struct {
	getProgressFn func(ctx context.Context, id domain.Identity) (*ledger.Progress, error)
}

func (m *mockProgress) GetProgress(ctx context.Context, id domain.Identity) (*ledger.Progress, error) {
	if m.getProgressFn != nil {
		return m.getProgressFn(ctx, id)
	}
	return &ledger.Progress{Identity: id, Level: 1}, nil
}

type mockHistory struct {
	recentFn func(ctx context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error)
}

func (m *mockHistory) RecentAttempts(ctx context.Context, id domain.Identity, limit int) ([]domain.ProblemAttempt, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, id, limit)
	}
	return nil, nil
}

func newTestService(progress ProgressReader, history HistoryReader) *Service {
	return NewService(progress, history, Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestService_GetRecommendedPracticeSession(t *testing.T) {
	id := domain.Identity{UserID: "u1", ProfileID: "kid"}
	var gotLimit int
	history := &mockHistory{
		recentFn: func(ctx context.Context, got domain.Identity, limit int) ([]domain.ProblemAttempt, error) {
			gotLimit = limit
			if got != id {
				t.Errorf("identity = %v; want %v", got, id)
			}
			return append(attempts("geometry", domain.DifficultyMiddle, 1, 2), attempts("algebra", domain.DifficultyMiddle, 5, 0)...), nil
		},
	}
	progress := &mockProgress{
		getProgressFn: func(ctx context.Context, id domain.Identity) (*ledger.Progress, error) {
			return &ledger.Progress{Identity: id, Level: 4, TotalXP: 800}, nil
		},
	}

	plan, err := newTestService(progress, history).GetRecommendedPracticeSession(context.Background(), id, "weakness", 3)
	if err != nil {
		t.Fatalf("GetRecommendedPracticeSession() error = %v", err)
	}
	if gotLimit != DefaultHistoryWindow {
		t.Errorf("history limit = %d; want %d", gotLimit, DefaultHistoryWindow)
	}
	if plan.Level != 4 || plan.Type != SessionWeakness || len(plan.Problems) != 3 {
		t.Errorf("plan = %+v", plan)
	}
	if plan.Degraded {
		t.Error("plan should not be degraded")
	}
}

func TestService_EmptyHistoryNeverFails(t *testing.T) {
	svc := newTestService(&mockProgress{}, &mockHistory{})

	plan, err := svc.GetRecommendedPracticeSession(context.Background(), domain.PersonalIdentity("new"), "challenge", 6)
	if err != nil {
		t.Fatalf("GetRecommendedPracticeSession() error = %v", err)
	}
	if len(plan.Problems) != 6 {
		t.Fatalf("len(Problems) = %d; want 6", len(plan.Problems))
	}
	for _, p := range plan.Problems {
		if p.Difficulty != domain.DifficultyMiddle {
			t.Errorf("difficulty = %s; want middle", p.Difficulty)
		}
	}
}

func TestService_DegradesOnStorageErrors(t *testing.T) {
	history := &mockHistory{
		recentFn: func(context.Context, domain.Identity, int) ([]domain.ProblemAttempt, error) {
			return nil, errors.New("database is locked")
		},
	}
	progress := &mockProgress{
		getProgressFn: func(context.Context, domain.Identity) (*ledger.Progress, error) {
			return nil, errors.New("database is locked")
		},
	}

	plan, err := newTestService(progress, history).GetRecommendedPracticeSession(context.Background(), domain.PersonalIdentity("u1"), "", 0)
	if err != nil {
		t.Fatalf("GetRecommendedPracticeSession() error = %v", err)
	}
	if !plan.Degraded || !plan.ColdStart || len(plan.Problems) != DefaultSessionSize || plan.Level != 1 {
		t.Errorf("plan = %+v; want degraded cold start of %d", plan, DefaultSessionSize)
	}
}

func TestService_RejectsBadInput(t *testing.T) {
	svc := newTestService(nil, nil)
	ctx := context.Background()

	if _, err := svc.GetRecommendedPracticeSession(ctx, domain.PersonalIdentity("u1"), "marathon", 5); !errors.Is(err, domain.ErrUnknownSessionType) {
		t.Errorf("unknown type error = %v", err)
	}
	if _, err := svc.GetRecommendedPracticeSession(ctx, domain.Identity{}, "balanced", 5); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty identity error = %v", err)
	}
}

func TestService_GetPerformance(t *testing.T) {
	history := &mockHistory{
		recentFn: func(context.Context, domain.Identity, int) ([]domain.ProblemAttempt, error) {
			return attempts("algebra", domain.DifficultyHigh, 5, 0), nil
		},
	}

	report, err := newTestService(nil, history).GetPerformance(context.Background(), domain.PersonalIdentity("u1"))
	if err != nil {
		t.Fatalf("GetPerformance() error = %v", err)
	}
	if report.Tiers[domain.DifficultyHigh].Attempts != 5 {
		t.Errorf("high attempts = %d; want 5", report.Tiers[domain.DifficultyHigh].Attempts)
	}
	if report.RecommendedDifficulty != domain.DifficultyAdvanced {
		t.Errorf("RecommendedDifficulty = %s; want advanced", report.RecommendedDifficulty)
	}
	if len(report.StrongAreas) != 1 {
		t.Errorf("StrongAreas = %v", report.StrongAreas)
	}
}
