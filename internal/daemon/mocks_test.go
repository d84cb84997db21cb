package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/progression/internal/config"
	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/practice"
)

var errNotImplemented = errors.New("mock: not implemented")

// mockLedgerService implements ledger.LedgerService for testing
type mockLedgerService struct {
	getProgressFn     func(ctx context.Context, id domain.Identity) (*ledger.Progress, error)
	awardFn           func(ctx context.Context, id domain.Identity, delta int, reason string) (*domain.AwardResult, error)
	awardProblemFn    func(ctx context.Context, id domain.Identity, d domain.Difficulty, hints int) (*domain.AwardResult, error)
	awardLoginFn      func(ctx context.Context, id domain.Identity, first bool) (*domain.AwardResult, error)
	recordStudyFn     func(ctx context.Context, id domain.Identity, date time.Time) (*ledger.StreakResult, error)
	getStreakFn       func(ctx context.Context, id domain.Identity) (*ledger.StreakResult, error)
	completeProblemFn func(ctx context.Context, a domain.ProblemAttempt) (*ledger.ProblemOutcome, error)
	deleteProgressFn  func(ctx context.Context, userID string) (*ledger.DeleteResult, error)
}

func (m *mockLedgerService) GetProgress(ctx context.Context, id domain.Identity) (*ledger.Progress, error) {
	if m.getProgressFn != nil {
		return m.getProgressFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockLedgerService) Award(ctx context.Context, id domain.Identity, delta int, reason string) (*domain.AwardResult, error) {
	if m.awardFn != nil {
		return m.awardFn(ctx, id, delta, reason)
	}
	return nil, errNotImplemented
}

func (m *mockLedgerService) AwardProblemXP(ctx context.Context, id domain.Identity, d domain.Difficulty, hints int) (*domain.AwardResult, error) {
	if m.awardProblemFn != nil {
		return m.awardProblemFn(ctx, id, d, hints)
	}
	return nil, errNotImplemented
}

func (m *mockLedgerService) AwardLoginBonus(ctx context.Context, id domain.Identity, first bool) (*domain.AwardResult, error) {
	if m.awardLoginFn != nil {
		return m.awardLoginFn(ctx, id, first)
	}
	return nil, errNotImplemented
}

func (m *mockLedgerService) RecordStudyEvent(ctx context.Context, id domain.Identity, date time.Time) (*ledger.StreakResult, error) {
	if m.recordStudyFn != nil {
		return m.recordStudyFn(ctx, id, date)
	}
	return nil, errNotImplemented
}

func (m *mockLedgerService) GetStreak(ctx context.Context, id domain.Identity) (*ledger.StreakResult, error) {
	if m.getStreakFn != nil {
		return m.getStreakFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockLedgerService) CompleteProblem(ctx context.Context, a domain.ProblemAttempt) (*ledger.ProblemOutcome, error) {
	if m.completeProblemFn != nil {
		return m.completeProblemFn(ctx, a)
	}
	return nil, errNotImplemented
}

func (m *mockLedgerService) DeleteProgress(ctx context.Context, userID string) (*ledger.DeleteResult, error) {
	if m.deleteProgressFn != nil {
		return m.deleteProgressFn(ctx, userID)
	}
	return nil, errNotImplemented
}

// mockPracticeService implements PracticeService for testing
type mockPracticeService struct {
	sessionFn     func(ctx context.Context, id domain.Identity, sessionType string, count int) (*practice.SessionPlan, error)
	performanceFn func(ctx context.Context, id domain.Identity) (*practice.PerformanceReport, error)
}

func (m *mockPracticeService) GetRecommendedPracticeSession(ctx context.Context, id domain.Identity, sessionType string, count int) (*practice.SessionPlan, error) {
	if m.sessionFn != nil {
		return m.sessionFn(ctx, id, sessionType, count)
	}
	return nil, errNotImplemented
}

func (m *mockPracticeService) GetPerformance(ctx context.Context, id domain.Identity) (*practice.PerformanceReport, error) {
	if m.performanceFn != nil {
		return m.performanceFn(ctx, id)
	}
	return nil, errNotImplemented
}

// serverWithMocks holds a server and its mock dependencies
type serverWithMocks struct {
	server   *Server
	handler  http.Handler
	ledger   *mockLedgerService
	practice *mockPracticeService
}

// newServerWithMocks creates a Server with mock services injected
func newServerWithMocks() *serverWithMocks {
	l := &mockLedgerService{}
	p := &mockPracticeService{}

	srv, err := NewServer(ServerConfig{
		Config:   config.DefaultLocalConfig(),
		Ledger:   l,
		Practice: p,
		Version:  "test",
	})
	if err != nil {
		panic(err)
	}

	return &serverWithMocks{
		server:   srv,
		handler:  srv.Handler(),
		ledger:   l,
		practice: p,
	}
}
