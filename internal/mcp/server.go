package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/practice"
)

// PracticeService builds practice sessions
type PracticeService interface {
	GetRecommendedPracticeSession(ctx context.Context, id domain.Identity, sessionType string, count int) (*practice.SessionPlan, error)
}

// Server wraps the MCP server with progression tools
type Server struct {
	mcpServer       *server.Server
	ledgerService   ledger.LedgerService
	practiceService PracticeService
	now             func() time.Time
}

// Config contains configuration for the MCP server
type Config struct {
	Ledger   ledger.LedgerService
	Practice PracticeService
	Version  string
}

var errNoLedger = errors.New("progression ledger not available")

// NewServer creates a new MCP server exposing the ledger as tools
func NewServer(cfg Config) *Server {
	s := &Server{
		ledgerService:   cfg.Ledger,
		practiceService: cfg.Practice,
		now:             time.Now,
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "progression",
		Version: version,
	}, server.WithInstructions(`
Progression tracks XP, levels and study streaks per learner.
Every tool takes a user_id and an optional profile_id; omit profile_id
(or pass "null") for the user's own progress, or pass a managed
sub-profile id for a student profile.

Available tools:
- progress_get: XP total, level and XP to next level
- xp_award_problem: award XP for a solved problem by difficulty
- xp_award_login: award the daily or first-login bonus
- streak_get: current and longest study streak
- streak_record: record a study day and advance the streak
- problem_complete: record an attempt; solved attempts earn XP
- practice_session: recommend a practice session

Difficulty tiers: elementary, middle, high, advanced
(aliases easy, medium, hard, expert).
`))

	s.registerTools()

	return s
}

// registerTools registers all progression MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("progress_get").
		Description("Get XP total, level and XP needed for the next level.").
		Handler(s.handleProgress)

	s.mcpServer.Tool("xp_award_problem").
		Description("Award XP for a solved problem. Hints reduce the award.").
		Handler(s.handleAwardProblem)

	s.mcpServer.Tool("xp_award_login").
		Description("Award the login bonus (larger on first login).").
		Handler(s.handleAwardLogin)

	s.mcpServer.Tool("streak_get").
		Description("Get the current and longest study streak.").
		Handler(s.handleGetStreak)

	s.mcpServer.Tool("streak_record").
		Description("Record a study day. Repeated calls on the same day are no-ops.").
		Handler(s.handleRecordStreak)

	s.mcpServer.Tool("problem_complete").
		Description("Record a problem attempt. Solved attempts earn XP and count as a study day.").
		Handler(s.handleCompleteProblem)

	s.mcpServer.Tool("practice_session").
		Description("Recommend a practice session from recent problem history.").
		Handler(s.handlePracticeSession)
}

// Input/Output types for tools

type IdentityInput struct {
	UserID    string `json:"user_id" jsonschema:"description=Owning user id"`
	ProfileID string `json:"profile_id,omitempty" jsonschema:"description=Managed sub-profile id; omit for personal progress"`
}

func (in IdentityInput) identity() (domain.Identity, error) {
	return domain.ParseIdentity(in.UserID, in.ProfileID)
}

type ProgressOutput struct {
	UserID        string `json:"user_id"`
	ProfileID     string `json:"profile_id,omitempty"`
	TotalXP       int    `json:"total_xp"`
	Level         int    `json:"level"`
	XPToNextLevel int    `json:"xp_to_next_level"`
	Awards        int    `json:"awards"`
}

type AwardProblemInput struct {
	UserID     string `json:"user_id" jsonschema:"description=Owning user id"`
	ProfileID  string `json:"profile_id,omitempty" jsonschema:"description=Managed sub-profile id"`
	Difficulty string `json:"difficulty" jsonschema:"description=Difficulty tier,enum=elementary,enum=middle,enum=high,enum=advanced"`
	HintsUsed  int    `json:"hints_used,omitempty" jsonschema:"description=Hints used while solving"`
}

type AwardLoginInput struct {
	UserID     string `json:"user_id" jsonschema:"description=Owning user id"`
	ProfileID  string `json:"profile_id,omitempty" jsonschema:"description=Managed sub-profile id"`
	FirstLogin bool   `json:"first_login,omitempty" jsonschema:"description=True for the learner's first ever login"`
}

type AwardOutput struct {
	XPGained  int    `json:"xp_gained"`
	NewTotal  int    `json:"new_total"`
	NewLevel  int    `json:"new_level"`
	LeveledUp bool   `json:"leveled_up"`
	Message   string `json:"message"`
}

type StreakInput struct {
	UserID    string `json:"user_id" jsonschema:"description=Owning user id"`
	ProfileID string `json:"profile_id,omitempty" jsonschema:"description=Managed sub-profile id"`
	Date      string `json:"date,omitempty" jsonschema:"description=Study day as YYYY-MM-DD; defaults to today"`
}

type StreakOutput struct {
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	LastStudyDate string `json:"last_study_date,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
}

type CompleteProblemInput struct {
	UserID     string `json:"user_id" jsonschema:"description=Owning user id"`
	ProfileID  string `json:"profile_id,omitempty" jsonschema:"description=Managed sub-profile id"`
	AttemptID  string `json:"attempt_id,omitempty" jsonschema:"description=Idempotency key; repeated ids are rejected"`
	Subject    string `json:"subject" jsonschema:"description=Problem type such as algebra"`
	Difficulty string `json:"difficulty" jsonschema:"description=Difficulty tier,enum=elementary,enum=middle,enum=high,enum=advanced"`
	Solved     bool   `json:"solved"`
	HintsUsed  int    `json:"hints_used,omitempty"`
}

type CompleteProblemOutput struct {
	AttemptID string        `json:"attempt_id"`
	Solved    bool          `json:"solved"`
	Award     *AwardOutput  `json:"award,omitempty"`
	Streak    *StreakOutput `json:"streak,omitempty"`
}

type PracticeInput struct {
	UserID      string `json:"user_id" jsonschema:"description=Owning user id"`
	ProfileID   string `json:"profile_id,omitempty" jsonschema:"description=Managed sub-profile id"`
	SessionType string `json:"session_type,omitempty" jsonschema:"description=Session composition,enum=balanced,enum=weakness,enum=strength,enum=challenge"`
	Count       int    `json:"count,omitempty" jsonschema:"description=Number of problems (default 5, max 20)"`
}

type PlannedProblemOutput struct {
	Subject     string `json:"subject"`
	Difficulty  string `json:"difficulty"`
	EstimatedXP int    `json:"estimated_xp"`
	Focus       string `json:"focus"`
}

type PracticeOutput struct {
	Type                  string                 `json:"type"`
	RecommendedDifficulty string                 `json:"recommended_difficulty"`
	Problems              []PlannedProblemOutput `json:"problems"`
	TotalEstimatedXP      int                    `json:"total_estimated_xp"`
	WeakAreas             []string               `json:"weak_areas,omitempty"`
	Summary               string                 `json:"summary"`
}

// Tool handlers

func (s *Server) handleProgress(ctx context.Context, input IdentityInput) (ProgressOutput, error) {
	if s.ledgerService == nil {
		return ProgressOutput{}, errNoLedger
	}
	id, err := input.identity()
	if err != nil {
		return ProgressOutput{}, err
	}

	p, err := s.ledgerService.GetProgress(ctx, id)
	if err != nil {
		return ProgressOutput{}, fmt.Errorf("get progress: %w", err)
	}

	return ProgressOutput{
		UserID:        id.UserID,
		ProfileID:     id.ProfileID,
		TotalXP:       p.TotalXP,
		Level:         p.Level,
		XPToNextLevel: p.XPToNextLevel,
		Awards:        len(p.History),
	}, nil
}

func (s *Server) handleAwardProblem(ctx context.Context, input AwardProblemInput) (AwardOutput, error) {
	if s.ledgerService == nil {
		return AwardOutput{}, errNoLedger
	}
	id, err := domain.ParseIdentity(input.UserID, input.ProfileID)
	if err != nil {
		return AwardOutput{}, err
	}
	d, err := domain.ParseDifficulty(input.Difficulty)
	if err != nil {
		return AwardOutput{}, err
	}

	result, err := s.ledgerService.AwardProblemXP(ctx, id, d, input.HintsUsed)
	if err != nil {
		return AwardOutput{}, fmt.Errorf("award problem xp: %w", err)
	}
	return awardOutput(result), nil
}

func (s *Server) handleAwardLogin(ctx context.Context, input AwardLoginInput) (AwardOutput, error) {
	if s.ledgerService == nil {
		return AwardOutput{}, errNoLedger
	}
	id, err := domain.ParseIdentity(input.UserID, input.ProfileID)
	if err != nil {
		return AwardOutput{}, err
	}

	result, err := s.ledgerService.AwardLoginBonus(ctx, id, input.FirstLogin)
	if err != nil {
		return AwardOutput{}, fmt.Errorf("award login bonus: %w", err)
	}
	return awardOutput(result), nil
}

func (s *Server) handleGetStreak(ctx context.Context, input IdentityInput) (StreakOutput, error) {
	if s.ledgerService == nil {
		return StreakOutput{}, errNoLedger
	}
	id, err := input.identity()
	if err != nil {
		return StreakOutput{}, err
	}

	result, err := s.ledgerService.GetStreak(ctx, id)
	if err != nil {
		return StreakOutput{}, fmt.Errorf("get streak: %w", err)
	}
	return streakOutput(result), nil
}

func (s *Server) handleRecordStreak(ctx context.Context, input StreakInput) (StreakOutput, error) {
	if s.ledgerService == nil {
		return StreakOutput{}, errNoLedger
	}
	id, err := domain.ParseIdentity(input.UserID, input.ProfileID)
	if err != nil {
		return StreakOutput{}, err
	}

	date := s.now()
	if input.Date != "" {
		date, err = time.Parse(time.DateOnly, input.Date)
		if err != nil {
			return StreakOutput{}, domain.NewValidationError("date", "must be YYYY-MM-DD")
		}
	}

	result, err := s.ledgerService.RecordStudyEvent(ctx, id, date)
	if err != nil {
		return StreakOutput{}, fmt.Errorf("record study event: %w", err)
	}
	return streakOutput(result), nil
}

func (s *Server) handleCompleteProblem(ctx context.Context, input CompleteProblemInput) (CompleteProblemOutput, error) {
	if s.ledgerService == nil {
		return CompleteProblemOutput{}, errNoLedger
	}
	id, err := domain.ParseIdentity(input.UserID, input.ProfileID)
	if err != nil {
		return CompleteProblemOutput{}, err
	}
	d, err := domain.ParseDifficulty(input.Difficulty)
	if err != nil {
		return CompleteProblemOutput{}, err
	}

	outcome, err := s.ledgerService.CompleteProblem(ctx, domain.ProblemAttempt{
		ID:         input.AttemptID,
		Identity:   id,
		Subject:    input.Subject,
		Difficulty: d,
		Solved:     input.Solved,
		HintsUsed:  input.HintsUsed,
	})
	if err != nil {
		return CompleteProblemOutput{}, fmt.Errorf("complete problem: %w", err)
	}

	out := CompleteProblemOutput{
		AttemptID: outcome.Attempt.ID,
		Solved:    outcome.Attempt.Solved,
	}
	if outcome.Award != nil {
		a := awardOutput(outcome.Award)
		out.Award = &a
	}
	if outcome.Streak != nil {
		st := streakOutput(outcome.Streak)
		out.Streak = &st
	}
	return out, nil
}

func (s *Server) handlePracticeSession(ctx context.Context, input PracticeInput) (PracticeOutput, error) {
	if s.practiceService == nil {
		return PracticeOutput{}, errors.New("practice recommendations not available")
	}
	id, err := domain.ParseIdentity(input.UserID, input.ProfileID)
	if err != nil {
		return PracticeOutput{}, err
	}

	plan, err := s.practiceService.GetRecommendedPracticeSession(ctx, id, input.SessionType, input.Count)
	if err != nil {
		return PracticeOutput{}, fmt.Errorf("build practice session: %w", err)
	}

	out := PracticeOutput{
		Type:                  string(plan.Type),
		RecommendedDifficulty: string(plan.RecommendedDifficulty),
		Problems:              make([]PlannedProblemOutput, 0, len(plan.Problems)),
		TotalEstimatedXP:      plan.TotalEstimatedXP,
		WeakAreas:             plan.WeakAreas,
		Summary:               plan.Summary(),
	}
	for _, p := range plan.Problems {
		out.Problems = append(out.Problems, PlannedProblemOutput{
			Subject:     p.Subject,
			Difficulty:  string(p.Difficulty),
			EstimatedXP: p.EstimatedXP,
			Focus:       string(p.Focus),
		})
	}
	return out, nil
}

func awardOutput(r *domain.AwardResult) AwardOutput {
	msg := fmt.Sprintf("+%d XP (total %d, level %d)", r.XPGained, r.NewTotal, r.NewLevel)
	if r.LeveledUp {
		msg = fmt.Sprintf("+%d XP, level up %d -> %d", r.XPGained, r.PreviousLevel, r.NewLevel)
	}
	return AwardOutput{
		XPGained:  r.XPGained,
		NewTotal:  r.NewTotal,
		NewLevel:  r.NewLevel,
		LeveledUp: r.LeveledUp,
		Message:   msg,
	}
}

func streakOutput(r *ledger.StreakResult) StreakOutput {
	out := StreakOutput{
		CurrentStreak: r.CurrentStreak,
		LongestStreak: r.LongestStreak,
		Outcome:       string(r.Outcome),
	}
	if r.LastStudyDate != nil {
		out.LastStudyDate = r.LastStudyDate.Format(time.DateOnly)
	}
	return out
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
