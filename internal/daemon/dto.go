package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/practice"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

// requestValidate validates decoded request bodies. Field names in errors
// use the json tag so they match what the client sent.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Request bodies

type identityFields struct {
	UserID    string `json:"user_id" validate:"required,max=255"`
	ProfileID string `json:"profile_id,omitempty" validate:"max=255"`
}

func (f identityFields) identity() (domain.Identity, error) {
	return domain.ParseIdentity(f.UserID, f.ProfileID)
}

type problemXPRequest struct {
	identityFields
	Difficulty string `json:"difficulty" validate:"required"`
	HintsUsed  int    `json:"hints_used" validate:"gte=0,lte=100"`
}

type loginRequest struct {
	identityFields
	FirstLogin bool `json:"first_login"`
}

type awardRequest struct {
	identityFields
	XP     int    `json:"xp" validate:"gte=0"`
	Reason string `json:"reason" validate:"required,max=100"`
}

type completeProblemRequest struct {
	identityFields
	ID         string     `json:"id,omitempty" validate:"omitempty,max=64"`
	Subject    string     `json:"subject" validate:"required,max=100"`
	Difficulty string     `json:"difficulty" validate:"required"`
	Solved     bool       `json:"solved"`
	HintsUsed  int        `json:"hints_used" validate:"gte=0,lte=100"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

type studyRequest struct {
	identityFields
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// decodeRequest reads a JSON body into dst and validates it. Failures are
// returned as domain validation errors.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid JSON", Err: err}
	}
	if err := requestValidate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewValidationError(fe.Field(), fmt.Sprintf("failed %q check", fe.Tag()))
		}
		return &domain.ValidationError{Field: "body", Reason: "invalid request", Err: err}
	}
	return nil
}

// identityFromQuery reads user_id and profile_id query parameters
func identityFromQuery(r *http.Request) (domain.Identity, error) {
	q := r.URL.Query()
	return domain.ParseIdentity(q.Get("user_id"), q.Get("profile_id"))
}

// Responses

type historyEntryResponse struct {
	Date      string    `json:"date"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type progressResponse struct {
	UserID        string                 `json:"user_id"`
	ProfileID     string                 `json:"profile_id,omitempty"`
	TotalXP       int                    `json:"total_xp"`
	Level         int                    `json:"level"`
	XPToNextLevel int                    `json:"xp_to_next_level"`
	History       []historyEntryResponse `json:"history"`
	Exists        bool                   `json:"exists"`
	Inherited     bool                   `json:"inherited,omitempty"`
	Degraded      bool                   `json:"degraded,omitempty"`
}

func newProgressResponse(p *ledger.Progress) progressResponse {
	resp := progressResponse{
		UserID:        p.Identity.UserID,
		ProfileID:     p.Identity.ProfileID,
		TotalXP:       p.TotalXP,
		Level:         p.Level,
		XPToNextLevel: p.XPToNextLevel,
		History:       make([]historyEntryResponse, 0, len(p.History)),
		Exists:        p.Exists,
		Inherited:     p.Inherited,
	}
	for _, e := range p.History {
		resp.History = append(resp.History, historyEntryResponse{
			Date:      e.Date.Format(time.DateOnly),
			Delta:     e.Delta,
			Reason:    e.Reason,
			Timestamp: e.Timestamp,
		})
	}
	return resp
}

type awardResponse struct {
	XPGained      int  `json:"xp_gained"`
	NewTotal      int  `json:"new_total"`
	NewLevel      int  `json:"new_level"`
	PreviousLevel int  `json:"previous_level"`
	LeveledUp     bool `json:"leveled_up"`
}

func newAwardResponse(a *domain.AwardResult) *awardResponse {
	if a == nil {
		return nil
	}
	return &awardResponse{
		XPGained:      a.XPGained,
		NewTotal:      a.NewTotal,
		NewLevel:      a.NewLevel,
		PreviousLevel: a.PreviousLevel,
		LeveledUp:     a.LeveledUp,
	}
}

type streakResponse struct {
	UserID        string  `json:"user_id"`
	ProfileID     string  `json:"profile_id,omitempty"`
	CurrentStreak int     `json:"current_streak"`
	LongestStreak int     `json:"longest_streak"`
	LastStudyDate *string `json:"last_study_date"`
	Outcome       string  `json:"outcome,omitempty"`
	Inherited     bool    `json:"inherited,omitempty"`
}

func newStreakResponse(r *ledger.StreakResult) *streakResponse {
	if r == nil {
		return nil
	}
	resp := &streakResponse{
		UserID:        r.Identity.UserID,
		ProfileID:     r.Identity.ProfileID,
		CurrentStreak: r.CurrentStreak,
		LongestStreak: r.LongestStreak,
		Outcome:       string(r.Outcome),
		Inherited:     r.Inherited,
	}
	if r.LastStudyDate != nil {
		d := r.LastStudyDate.Format(time.DateOnly)
		resp.LastStudyDate = &d
	}
	return resp
}

type problemOutcomeResponse struct {
	AttemptID string          `json:"attempt_id"`
	Subject   string          `json:"subject"`
	Solved    bool            `json:"solved"`
	Award     *awardResponse  `json:"award,omitempty"`
	Streak    *streakResponse `json:"streak,omitempty"`
}

type plannedProblemResponse struct {
	Subject     string `json:"subject"`
	Difficulty  string `json:"difficulty"`
	EstimatedXP int    `json:"estimated_xp"`
	Focus       string `json:"focus"`
}

type sessionPlanResponse struct {
	Type                  string                   `json:"type"`
	RecommendedDifficulty string                   `json:"recommended_difficulty"`
	Level                 int                      `json:"level"`
	Problems              []plannedProblemResponse `json:"problems"`
	TotalEstimatedXP      int                      `json:"total_estimated_xp"`
	WeakAreas             []string                 `json:"weak_areas"`
	StrongAreas           []string                 `json:"strong_areas"`
	ColdStart             bool                     `json:"cold_start"`
	Degraded              bool                     `json:"degraded,omitempty"`
}

func newSessionPlanResponse(p *practice.SessionPlan) sessionPlanResponse {
	resp := sessionPlanResponse{
		Type:                  string(p.Type),
		RecommendedDifficulty: string(p.RecommendedDifficulty),
		Level:                 p.Level,
		Problems:              make([]plannedProblemResponse, 0, len(p.Problems)),
		TotalEstimatedXP:      p.TotalEstimatedXP,
		WeakAreas:             nonNil(p.WeakAreas),
		StrongAreas:           nonNil(p.StrongAreas),
		ColdStart:             p.ColdStart,
		Degraded:              p.Degraded,
	}
	for _, pp := range p.Problems {
		resp.Problems = append(resp.Problems, plannedProblemResponse{
			Subject:     pp.Subject,
			Difficulty:  string(pp.Difficulty),
			EstimatedXP: pp.EstimatedXP,
			Focus:       string(pp.Focus),
		})
	}
	return resp
}

type deleteResponse struct {
	UserID          string `json:"user_id"`
	XPRecords       int64  `json:"xp_records"`
	StreakRecords   int64  `json:"streak_records"`
	Owners          int64  `json:"owners"`
	ProblemAttempts int64  `json:"problem_attempts"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
