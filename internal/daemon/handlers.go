package daemon

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/practice"
)

// XP handlers

// handleGetProgress never fails on storage errors; callers get zero-state
// flagged as degraded instead.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromQuery(r)
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}

	p, err := s.ledgerService.GetProgress(r.Context(), id)
	if err != nil {
		if statusFor(err) == http.StatusBadRequest {
			s.serviceError(w, r, "invalid request", err)
			return
		}
		slog.Warn("progress read degraded",
			"correlation_id", GetCorrelationID(r.Context()),
			"identity", id.String(),
			"error", err,
		)
		resp := newProgressResponse(&ledger.Progress{
			Identity:      id,
			Level:         1,
			XPToNextLevel: domain.XPToNextLevel(1, 0),
		})
		resp.Degraded = true
		s.jsonResponse(w, http.StatusOK, resp)
		return
	}

	s.jsonResponse(w, http.StatusOK, newProgressResponse(p))
}

func (s *Server) handleAwardProblem(w http.ResponseWriter, r *http.Request) {
	var req problemXPRequest
	if err := decodeRequest(w, r, &req); err != nil {
		s.serviceError(w, r, "invalid request body", err)
		return
	}
	id, err := req.identity()
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}
	difficulty, err := domain.ParseDifficulty(req.Difficulty)
	if err != nil {
		s.serviceError(w, r, "invalid difficulty", err)
		return
	}

	result, err := s.ledgerService.AwardProblemXP(r.Context(), id, difficulty, req.HintsUsed)
	if err != nil {
		s.serviceError(w, r, "award problem xp failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newAwardResponse(result))
}

func (s *Server) handleAwardLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeRequest(w, r, &req); err != nil {
		s.serviceError(w, r, "invalid request body", err)
		return
	}
	id, err := req.identity()
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}

	result, err := s.ledgerService.AwardLoginBonus(r.Context(), id, req.FirstLogin)
	if err != nil {
		s.serviceError(w, r, "award login bonus failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newAwardResponse(result))
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := decodeRequest(w, r, &req); err != nil {
		s.serviceError(w, r, "invalid request body", err)
		return
	}
	id, err := req.identity()
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}

	result, err := s.ledgerService.Award(r.Context(), id, req.XP, req.Reason)
	if err != nil {
		s.serviceError(w, r, "award xp failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newAwardResponse(result))
}

func (s *Server) handleCompleteProblem(w http.ResponseWriter, r *http.Request) {
	var req completeProblemRequest
	if err := decodeRequest(w, r, &req); err != nil {
		s.serviceError(w, r, "invalid request body", err)
		return
	}
	id, err := req.identity()
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}
	difficulty, err := domain.ParseDifficulty(req.Difficulty)
	if err != nil {
		s.serviceError(w, r, "invalid difficulty", err)
		return
	}

	attempt := domain.ProblemAttempt{
		ID:         req.ID,
		Identity:   id,
		Subject:    req.Subject,
		Difficulty: difficulty,
		Solved:     req.Solved,
		HintsUsed:  req.HintsUsed,
	}
	if req.CreatedAt != nil {
		attempt.CreatedAt = *req.CreatedAt
	}

	outcome, err := s.ledgerService.CompleteProblem(r.Context(), attempt)
	if err != nil {
		s.serviceError(w, r, "complete problem failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, problemOutcomeResponse{
		AttemptID: outcome.Attempt.ID,
		Subject:   outcome.Attempt.Subject,
		Solved:    outcome.Attempt.Solved,
		Award:     newAwardResponse(outcome.Award),
		Streak:    newStreakResponse(outcome.Streak),
	})
}

// Streak handlers

func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromQuery(r)
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}

	result, err := s.ledgerService.GetStreak(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "get streak failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newStreakResponse(result))
}

func (s *Server) handleRecordStudy(w http.ResponseWriter, r *http.Request) {
	var req studyRequest
	if err := decodeRequest(w, r, &req); err != nil {
		s.serviceError(w, r, "invalid request body", err)
		return
	}
	id, err := req.identity()
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}

	date := time.Now()
	if req.Date != "" {
		date, err = time.Parse(time.DateOnly, req.Date)
		if err != nil {
			s.serviceError(w, r, "invalid date", domain.NewValidationError("date", "must be YYYY-MM-DD"))
			return
		}
	}

	result, err := s.ledgerService.RecordStudyEvent(r.Context(), id, date)
	if err != nil {
		s.serviceError(w, r, "record study event failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newStreakResponse(result))
}

// Practice handlers

func (s *Server) handlePracticeSession(w http.ResponseWriter, r *http.Request) {
	if s.practiceService == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "practice service not configured", nil)
		return
	}
	id, err := identityFromQuery(r)
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}

	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil {
			s.serviceError(w, r, "invalid count", domain.NewValidationError("count", "must be an integer"))
			return
		}
	}

	plan, err := s.practiceService.GetRecommendedPracticeSession(r.Context(), id, r.URL.Query().Get("type"), count)
	if err != nil {
		s.serviceError(w, r, "build practice session failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newSessionPlanResponse(plan))
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if s.practiceService == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "practice service not configured", nil)
		return
	}
	id, err := identityFromQuery(r)
	if err != nil {
		s.serviceError(w, r, "invalid identity", err)
		return
	}

	report, err := s.practiceService.GetPerformance(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "get performance failed", err)
		return
	}

	tiers := make(map[string]interface{}, len(report.Tiers))
	for d, st := range report.Tiers {
		tiers[string(d)] = map[string]interface{}{
			"attempts":     st.Attempts,
			"successes":    st.Successes,
			"success_rate": st.SuccessRate(),
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"total_attempts":         report.TotalAttempts,
		"overall_rate":           report.OverallRate,
		"subjects":               subjectRows(report.Subjects),
		"weak_areas":             subjectRows(report.WeakAreas),
		"strong_areas":           subjectRows(report.StrongAreas),
		"tiers":                  tiers,
		"recommended_difficulty": string(report.RecommendedDifficulty),
	})
}

// Erasure

func (s *Server) handleDeleteProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	result, err := s.ledgerService.DeleteProgress(r.Context(), userID)
	if err != nil {
		s.serviceError(w, r, "delete progress failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, deleteResponse{
		UserID:          userID,
		XPRecords:       result.XPRecords,
		StreakRecords:   result.StreakRecords,
		Owners:          result.Owners,
		ProblemAttempts: result.ProblemAttempts,
	})
}

func subjectRows(stats []practice.SubjectStats) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, map[string]interface{}{
			"subject":      st.Subject,
			"attempts":     st.Attempts,
			"solved":       st.Solved,
			"hints_used":   st.HintsUsed,
			"success_rate": st.SuccessRate,
		})
	}
	return rows
}
