package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
)

// EventType names a learning event
type EventType string

// Learning event types
const (
	EventProblemSolved    EventType = "problem_solved"
	EventProblemAttempted EventType = "problem_attempted"
	EventDailyLogin       EventType = "daily_login"
	EventStudySession     EventType = "study_session"
	EventXPAward          EventType = "xp_award"
)

// ErrUnknownEventType is returned for events the dispatcher cannot route
var ErrUnknownEventType = errors.New("unknown event type")

// LearningEvent is the message other services publish when a learner does
// something the ledger should account for.
type LearningEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	ProfileID  string    `json:"profile_id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
	HintsUsed  int       `json:"hints_used,omitempty"`
	FirstLogin bool      `json:"first_login,omitempty"`
	XP         int       `json:"xp,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Date       string    `json:"date,omitempty"` // YYYY-MM-DD, defaults to CreatedAt
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the fields the event type needs
func (e *LearningEvent) Validate() error {
	if e.ID == "" {
		return domain.NewValidationError("id", "must not be empty")
	}
	switch e.Type {
	case EventProblemSolved, EventProblemAttempted:
		if domain.NormalizeSubject(e.Subject) == "" {
			return domain.NewValidationError("subject", "must not be empty")
		}
		if _, err := domain.ParseDifficulty(e.Difficulty); err != nil {
			return &domain.ValidationError{Field: "difficulty", Reason: err.Error(), Err: domain.ErrUnknownDifficulty}
		}
		if e.HintsUsed < 0 {
			return domain.NewValidationError("hints_used", "must not be negative")
		}
	case EventXPAward:
		if e.XP < 0 {
			return &domain.ValidationError{Field: "xp", Reason: "must not be negative", Err: domain.ErrNegativeXP}
		}
		if e.Reason == "" {
			return domain.NewValidationError("reason", "must not be empty")
		}
	case EventDailyLogin, EventStudySession:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if _, err := e.StudyDate(); err != nil {
		return domain.NewValidationError("date", err.Error())
	}
	_, err := domain.ParseIdentity(e.UserID, e.ProfileID)
	return err
}

// StudyDate is the calendar day the event counts for
func (e *LearningEvent) StudyDate() (time.Time, error) {
	if e.Date == "" {
		return e.CreatedAt, nil
	}
	d, err := time.Parse(time.DateOnly, e.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", e.Date, err)
	}
	return d, nil
}

// AwardNotice is published after an event changed a learner's XP
type AwardNotice struct {
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	ProfileID     string    `json:"profile_id,omitempty"`
	Reason        string    `json:"reason"`
	XPGained      int       `json:"xp_gained"`
	NewTotal      int       `json:"new_total"`
	NewLevel      int       `json:"new_level"`
	PreviousLevel int       `json:"previous_level"`
	LeveledUp     bool      `json:"leveled_up"`
	CreatedAt     time.Time `json:"created_at"`
}
