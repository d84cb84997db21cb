package domain

import (
	"strings"
	"time"
)

// ProblemAttempt is one row of problem history.
type ProblemAttempt struct {
	ID         string
	Identity   Identity
	Subject    string // problem type, e.g. "algebra"
	Difficulty Difficulty
	Solved     bool
	HintsUsed  int
	CreatedAt  time.Time
}

// NormalizeSubject lowercases and trims a subject so "Algebra " and
// "algebra" aggregate together.
func NormalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate checks an attempt before it is recorded.
func (a *ProblemAttempt) Validate() error {
	if _, err := a.Identity.Canonical(); err != nil {
		return err
	}
	if NormalizeSubject(a.Subject) == "" {
		return NewValidationError("subject", "must not be empty")
	}
	if !a.Difficulty.Valid() {
		return &ValidationError{Field: "difficulty", Reason: string(a.Difficulty), Err: ErrUnknownDifficulty}
	}
	if a.HintsUsed < 0 {
		return NewValidationError("hints_used", "must not be negative")
	}
	return nil
}
