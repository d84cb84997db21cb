package domain

import (
	"time"
)

// StreakOutcome describes what a study event did to a streak.
type StreakOutcome string

const (
	StreakNoop      StreakOutcome = "noop"      // already studied that day
	StreakContinued StreakOutcome = "continued" // studied the day before
	StreakStarted   StreakOutcome = "started"   // first ever study day
	StreakReset     StreakOutcome = "reset"     // gap since the last study day
)

// Changed reports whether the outcome modified the record.
func (o StreakOutcome) Changed() bool {
	return o != StreakNoop
}

// StreakRecord is the persisted streak state for one identity.
type StreakRecord struct {
	ID            string
	Identity      Identity
	CurrentStreak int
	LongestStreak int
	LastStudyDate *time.Time
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewStreakRecord returns an unpersisted empty streak.
func NewStreakRecord(id Identity) *StreakRecord {
	return &StreakRecord{Identity: id}
}

// IsNew reports whether the record has never been persisted.
func (r *StreakRecord) IsNew() bool {
	return r.ID == ""
}

// DateOf truncates t to its calendar day, as seen in t's own location, and
// returns it as midnight UTC. Two instants on the same local day compare equal.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Advance applies a study event dated today:
//   - same day as the last study date: nothing changes
//   - the day after: the streak grows by one
//   - anything else, including no previous date: the streak restarts at 1
func (r *StreakRecord) Advance(today time.Time) StreakOutcome {
	day := DateOf(today)

	var outcome StreakOutcome
	switch {
	case r.LastStudyDate == nil:
		r.CurrentStreak = 1
		outcome = StreakStarted
	case DateOf(*r.LastStudyDate).Equal(day):
		return StreakNoop
	case DateOf(*r.LastStudyDate).Equal(day.AddDate(0, 0, -1)):
		r.CurrentStreak++
		outcome = StreakContinued
	default:
		r.CurrentStreak = 1
		outcome = StreakReset
	}

	r.LongestStreak = max(r.LongestStreak, r.CurrentStreak)
	r.LastStudyDate = &day
	return outcome
}

// Clone returns a copy that does not share the date pointer.
func (r *StreakRecord) Clone() *StreakRecord {
	c := *r
	if r.LastStudyDate != nil {
		d := *r.LastStudyDate
		c.LastStudyDate = &d
	}
	return &c
}
