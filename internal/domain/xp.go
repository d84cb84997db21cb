package domain

import (
	"time"
)

// XPEntry is one append-only line of an XP ledger.
type XPEntry struct {
	Date      time.Time // calendar day of the award
	Delta     int
	Reason    string
	Timestamp time.Time
	AttemptID string // problem attempt that earned the award, if any
}

// XPRecord is the persisted XP state for one identity.
type XPRecord struct {
	ID            string // empty until first persisted
	Identity      Identity
	TotalXP       int
	Level         int
	XPToNextLevel int
	History       []XPEntry
	Version       int64 // optimistic concurrency guard, bumped on every write
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AwardResult summarizes the effect of a single award.
type AwardResult struct {
	XPGained      int
	NewTotal      int
	NewLevel      int
	PreviousLevel int
	LeveledUp     bool
}

// NewXPRecord returns the zero-state record for an identity. It has no ID,
// so persisting it is an insert.
func NewXPRecord(id Identity) *XPRecord {
	return &XPRecord{
		Identity:      id,
		Level:         1,
		XPToNextLevel: XPToNextLevel(1, 0),
	}
}

// IsNew reports whether the record has never been persisted.
func (r *XPRecord) IsNew() bool {
	return r.ID == ""
}

// Apply adds delta to the record, recomputes the level fields and appends a
// history entry. Negative deltas are rejected and leave the record untouched.
func (r *XPRecord) Apply(delta int, reason string, now time.Time) (AwardResult, error) {
	if delta < 0 {
		return AwardResult{}, &ValidationError{Field: "xp", Reason: "must not be negative", Err: ErrNegativeXP}
	}

	previous := LevelFor(r.TotalXP)
	r.TotalXP += delta
	r.Level = LevelFor(r.TotalXP)
	r.XPToNextLevel = XPToNextLevel(r.Level, r.TotalXP)
	r.History = append(r.History, XPEntry{
		Date:      DateOf(now),
		Delta:     delta,
		Reason:    reason,
		Timestamp: now,
	})
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	return AwardResult{
		XPGained:      delta,
		NewTotal:      r.TotalXP,
		NewLevel:      r.Level,
		PreviousLevel: previous,
		LeveledUp:     r.Level > previous,
	}, nil
}

// AwardedFor reports whether the history already holds an award earned by
// the given problem attempt.
func (r *XPRecord) AwardedFor(attemptID string) bool {
	if attemptID == "" {
		return false
	}
	for _, e := range r.History {
		if e.AttemptID == attemptID {
			return true
		}
	}
	return false
}

// Normalize recomputes the derived level fields from TotalXP. Stores call it
// after loading so rows written by an older curve are read consistently.
func (r *XPRecord) Normalize() {
	if r.TotalXP < 0 {
		r.TotalXP = 0
	}
	r.Level = LevelFor(r.TotalXP)
	r.XPToNextLevel = XPToNextLevel(r.Level, r.TotalXP)
}

// Clone returns a deep copy so callers can mutate without touching shared rows.
func (r *XPRecord) Clone() *XPRecord {
	c := *r
	c.History = append([]XPEntry(nil), r.History...)
	return &c
}
