package ledger

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/progression/internal/domain"
)

// Resolver maps an identity to its ledger rows. It loads every row of the
// user and filters by profile in memory: null-equality on the profile column
// is not trusted to behave the same across storage engines.
type Resolver struct {
	xp      XPStore
	streaks StreakStore
}

// NewResolver creates a resolver over the given stores
func NewResolver(xp XPStore, streaks StreakStore) *Resolver {
	return &Resolver{xp: xp, streaks: streaks}
}

// LoadXP returns the XP record owned by id, or nil when none exists. Writes
// use it: a sub-profile without a row gets its own row, never the personal one.
func (r *Resolver) LoadXP(ctx context.Context, id domain.Identity) (*domain.XPRecord, error) {
	return r.loadXP(ctx, id, SelectXP)
}

// ReadXP is LoadXP with the read fallback: a sub-profile that has no row of
// its own reads the user's personal row.
func (r *Resolver) ReadXP(ctx context.Context, id domain.Identity) (*domain.XPRecord, error) {
	return r.loadXP(ctx, id, ResolveXP)
}

func (r *Resolver) loadXP(ctx context.Context, id domain.Identity, pick func([]*domain.XPRecord, domain.Identity) *domain.XPRecord) (*domain.XPRecord, error) {
	candidates, err := r.xp.ListXP(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load xp candidates: %w", err)
	}
	rec := pick(candidates, id)
	if rec != nil {
		rec = rec.Clone()
		rec.Normalize()
	}
	return rec, nil
}

// LoadStreak returns the streak record owned by id, or nil when none exists.
func (r *Resolver) LoadStreak(ctx context.Context, id domain.Identity) (*domain.StreakRecord, error) {
	return r.loadStreak(ctx, id, SelectStreak)
}

// ReadStreak is LoadStreak with the personal-row read fallback.
func (r *Resolver) ReadStreak(ctx context.Context, id domain.Identity) (*domain.StreakRecord, error) {
	return r.loadStreak(ctx, id, ResolveStreak)
}

func (r *Resolver) loadStreak(ctx context.Context, id domain.Identity, pick func([]*domain.StreakRecord, domain.Identity) *domain.StreakRecord) (*domain.StreakRecord, error) {
	candidates, err := r.streaks.ListStreaks(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load streak candidates: %w", err)
	}
	rec := pick(candidates, id)
	if rec != nil {
		rec = rec.Clone()
	}
	return rec, nil
}

// SelectXP picks the row belonging to id. Only exact profile matches count.
// When a past race left duplicates, the row with the most XP wins, then the
// most recently updated.
func SelectXP(candidates []*domain.XPRecord, id domain.Identity) *domain.XPRecord {
	var best *domain.XPRecord
	for _, c := range candidates {
		if c == nil || c.Identity.UserID != id.UserID || !id.Matches(c.Identity.ProfileID) {
			continue
		}
		if best == nil ||
			c.TotalXP > best.TotalXP ||
			(c.TotalXP == best.TotalXP && c.UpdatedAt.After(best.UpdatedAt)) {
			best = c
		}
	}
	return best
}

// SelectStreak is SelectXP for streaks, ranking duplicates by longest streak.
func SelectStreak(candidates []*domain.StreakRecord, id domain.Identity) *domain.StreakRecord {
	var best *domain.StreakRecord
	for _, c := range candidates {
		if c == nil || c.Identity.UserID != id.UserID || !id.Matches(c.Identity.ProfileID) {
			continue
		}
		if best == nil ||
			c.LongestStreak > best.LongestStreak ||
			(c.LongestStreak == best.LongestStreak && c.UpdatedAt.After(best.UpdatedAt)) {
			best = c
		}
	}
	return best
}

// ResolveXP picks the exact match for id if there is one, otherwise the
// user's personal row. The returned record keeps the identity it was stored
// under, so callers can tell the two apart.
func ResolveXP(candidates []*domain.XPRecord, id domain.Identity) *domain.XPRecord {
	if rec := SelectXP(candidates, id); rec != nil || !id.HasProfile() {
		return rec
	}
	return SelectXP(candidates, domain.PersonalIdentity(id.UserID))
}

// ResolveStreak is ResolveXP for streaks.
func ResolveStreak(candidates []*domain.StreakRecord, id domain.Identity) *domain.StreakRecord {
	if rec := SelectStreak(candidates, id); rec != nil || !id.HasProfile() {
		return rec
	}
	return SelectStreak(candidates, domain.PersonalIdentity(id.UserID))
}
