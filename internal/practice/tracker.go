package practice

import (
	"github.com/felixgeelhaar/progression/internal/domain"
)

// Target success band. Below it problems are too hard to learn from, above
// it they are too easy.
const (
	targetLow  = 0.60
	targetHigh = 0.85

	minTierAttempts  = 3 // per tier before its rate is trusted
	minTotalAttempts = 5 // overall before any recommendation is made
)

// TierStats counts attempts at one difficulty tier
type TierStats struct {
	Attempts  int
	Successes int
}

// SuccessRate returns successes/attempts, or 0 with no attempts.
func (s TierStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

func (s TierStats) explored() bool {
	return s.Attempts >= minTierAttempts
}

// Tracker keeps per-difficulty success counters. It is rebuilt from recent
// problem history on each request and is not safe for concurrent use.
type Tracker struct {
	stats map[domain.Difficulty]TierStats
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[domain.Difficulty]TierStats)}
}

// TrackerFromAttempts builds a tracker from problem history rows
func TrackerFromAttempts(attempts []domain.ProblemAttempt) *Tracker {
	t := NewTracker()
	for _, a := range attempts {
		t.Record(a.Difficulty, a.Solved)
	}
	return t
}

// Record counts one attempt. Unknown tiers are ignored.
func (t *Tracker) Record(d domain.Difficulty, success bool) {
	if !d.Valid() {
		return
	}
	s := t.stats[d]
	s.Attempts++
	if success {
		s.Successes++
	}
	t.stats[d] = s
}

// Stats returns a copy of the counters for every tier
func (t *Tracker) Stats() map[domain.Difficulty]TierStats {
	out := make(map[domain.Difficulty]TierStats, len(domain.Difficulties))
	for _, d := range domain.Difficulties {
		out[d] = t.stats[d]
	}
	return out
}

// Total returns the number of recorded attempts
func (t *Tracker) Total() int {
	n := 0
	for _, s := range t.stats {
		n += s.Attempts
	}
	return n
}

// RecommendedDifficulty returns the tier whose success rate sits closest to
// the target band, preferring the harder tier on ties. Sparse data yields
// middle. A tier that is too easy with an untried harder neighbour steps up;
// one that is too hard with an untried easier neighbour steps down.
func (t *Tracker) RecommendedDifficulty() domain.Difficulty {
	if t.Total() < minTotalAttempts {
		return domain.DifficultyMiddle
	}

	best := domain.Difficulty("")
	bestDist := 0.0
	for _, d := range domain.Difficulties {
		s := t.stats[d]
		if !s.explored() {
			continue
		}
		dist := bandDistance(s.SuccessRate())
		if best == "" || dist <= bestDist {
			best, bestDist = d, dist
		}
	}
	if best == "" {
		return domain.DifficultyMiddle
	}

	rate := t.stats[best].SuccessRate()
	switch {
	case rate > targetHigh:
		if next := best.Shift(1); next != best && !t.stats[next].explored() {
			return next
		}
	case rate < targetLow:
		if prev := best.Shift(-1); prev != best && !t.stats[prev].explored() {
			return prev
		}
	}
	return best
}

func bandDistance(rate float64) float64 {
	switch {
	case rate < targetLow:
		return targetLow - rate
	case rate > targetHigh:
		return rate - targetHigh
	default:
		return 0
	}
}
