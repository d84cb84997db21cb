package practice

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/felixgeelhaar/progression/internal/domain"
)

// SessionType selects how a practice session is composed
type SessionType string

const (
	SessionWeakness  SessionType = "weakness"
	SessionStrength  SessionType = "strength"
	SessionChallenge SessionType = "challenge"
	SessionBalanced  SessionType = "balanced"
)

// Session size bounds
const (
	DefaultSessionSize = 5
	MaxSessionSize     = 20
)

// Area classification thresholds
const (
	masteryRate       = 0.70
	minWeakAttempts   = 2
	minStrongAttempts = 3
	maxAreas          = 3
)

// DefaultRotation is the subject rotation used when history cannot pick
// subjects, and for challenge sessions.
var DefaultRotation = []string{"algebra", "geometry", "arithmetic", "fractions", "word_problems"}

// ParseSessionType validates a session type. Empty means balanced.
func ParseSessionType(s string) (SessionType, error) {
	switch t := SessionType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return SessionBalanced, nil
	case SessionWeakness, SessionStrength, SessionChallenge, SessionBalanced:
		return t, nil
	}
	return "", &domain.ValidationError{Field: "session_type", Reason: s, Err: domain.ErrUnknownSessionType}
}

// SubjectStats aggregates history for one subject
type SubjectStats struct {
	Subject     string
	Attempts    int
	Solved      int
	HintsUsed   int
	SuccessRate float64
}

// Performance summarizes recent problem history
type Performance struct {
	TotalAttempts int
	OverallRate   float64
	Subjects      []SubjectStats // sorted by subject
	WeakAreas     []SubjectStats // weakest first
	StrongAreas   []SubjectStats // strongest first
}

// Analyze groups attempts by subject and classifies weak and strong areas.
func Analyze(attempts []domain.ProblemAttempt) Performance {
	bySubject := make(map[string]*SubjectStats)
	solved := 0
	for _, a := range attempts {
		name := domain.NormalizeSubject(a.Subject)
		if name == "" {
			continue
		}
		s, ok := bySubject[name]
		if !ok {
			s = &SubjectStats{Subject: name}
			bySubject[name] = s
		}
		s.Attempts++
		s.HintsUsed += a.HintsUsed
		if a.Solved {
			s.Solved++
			solved++
		}
	}

	perf := Performance{Subjects: make([]SubjectStats, 0, len(bySubject))}
	for _, s := range bySubject {
		s.SuccessRate = float64(s.Solved) / float64(s.Attempts)
		perf.TotalAttempts += s.Attempts
		perf.Subjects = append(perf.Subjects, *s)
	}
	if perf.TotalAttempts > 0 {
		perf.OverallRate = float64(solved) / float64(perf.TotalAttempts)
	}
	sort.Slice(perf.Subjects, func(i, j int) bool {
		return perf.Subjects[i].Subject < perf.Subjects[j].Subject
	})

	for _, s := range perf.Subjects {
		switch {
		case s.Attempts >= minWeakAttempts && s.SuccessRate < masteryRate:
			perf.WeakAreas = append(perf.WeakAreas, s)
		case s.Attempts >= minStrongAttempts && s.SuccessRate >= masteryRate:
			perf.StrongAreas = append(perf.StrongAreas, s)
		}
	}
	sort.SliceStable(perf.WeakAreas, func(i, j int) bool {
		a, b := perf.WeakAreas[i], perf.WeakAreas[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate < b.SuccessRate
		}
		return a.Attempts > b.Attempts
	})
	sort.SliceStable(perf.StrongAreas, func(i, j int) bool {
		a, b := perf.StrongAreas[i], perf.StrongAreas[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.Attempts > b.Attempts
	})
	if len(perf.WeakAreas) > maxAreas {
		perf.WeakAreas = perf.WeakAreas[:maxAreas]
	}
	if len(perf.StrongAreas) > maxAreas {
		perf.StrongAreas = perf.StrongAreas[:maxAreas]
	}
	return perf
}

// Focus labels why a problem is in a session
type Focus string

const (
	FocusWeak      Focus = "weak_area"
	FocusCore      Focus = "core"
	FocusStretch   Focus = "stretch"
	FocusStrength  Focus = "strength"
	FocusChallenge Focus = "challenge"
)

// PlannedProblem is one slot in a practice session
type PlannedProblem struct {
	Subject     string
	Difficulty  domain.Difficulty
	EstimatedXP int
	Focus       Focus
}

// SessionPlan is a recommended practice session
type SessionPlan struct {
	Type                  SessionType
	RecommendedDifficulty domain.Difficulty
	Level                 int
	Problems              []PlannedProblem
	TotalEstimatedXP      int
	WeakAreas             []string
	StrongAreas           []string
	ColdStart             bool // no history; default balanced session
	Degraded              bool // history or level could not be read
}

// Recommender composes practice sessions
type Recommender struct {
	rotation []string
}

// NewRecommender creates a recommender. An empty rotation uses DefaultRotation.
func NewRecommender(rotation []string) *Recommender {
	var clean []string
	for _, s := range rotation {
		if s = domain.NormalizeSubject(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		clean = DefaultRotation
	}
	return &Recommender{rotation: clean}
}

// ClampCount applies the default and the upper bound to a session size.
func ClampCount(count int) int {
	if count <= 0 {
		return DefaultSessionSize
	}
	return min(count, MaxSessionSize)
}

// BuildSession composes count problems from recent history. With no history
// it returns a balanced session at middle difficulty over the rotation.
func (r *Recommender) BuildSession(sessionType SessionType, count int, attempts []domain.ProblemAttempt, level int) (*SessionPlan, error) {
	switch sessionType {
	case SessionWeakness, SessionStrength, SessionChallenge, SessionBalanced:
	default:
		return nil, &domain.ValidationError{Field: "session_type", Reason: string(sessionType), Err: domain.ErrUnknownSessionType}
	}
	count = ClampCount(count)
	if level < 1 {
		level = 1
	}

	if len(attempts) == 0 {
		plan := &SessionPlan{
			Type:                  SessionBalanced,
			RecommendedDifficulty: domain.DifficultyMiddle,
			Level:                 level,
			ColdStart:             true,
		}
		for i := range count {
			plan.add(r.rotation[i%len(r.rotation)], domain.DifficultyMiddle, FocusCore)
		}
		return plan, nil
	}

	perf := Analyze(attempts)
	rec := TrackerFromAttempts(attempts).RecommendedDifficulty()
	plan := &SessionPlan{
		Type:                  sessionType,
		RecommendedDifficulty: rec,
		Level:                 level,
		WeakAreas:             subjectNames(perf.WeakAreas),
		StrongAreas:           subjectNames(perf.StrongAreas),
	}

	weak := r.weakPool(perf)
	switch sessionType {
	case SessionWeakness:
		for i := range count {
			plan.add(weak[i%len(weak)], rec.Shift(-1), FocusWeak)
		}
	case SessionStrength:
		pool := plan.StrongAreas
		if len(pool) == 0 {
			pool = r.rotation
		}
		for i := range count {
			plan.add(pool[i%len(pool)], rec.Shift(1), FocusStrength)
		}
	case SessionChallenge:
		for i := range count {
			plan.add(r.rotation[i%len(r.rotation)], rec.Shift(2), FocusChallenge)
		}
	case SessionBalanced:
		nWeak := int(math.Round(float64(count) * 0.4))
		nStretch := int(math.Round(float64(count) * 0.2))
		nCore := count - nWeak - nStretch
		for i := range nWeak {
			plan.add(weak[i%len(weak)], rec.Shift(-1), FocusWeak)
		}
		for i := range nCore {
			plan.add(r.rotation[i%len(r.rotation)], rec, FocusCore)
		}
		for i := range nStretch {
			plan.add(r.rotation[(nCore+i)%len(r.rotation)], rec.Shift(1), FocusStretch)
		}
	}
	return plan, nil
}

// weakPool returns subjects for weak-area slots: classified weak areas, or
// failing those every attempted subject from least to most successful.
func (r *Recommender) weakPool(perf Performance) []string {
	if len(perf.WeakAreas) > 0 {
		return subjectNames(perf.WeakAreas)
	}
	subjects := append([]SubjectStats(nil), perf.Subjects...)
	sort.SliceStable(subjects, func(i, j int) bool {
		return subjects[i].SuccessRate < subjects[j].SuccessRate
	})
	if len(subjects) == 0 {
		return r.rotation
	}
	return subjectNames(subjects)
}

func (p *SessionPlan) add(subject string, d domain.Difficulty, focus Focus) {
	xp := d.EstimatedXP()
	p.Problems = append(p.Problems, PlannedProblem{
		Subject:     subject,
		Difficulty:  d,
		EstimatedXP: xp,
		Focus:       focus,
	})
	p.TotalEstimatedXP += xp
}

func subjectNames(stats []SubjectStats) []string {
	names := make([]string, len(stats))
	for i, s := range stats {
		names[i] = s.Subject
	}
	return names
}

func (t SessionType) String() string {
	return string(t)
}

// Summary renders a one-line description of the plan for logs and CLIs.
func (p *SessionPlan) Summary() string {
	return fmt.Sprintf("%s session: %d problems at %s, ~%d XP", p.Type, len(p.Problems), p.RecommendedDifficulty, p.TotalEstimatedXP)
}
