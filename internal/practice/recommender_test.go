package practice

import (
	"errors"
	"slices"
	"testing"

	"github.com/felixgeelhaar/progression/internal/domain"
)

func attempts(subject string, d domain.Difficulty, solved, failed int) []domain.ProblemAttempt {
	var out []domain.ProblemAttempt
	for range solved {
		out = append(out, domain.ProblemAttempt{Subject: subject, Difficulty: d, Solved: true})
	}
	for range failed {
		out = append(out, domain.ProblemAttempt{Subject: subject, Difficulty: d})
	}
	return out
}

func TestAnalyze_WeakAndStrongAreas(t *testing.T) {
	rows := append(attempts("geometry", domain.DifficultyMiddle, 1, 2), attempts("Algebra", domain.DifficultyMiddle, 5, 0)...)

	perf := Analyze(rows)
	if perf.TotalAttempts != 8 {
		t.Errorf("TotalAttempts = %d; want 8", perf.TotalAttempts)
	}
	if names := subjectNames(perf.WeakAreas); !slices.Equal(names, []string{"geometry"}) {
		t.Errorf("WeakAreas = %v; want [geometry]", names)
	}
	if names := subjectNames(perf.StrongAreas); !slices.Equal(names, []string{"algebra"}) {
		t.Errorf("StrongAreas = %v; want [algebra]", names)
	}
}

func TestAnalyze_ThresholdsAndRanking(t *testing.T) {
	var rows []domain.ProblemAttempt
	rows = append(rows, attempts("a", domain.DifficultyMiddle, 0, 1)...) // 1 attempt: too few
	rows = append(rows, attempts("b", domain.DifficultyMiddle, 1, 1)...) // 50%
	rows = append(rows, attempts("c", domain.DifficultyMiddle, 0, 2)...) // 0%
	rows = append(rows, attempts("d", domain.DifficultyMiddle, 1, 2)...) // 33%
	rows = append(rows, attempts("e", domain.DifficultyMiddle, 3, 2)...) // 60%
	rows = append(rows, attempts("f", domain.DifficultyMiddle, 2, 0)...) // strong rate, too few
	rows = append(rows, attempts("g", domain.DifficultyMiddle, 7, 3)...) // 70%: strong boundary
	rows = append(rows, attempts("h", domain.DifficultyMiddle, 4, 0)...) // 100%

	perf := Analyze(rows)
	if names := subjectNames(perf.WeakAreas); !slices.Equal(names, []string{"c", "d", "b"}) {
		t.Errorf("WeakAreas = %v; want [c d b]", names)
	}
	if names := subjectNames(perf.StrongAreas); !slices.Equal(names, []string{"h", "g"}) {
		t.Errorf("StrongAreas = %v; want [h g]", names)
	}
}

func TestParseSessionType(t *testing.T) {
	for _, in := range []string{"weakness", "Strength", "challenge", "balanced"} {
		if _, err := ParseSessionType(in); err != nil {
			t.Errorf("ParseSessionType(%q) error = %v", in, err)
		}
	}
	if got, _ := ParseSessionType(""); got != SessionBalanced {
		t.Errorf("ParseSessionType(\"\") = %s; want balanced", got)
	}
	_, err := ParseSessionType("marathon")
	if !errors.Is(err, domain.ErrUnknownSessionType) || !errors.Is(err, domain.ErrValidation) {
		t.Errorf("ParseSessionType(marathon) error = %v", err)
	}
}

func TestBuildSession_EmptyHistory(t *testing.T) {
	r := NewRecommender(nil)

	for _, st := range []SessionType{SessionWeakness, SessionStrength, SessionChallenge, SessionBalanced} {
		plan, err := r.BuildSession(st, 7, nil, 1)
		if err != nil {
			t.Fatalf("BuildSession(%s) error = %v", st, err)
		}
		if !plan.ColdStart || plan.Type != SessionBalanced {
			t.Errorf("BuildSession(%s) type = %s cold = %v; want balanced cold start", st, plan.Type, plan.ColdStart)
		}
		if len(plan.Problems) != 7 {
			t.Fatalf("len(Problems) = %d; want 7", len(plan.Problems))
		}
		for i, p := range plan.Problems {
			if p.Difficulty != domain.DifficultyMiddle {
				t.Errorf("problem %d difficulty = %s; want middle", i, p.Difficulty)
			}
			if p.Subject != DefaultRotation[i%len(DefaultRotation)] {
				t.Errorf("problem %d subject = %s", i, p.Subject)
			}
		}
		if plan.TotalEstimatedXP != 7*15 {
			t.Errorf("TotalEstimatedXP = %d; want %d", plan.TotalEstimatedXP, 7*15)
		}
	}
}

func TestBuildSession_CountBounds(t *testing.T) {
	r := NewRecommender(nil)

	tests := []struct{ in, want int }{
		{0, 5},
		{-3, 5},
		{1, 1},
		{20, 20},
		{500, 20},
	}
	for _, tt := range tests {
		plan, err := r.BuildSession(SessionBalanced, tt.in, nil, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(plan.Problems) != tt.want {
			t.Errorf("count %d -> %d problems; want %d", tt.in, len(plan.Problems), tt.want)
		}
	}
}

func TestBuildSession_UnknownType(t *testing.T) {
	_, err := NewRecommender(nil).BuildSession("marathon", 5, nil, 1)
	if !errors.Is(err, domain.ErrUnknownSessionType) {
		t.Errorf("BuildSession() error = %v; want ErrUnknownSessionType", err)
	}
}

func TestBuildSession_Types(t *testing.T) {
	// geometry 1/3 weak, algebra 5/5 strong, 8 attempts at middle: 6/8 = 75% in band.
	rows := append(attempts("geometry", domain.DifficultyMiddle, 1, 2), attempts("algebra", domain.DifficultyMiddle, 5, 0)...)
	r := NewRecommender(nil)

	t.Run("weakness", func(t *testing.T) {
		plan, err := r.BuildSession(SessionWeakness, 4, rows, 3)
		if err != nil {
			t.Fatal(err)
		}
		if plan.RecommendedDifficulty != domain.DifficultyMiddle {
			t.Fatalf("RecommendedDifficulty = %s; want middle", plan.RecommendedDifficulty)
		}
		for _, p := range plan.Problems {
			if p.Subject != "geometry" || p.Difficulty != domain.DifficultyElementary {
				t.Errorf("problem = %+v; want geometry at elementary", p)
			}
		}
		if plan.TotalEstimatedXP != 4*9 || plan.Level != 3 {
			t.Errorf("TotalEstimatedXP = %d level = %d; want 36, 3", plan.TotalEstimatedXP, plan.Level)
		}
	})

	t.Run("strength", func(t *testing.T) {
		plan, err := r.BuildSession(SessionStrength, 3, rows, 1)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range plan.Problems {
			if p.Subject != "algebra" || p.Difficulty != domain.DifficultyHigh || p.EstimatedXP != 20 {
				t.Errorf("problem = %+v; want algebra at high", p)
			}
		}
	})

	t.Run("challenge", func(t *testing.T) {
		plan, err := r.BuildSession(SessionChallenge, 5, rows, 1)
		if err != nil {
			t.Fatal(err)
		}
		for i, p := range plan.Problems {
			if p.Difficulty != domain.DifficultyAdvanced || p.Subject != DefaultRotation[i] {
				t.Errorf("problem %d = %+v; want %s at advanced", i, p, DefaultRotation[i])
			}
		}
	})

	t.Run("balanced", func(t *testing.T) {
		plan, err := r.BuildSession(SessionBalanced, 5, rows, 1)
		if err != nil {
			t.Fatal(err)
		}
		counts := map[Focus]int{}
		for _, p := range plan.Problems {
			counts[p.Focus]++
		}
		if counts[FocusWeak] != 2 || counts[FocusCore] != 2 || counts[FocusStretch] != 1 {
			t.Errorf("focus mix = %v; want 2 weak, 2 core, 1 stretch", counts)
		}
		want := 2*9 + 2*15 + 20
		if plan.TotalEstimatedXP != want {
			t.Errorf("TotalEstimatedXP = %d; want %d", plan.TotalEstimatedXP, want)
		}
		if !slices.Equal(plan.WeakAreas, []string{"geometry"}) || !slices.Equal(plan.StrongAreas, []string{"algebra"}) {
			t.Errorf("areas = %v / %v", plan.WeakAreas, plan.StrongAreas)
		}
	})
}

func TestBuildSession_WeaknessWithoutWeakAreas(t *testing.T) {
	rows := append(attempts("fractions", domain.DifficultyMiddle, 3, 1), attempts("algebra", domain.DifficultyMiddle, 4, 0)...)
	plan, err := NewRecommender(nil).BuildSession(SessionWeakness, 2, rows, 1)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Problems[0].Subject != "fractions" {
		t.Errorf("first subject = %s; want least successful subject fractions", plan.Problems[0].Subject)
	}
}
