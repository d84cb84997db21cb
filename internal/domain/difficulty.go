package domain

import (
	"fmt"
	"math"
	"strings"
)

// Difficulty is an ordered problem tier used for both content selection and
// XP reward sizing.
type Difficulty string

const (
	DifficultyElementary Difficulty = "elementary"
	DifficultyMiddle     Difficulty = "middle"
	DifficultyHigh       Difficulty = "high"
	DifficultyAdvanced   Difficulty = "advanced"
)

// BaseProblemXP is the reward for a middle-tier problem solved without hints.
const BaseProblemXP = 15

const (
	minProblemXP  = 5
	hintPenaltyXP = 2
	firstLoginXP  = 60
	dailyLoginXP  = 10
)

// Difficulties lists the tiers from easiest to hardest.
var Difficulties = []Difficulty{
	DifficultyElementary,
	DifficultyMiddle,
	DifficultyHigh,
	DifficultyAdvanced,
}

var difficultyAliases = map[string]Difficulty{
	"elementary": DifficultyElementary,
	"easy":       DifficultyElementary,
	"middle":     DifficultyMiddle,
	"medium":     DifficultyMiddle,
	"high":       DifficultyHigh,
	"hard":       DifficultyHigh,
	"advanced":   DifficultyAdvanced,
	"expert":     DifficultyAdvanced,
}

var difficultyMultipliers = map[Difficulty]float64{
	DifficultyElementary: 0.6,
	DifficultyMiddle:     1.0,
	DifficultyHigh:       1.3,
	DifficultyAdvanced:   1.8,
}

// ParseDifficulty accepts tier names and their easy/medium/hard/expert aliases.
func ParseDifficulty(s string) (Difficulty, error) {
	if d, ok := difficultyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
}

// Valid reports whether d is one of the four tiers.
func (d Difficulty) Valid() bool {
	_, ok := difficultyMultipliers[d]
	return ok
}

// Rank returns the position of d in the tier order (elementary = 0).
func (d Difficulty) Rank() int {
	for i, tier := range Difficulties {
		if tier == d {
			return i
		}
	}
	return 1
}

// Shift moves n tiers up (positive) or down (negative), clamped to the ends.
func (d Difficulty) Shift(n int) Difficulty {
	rank := d.Rank() + n
	rank = max(0, min(len(Difficulties)-1, rank))
	return Difficulties[rank]
}

// Multiplier returns the XP multiplier for the tier.
func (d Difficulty) Multiplier() float64 {
	if m, ok := difficultyMultipliers[d]; ok {
		return m
	}
	return 1.0
}

// EstimatedXP is the reward for solving a problem of this tier without hints.
func (d Difficulty) EstimatedXP() int {
	return int(math.Round(BaseProblemXP * d.Multiplier()))
}

// ProblemXP computes the reward for a solved problem:
// max(5, round(15 * multiplier - 2 * hints)).
func ProblemXP(d Difficulty, hintsUsed int) int {
	if hintsUsed < 0 {
		hintsUsed = 0
	}
	xp := int(math.Round(BaseProblemXP*d.Multiplier() - float64(hintsUsed*hintPenaltyXP)))
	return max(minProblemXP, xp)
}

// LoginBonus returns the daily login reward.
func LoginBonus(firstLogin bool) int {
	if firstLogin {
		return firstLoginXP
	}
	return dailyLoginXP
}
