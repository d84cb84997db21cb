package domain

import "math"

// Leveling curve. Advancing from level L to L+1 costs round(100 + 150*(L-1))
// XP, so the first level-up happens at 100 XP. Every place that derives a
// level from XP goes through LevelFor; there is no second formula.
const (
	baseLevelCost    = 100.0
	levelCostGrowth  = 1.5
	levelCostPerStep = baseLevelCost * levelCostGrowth
)

// LevelCost returns the XP needed to advance from level to level+1.
func LevelCost(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Round(levelCostPerStep*float64(level-1) + baseLevelCost))
}

// LevelFor returns the level reached with totalXP.
func LevelFor(totalXP int) int {
	level := 1
	accumulated := 0
	for accumulated+LevelCost(level) <= totalXP {
		accumulated += LevelCost(level)
		level++
	}
	return level
}

// ThresholdForLevel returns the total XP at which level is reached.
// It is the inverse of LevelFor: LevelFor(ThresholdForLevel(n)) == n.
func ThresholdForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	n := level - 1
	// sum_{k=1}^{n} (100 + 150(k-1)) = 100n + 75n(n-1)
	return int(baseLevelCost)*n + int(levelCostPerStep/2)*n*(n-1)
}

// XPToNextLevel returns the XP still needed to leave level, clamped at zero.
func XPToNextLevel(level, totalXP int) int {
	remaining := ThresholdForLevel(level+1) - totalXP
	if remaining < 0 {
		return 0
	}
	return remaining
}
