package alertness

import (
	"fmt"
	"strings"
)

// Level is the driver alertness severity. Levels are totally ordered and the
// numeric value is what the peripheral receives in an ALERT command.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

var levelNames = [...]string{"NORMAL", "WARNING", "CRITICAL", "EMERGENCY"}

func (l Level) String() string {
	if l < LevelNormal || l > LevelEmergency {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts a level name, case-insensitively.
func (l *Level) UnmarshalText(b []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(b)))
	for i, n := range levelNames {
		if n == name {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown alert level %q", string(b))
}

// LevelThresholds are the minimum scores for each escalated level.
type LevelThresholds struct {
	Warning   int
	Critical  int
	Emergency int
}

// DefaultLevelThresholds returns the standard 25/40/65 cut-offs.
func DefaultLevelThresholds() LevelThresholds {
	return LevelThresholds{Warning: 25, Critical: 40, Emergency: 65}
}

// Determine maps a score and the sustained steering anomaly flag to a level.
// It has no memory: the engine calls it fresh every frame and detects
// transitions by comparing with the level it holds.
func (t LevelThresholds) Determine(score int, sustainedAnomaly bool) Level {
	switch {
	case sustainedAnomaly:
		return LevelEmergency
	case score >= t.Emergency:
		return LevelEmergency
	case score >= t.Critical:
		return LevelCritical
	case score >= t.Warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// DetermineLevel applies the default thresholds.
func DetermineLevel(score int, sustainedAnomaly bool) Level {
	return DefaultLevelThresholds().Determine(score, sustainedAnomaly)
}
