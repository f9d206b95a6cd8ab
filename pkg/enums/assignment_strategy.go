package enums

import "fmt"

// AssignmentStrategy selects how an experiment buckets new users.
type AssignmentStrategy string

const (
	AssignmentStrategyHashModulo AssignmentStrategy = "hash_modulo"
	AssignmentStrategyRandom     AssignmentStrategy = "random"
	AssignmentStrategyManual     AssignmentStrategy = "manual"
)

var validAssignmentStrategies = []AssignmentStrategy{
	AssignmentStrategyHashModulo,
	AssignmentStrategyRandom,
	AssignmentStrategyManual,
}

// String implements fmt.Stringer.
func (a AssignmentStrategy) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a AssignmentStrategy) IsValid() bool {
	for _, candidate := range validAssignmentStrategies {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAssignmentStrategy converts raw input into an AssignmentStrategy.
func ParseAssignmentStrategy(value string) (AssignmentStrategy, error) {
	for _, candidate := range validAssignmentStrategies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment strategy %q", value)
}
