package enums

import "fmt"

// ExperimentGroup is the bucket a user lands in for an experiment.
type ExperimentGroup string

const (
	ExperimentGroupControl ExperimentGroup = "control"
	ExperimentGroupVariant ExperimentGroup = "variant"
)

var validExperimentGroups = []ExperimentGroup{
	ExperimentGroupControl,
	ExperimentGroupVariant,
}

// String implements fmt.Stringer.
func (g ExperimentGroup) String() string {
	return string(g)
}

// IsValid reports whether the value is known.
func (g ExperimentGroup) IsValid() bool {
	for _, candidate := range validExperimentGroups {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseExperimentGroup converts raw input into an ExperimentGroup.
func ParseExperimentGroup(value string) (ExperimentGroup, error) {
	for _, candidate := range validExperimentGroups {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid experiment group %q", value)
}
