package enums

import "fmt"

// ResourceType names a metered resource checked against plan limits.
type ResourceType string

const (
	ResourceTypeSession  ResourceType = "session"
	ResourceTypeQuestion ResourceType = "question"
	ResourceTypePiece    ResourceType = "piece"
)

var validResourceTypes = []ResourceType{
	ResourceTypeSession,
	ResourceTypeQuestion,
	ResourceTypePiece,
}

// String implements fmt.Stringer.
func (r ResourceType) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r ResourceType) IsValid() bool {
	for _, candidate := range validResourceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseResourceType converts raw input into a ResourceType. Unknown resource
// types are a caller bug and surface as an error, never as a silent allow.
func ParseResourceType(value string) (ResourceType, error) {
	for _, candidate := range validResourceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resource type %q", value)
}
