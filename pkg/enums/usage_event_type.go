package enums

import "fmt"

// UsageEventType names an event the usage ledger can count.
type UsageEventType string

const (
	UsageEventCountableSession UsageEventType = "countable_session"
	UsageEventQuestion         UsageEventType = "question"
	UsageEventPiece            UsageEventType = "piece"
)

var validUsageEventTypes = []UsageEventType{
	UsageEventCountableSession,
	UsageEventQuestion,
	UsageEventPiece,
}

// String implements fmt.Stringer.
func (u UsageEventType) String() string {
	return string(u)
}

// IsValid reports whether the value is known.
func (u UsageEventType) IsValid() bool {
	for _, candidate := range validUsageEventTypes {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUsageEventType converts raw input into a UsageEventType.
func ParseUsageEventType(value string) (UsageEventType, error) {
	for _, candidate := range validUsageEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid usage event type %q", value)
}
