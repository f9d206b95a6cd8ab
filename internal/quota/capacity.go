package quota

import "encoding/json"

// Capacity is the remaining headroom of a metered resource. Unlimited
// capacity is an explicit state, not a large sentinel number.
type Capacity struct {
	Unlimited bool
	Remaining int
}

// UnlimitedCapacity reports no ceiling.
func UnlimitedCapacity() Capacity {
	return Capacity{Unlimited: true}
}

// LimitedCapacity clamps remaining at zero.
func LimitedCapacity(remaining int) Capacity {
	if remaining < 0 {
		remaining = 0
	}
	return Capacity{Remaining: remaining}
}

// MarshalJSON renders unlimited capacity as null and limited capacity as the
// remaining count.
func (c Capacity) MarshalJSON() ([]byte, error) {
	if c.Unlimited {
		return []byte("null"), nil
	}
	return json.Marshal(c.Remaining)
}

// UnmarshalJSON accepts the wire form produced by MarshalJSON.
func (c *Capacity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Capacity{Unlimited: true}
		return nil
	}
	var remaining int
	if err := json.Unmarshal(data, &remaining); err != nil {
		return err
	}
	*c = LimitedCapacity(remaining)
	return nil
}
