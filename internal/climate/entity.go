package climate

// EntityState is a snapshot of a backend entity as delivered by the
// state-change notifier: the bare state string plus its attribute map.
type EntityState struct {
	EntityID   string
	State      string
	Attributes map[string]any
}

// Window sensor states as reported by the backend.
const (
	windowOpen   = "on"
	windowClosed = "off"
)

// stateKnown reports whether s carries a usable state value.
func stateKnown(s *EntityState) bool {
	if s == nil {
		return false
	}
	switch s.State {
	case "", "unknown", "unavailable":
		return false
	}
	return true
}

// floatAttr extracts a numeric attribute, tolerating the numeric types a
// decoded JSON payload may carry. Returns nil when absent or non-numeric.
func floatAttr(s *EntityState, key string) *float64 {
	if s == nil || s.Attributes == nil {
		return nil
	}
	switch v := s.Attributes[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

// equalFloatPtr compares two optional floats, treating two nils as equal.
func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
