package domain

import "encoding/json"

// Values are stored as JSON so records stay readable from any store client.

// MarshalValue encodes v for the shared store.
func MarshalValue(v any) ([]byte, error) { return json.Marshal(v) }

// UnmarshalValue decodes a shared-store value into out.
func UnmarshalValue(b []byte, out any) error { return json.Unmarshal(b, out) }

// FlagValue is the encoded form of a boolean flag.
func FlagValue(on bool) []byte {
	if on {
		return []byte("true")
	}
	return []byte("false")
}

// IsFlagSet reports whether ev carries a present flag equal to true.
// Malformed values count as unset.
func IsFlagSet(ev Event) bool {
	if !ev.Exists {
		return false
	}
	var on bool
	if err := json.Unmarshal(ev.Value, &on); err != nil {
		return false
	}
	return on
}
