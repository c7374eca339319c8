package core

import (
	"encoding/json"
	"strings"

	"github.com/volatiletech/null/v8"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// NullString cleans `s` and returns it as a null.String that is invalid when empty.
func NullString(s string) null.String {
	s = CleanString(s)
	return null.NewString(s, s != "")
}

// OptionalInt64 is a nullable integer in a partial-update payload.
// Set reports whether the key was present at all, so an explicit `null` can be told apart from an absent key.
type OptionalInt64 struct {
	null.Int64
	Set bool
}

func (o *OptionalInt64) UnmarshalJSON(data []byte) error {
	o.Set = true
	return o.Int64.UnmarshalJSON(data)
}

func (o OptionalInt64) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Int64.Int64)
}
