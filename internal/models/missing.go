package models

import "strings"

// MissingField is one entry of a validation report
type MissingField struct {
	Field string `json:"field"`
	Type  string `json:"type"`
}

// NormalizeType renders a declared schema type as a label.
// Multiple types are joined with "|"; no type yields "unknown".
func NormalizeType(types []string) string {
	if len(types) == 0 {
		return "unknown"
	}
	return strings.Join(types, "|")
}
