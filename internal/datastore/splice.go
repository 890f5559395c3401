package datastore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/sjson"
)

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)
var bracketKey = regexp.MustCompile(`\[['"]([^'"]+)['"]\]`)

// Splice writes query rows into body at jsonPath. A single row is written as
// an object, several rows as an array, and no rows leave body untouched.
// The path may be written as "$.a.b[0]" or "a.b.0"; "$" replaces the whole body.
func Splice(body any, jsonPath string, rows []map[string]any) (any, error) {
	if len(rows) == 0 {
		return body, nil
	}

	var value any = rows
	if len(rows) == 1 {
		value = rows[0]
	}

	path := toSJSONPath(jsonPath)
	if path == "" {
		return value, nil
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return body, fmt.Errorf("encode body: %w", err)
	}
	if body == nil {
		raw = []byte("{}")
	}

	updated, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		return body, fmt.Errorf("set %s: %w", jsonPath, err)
	}

	var out any
	if err := json.Unmarshal(updated, &out); err != nil {
		return body, fmt.Errorf("decode body: %w", err)
	}
	return out, nil
}

func toSJSONPath(jsonPath string) string {
	p := strings.TrimSpace(jsonPath)
	p = strings.TrimPrefix(p, "$")
	p = bracketKey.ReplaceAllString(p, ".$1")
	p = bracketIndex.ReplaceAllString(p, ".$1")
	return strings.Trim(p, ".")
}
