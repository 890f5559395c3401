package condition

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// Evaluator evaluates conditions against request data
type Evaluator struct{}

// NewEvaluator creates a new condition evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// RequestData contains all request data for condition evaluation
type RequestData struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    string
}

// Outcome is the result of evaluating one condition
type Outcome struct {
	Comparator models.Comparator
	Actual     any
	Exists     bool
	Passed     bool
}

// Evaluate evaluates a single condition against request data
func (e *Evaluator) Evaluate(cond models.Condition, data *RequestData) Outcome {
	if data == nil {
		data = &RequestData{}
	}
	comp := NormalizeComparator(cond.Comparison)
	actual, exists := e.extractValue(cond.Location, cond.Field, data)
	return Outcome{
		Comparator: comp,
		Actual:     actual,
		Exists:     exists,
		Passed:     compare(actual, exists, comp, cond.ExpectedValue),
	}
}

// extractValue reads the value a condition refers to. The boolean is false
// when the value is absent.
func (e *Evaluator) extractValue(location, field string, data *RequestData) (any, bool) {
	switch strings.ToLower(strings.TrimSpace(location)) {
	case models.LocationHeader, models.LocationHeaders:
		for k, vals := range data.Headers {
			if strings.EqualFold(k, field) && len(vals) > 0 {
				return strings.TrimSpace(vals[0]), true
			}
		}
		return nil, false

	case models.LocationQuery, models.LocationParam, models.LocationParams:
		return queryValue(data.Query, field)

	case models.LocationBody:
		if !gjson.Valid(data.Body) {
			return nil, false
		}
		if field == "" {
			return gjson.Parse(data.Body).Value(), true
		}
		result := gjson.Get(data.Body, field)
		if !result.Exists() {
			return nil, false
		}
		return result.Value(), true
	}

	return nil, false
}

func queryValue(q url.Values, field string) (any, bool) {
	candidates := []string{field}
	if decoded, err := url.QueryUnescape(field); err == nil && decoded != field {
		candidates = append(candidates, decoded)
	}
	// a.b also matches the bracketed key a[b]
	if strings.Contains(field, ".") {
		parts := strings.Split(field, ".")
		candidates = append(candidates, parts[0]+"["+strings.Join(parts[1:], "][")+"]")
	}

	for _, key := range candidates {
		if vals, ok := q[key]; ok && len(vals) > 0 {
			return strings.TrimSpace(vals[0]), true
		}
	}
	return nil, false
}

func compare(actual any, exists bool, comp models.Comparator, expected string) bool {
	a := stringify(actual)
	aNum, aErr := strconv.ParseFloat(strings.TrimSpace(a), 64)
	eNum, eErr := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	numeric := aErr == nil && eErr == nil

	switch comp {
	case models.CompNotEquals:
		return a != expected
	case models.CompGreaterThan:
		if numeric {
			return aNum > eNum
		}
		return a > expected
	case models.CompGTE:
		if numeric {
			return aNum >= eNum
		}
		return a >= expected
	case models.CompLessThan:
		if numeric {
			return aNum < eNum
		}
		return a < expected
	case models.CompLTE:
		if numeric {
			return aNum <= eNum
		}
		return a <= expected
	case models.CompContains:
		return strings.Contains(a, expected)
	case models.CompNotContains:
		return !strings.Contains(a, expected)
	case models.CompExists:
		return exists && actual != nil && a != ""
	case models.CompNotExists:
		return !exists || actual == nil || a == ""
	default:
		return a == expected
	}
}

// stringify renders an extracted value for string comparison; absent and null become ""
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
