package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExpectationSpec is a declarative rule set stored in an expectation record
type ExpectationSpec struct {
	Name               string       `json:"name"`
	Logic              string       `json:"logic"` // default link for conditions without LogicBefore
	ContentType        string       `json:"contentType"`
	MockResponse       ResponseText `json:"mockResponse"`
	MockResponseStatus StatusCode   `json:"mockResponseStatus"`
	Conditions         []Condition  `json:"conditions"`
}

// Condition is matched against one value of the incoming request.
// OpenParen/CloseParen are kept for display only; evaluation is a left fold.
type Condition struct {
	Enabled       bool   `json:"enabled"`
	Location      string `json:"location"`
	Field         string `json:"field"`
	Comparison    string `json:"comparison"`
	ExpectedValue string `json:"expectedValue"`
	LogicBefore   string `json:"logicBefore,omitempty"`
	OpenParen     bool   `json:"openParen,omitempty"`
	CloseParen    bool   `json:"closeParen,omitempty"`
}

// Supported condition locations and their aliases
const (
	LocationHeader  = "header"
	LocationHeaders = "headers"
	LocationQuery   = "query"
	LocationParam   = "param"
	LocationParams  = "params"
	LocationBody    = "body"
)

// Logical operators
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Comparator is the canonical comparison kind
type Comparator string

// Supported comparators
const (
	CompEquals      Comparator = "eq"
	CompNotEquals   Comparator = "ne"
	CompGreaterThan Comparator = "gt"
	CompGTE         Comparator = "gte"
	CompLessThan    Comparator = "lt"
	CompLTE         Comparator = "lte"
	CompContains    Comparator = "inc"
	CompNotContains Comparator = "ninc"
	CompExists      Comparator = "exists"
	CompNotExists   Comparator = "notexists"
)

// Defaults applied to expectation specs
const (
	DefaultContentType = "application/json"
	DefaultStatus      = 200
)

// ValidLocations returns all accepted condition locations
func ValidLocations() []string {
	return []string{
		LocationHeader, LocationHeaders,
		LocationQuery, LocationParam, LocationParams,
		LocationBody,
	}
}

// ValidComparators returns all canonical comparators
func ValidComparators() []Comparator {
	return []Comparator{
		CompEquals, CompNotEquals, CompGreaterThan, CompGTE,
		CompLessThan, CompLTE, CompContains, CompNotContains,
		CompExists, CompNotExists,
	}
}

// ParseExpectation decodes the code of an expectation record and fills defaults
func ParseExpectation(code string) (*ExpectationSpec, error) {
	var spec ExpectationSpec
	if err := json.Unmarshal([]byte(code), &spec); err != nil {
		return nil, fmt.Errorf("invalid expectation: %w", err)
	}
	if strings.TrimSpace(spec.ContentType) == "" {
		spec.ContentType = DefaultContentType
	}
	if spec.MockResponseStatus == 0 {
		spec.MockResponseStatus = DefaultStatus
	}
	if strings.TrimSpace(spec.Logic) == "" {
		spec.Logic = LogicAnd
	}
	return &spec, nil
}

// StatusCode accepts both 403 and "403" when decoding
type StatusCode int

// UnmarshalJSON implements json.Unmarshaler
func (s *StatusCode) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*s = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid status code %q", raw)
	}
	*s = StatusCode(n)
	return nil
}

// ResponseText is a mock response body. Stored specs carry it as a string,
// but an inline JSON value is accepted and kept as its JSON text.
type ResponseText string

// UnmarshalJSON implements json.Unmarshaler
func (r *ResponseText) UnmarshalJSON(data []byte) error {
	var s string // null decodes to ""
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ResponseText(s)
		return nil
	}
	*r = ResponseText(data)
	return nil
}
