package models

import (
	"strings"
	"time"
)

// ProcessorType distinguishes scripts from declarative expectations
type ProcessorType string

const (
	ProcessorPre         ProcessorType = "pre"
	ProcessorPost        ProcessorType = "post"
	ProcessorExpectation ProcessorType = "expectation"
)

// Valid reports whether t is a known processor type
func (t ProcessorType) Valid() bool {
	switch t {
	case ProcessorPre, ProcessorPost, ProcessorExpectation:
		return true
	}
	return false
}

// Processor is a stored script or expectation bound to one endpoint.
// For expectations Code holds a JSON encoded ExpectationSpec.
type Processor struct {
	ID        int64         `json:"id"`
	Project   string        `json:"project"`
	Endpoint  string        `json:"endpoint"`
	Method    string        `json:"method"`
	Type      ProcessorType `json:"type"`
	Code      string        `json:"code"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ProcessorInput represents input for creating a processor
type ProcessorInput struct {
	Project  string        `json:"project" binding:"required"`
	Endpoint string        `json:"endpoint" binding:"required"`
	Method   string        `json:"method" binding:"required"`
	Type     ProcessorType `json:"type" binding:"required"`
	Code     string        `json:"code"`
	Enabled  *bool         `json:"enabled,omitempty"`
}

// ProcessorUpdate represents input for updating a processor
type ProcessorUpdate struct {
	Code    *string `json:"code,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// ExpectModeInput toggles between expectation and pre/post execution for an endpoint
type ExpectModeInput struct {
	Project  string `json:"project" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
	Method   string `json:"method" binding:"required"`
	Enabled  bool   `json:"enabled"`
}

// NormalizeMethod returns the canonical (lower case) form used as a storage key
func NormalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
