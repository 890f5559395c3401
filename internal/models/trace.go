package models

import (
	"time"
)

// Trace represents one resolved mock request
type Trace struct {
	ID          string        `json:"id"`
	Project     string        `json:"project"`
	Endpoint    string        `json:"endpoint"`
	Method      string        `json:"method"`
	Stage       string        `json:"stage"` // pipeline stage that produced the response
	Timestamp   time.Time     `json:"timestamp"`
	Duration    int64         `json:"duration"` // nanoseconds
	Request     TraceRequest  `json:"request"`
	Response    TraceResponse `json:"response"`
	Expectation string        `json:"expectation,omitempty"` // name of the matched expectation
	Logs        []string      `json:"logs,omitempty"`
}

// TraceRequest represents the captured request
type TraceRequest struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
}

// TraceResponse represents the captured response
type TraceResponse struct {
	StatusCode  int    `json:"statusCode"`
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
}

// TraceFilter represents filters for querying traces
type TraceFilter struct {
	Project    string    `json:"project,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Method     string    `json:"method,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	StartTime  time.Time `json:"startTime,omitempty"`
	EndTime    time.Time `json:"endTime,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}
