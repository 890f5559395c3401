package models

import (
	"sync/atomic"
	"time"
)

// GlobalStats represents global statistics
type GlobalStats struct {
	TotalRequests     int64            `json:"totalRequests"`
	TotalErrors       int64            `json:"totalErrors"`
	ActiveProjects    int              `json:"activeProjects"`
	AvgResponseTimeMs float64          `json:"avgResponseTimeMs"`
	RequestsPerSecond float64          `json:"requestsPerSecond"`
	StartTime         time.Time        `json:"startTime"`
	Uptime            string           `json:"uptime"`
	ByStage           map[string]int64 `json:"byStage"`
	TopEndpoints      []EndpointStat   `json:"topEndpoints"`
	RecentErrors      []ErrorStat      `json:"recentErrors"`
	RequestsByHour    []HourlyStat     `json:"requestsByHour"`
}

// ProjectStats represents statistics for a single project
type ProjectStats struct {
	Project           string         `json:"project"`
	TotalRequests     int64          `json:"totalRequests"`
	TotalErrors       int64          `json:"totalErrors"`
	AvgResponseTimeMs float64        `json:"avgResponseTimeMs"`
	Endpoints         []EndpointStat `json:"endpoints"`
}

// EndpointStat represents statistics for one (project, endpoint, method)
type EndpointStat struct {
	Project           string  `json:"project"`
	Endpoint          string  `json:"endpoint"`
	Method            string  `json:"method"`
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	MinResponseTimeMs float64 `json:"minResponseTimeMs"`
	MaxResponseTimeMs float64 `json:"maxResponseTimeMs"`
	LastRequestTime   string  `json:"lastRequestTime,omitempty"`
}

// ErrorStat represents an error occurrence
type ErrorStat struct {
	Timestamp  time.Time `json:"timestamp"`
	Project    string    `json:"project"`
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	Stage      string    `json:"stage"`
	StatusCode int       `json:"statusCode"`
	Error      string    `json:"error"`
}

// HourlyStat represents hourly request statistics
type HourlyStat struct {
	Hour     string `json:"hour"`
	Requests int64  `json:"requests"`
	Errors   int64  `json:"errors"`
}

// AtomicEndpointStat is a thread-safe version of endpoint statistics
type AtomicEndpointStat struct {
	Project         string
	Endpoint        string
	Method          string
	TotalRequests   atomic.Int64
	TotalErrors     atomic.Int64
	TotalTimeNs     atomic.Int64
	MinTimeNs       atomic.Int64
	MaxTimeNs       atomic.Int64
	LastRequestTime atomic.Value // stores time.Time
}

// ToEndpointStat takes a snapshot of the counters
func (a *AtomicEndpointStat) ToEndpointStat() EndpointStat {
	totalReqs := a.TotalRequests.Load()
	var avgMs float64
	if totalReqs > 0 {
		avgMs = float64(a.TotalTimeNs.Load()) / float64(totalReqs) / 1e6
	}

	var lastReqTime string
	if t, ok := a.LastRequestTime.Load().(time.Time); ok && !t.IsZero() {
		lastReqTime = t.Format(time.RFC3339)
	}

	return EndpointStat{
		Project:           a.Project,
		Endpoint:          a.Endpoint,
		Method:            a.Method,
		TotalRequests:     totalReqs,
		TotalErrors:       a.TotalErrors.Load(),
		AvgResponseTimeMs: avgMs,
		MinResponseTimeMs: float64(a.MinTimeNs.Load()) / 1e6,
		MaxResponseTimeMs: float64(a.MaxTimeNs.Load()) / 1e6,
		LastRequestTime:   lastReqTime,
	}
}
