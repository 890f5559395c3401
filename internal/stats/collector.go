// Package stats aggregates per-endpoint request statistics of the mock pipeline.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// Sample is one resolved mock request
type Sample struct {
	Project  string
	Endpoint string
	Method   string
	Stage    string
	Status   int
	Duration time.Duration
	Error    string
}

// IsError reports whether the sample counts as a failed request
func (s Sample) IsError() bool {
	return s.Status >= 400
}

// Sink receives every sample recorded by a Collector
type Sink interface {
	Record(s Sample)
}

// Collector collects and aggregates statistics
type Collector struct {
	mu             sync.RWMutex
	startTime      time.Time
	endpoints      map[string]*models.AtomicEndpointStat // project|method|endpoint -> stats
	byStage        map[string]int64
	recentErrors   []models.ErrorStat
	hourlyStats    map[string]*hourlyCounter // "YYYY-MM-DD-HH" -> counter
	maxErrors      int
	maxHourlySlots int
	sinks          []Sink
}

type hourlyCounter struct {
	Hour     string
	Requests int64
	Errors   int64
}

// NewCollector creates a new statistics collector
func NewCollector(sinks ...Sink) *Collector {
	return &Collector{
		startTime:      time.Now(),
		endpoints:      make(map[string]*models.AtomicEndpointStat),
		byStage:        make(map[string]int64),
		recentErrors:   make([]models.ErrorStat, 0),
		hourlyStats:    make(map[string]*hourlyCounter),
		maxErrors:      100,
		maxHourlySlots: 168, // 7 days
		sinks:          sinks,
	}
}

func endpointKey(project, endpoint, method string) string {
	return project + "|" + method + "|" + endpoint
}

// Record records a resolved request
func (c *Collector) Record(s Sample) {
	s.Method = models.NormalizeMethod(s.Method)

	c.mu.Lock()
	c.recordLocked(s)
	c.mu.Unlock()

	for _, sink := range c.sinks {
		sink.Record(s)
	}
}

func (c *Collector) recordLocked(s Sample) {
	key := endpointKey(s.Project, s.Endpoint, s.Method)
	durationNs := s.Duration.Nanoseconds()

	stat, ok := c.endpoints[key]
	if !ok {
		stat = &models.AtomicEndpointStat{
			Project:  s.Project,
			Endpoint: s.Endpoint,
			Method:   s.Method,
		}
		stat.MinTimeNs.Store(durationNs)
		c.endpoints[key] = stat
	}

	stat.TotalRequests.Add(1)
	stat.TotalTimeNs.Add(durationNs)
	stat.LastRequestTime.Store(time.Now())

	for {
		currentMin := stat.MinTimeNs.Load()
		if durationNs >= currentMin || stat.MinTimeNs.CompareAndSwap(currentMin, durationNs) {
			break
		}
	}
	for {
		currentMax := stat.MaxTimeNs.Load()
		if durationNs <= currentMax || stat.MaxTimeNs.CompareAndSwap(currentMax, durationNs) {
			break
		}
	}

	if s.Stage != "" {
		c.byStage[s.Stage]++
	}

	if s.IsError() {
		stat.TotalErrors.Add(1)
		c.recentErrors = append(c.recentErrors, models.ErrorStat{
			Timestamp:  time.Now(),
			Project:    s.Project,
			Endpoint:   s.Endpoint,
			Method:     s.Method,
			Stage:      s.Stage,
			StatusCode: s.Status,
			Error:      s.Error,
		})
		if len(c.recentErrors) > c.maxErrors {
			c.recentErrors = c.recentErrors[1:]
		}
	}

	hourKey := time.Now().Format("2006-01-02-15")
	hourly, ok := c.hourlyStats[hourKey]
	if !ok {
		hourly = &hourlyCounter{Hour: hourKey}
		c.hourlyStats[hourKey] = hourly
		c.cleanupOldHourlyStats()
	}
	hourly.Requests++
	if s.IsError() {
		hourly.Errors++
	}
}

// cleanupOldHourlyStats removes hourly stats older than maxHourlySlots
func (c *Collector) cleanupOldHourlyStats() {
	if len(c.hourlyStats) <= c.maxHourlySlots {
		return
	}

	keys := make([]string, 0, len(c.hourlyStats))
	for k := range c.hourlyStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	toRemove := len(keys) - c.maxHourlySlots
	for i := 0; i < toRemove; i++ {
		delete(c.hourlyStats, keys[i])
	}
}

// GetGlobalStats returns global statistics
func (c *Collector) GetGlobalStats(activeProjects int) *models.GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalRequests, totalErrors, totalTimeNs int64

	endpoints := make([]models.EndpointStat, 0, len(c.endpoints))
	for _, e := range c.endpoints {
		stat := e.ToEndpointStat()
		endpoints = append(endpoints, stat)
		totalRequests += stat.TotalRequests
		totalErrors += stat.TotalErrors
		totalTimeNs += e.TotalTimeNs.Load()
	}

	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].TotalRequests > endpoints[j].TotalRequests
	})

	top := endpoints
	if len(top) > 10 {
		top = top[:10]
	}

	var avgResponseTimeMs float64
	if totalRequests > 0 {
		avgResponseTimeMs = float64(totalTimeNs) / float64(totalRequests) / 1e6
	}

	uptime := time.Since(c.startTime).Seconds()
	var requestsPerSecond float64
	if uptime > 0 {
		requestsPerSecond = float64(totalRequests) / uptime
	}

	byStage := make(map[string]int64, len(c.byStage))
	for k, v := range c.byStage {
		byStage[k] = v
	}

	return &models.GlobalStats{
		TotalRequests:     totalRequests,
		TotalErrors:       totalErrors,
		ActiveProjects:    activeProjects,
		AvgResponseTimeMs: avgResponseTimeMs,
		RequestsPerSecond: requestsPerSecond,
		StartTime:         c.startTime,
		Uptime:            formatDuration(time.Since(c.startTime)),
		ByStage:           byStage,
		TopEndpoints:      top,
		RecentErrors:      append([]models.ErrorStat(nil), c.recentErrors...),
		RequestsByHour:    c.buildHourlyStats(),
	}
}

// GetProjectStats returns statistics for one project
func (c *Collector) GetProjectStats(project string) *models.ProjectStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalRequests, totalErrors, totalTimeNs int64
	endpoints := make([]models.EndpointStat, 0)

	for _, e := range c.endpoints {
		if e.Project != project {
			continue
		}

		stat := e.ToEndpointStat()
		endpoints = append(endpoints, stat)
		totalRequests += stat.TotalRequests
		totalErrors += stat.TotalErrors
		totalTimeNs += e.TotalTimeNs.Load()
	}

	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Endpoint != endpoints[j].Endpoint {
			return endpoints[i].Endpoint < endpoints[j].Endpoint
		}
		return endpoints[i].Method < endpoints[j].Method
	})

	var avgResponseTimeMs float64
	if totalRequests > 0 {
		avgResponseTimeMs = float64(totalTimeNs) / float64(totalRequests) / 1e6
	}

	return &models.ProjectStats{
		Project:           project,
		TotalRequests:     totalRequests,
		TotalErrors:       totalErrors,
		AvgResponseTimeMs: avgResponseTimeMs,
		Endpoints:         endpoints,
	}
}

// buildHourlyStats builds the last 24 hours, oldest first
func (c *Collector) buildHourlyStats() []models.HourlyStat {
	now := time.Now()
	stats := make([]models.HourlyStat, 0, 24)

	for i := 23; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)
		stat := models.HourlyStat{Hour: hour.Format("15:00")}

		if hourly, ok := c.hourlyStats[hour.Format("2006-01-02-15")]; ok {
			stat.Requests = hourly.Requests
			stat.Errors = hourly.Errors
		}

		stats = append(stats, stat)
	}

	return stats
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.endpoints = make(map[string]*models.AtomicEndpointStat)
	c.byStage = make(map[string]int64)
	c.recentErrors = make([]models.ErrorStat, 0)
	c.hourlyStats = make(map[string]*hourlyCounter)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
