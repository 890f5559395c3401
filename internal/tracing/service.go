// Package tracing keeps a bounded buffer of resolved mock requests and
// streams new ones to live subscribers.
package tracing

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prasenjit/go-mockserver/internal/models"
)

// Service manages request/response tracing
type Service struct {
	mu          sync.RWMutex
	traces      []*models.Trace
	maxTraces   int
	subscribers map[string]chan *models.Trace
}

// NewService creates a new tracing service
func NewService(maxTraces int) *Service {
	if maxTraces <= 0 {
		maxTraces = 1000
	}

	return &Service{
		traces:      make([]*models.Trace, 0),
		maxTraces:   maxTraces,
		subscribers: make(map[string]chan *models.Trace),
	}
}

// RecordTrace records a new trace and notifies subscribers
func (s *Service) RecordTrace(trace *models.Trace) {
	s.mu.Lock()

	if trace.ID == "" {
		trace.ID = uuid.New().String()
	}
	if trace.Timestamp.IsZero() {
		trace.Timestamp = time.Now()
	}

	s.traces = append(s.traces, trace)
	if len(s.traces) > s.maxTraces {
		s.traces = s.traces[len(s.traces)-s.maxTraces:]
	}

	subscribers := make([]chan *models.Trace, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		subscribers = append(subscribers, ch)
	}

	s.mu.Unlock()

	// slow subscribers miss traces rather than block the request
	for _, ch := range subscribers {
		select {
		case ch <- trace:
		default:
		}
	}
}

// Matches reports whether trace passes filter. A nil filter matches everything.
func Matches(trace *models.Trace, filter *models.TraceFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Project != "" && trace.Project != filter.Project {
		return false
	}
	if filter.Endpoint != "" && trace.Endpoint != filter.Endpoint {
		return false
	}
	if filter.Method != "" && !strings.EqualFold(trace.Method, filter.Method) {
		return false
	}
	if filter.Stage != "" && trace.Stage != filter.Stage {
		return false
	}
	if filter.StatusCode != 0 && trace.Response.StatusCode != filter.StatusCode {
		return false
	}
	if !filter.StartTime.IsZero() && trace.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && trace.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}

// GetTraces returns traces matching the filter, newest first
func (s *Service) GetTraces(filter *models.TraceFilter) []*models.Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Trace, 0)

	for i := len(s.traces) - 1; i >= 0; i-- {
		trace := s.traces[i]
		if !Matches(trace, filter) {
			continue
		}

		result = append(result, trace)

		if filter != nil && filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}

	return result
}

// GetTrace returns a single trace by ID
func (s *Service) GetTrace(id string) *models.Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, trace := range s.traces {
		if trace.ID == id {
			return trace
		}
	}

	return nil
}

// ClearTraces removes all traces
func (s *Service) ClearTraces() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traces = make([]*models.Trace, 0)
}

// ClearTracesByProject removes the traces of one project
func (s *Service) ClearTracesByProject(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]*models.Trace, 0, len(s.traces))
	for _, trace := range s.traces {
		if trace.Project != project {
			filtered = append(filtered, trace)
		}
	}
	s.traces = filtered
}

// Subscribe creates a subscription for live traces
func (s *Service) Subscribe() (string, chan *models.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan *models.Trace, 100)
	s.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscription
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// GetStats returns tracing statistics
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"totalTraces":       len(s.traces),
		"maxTraces":         s.maxTraces,
		"activeSubscribers": len(s.subscribers),
	}
}
