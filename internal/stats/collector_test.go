package stats

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/config"
)

func sample(endpoint string, status int, d time.Duration) Sample {
	return Sample{Project: "shop", Endpoint: endpoint, Method: "GET", Stage: "mock", Status: status, Duration: d}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c.endpoints == nil || c.recentErrors == nil || c.hourlyStats == nil {
		t.Fatal("Collector maps not initialized")
	}
	if c.maxErrors != 100 {
		t.Errorf("Expected maxErrors 100, got %d", c.maxErrors)
	}
	if c.maxHourlySlots != 168 {
		t.Errorf("Expected maxHourlySlots 168, got %d", c.maxHourlySlots)
	}
}

func TestRecord(t *testing.T) {
	c := NewCollector()

	c.Record(sample("/users", 200, 100*time.Millisecond))
	c.Record(sample("/users", 200, 50*time.Millisecond))
	c.Record(sample("/users", 200, 150*time.Millisecond))

	stats := c.GetProjectStats("shop")
	if len(stats.Endpoints) != 1 {
		t.Fatalf("Expected 1 endpoint, got %d", len(stats.Endpoints))
	}
	e := stats.Endpoints[0]
	if e.TotalRequests != 3 {
		t.Errorf("Expected 3 requests, got %d", e.TotalRequests)
	}
	if e.Method != "get" {
		t.Errorf("Expected normalized method, got %q", e.Method)
	}
	if e.MinResponseTimeMs != 50 || e.MaxResponseTimeMs != 150 {
		t.Errorf("Unexpected min/max %v/%v", e.MinResponseTimeMs, e.MaxResponseTimeMs)
	}
	if e.AvgResponseTimeMs != 100 {
		t.Errorf("Expected avg 100ms, got %v", e.AvgResponseTimeMs)
	}
}

func TestRecord_Errors(t *testing.T) {
	c := NewCollector()

	s := sample("/orders", 500, time.Millisecond)
	s.Stage = "pre-processor"
	s.Error = "Pre processor error: boom"
	c.Record(s)
	c.Record(sample("/orders", 400, time.Millisecond))
	c.Record(sample("/orders", 200, time.Millisecond))

	global := c.GetGlobalStats(1)
	if global.TotalRequests != 3 || global.TotalErrors != 2 {
		t.Errorf("Expected 3 requests and 2 errors, got %d/%d", global.TotalRequests, global.TotalErrors)
	}
	if len(global.RecentErrors) != 2 {
		t.Fatalf("Expected 2 recent errors, got %d", len(global.RecentErrors))
	}
	first := global.RecentErrors[0]
	if first.Stage != "pre-processor" || first.StatusCode != 500 || first.Error != "Pre processor error: boom" {
		t.Errorf("Unexpected error stat %+v", first)
	}
	if global.ByStage["mock"] != 2 || global.ByStage["pre-processor"] != 1 {
		t.Errorf("Unexpected stage counts %v", global.ByStage)
	}
}

func TestRecentErrorsBounded(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 150; i++ {
		c.Record(sample("/x", 500, time.Millisecond))
	}
	if got := len(c.GetGlobalStats(1).RecentErrors); got != 100 {
		t.Errorf("Expected 100 recent errors, got %d", got)
	}
}

func TestGetGlobalStats_TopEndpoints(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 12; i++ {
		endpoint := "/e" + string(rune('a'+i))
		for j := 0; j <= i; j++ {
			c.Record(sample(endpoint, 200, time.Millisecond))
		}
	}

	global := c.GetGlobalStats(2)
	if len(global.TopEndpoints) != 10 {
		t.Fatalf("Expected 10 top endpoints, got %d", len(global.TopEndpoints))
	}
	if global.TopEndpoints[0].Endpoint != "/el" {
		t.Errorf("Expected busiest endpoint first, got %q", global.TopEndpoints[0].Endpoint)
	}
	if global.ActiveProjects != 2 {
		t.Errorf("Expected 2 active projects, got %d", global.ActiveProjects)
	}
	if len(global.RequestsByHour) != 24 {
		t.Errorf("Expected 24 hourly slots, got %d", len(global.RequestsByHour))
	}
	if global.RequestsByHour[23].Requests != 78 {
		t.Errorf("Expected 78 requests in the current hour, got %d", global.RequestsByHour[23].Requests)
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.Record(sample("/users", 500, time.Millisecond))
	c.Reset()

	global := c.GetGlobalStats(0)
	if global.TotalRequests != 0 || len(global.RecentErrors) != 0 || len(global.ByStage) != 0 {
		t.Errorf("Expected empty stats after reset, got %+v", global)
	}
}

func TestConcurrentRecord(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(sample("/users", 200, time.Millisecond))
			}
		}()
	}
	wg.Wait()

	if got := c.GetProjectStats("shop").TotalRequests; got != 1000 {
		t.Errorf("Expected 1000 requests, got %d", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{1500 * time.Microsecond, "2ms"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 10*time.Second, "2h0m0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, expected %q", tt.d, got, tt.expected)
		}
	}
}

type recordingSink struct {
	mu      sync.Mutex
	samples []Sample
}

func (r *recordingSink) Record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func TestCollector_ForwardsToSinks(t *testing.T) {
	sink := &recordingSink{}
	c := NewCollector(sink)
	c.Record(sample("/users", 201, time.Millisecond))

	if len(sink.samples) != 1 || sink.samples[0].Status != 201 {
		t.Errorf("Expected forwarded sample, got %+v", sink.samples)
	}
}

type fakeStatsd struct {
	incr    map[string][]string
	timings []time.Duration
	closed  bool
}

func (f *fakeStatsd) Incr(name string, tags []string, _ float64) error {
	if f.incr == nil {
		f.incr = map[string][]string{}
	}
	f.incr[name] = tags
	return nil
}

func (f *fakeStatsd) Timing(_ string, value time.Duration, _ []string, _ float64) error {
	f.timings = append(f.timings, value)
	return errors.New("agent unreachable")
}

func (f *fakeStatsd) Close() error {
	f.closed = true
	return nil
}

func TestStatsdSink(t *testing.T) {
	client := &fakeStatsd{}
	sink := &StatsdSink{client: client, logger: zerolog.Nop()}

	sink.Record(Sample{Project: "shop", Endpoint: "/users", Method: "get", Stage: "validation", Status: 400, Duration: 3 * time.Millisecond})

	tags := client.incr["requests"]
	expected := []string{"project:shop", "endpoint:/users", "method:get", "stage:validation", "status:400"}
	if len(tags) != len(expected) {
		t.Fatalf("Unexpected tags %v", tags)
	}
	for i := range expected {
		if tags[i] != expected[i] {
			t.Errorf("tag %d = %q, expected %q", i, tags[i], expected[i])
		}
	}
	if _, ok := client.incr["errors"]; !ok {
		t.Error("Expected an errors counter for a 400 response")
	}
	if len(client.timings) != 1 || client.timings[0] != 3*time.Millisecond {
		t.Errorf("Unexpected timings %v", client.timings)
	}

	_ = sink.Close()
	if !client.closed {
		t.Error("Expected client closed")
	}
}

func TestNewStatsdSink_Disabled(t *testing.T) {
	sink, err := NewStatsdSink(config.StatsdConfig{}, zerolog.Nop())
	if err != nil || sink != nil {
		t.Errorf("Expected nil sink when disabled, got %v %v", sink, err)
	}
}
