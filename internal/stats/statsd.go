package stats

import (
	"fmt"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/config"
)

// metricsClient is the part of statsd.ClientInterface the sink uses
type metricsClient interface {
	Incr(name string, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

// StatsdSink forwards samples to a DogStatsD agent
type StatsdSink struct {
	client metricsClient
	logger zerolog.Logger
}

// NewStatsdSink connects to the agent named in cfg. It returns nil when
// metrics are disabled.
func NewStatsdSink(cfg config.StatsdConfig, logger zerolog.Logger) (*StatsdSink, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client, err := statsd.New(cfg.Address, statsd.WithNamespace(cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	return &StatsdSink{client: client, logger: logger}, nil
}

// Record emits a request counter and a latency timing tagged by endpoint and stage
func (s *StatsdSink) Record(sample Sample) {
	tags := []string{
		"project:" + sample.Project,
		"endpoint:" + sample.Endpoint,
		"method:" + sample.Method,
		"stage:" + sample.Stage,
		"status:" + strconv.Itoa(sample.Status),
	}

	if err := s.client.Incr("requests", tags, 1); err != nil {
		s.logger.Debug().Err(err).Msg("statsd incr failed")
	}
	if sample.IsError() {
		_ = s.client.Incr("errors", tags, 1)
	}
	if err := s.client.Timing("response_time", sample.Duration, tags, 1); err != nil {
		s.logger.Debug().Err(err).Msg("statsd timing failed")
	}
}

// Close flushes and closes the client
func (s *StatsdSink) Close() error {
	return s.client.Close()
}
