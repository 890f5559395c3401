package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Mock       MockConfig       `yaml:"mock"`
	Processors ProcessorsConfig `yaml:"processors"`
	Datastore  DatastoreConfig  `yaml:"datastore"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	AWS        AWSConfig        `yaml:"aws"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" validate:"min=1,max=65535"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type string `yaml:"type" validate:"oneof=memory file"` // "memory" or "file"
	Path string `yaml:"path" validate:"required_if=Type file"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	MaxTraces int `yaml:"maxTraces" validate:"min=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// MockConfig tunes the randomised response synthesizer.
type MockConfig struct {
	NullProbability float64 `yaml:"nullProbability" validate:"min=0,max=1"`
	ArrayMin        int     `yaml:"arrayMin" validate:"min=0"`
	ArrayMax        int     `yaml:"arrayMax" validate:"min=0"`
	MaxDepth        int     `yaml:"maxDepth" validate:"min=1,max=10"`
}

// ProcessorsConfig selects the script runtime for pre/post processors.
type ProcessorsConfig struct {
	Engine  string        `yaml:"engine" validate:"oneof=js cel"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatastoreConfig holds settings for per-project data stores
type DatastoreConfig struct {
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// MetricsConfig holds metrics sink configuration
type MetricsConfig struct {
	Statsd StatsdConfig `yaml:"statsd"`
}

// StatsdConfig configures the DogStatsD client
type StatsdConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address" validate:"required_if=Enabled true"`
	Namespace string `yaml:"namespace"`
}

// AWSConfig is used when OpenAPI documents are referenced as s3://bucket/key
type AWSConfig struct {
	Region string `yaml:"region"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Path: "./data",
		},
		Tracing: TracingConfig{
			MaxTraces: 1000,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Format:  "json",
		},
		Mock: MockConfig{
			NullProbability: 0.3,
			ArrayMin:        0,
			ArrayMax:        3,
			MaxDepth:        10,
		},
		Processors: ProcessorsConfig{
			Engine:  "js",
			Timeout: 3 * time.Second,
		},
		Datastore: DatastoreConfig{
			QueryTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Statsd: StatsdConfig{
				Address:   "127.0.0.1:8125",
				Namespace: "gomock.",
			},
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct tags first, then cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(validationErrors))
			for _, e := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed on '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid configuration:\n- %s", strings.Join(msgs, "\n- "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Mock.ArrayMin > cfg.Mock.ArrayMax {
		return fmt.Errorf("invalid configuration: mock.arrayMin (%d) is greater than mock.arrayMax (%d)", cfg.Mock.ArrayMin, cfg.Mock.ArrayMax)
	}
	if cfg.Processors.Timeout < 0 {
		return fmt.Errorf("invalid configuration: processors.timeout must not be negative")
	}

	return nil
}
