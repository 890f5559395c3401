package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/go-mockserver/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize go-mockserver with default configuration and directory structure",
	Long: `Creates the default configuration file (config.yaml) and data directory structure.

This command will:
  - Create config.yaml with default settings and file storage
  - Create the data/ directory with its projects, processors, mappings and specs folders

If config.yaml already exists, it will not be overwritten unless --force is used.`,
	RunE: runInit,
}

var (
	initForce bool
	initPath  string
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config file")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Path where to initialize (default: current directory)")
}

func runInit(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	configFile := filepath.Join(absPath, "config.yaml")
	dataDir := filepath.Join(absPath, "data")

	if _, err := os.Stat(configFile); err == nil && !initForce {
		return fmt.Errorf("config.yaml already exists. Use --force to overwrite")
	}

	dirs := []string{dataDir}
	for _, sub := range []string{"projects", "processors", "mappings", "specs"} {
		dirs = append(dirs, filepath.Join(dataDir, sub))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created directory: %s\n", dir)
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", configFile)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Initialization complete! You can now start the server with:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  cd %s\n", absPath)
	fmt.Fprintln(out, "  go-mockserver serve")
	fmt.Fprintln(out)

	return nil
}

// defaultConfigYAML renders the defaults with file storage enabled.
// Durations are written in their string form so the file stays readable.
func defaultConfigYAML() ([]byte, error) {
	d := config.Default()

	cfg := map[string]any{
		"server": map[string]any{
			"port":         d.Server.Port,
			"host":         d.Server.Host,
			"readTimeout":  d.Server.ReadTimeout.String(),
			"writeTimeout": d.Server.WriteTimeout.String(),
		},
		"storage": map[string]any{
			"type": "file",
			"path": "./data",
		},
		"tracing": map[string]any{
			"maxTraces": d.Tracing.MaxTraces,
		},
		"logging": map[string]any{
			"enabled": d.Logging.Enabled,
			"level":   d.Logging.Level,
			"format":  d.Logging.Format,
		},
		"mock": map[string]any{
			"nullProbability": d.Mock.NullProbability,
			"arrayMin":        d.Mock.ArrayMin,
			"arrayMax":        d.Mock.ArrayMax,
			"maxDepth":        d.Mock.MaxDepth,
		},
		"processors": map[string]any{
			"engine":  d.Processors.Engine,
			"timeout": d.Processors.Timeout.String(),
		},
		"datastore": map[string]any{
			"queryTimeout": d.Datastore.QueryTimeout.String(),
		},
		"metrics": map[string]any{
			"statsd": map[string]any{
				"enabled":   d.Metrics.Statsd.Enabled,
				"address":   d.Metrics.Statsd.Address,
				"namespace": d.Metrics.Statsd.Namespace,
			},
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	header := "# go-mockserver configuration\n# Environment variables prefixed with GOMOCK_ override these keys.\n\n"
	return append([]byte(header), data...), nil
}
