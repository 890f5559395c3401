package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/go-mockserver/internal/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "go-mockserver",
		Short: "go-mockserver - mock server for OpenAPI 3 documents",
		Long: `go-mockserver answers requests for the operations of OpenAPI 3 documents.
Responses come from declarative expectations, pre/post processor scripts,
literal examples or schema-driven mocks, optionally enriched from a
per-project SQL data store.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// GOMOCK_SERVER_PORT overrides server.port
	viper.SetEnvPrefix("GOMOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper(), config.Default())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every configuration key so that environment
// variables can override keys missing from the file
func setDefaults(v *viper.Viper, d *config.Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("tracing.maxTraces", d.Tracing.MaxTraces)

	v.SetDefault("logging.enabled", d.Logging.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("mock.nullProbability", d.Mock.NullProbability)
	v.SetDefault("mock.arrayMin", d.Mock.ArrayMin)
	v.SetDefault("mock.arrayMax", d.Mock.ArrayMax)
	v.SetDefault("mock.maxDepth", d.Mock.MaxDepth)

	v.SetDefault("processors.engine", d.Processors.Engine)
	v.SetDefault("processors.timeout", d.Processors.Timeout)

	v.SetDefault("datastore.queryTimeout", d.Datastore.QueryTimeout)

	v.SetDefault("metrics.statsd.enabled", d.Metrics.Statsd.Enabled)
	v.SetDefault("metrics.statsd.address", d.Metrics.Statsd.Address)
	v.SetDefault("metrics.statsd.namespace", d.Metrics.Statsd.Namespace)

	v.SetDefault("aws.region", d.AWS.Region)
}

// loadConfig decodes the viper state into a validated Config
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
