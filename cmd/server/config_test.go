package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/go-mockserver/internal/config"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("GOMOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config.Default())
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("GOMOCK_SERVER_PORT", "9090")

	v := newTestViper()
	v.Set("mock.arrayMax", 7)
	v.Set("processors.timeout", "2s")
	v.Set("processors.engine", "cel")

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Mock.ArrayMax)
	assert.Equal(t, 2*time.Second, cfg.Processors.Timeout)
	assert.Equal(t, "cel", cfg.Processors.Engine)
}

func TestLoadConfig_Invalid(t *testing.T) {
	v := newTestViper()
	v.Set("storage.type", "s3")

	_, err := loadConfig(v)
	assert.Error(t, err)
}

func TestDefaultConfigYAML_LoadsBack(t *testing.T) {
	data, err := defaultConfigYAML()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))

	d := config.Default()
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, d.Server.ReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, d.Processors.Timeout, cfg.Processors.Timeout)
	assert.Equal(t, d.Mock, cfg.Mock)
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	initPath, initForce = dir, false
	t.Cleanup(func() { initPath, initForce = ".", false })

	require.NoError(t, runInit(initCmd, nil))
	for _, sub := range []string{"projects", "processors", "mappings", "specs"} {
		assert.DirExists(t, filepath.Join(dir, "data", sub))
	}
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	assert.Error(t, runInit(initCmd, nil))

	initForce = true
	assert.NoError(t, runInit(initCmd, nil))
}
