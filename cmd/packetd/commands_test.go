package main

import (
	"io"
	"testing"

	"github.com/danmuck/packetwire/internal/config"
	"github.com/danmuck/packetwire/internal/logging"
	"github.com/danmuck/packetwire/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func applyEnvLogging(t *testing.T, level string) {
	t.Helper()
	prevLevel := zerolog.GlobalLevel()
	prevLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	t.Setenv(logging.EnvLogLevel, level)
	cfg := logging.Resolve(logging.ProfileRuntime)
	cfg.Out = io.Discard
	logging.Apply(cfg)
}

func TestConfigureLoggingKeepsEnvLevel(t *testing.T) {
	testlog.Start(t)
	applyEnvLogging(t, "debug")

	configureLogging(config.Default())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestConfigureLoggingFileLevelWins(t *testing.T) {
	testlog.Start(t)
	applyEnvLogging(t, "debug")

	cfg := config.Default()
	cfg.LogLevel = "warn"
	configureLogging(cfg)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestConfigureLoggingIgnoresUnknownLevel(t *testing.T) {
	testlog.Start(t)
	applyEnvLogging(t, "error")

	cfg := config.Default()
	cfg.LogLevel = "loud"
	configureLogging(cfg)
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}
