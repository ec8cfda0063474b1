package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"run", "verify", "history", "config"} {
		assert.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}

func TestBuildLogger_DefaultIsWarn(t *testing.T) {
	flagVerbose, flagDebug, flagQuiet = false, false, false

	logger := buildLogger()

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_Verbose(t *testing.T) {
	flagVerbose, flagDebug, flagQuiet = true, false, false
	defer func() { flagVerbose = false }()

	logger := buildLogger()

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Debug(t *testing.T) {
	flagVerbose, flagDebug, flagQuiet = false, true, false
	defer func() { flagDebug = false }()

	logger := buildLogger()

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestResolveConfigPath_FlagWins(t *testing.T) {
	t.Setenv("BACKUP_CONFIG", "/env/config.toml")

	flagConfigPath = "/flag/config.toml"
	defer func() { flagConfigPath = "" }()

	assert.Equal(t, "/flag/config.toml", resolveConfigPath())
}

func TestResolveConfigPath_EnvFallback(t *testing.T) {
	t.Setenv("BACKUP_CONFIG", "/env/config.toml")

	flagConfigPath = ""

	assert.Equal(t, "/env/config.toml", resolveConfigPath())
}

func TestResolveJobFilter_FlagWins(t *testing.T) {
	t.Setenv("BACKUP_JOB", "env-job")

	flagJob = "flag-job"
	defer func() { flagJob = "" }()

	assert.Equal(t, "flag-job", resolveJobFilter())
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	require.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}
