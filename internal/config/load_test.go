package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger that writes to stderr, ensuring
// all config debug output appears in test output for CI visibility.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

const validFullConfig = `
max_parallel_workers = 12
retry_attempts = 3
retry_delay = "2s"
chunk_size = "16MiB"

[auth]
tenant_id = "contoso-tenant"
client_id = "app-client-id"
client_secret_env = "BACKUP_CLIENT_SECRET"

[[sources]]
name = "personal"
type = "personal"
users = ["alice@contoso.com"]

[[sources]]
name = "marketing-docs"
type = "sharepoint"
site_url = "https://contoso.sharepoint.com/sites/marketing"
libraries = ["Documents"]

[[destinations]]
name = "primary-s3"
kind = "s3"
bucket = "backup-bucket"
endpoint = "s3.example.com"
region = "us-east-1"
use_ssl = true
access_key_env = "BACKUP_S3_ACCESS_KEY"
secret_key_env = "BACKUP_S3_SECRET_KEY"
prefix = "onedrive"

[[destinations]]
name = "cold-azure"
kind = "azure_blob"
account = "coldstorageacct"
container = "backups"
account_key_env = "BACKUP_AZURE_KEY"
encrypt_filenames = true
encryption_key_env = "BACKUP_ENCRYPTION_KEY"

[[jobs]]
name = "nightly"
sources = ["personal", "marketing-docs"]
destination = "primary-s3"
enabled = true

[[jobs]]
name = "weekly-cold"
sources = ["personal"]
destination = "cold-azure"
enabled = false

[logging]
level = "debug"
format = "json"

[history]
db_path = "/var/lib/onedrive-backup/history.db"
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, validFullConfig)
	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.MaxParallelWorkers)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, "2s", cfg.RetryDelay)
	assert.Equal(t, "16MiB", cfg.ChunkSize)

	assert.Equal(t, "contoso-tenant", cfg.Auth.TenantID)
	assert.Equal(t, "app-client-id", cfg.Auth.ClientID)
	assert.Equal(t, "BACKUP_CLIENT_SECRET", cfg.Auth.ClientSecretEnv)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "personal", cfg.Sources[0].Name)
	assert.Equal(t, "personal", cfg.Sources[0].Type)
	assert.Equal(t, []string{"alice@contoso.com"}, cfg.Sources[0].Users)
	assert.Equal(t, "sharepoint", cfg.Sources[1].Type)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/marketing", cfg.Sources[1].SiteURL)

	require.Len(t, cfg.Destinations, 2)
	assert.Equal(t, "s3", cfg.Destinations[0].Kind)
	assert.Equal(t, "backup-bucket", cfg.Destinations[0].Bucket)
	assert.Equal(t, "azure_blob", cfg.Destinations[1].Kind)
	assert.True(t, cfg.Destinations[1].EncryptFilenames)

	require.Len(t, cfg.Jobs, 2)
	assert.Equal(t, "nightly", cfg.Jobs[0].Name)
	assert.True(t, cfg.Jobs[0].Enabled)
	assert.False(t, cfg.Jobs[1].Enabled)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/onedrive-backup/history.db", cfg.History.DBPath)
}

func TestLoad_MinimalConfig_UsesDefaultsButFailsValidation(t *testing.T) {
	// A config with nothing but defaults has no jobs, which Validate rejects.
	path := writeTestConfig(t, "")
	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeTestConfig(t, `[auth
not valid toml`)
	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.toml", testLogger(t))
	require.Error(t, err)
}

func TestLoadOrDefault_FileExists(t *testing.T) {
	path := writeTestConfig(t, validFullConfig)
	cfg, err := LoadOrDefault(path, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadOrDefault_FileNotFound(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.toml", testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, defaultMaxParallelWorkers, cfg.MaxParallelWorkers)
}

func TestResolveConfigPath_Default(t *testing.T) {
	path := ResolveConfigPath(EnvOverrides{}, "", testLogger(t))
	assert.Equal(t, DefaultConfigPath(), path)
}

func TestResolveConfigPath_EnvOverridesDefault(t *testing.T) {
	path := ResolveConfigPath(EnvOverrides{ConfigPath: "/env/config.toml"}, "", testLogger(t))
	assert.Equal(t, "/env/config.toml", path)
}

func TestResolveConfigPath_CLIOverridesEnv(t *testing.T) {
	path := ResolveConfigPath(EnvOverrides{ConfigPath: "/env/config.toml"}, "/cli/config.toml", testLogger(t))
	assert.Equal(t, "/cli/config.toml", path)
}

func TestSelectJobs_ByName(t *testing.T) {
	path := writeTestConfig(t, validFullConfig)
	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	jobs, err := SelectJobs(cfg, "weekly-cold")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "weekly-cold", jobs[0].Name)
}

func TestSelectJobs_ByName_NotFound(t *testing.T) {
	path := writeTestConfig(t, validFullConfig)
	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	_, err = SelectJobs(cfg, "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job named")
}

func TestSelectJobs_AllEnabled(t *testing.T) {
	path := writeTestConfig(t, validFullConfig)
	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	jobs, err := SelectJobs(cfg, "")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "nightly", jobs[0].Name)
}

func TestSelectJobs_NoneEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth = AuthConfig{TenantID: "t", ClientID: "c", ClientSecretEnv: "S"}
	cfg.Sources = []SourceConfig{{Name: "s", Type: "personal", Users: []string{"all"}}}
	cfg.Destinations = []DestinationConfig{{Name: "d", Kind: "s3", Bucket: "b"}}
	cfg.Jobs = []JobConfig{{Name: "j", Sources: []string{"s"}, Destination: "d", Enabled: false}}

	_, err := SelectJobs(cfg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no enabled jobs")
}
