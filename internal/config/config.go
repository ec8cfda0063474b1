// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the backup engine.
package config

// Config is the top-level configuration: how to authenticate, what sources
// and destinations exist, and which jobs wire sources to a destination.
type Config struct {
	Auth         AuthConfig          `toml:"auth"`
	Sources      []SourceConfig      `toml:"sources"`
	Destinations []DestinationConfig `toml:"destinations"`
	Jobs         []JobConfig         `toml:"jobs"`

	MaxParallelWorkers int    `toml:"max_parallel_workers"`
	RetryAttempts       int    `toml:"retry_attempts"`
	RetryDelay          string `toml:"retry_delay"`
	ChunkSize           string `toml:"chunk_size"`

	Logging LoggingConfig `toml:"logging"`
	History HistoryConfig `toml:"history"`
}

// AuthConfig configures the client-credentials OAuth2 flow against a single
// Azure AD tenant and app registration. The client secret itself is never
// stored in the config file — ClientSecretEnv names the environment
// variable to read it from.
type AuthConfig struct {
	TenantID        string `toml:"tenant_id"`
	ClientID        string `toml:"client_id"`
	ClientSecretEnv string `toml:"client_secret_env"`
}

// SourceConfig describes one configured source to back up.
type SourceConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"` // "personal", "team", or "sharepoint"

	// Users is either ["all"] or an allow-list: email addresses for
	// type = "personal", drive names for type = "team". Required for
	// personal sources; an empty list selects every team drive.
	Users []string `toml:"users"`

	// SiteURL and Libraries are only meaningful for type = "sharepoint".
	SiteURL   string   `toml:"site_url"`
	Libraries []string `toml:"libraries"`
}

// DestinationConfig describes one object-store destination a job can back
// up into.
type DestinationConfig struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"` // "s3" or "azure_blob"

	// s3 fields.
	Bucket       string `toml:"bucket"`
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	UseSSL       bool   `toml:"use_ssl"`
	AccessKeyEnv string `toml:"access_key_env"`
	SecretKeyEnv string `toml:"secret_key_env"`

	// azure_blob fields.
	Account       string `toml:"account"`
	Container     string `toml:"container"`
	AccountKeyEnv string `toml:"account_key_env"`

	// Common fields.
	Prefix       string `toml:"prefix"`
	StorageClass string `toml:"storage_class"`

	EncryptFilenames bool   `toml:"encrypt_filenames"`
	EncryptionKeyEnv string `toml:"encryption_key_env"`
}

// JobConfig wires a set of sources to one destination.
type JobConfig struct {
	Name        string   `toml:"name"`
	Sources     []string `toml:"sources"`     // names referencing [[sources]]
	Destination string   `toml:"destination"` // name referencing [[destinations]]
	Enabled     bool     `toml:"enabled"`
	DryRun      bool     `toml:"dry_run"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text", "json", or "auto"
}

// HistoryConfig controls the local run-history ledger.
type HistoryConfig struct {
	DBPath string `toml:"db_path"`
}

// SourceByName returns the source named name, or false if no source has
// that name.
func (c *Config) SourceByName(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}

	return SourceConfig{}, false
}

// DestinationByName returns the destination named name, or false if no
// destination has that name.
func (c *Config) DestinationByName(name string) (DestinationConfig, bool) {
	for _, d := range c.Destinations {
		if d.Name == name {
			return d, true
		}
	}

	return DestinationConfig{}, false
}
