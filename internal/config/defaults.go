package config

// Default values for configuration options. These form the "layer 0" of
// the override chain (defaults -> file -> env -> flags) and are chosen to
// be safe, reasonable starting points that work without any config file
// beyond the auth/sources/destinations/jobs a user must always supply.
const (
	defaultMaxParallelWorkers = 20
	defaultRetryAttempts      = 5
	defaultRetryDelay         = "1s"
	defaultChunkSize          = "8MiB"
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
)

// DefaultConfig returns a Config populated with every default value. It is
// decoded into directly, so fields the file never sets retain these
// defaults — Auth, Sources, Destinations, and Jobs are left empty since
// every deployment must supply its own.
func DefaultConfig() *Config {
	return &Config{
		MaxParallelWorkers: defaultMaxParallelWorkers,
		RetryAttempts:      defaultRetryAttempts,
		RetryDelay:         defaultRetryDelay,
		ChunkSize:          defaultChunkSize,
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
