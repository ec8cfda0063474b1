package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minParallelWorkers = 1
	maxParallelWorkers = 256
	minRetryAttempts   = 1
	maxRetryAttempts   = 20
)

var validSourceTypes = map[string]bool{
	"personal": true,
	"team":     true,
	"sharepoint": true,
}

var validDestinationKinds = map[string]bool{
	"s3":         true,
	"azure_blob": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns every error found.
// It accumulates errors rather than stopping at the first, so users see a
// complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateGlobals(cfg)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateSources(cfg.Sources)...)
	errs = append(errs, validateDestinations(cfg.Destinations)...)
	errs = append(errs, validateJobs(cfg)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateGlobals(cfg *Config) []error {
	var errs []error

	if cfg.MaxParallelWorkers < minParallelWorkers || cfg.MaxParallelWorkers > maxParallelWorkers {
		errs = append(errs, fmt.Errorf("max_parallel_workers: must be between %d and %d, got %d",
			minParallelWorkers, maxParallelWorkers, cfg.MaxParallelWorkers))
	}

	if cfg.RetryAttempts < minRetryAttempts || cfg.RetryAttempts > maxRetryAttempts {
		errs = append(errs, fmt.Errorf("retry_attempts: must be between %d and %d, got %d",
			minRetryAttempts, maxRetryAttempts, cfg.RetryAttempts))
	}

	if _, err := time.ParseDuration(cfg.RetryDelay); err != nil {
		errs = append(errs, fmt.Errorf("retry_delay: invalid duration %q: %w", cfg.RetryDelay, err))
	}

	if _, err := ParseSize(cfg.ChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.TenantID == "" {
		errs = append(errs, errors.New("auth.tenant_id: must not be empty"))
	}

	if a.ClientID == "" {
		errs = append(errs, errors.New("auth.client_id: must not be empty"))
	}

	if a.ClientSecretEnv == "" {
		errs = append(errs, errors.New("auth.client_secret_env: must not be empty"))
	}

	return errs
}

func validateSources(sources []SourceConfig) []error {
	var errs []error

	seen := make(map[string]bool, len(sources))

	for i, s := range sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d].name: must not be empty", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sources[%d].name: duplicate source name %q", i, s.Name))
		} else {
			seen[s.Name] = true
		}

		if !validSourceTypes[s.Type] {
			errs = append(errs, fmt.Errorf("sources[%d].type: must be one of personal, team, sharepoint; got %q",
				i, s.Type))

			continue
		}

		if s.Type == "sharepoint" && s.SiteURL == "" {
			errs = append(errs, fmt.Errorf("sources[%d].site_url: required for type = \"sharepoint\"", i))
		}

		if s.Type == "personal" && len(s.Users) == 0 {
			errs = append(errs, fmt.Errorf("sources[%d].users: required for type = \"personal\"", i))
		}
	}

	return errs
}

func validateDestinations(destinations []DestinationConfig) []error {
	var errs []error

	seen := make(map[string]bool, len(destinations))

	for i, d := range destinations {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("destinations[%d].name: must not be empty", i))
		} else if seen[d.Name] {
			errs = append(errs, fmt.Errorf("destinations[%d].name: duplicate destination name %q", i, d.Name))
		} else {
			seen[d.Name] = true
		}

		if !validDestinationKinds[d.Kind] {
			errs = append(errs, fmt.Errorf("destinations[%d].kind: must be one of s3, azure_blob; got %q",
				i, d.Kind))

			continue
		}

		switch d.Kind {
		case "s3":
			if d.Bucket == "" {
				errs = append(errs, fmt.Errorf("destinations[%d].bucket: required for kind = \"s3\"", i))
			}
		case "azure_blob":
			if d.Account == "" {
				errs = append(errs, fmt.Errorf("destinations[%d].account: required for kind = \"azure_blob\"", i))
			}

			if d.Container == "" {
				errs = append(errs, fmt.Errorf("destinations[%d].container: required for kind = \"azure_blob\"", i))
			}
		}

		if d.EncryptFilenames && d.EncryptionKeyEnv == "" {
			errs = append(errs, fmt.Errorf(
				"destinations[%d].encryption_key_env: required when encrypt_filenames = true", i))
		}
	}

	return errs
}

func validateJobs(cfg *Config) []error {
	var errs []error

	if len(cfg.Jobs) == 0 {
		errs = append(errs, errors.New("jobs: at least one job must be configured"))
	}

	seen := make(map[string]bool, len(cfg.Jobs))

	for i, j := range cfg.Jobs {
		if j.Name == "" {
			errs = append(errs, fmt.Errorf("jobs[%d].name: must not be empty", i))
		} else if seen[j.Name] {
			errs = append(errs, fmt.Errorf("jobs[%d].name: duplicate job name %q", i, j.Name))
		} else {
			seen[j.Name] = true
		}

		if len(j.Sources) == 0 {
			errs = append(errs, fmt.Errorf("jobs[%d].sources: must reference at least one source", i))
		}

		for _, name := range j.Sources {
			if _, ok := cfg.SourceByName(name); !ok {
				errs = append(errs, fmt.Errorf("jobs[%d].sources: no source named %q", i, name))
			}
		}

		if j.Destination == "" {
			errs = append(errs, fmt.Errorf("jobs[%d].destination: must not be empty", i))
		} else if _, ok := cfg.DestinationByName(j.Destination); !ok {
			errs = append(errs, fmt.Errorf("jobs[%d].destination: no destination named %q", i, j.Destination))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("logging.level: must be one of debug, info, warn, error; got %q", l.Level))
	}

	if !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("logging.format: must be one of auto, text, json; got %q", l.Format))
	}

	return errs
}
