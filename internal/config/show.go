package config

import (
	"fmt"
	"io"
)

// RenderEffective writes cfg as a human-readable annotated summary to w.
// This powers the "config show" command, giving users visibility into the
// effective values after defaults, file, and environment overrides have
// been applied. Secrets are never rendered — only the env var names that
// hold them.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	renderGlobalsSection(ew, cfg)
	renderAuthSection(ew, &cfg.Auth)
	renderSourcesSection(ew, cfg.Sources)
	renderDestinationsSection(ew, cfg.Destinations)
	renderJobsSection(ew, cfg.Jobs)
	renderLoggingSection(ew, &cfg.Logging)
	renderHistorySection(ew, &cfg.History)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderGlobalsSection(ew *errWriter, cfg *Config) {
	ew.printf("[global]\n")
	ew.printf("  max_parallel_workers = %d\n", cfg.MaxParallelWorkers)
	ew.printf("  retry_attempts       = %d\n", cfg.RetryAttempts)
	ew.printf("  retry_delay          = %q\n", cfg.RetryDelay)
	ew.printf("  chunk_size           = %q\n", cfg.ChunkSize)
	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("[auth]\n")
	ew.printf("  tenant_id         = %q\n", a.TenantID)
	ew.printf("  client_id         = %q\n", a.ClientID)
	ew.printf("  client_secret_env = %q (value not shown)\n", a.ClientSecretEnv)
	ew.printf("\n")
}

func renderSourcesSection(ew *errWriter, sources []SourceConfig) {
	ew.printf("[sources] (%d configured)\n", len(sources))

	for _, s := range sources {
		ew.printf("  - name = %q, type = %q", s.Name, s.Type)

		if s.Type == "sharepoint" {
			ew.printf(", site_url = %q", s.SiteURL)
		}

		ew.printf("\n")
	}

	ew.printf("\n")
}

func renderDestinationsSection(ew *errWriter, destinations []DestinationConfig) {
	ew.printf("[destinations] (%d configured)\n", len(destinations))

	for _, d := range destinations {
		ew.printf("  - name = %q, kind = %q", d.Name, d.Kind)

		switch d.Kind {
		case "s3":
			ew.printf(", bucket = %q", d.Bucket)
		case "azure_blob":
			ew.printf(", account = %q, container = %q", d.Account, d.Container)
		}

		if d.EncryptFilenames {
			ew.printf(", encrypt_filenames = true")
		}

		ew.printf("\n")
	}

	ew.printf("\n")
}

func renderJobsSection(ew *errWriter, jobs []JobConfig) {
	ew.printf("[jobs] (%d configured)\n", len(jobs))

	for _, j := range jobs {
		ew.printf("  - name = %q, sources = %v, destination = %q, enabled = %t\n",
			j.Name, j.Sources, j.Destination, j.Enabled)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  level  = %q\n", l.Level)
	ew.printf("  format = %q\n", l.Format)
	ew.printf("\n")
}

func renderHistorySection(ew *errWriter, h *HistoryConfig) {
	ew.printf("[history]\n")
	ew.printf("  db_path = %q\n", h.DBPath)
}
