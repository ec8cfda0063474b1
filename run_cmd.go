package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/discovery"
	"github.com/tonimelisma/onedrive-backup/internal/history"
	"github.com/tonimelisma/onedrive-backup/internal/report"
	"github.com/tonimelisma/onedrive-backup/internal/sync"
)

// errJobsFailed is returned by runRun when one or more selected jobs
// reported a failed result, so main can map it to exit code 1 without
// string-matching an error message.
var errJobsFailed = fmt.Errorf("one or more jobs failed")

func newRunCmd() *cobra.Command {
	var flagDryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run configured backup jobs",
		Long: `Run every enabled job (or, with --job, a single named job — see the
persistent --job flag), mirroring each job's configured sources into its
destination incrementally.

--dry-run overrides every selected job's configured dry_run to true: the
walk and skip-detection still run in full, but no file body is uploaded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, flagDryRun)
		},
	}

	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "walk and report without uploading")

	return cmd
}

func runRun(cmd *cobra.Command, dryRunOverride bool) error {
	cc := mustCLIContext(cmd.Context())

	jobs, err := config.SelectJobs(cc.Cfg, resolveJobFilter())
	if err != nil {
		return fmt.Errorf("selecting jobs: %w", err)
	}

	ts, err := newTokenSource(cc.Cfg.Auth, cc.Logger)
	if err != nil {
		return err
	}

	control := newSourceClient(ts, cc.Logger)
	transfer := transferSourceClient(ts, cc.Logger)
	client := &sourceClient{control: control, transfer: transfer}

	hist, err := openHistoryStore(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer hist.Close()

	chunkSize, err := config.ParseSize(cc.Cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("chunk_size: %w", err)
	}

	anyFailed := false

	for _, job := range jobs {
		result, err := runOneJob(cmd.Context(), cc.Cfg, client, job, dryRunOverride, chunkSize, hist, cc.Logger)
		if err != nil {
			cc.Logger.Error("job run failed", slog.String("job", job.Name), slog.String("error", err.Error()))
			anyFailed = true

			continue
		}

		if flagJSON {
			if err := printJobJSON(result); err != nil {
				return err
			}
		} else {
			report.WriteJobSummary(os.Stdout, result)
		}

		if result.Failed() {
			anyFailed = true
		}
	}

	if anyFailed {
		return errJobsFailed
	}

	return nil
}

// runOneJob resolves job's destination and sources, runs the engine, and
// records the outcome in the local history ledger.
func runOneJob(
	ctx context.Context,
	cfg *config.Config,
	client *sourceClient,
	job config.JobConfig,
	dryRunOverride bool,
	chunkSize int64,
	hist *history.Store,
	logger *slog.Logger,
) (*sync.JobResult, error) {
	destCfg, ok := cfg.DestinationByName(job.Destination)
	if !ok {
		return nil, fmt.Errorf("job %q: no destination named %q", job.Name, job.Destination)
	}

	dest, cipher, err := buildDestination(destCfg, chunkSize, logger)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", job.Name, err)
	}

	sources, err := jobSourceConfigs(cfg, job)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", job.Name, err)
	}

	engine := sync.New(client, dest, logger)

	jobCfg := sync.JobConfig{
		Name:         job.Name,
		Sources:      sources,
		DestPrefix:   destCfg.Prefix,
		StorageClass: destCfg.StorageClass,
		Workers:      cfg.MaxParallelWorkers,
		DryRun:       job.DryRun || dryRunOverride,
		NameCipher:   cipher,
	}

	started := time.Now().UTC()

	result, err := engine.RunJob(ctx, jobCfg)
	if err != nil {
		return nil, fmt.Errorf("running job %q: %w", job.Name, err)
	}

	recordHistory(ctx, hist, job.Name, started, result, logger)

	return result, nil
}

// jobSourceConfigs resolves a job's referenced source names into the
// discovery package's SourceConfig shape.
func jobSourceConfigs(cfg *config.Config, job config.JobConfig) ([]discovery.SourceConfig, error) {
	sources := make([]discovery.SourceConfig, 0, len(job.Sources))

	for _, name := range job.Sources {
		sc, ok := cfg.SourceByName(name)
		if !ok {
			return nil, fmt.Errorf("no source named %q", name)
		}

		sources = append(sources, toDiscoverySource(sc))
	}

	return sources, nil
}

// toDiscoverySource converts the config package's [[sources]] shape into
// the discovery package's narrower SourceConfig.
func toDiscoverySource(sc config.SourceConfig) discovery.SourceConfig {
	return discovery.SourceConfig{
		Name:      sc.Name,
		Type:      discovery.SourceKind(sc.Type),
		Users:     sc.Users,
		SiteURL:   sc.SiteURL,
		Libraries: sc.Libraries,
	}
}

// recordHistory appends one run to the local ledger; a failure to record
// is logged but never fails the run itself — the ledger is a convenience,
// not a source of truth (the destination checkpoint is).
func recordHistory(ctx context.Context, hist *history.Store, jobName string, started time.Time, result *sync.JobResult, logger *slog.Logger) {
	if hist == nil {
		return
	}

	var processed, uploaded, skipped, bytesTransferred int64

	var errorCount int

	for _, src := range result.Sources {
		if src.Err != nil {
			errorCount++
		}

		for _, tgt := range src.Targets {
			processed += tgt.Stats.Processed
			uploaded += tgt.Stats.Uploaded
			skipped += tgt.Stats.Skipped
			bytesTransferred += tgt.Stats.BytesTransferred
			errorCount += len(tgt.Stats.Errors)
		}
	}

	run := history.RunSummary{
		JobName:          jobName,
		StartedAt:        started,
		FinishedAt:       started.Add(result.Duration),
		Failed:           result.Failed(),
		FilesProcessed:   processed,
		FilesUploaded:    uploaded,
		FilesSkipped:     skipped,
		BytesTransferred: bytesTransferred,
		ErrorCount:       errorCount,
	}

	if err := hist.Record(ctx, run); err != nil {
		logger.Error("recording run history failed", slog.String("job", jobName), slog.String("error", err.Error()))
	}
}

// openHistoryStore opens the local run-history ledger at the configured
// (or default) path.
func openHistoryStore(cfg *config.Config, logger *slog.Logger) (*history.Store, error) {
	dbPath := cfg.History.DBPath
	if dbPath == "" {
		dbPath = config.DefaultHistoryDBPath()
	}

	if dbPath == "" {
		return nil, fmt.Errorf("cannot determine run-history database path")
	}

	return history.Open(dbPath, logger)
}

func printJobJSON(result *sync.JobResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
