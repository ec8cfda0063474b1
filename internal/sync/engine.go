// Package sync orchestrates a complete one-way backup job: for every
// configured source, discover its drive targets, walk each target's
// delta feed through a worker pool, and persist checkpoints only after
// a target's walk completes cleanly.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
	"github.com/tonimelisma/onedrive-backup/internal/checkpoint"
	"github.com/tonimelisma/onedrive-backup/internal/cryptoname"
	"github.com/tonimelisma/onedrive-backup/internal/deltawalker"
	"github.com/tonimelisma/onedrive-backup/internal/discovery"
	"github.com/tonimelisma/onedrive-backup/internal/driveid"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
	"github.com/tonimelisma/onedrive-backup/internal/workerpool"
)

// SourceClient is the full source-API surface the engine depends on —
// satisfied by *graph.Client. Declared here, rather than imported from
// the narrower per-package interfaces, because the engine is the only
// caller that needs every method at once.
type SourceClient interface {
	ListUsers(ctx context.Context) ([]graph.TenantUser, error)
	UserDrive(ctx context.Context, userID string) (*graph.Drive, error)
	Drives(ctx context.Context) ([]graph.Drive, error)
	ResolveSite(ctx context.Context, siteURL string) (*graph.Site, error)
	SiteDrives(ctx context.Context, siteID string) ([]graph.Drive, error)
	Delta(ctx context.Context, driveID, token string) (*graph.DeltaPage, error)
	ListChildrenFiltered(ctx context.Context, driveID driveid.ID, parentID string, since time.Time) ([]graph.Item, error)
	ListChildren(ctx context.Context, driveID driveid.ID, parentID string) ([]graph.Item, error)
	DownloadRef(ctx context.Context, ref string, w io.Writer) (int64, error)
}

// JobConfig is the resolved configuration for a single backup job: which
// sources feed which destination, and under what execution policy.
type JobConfig struct {
	Name         string
	Sources      []discovery.SourceConfig
	DestPrefix   string // destination-relative prefix all object keys fall under
	StorageClass string
	Workers      int // <=0 uses workerpool.DefaultWorkers
	DryRun       bool
	// NameCipher, when set, encrypts every path segment of an uploaded
	// object's key — the destination.encrypt_filenames option.
	NameCipher *cryptoname.Cipher
}

// TargetResult reports one target's outcome within a source.
type TargetResult struct {
	Target  discovery.DriveTarget
	Stats   workerpool.Stats
	Aborted bool
	Err     error
}

// SourceResult reports one source's outcome within a job.
type SourceResult struct {
	SourceName string
	Targets    []TargetResult
	Err        error // set when discovery itself failed; targets will be empty
}

// JobResult is the aggregate outcome of a single RunJob call.
type JobResult struct {
	JobName  string
	RunID    string // correlates this run's log lines across sources and targets
	Duration time.Duration
	Sources  []SourceResult
}

// Failed reports whether any source or target in the job aborted — the
// job-level "failed" verdict the spec's error-handling design requires.
func (r *JobResult) Failed() bool {
	for _, src := range r.Sources {
		if src.Err != nil {
			return true
		}

		for _, tgt := range src.Targets {
			if tgt.Aborted {
				return true
			}
		}
	}

	return false
}

// Engine runs backup jobs against a single destination.
type Engine struct {
	client      SourceClient
	dest        blob.Blob
	checkpoints *checkpoint.Store
	discovery   *discovery.Discovery
	logger      *slog.Logger
}

// New returns an Engine wiring client as both the discovery and
// delta/download source, and dest as the checkpoint and upload target.
func New(client SourceClient, dest blob.Blob, logger *slog.Logger) *Engine {
	return &Engine{
		client:      client,
		dest:        dest,
		checkpoints: checkpoint.New(dest, logger),
		discovery:   discovery.New(client, logger),
		logger:      logger,
	}
}

// RunJob executes job: for every source, discover targets, run each
// target's pipeline, and aggregate results. Sibling sources run even if
// one fails — only a clean target advances its checkpoint.
func (e *Engine) RunJob(ctx context.Context, job JobConfig) (*JobResult, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := e.logger.With(slog.String("run_id", runID))

	logger.Info("job starting",
		slog.String("job", job.Name),
		slog.Int("sources", len(job.Sources)),
		slog.Bool("dry_run", job.DryRun),
	)

	result := &JobResult{JobName: job.Name, RunID: runID}

	for _, src := range job.Sources {
		result.Sources = append(result.Sources, e.runSource(ctx, logger, job, src))
	}

	result.Duration = time.Since(start)

	logger.Info("job complete",
		slog.String("job", job.Name),
		slog.Duration("duration", result.Duration),
		slog.Bool("failed", result.Failed()),
	)

	return result, nil
}

// runSource discovers src's targets and runs each target's pipeline,
// then writes the source-level checkpoint if any target uploaded a file.
func (e *Engine) runSource(ctx context.Context, logger *slog.Logger, job JobConfig, src discovery.SourceConfig) SourceResult {
	targets, err := e.discovery.Targets(ctx, src)
	if err != nil {
		logger.Error("discovery failed, skipping source",
			slog.String("source", src.Name),
			slog.String("error", err.Error()),
		)

		return SourceResult{SourceName: src.Name, Err: fmt.Errorf("sync: discovering targets for %q: %w", src.Name, err)}
	}

	res := SourceResult{SourceName: src.Name}

	var aggregate checkpoint.Stats

	var uploadedAny bool

	for _, target := range targets {
		tr := e.runTarget(ctx, logger, job, src.Name, target)
		res.Targets = append(res.Targets, tr)

		aggregate.FilesProcessed += tr.Stats.Processed
		aggregate.FilesUploaded += tr.Stats.Uploaded
		aggregate.FilesSkipped += tr.Stats.Skipped
		aggregate.BytesTransferred += tr.Stats.BytesTransferred

		if tr.Stats.Uploaded > 0 {
			uploadedAny = true
		}
	}

	if uploadedAny && !job.DryRun {
		sc := checkpoint.SourceCheckpoint{
			SourceName:     src.Name,
			LastBackupTime: time.Now().UTC(),
			Stats:          aggregate,
		}

		if err := e.checkpoints.SaveSourceCheckpoint(ctx, sc); err != nil {
			logger.Error("saving source checkpoint failed",
				slog.String("source", src.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	return res
}

// runTarget runs one target's full pipeline: load cursor, walk, drain the
// worker pool, and — only on a clean producer completion — persist the
// new cursor.
func (e *Engine) runTarget(ctx context.Context, logger *slog.Logger, job JobConfig, sourceName string, target discovery.DriveTarget) TargetResult {
	targetID := target.ID.String()

	cursor, err := e.checkpoints.LoadCursor(ctx, sourceName, targetID)
	if err != nil {
		return TargetResult{Target: target, Aborted: true, Err: err}
	}

	runStart := time.Now().UTC()

	walker := deltawalker.New(e.client, logger)
	changes, results := walker.Walk(ctx, target.ID, target.PathPrefix, cursor)

	pool := workerpool.New(workerpool.Config{
		Concurrency:  job.Workers,
		Downloader:   e.client,
		Destination:  e.dest,
		DestPrefix:   job.DestPrefix,
		StorageClass: job.StorageClass,
		NameCipher:   job.NameCipher,
		DryRun:       job.DryRun,
	}, logger)

	stats := pool.Run(ctx, changes)
	walkResult := <-results

	tr := TargetResult{Target: target, Stats: stats}

	// A clean walkResult (valid terminal delta_link, nil Err) does not by
	// itself mean the target finished: the worker pool's drain loop also
	// exits early on ctx.Done(), so a cancellation arriving after the
	// walker reached Done but before the pool finished draining leaves
	// files unprocessed with no error on walkResult. Check ctx.Err() too,
	// or a cancelled run would advance the cursor past work it never did.
	abortErr := walkResult.Err
	if abortErr == nil {
		abortErr = ctx.Err()
	}

	if abortErr != nil {
		logger.Error("target aborted, cursor not advanced",
			slog.String("source", sourceName),
			slog.String("target_id", targetID),
			slog.String("error", abortErr.Error()),
		)

		tr.Aborted = true
		tr.Err = abortErr

		return tr
	}

	if job.DryRun {
		return tr
	}

	if err := e.checkpoints.SaveCursor(ctx, sourceName, targetID, walkResult.NewCursor, runStart); err != nil {
		logger.Error("saving delta cursor failed",
			slog.String("source", sourceName),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)

		tr.Err = err
	}

	return tr
}
