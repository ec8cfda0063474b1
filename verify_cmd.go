package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/discovery"
	"github.com/tonimelisma/onedrive-backup/internal/report"
)

// connectivitySentinelKey is the object Head-checked to prove a
// destination is reachable and writable-shaped, without writing anything.
const connectivitySentinelKey = ".backup-metadata/.connectivity-check"

// errVerifyMismatch is returned when any configured source or destination
// fails its connectivity check, so main can map it to exit code 1.
var errVerifyMismatch = errors.New("one or more connectivity checks failed")

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check connectivity to every configured source and destination",
		Long: `Probe every source and destination referenced by the selected jobs (see
the persistent --job flag) without performing a backup: each source is
probed with a target-discovery call, each destination with a HEAD request.

Exits 0 if every check passes, 1 if any fails.`,
		RunE: runVerify,
	}
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	jobs, err := config.SelectJobs(cc.Cfg, resolveJobFilter())
	if err != nil {
		return fmt.Errorf("selecting jobs: %w", err)
	}

	sources, destinations := verifyTargets(cc.Cfg, jobs)

	ts, err := newTokenSource(cc.Cfg.Auth, cc.Logger)
	if err != nil {
		return err
	}

	client := newSourceClient(ts, cc.Logger)
	disco := discovery.New(client, cc.Logger)

	destBlobs := make(map[string]blob.Blob, len(destinations))

	chunkSize, err := config.ParseSize(cc.Cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("chunk_size: %w", err)
	}

	for name, destCfg := range destinations {
		b, _, err := buildDestination(destCfg, chunkSize, cc.Logger)
		if err != nil {
			destBlobs[name] = failingBlob{err: err}
			continue
		}

		destBlobs[name] = b
	}

	ctx := cmd.Context()

	results := report.TestConnections(
		sources,
		func(src discovery.SourceConfig) error {
			_, err := disco.Targets(ctx, src)
			return err
		},
		destBlobs,
		func(b blob.Blob) error {
			_, err := b.Head(ctx, connectivitySentinelKey)
			if errors.Is(err, blob.ErrNotFound) {
				return nil
			}

			return err
		},
	)

	report.WriteCheckResults(os.Stdout, results)

	if !report.AllOK(results) {
		return errVerifyMismatch
	}

	return nil
}

// verifyTargets collects the distinct sources and destinations referenced
// by jobs, resolved against cfg.
func verifyTargets(cfg *config.Config, jobs []config.JobConfig) ([]discovery.SourceConfig, map[string]config.DestinationConfig) {
	seenSources := make(map[string]bool)

	var sources []discovery.SourceConfig

	destinations := make(map[string]config.DestinationConfig)

	for _, job := range jobs {
		for _, name := range job.Sources {
			if seenSources[name] {
				continue
			}

			seenSources[name] = true

			if sc, ok := cfg.SourceByName(name); ok {
				sources = append(sources, toDiscoverySource(sc))
			}
		}

		if dc, ok := cfg.DestinationByName(job.Destination); ok {
			destinations[dc.Name] = dc
		}
	}

	return sources, destinations
}

// failingBlob is a placeholder Blob substituted when a destination failed
// to construct, so the connectivity check still reports one FAIL row
// instead of aborting the whole command.
type failingBlob struct {
	err error
}

func (f failingBlob) Head(context.Context, string) (*blob.HeadResult, error) { return nil, f.err }

func (f failingBlob) Put(context.Context, string, io.Reader, int64, string, blob.Metadata, string) error {
	return f.err
}

func (f failingBlob) PutJSON(context.Context, string, any) error { return f.err }
func (f failingBlob) GetJSON(context.Context, string, any) error { return f.err }

var _ blob.Blob = failingBlob{}
