// Package report renders human-facing output for the CLI: a per-job
// summary table after a run, and a pass/fail connectivity check before one
// is allowed to start. Table layout follows the teacher's printTable/
// formatSize helpers, extended with github.com/dustin/go-humanize for
// byte/duration formatting and github.com/mattn/go-isatty for color/TTY
// detection.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
	"github.com/tonimelisma/onedrive-backup/internal/discovery"
	"github.com/tonimelisma/onedrive-backup/internal/sync"
)

// IsTTY reports whether w is a terminal, used to decide whether to emit
// ANSI color codes in table output. Accepts any value with an Fd method
// (such as os.Stdout), so this package does not import os.
func IsTTY(w interface {
	Fd() uintptr
}) bool {
	return isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd())
}

// WriteJobSummary renders one job's result as a human-readable table:
// per-source/per-target rows plus an aggregate line, using humanize for
// byte counts and durations.
func WriteJobSummary(w io.Writer, result *sync.JobResult) {
	fmt.Fprintf(w, "Job %q (took %s)\n", result.JobName, result.Duration.Round(time.Second))

	var totalProcessed, totalUploaded, totalSkipped, totalBytes, totalErrors int64

	for _, src := range result.Sources {
		if src.Err != nil {
			fmt.Fprintf(w, "  source %-20s discovery failed: %s\n", src.SourceName, src.Err)
			continue
		}

		for _, tgt := range src.Targets {
			status := "ok"
			if tgt.Aborted {
				status = "ABORTED"
			}

			fmt.Fprintf(w, "  %-20s %-24s processed=%-6d uploaded=%-6d skipped=%-6d bytes=%-10s failed=%-4d [%s]\n",
				src.SourceName,
				tgt.Target.DisplayName,
				tgt.Stats.Processed,
				tgt.Stats.Uploaded,
				tgt.Stats.Skipped,
				humanize.Bytes(uint64(tgt.Stats.BytesTransferred)),
				tgt.Stats.Failed,
				status,
			)

			totalProcessed += tgt.Stats.Processed
			totalUploaded += tgt.Stats.Uploaded
			totalSkipped += tgt.Stats.Skipped
			totalBytes += tgt.Stats.BytesTransferred
			totalErrors += tgt.Stats.Failed
		}
	}

	fmt.Fprintf(w, "  total: processed=%d uploaded=%d skipped=%d bytes=%s errors=%d duration=%s\n",
		totalProcessed, totalUploaded, totalSkipped, humanize.Bytes(uint64(totalBytes)), totalErrors,
		result.Duration.Round(time.Second),
	)

	if result.Failed() {
		fmt.Fprintln(w, "  result: FAILED")
	} else {
		fmt.Fprintln(w, "  result: ok")
	}
}

// CheckResult is the outcome of probing one collaborator's reachability.
type CheckResult struct {
	Name string
	OK   bool
	Err  error
}

// TestConnections probes every configured source and destination, per
// §4.12's connectivity check: for sources, attempt Discovery.Targets; for
// destinations, attempt Blob.Head on a sentinel key. Returns one
// CheckResult per collaborator: sources first, in the order given, then
// destinations in map iteration order (not fixed).
func TestConnections(
	sources []discovery.SourceConfig,
	probeSource func(discovery.SourceConfig) error,
	destinations map[string]blob.Blob,
	headSentinel func(blob.Blob) error,
) []CheckResult {
	var results []CheckResult

	for _, src := range sources {
		err := probeSource(src)
		results = append(results, CheckResult{Name: "source:" + src.Name, OK: err == nil, Err: err})
	}

	for name, b := range destinations {
		err := headSentinel(b)
		results = append(results, CheckResult{Name: "destination:" + name, OK: err == nil, Err: err})
	}

	return results
}

// WriteCheckResults renders connectivity check results as a pass/fail
// table.
func WriteCheckResults(w io.Writer, results []CheckResult) {
	for _, r := range results {
		status := "PASS"
		if !r.OK {
			status = "FAIL"
		}

		line := fmt.Sprintf("  %-5s %s", status, r.Name)
		if r.Err != nil {
			line += ": " + r.Err.Error()
		}

		fmt.Fprintln(w, line)
	}
}

// AllOK reports whether every connectivity check passed.
func AllOK(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}

	return true
}
