// Package deltawalker implements the state machine that turns a drive's
// delta feed (with a timestamp-filtered fallback when a cursor expires)
// into a lazy stream of file changes for a worker pool to consume.
package deltawalker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tonimelisma/onedrive-backup/internal/checkpoint"
	"github.com/tonimelisma/onedrive-backup/internal/driveid"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
)

// maxFallbackDepth bounds the recursive fallback walk so a pathological
// folder tree cannot recurse unboundedly.
const maxFallbackDepth = 10

// FileChange is one file the worker pool should consider uploading.
type FileChange struct {
	ItemID       string
	Name         string
	FullPath     string // path_prefix/parent_path/name, no leading slash
	Size         int64
	ModifiedTime time.Time
	MimeType     string
	DownloadRef  string // opaque; synthesized if the source page omitted one
}

// Result is the terminal outcome of a single Walk call.
type Result struct {
	// NewCursor is the delta_link to persist as the next cycle's cursor.
	// Only meaningful when Err is nil — callers must not advance the
	// checkpoint on a non-nil Err, since the walk may not have covered
	// the full target.
	NewCursor string
	Err       error
}

// graphClient is the narrow source-API surface the walker depends on.
type graphClient interface {
	Delta(ctx context.Context, driveID, token string) (*graph.DeltaPage, error)
	ListChildrenFiltered(ctx context.Context, driveID driveid.ID, parentID string, since time.Time) ([]graph.Item, error)
	ListChildren(ctx context.Context, driveID driveid.ID, parentID string) ([]graph.Item, error)
}

// Walker drives the delta/fallback state machine for one target at a time.
// A Walker is stateless between calls to Walk — all per-walk state lives in
// the walk's own goroutine.
type Walker struct {
	client graphClient
	logger *slog.Logger
}

// New returns a Walker backed by client.
func New(client graphClient, logger *slog.Logger) *Walker {
	return &Walker{client: client, logger: logger}
}

// Walk starts the state machine for driveID, prefixing every emitted
// FileChange's path with pathPrefix. cursor is the prior checkpoint for
// this target, or nil for a first-ever run. The returned channel is closed
// when the walk completes; exactly one Result follows on the result
// channel before it too is closed.
func (w *Walker) Walk(ctx context.Context, driveID driveid.ID, pathPrefix string, cursor *checkpoint.DeltaCursor) (<-chan FileChange, <-chan Result) {
	changes := make(chan FileChange)
	results := make(chan Result, 1)

	go func() {
		defer close(changes)
		defer close(results)

		newCursor, err := w.run(ctx, driveID, pathPrefix, cursor, changes)
		results <- Result{NewCursor: newCursor, Err: err}
	}()

	return changes, results
}

// run implements Init → {DeltaFresh|DeltaResume} → Paging/Fallback → Done.
func (w *Walker) run(ctx context.Context, driveID driveid.ID, pathPrefix string, cursor *checkpoint.DeltaCursor, out chan<- FileChange) (string, error) {
	token := ""
	if cursor != nil {
		token = cursor.Token
	}

	page, err := w.client.Delta(ctx, driveID.String(), token)
	if err != nil {
		if token == "" || !errors.Is(err, graph.ErrGone) {
			return "", fmt.Errorf("deltawalker: requesting delta for %s: %w", driveID, err)
		}

		// DeltaResume got a 410 — the token expired, fall back.
		return w.fallback(ctx, driveID, pathPrefix, cursor, out)
	}

	return w.page(ctx, driveID, pathPrefix, page, out)
}

// page walks Paging: emit every file in the page, follow next_link pages,
// and return the terminal delta_link once one arrives.
func (w *Walker) page(ctx context.Context, driveID driveid.ID, pathPrefix string, page *graph.DeltaPage, out chan<- FileChange) (string, error) {
	for {
		if err := emitPage(ctx, driveID, pathPrefix, page.Items, out); err != nil {
			return "", err
		}

		if page.DeltaLink != "" {
			return page.DeltaLink, nil
		}

		if page.NextLink == "" {
			// Defensive: Graph always returns one or the other on 200.
			return "", errors.New("deltawalker: delta page had neither next_link nor delta_link")
		}

		next, err := w.client.Delta(ctx, driveID.String(), page.NextLink)
		if err != nil {
			return "", fmt.Errorf("deltawalker: following next_link: %w", err)
		}

		page = next
	}
}

// fallback implements the Fallback state: a timestamp-filtered recursive
// walk (when a last_backup_time is known), followed by a fresh delta
// enumeration paged through solely to mint a new delta_link.
func (w *Walker) fallback(ctx context.Context, driveID driveid.ID, pathPrefix string, cursor *checkpoint.DeltaCursor, out chan<- FileChange) (string, error) {
	w.logger.Warn("delta cursor expired, falling back to timestamp walk",
		slog.String("drive_id", driveID.String()),
	)

	if cursor != nil && !cursor.LastBackupTime.IsZero() {
		if err := w.recursiveWalk(ctx, driveID, pathPrefix, "root", cursor.LastBackupTime, 0, out); err != nil {
			return "", fmt.Errorf("deltawalker: fallback recursive walk: %w", err)
		}
	}

	// Fresh delta purely to mint a new cursor — items on these pages are
	// not re-emitted, since the fallback walk (or a deliberately empty one,
	// if there was no last_backup_time) already covered the required set.
	page, err := w.client.Delta(ctx, driveID.String(), "")
	if err != nil {
		return "", fmt.Errorf("deltawalker: fresh delta after fallback: %w", err)
	}

	for {
		if page.DeltaLink != "" {
			return page.DeltaLink, nil
		}

		if page.NextLink == "" {
			return "", errors.New("deltawalker: fresh delta page had neither next_link nor delta_link")
		}

		page, err = w.client.Delta(ctx, driveID.String(), page.NextLink)
		if err != nil {
			return "", fmt.Errorf("deltawalker: paging fresh delta after fallback: %w", err)
		}
	}
}

// recursiveWalk lists parentID's children (filtered server-side when
// possible) modified after since, emits matching files, and recurses into
// folders up to maxFallbackDepth.
func (w *Walker) recursiveWalk(ctx context.Context, driveID driveid.ID, pathPrefix, parentID string, since time.Time, depth int, out chan<- FileChange) error {
	if depth > maxFallbackDepth {
		w.logger.Warn("fallback walk hit max depth, not descending further",
			slog.String("drive_id", driveID.String()),
			slog.Int("max_depth", maxFallbackDepth),
		)

		return nil
	}

	children, err := w.client.ListChildrenFiltered(ctx, driveID, parentID, since)
	if err != nil {
		return err
	}

	for _, item := range children {
		if item.IsDeleted {
			continue
		}

		if item.IsFolder {
			if err := w.recursiveWalk(ctx, driveID, pathPrefix, item.ID, since, depth+1, out); err != nil {
				return err
			}

			continue
		}

		if item.IsPackage {
			continue
		}

		select {
		case out <- toFileChange(driveID, pathPrefix, item):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// emitPage emits every non-deleted, non-folder file in items.
func emitPage(ctx context.Context, driveID driveid.ID, pathPrefix string, items []graph.Item, out chan<- FileChange) error {
	for _, item := range items {
		if item.IsDeleted || item.IsFolder || item.IsPackage {
			continue
		}

		select {
		case out <- toFileChange(driveID, pathPrefix, item):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// toFileChange normalizes a graph.Item into a FileChange, synthesizing a
// download reference when the source page omitted one.
func toFileChange(driveID driveid.ID, pathPrefix string, item graph.Item) FileChange {
	ref := item.DownloadURL
	if ref == "" {
		sourceDrive := item.ParentDriveID
		if sourceDrive == "" {
			slog.Warn("delta item missing parent drive id, assuming walk's own drive",
				slog.String("item_id", item.ID), slog.String("drive_id", driveID.String()))
			sourceDrive = driveID.String()
		}

		ref = fmt.Sprintf("/drives/%s/items/%s/content", sourceDrive, item.ID)
	}

	return FileChange{
		ItemID:       item.ID,
		Name:         item.Name,
		FullPath:     joinFullPath(pathPrefix, item.FullPath()),
		Size:         item.Size,
		ModifiedTime: item.ModifiedAt,
		MimeType:     item.MimeType,
		DownloadRef:  ref,
	}
}

// joinFullPath joins prefix and relPath into a POSIX-style path with no
// leading slash, per the object key layout the destination expects.
func joinFullPath(prefix, relPath string) string {
	prefix = strings.Trim(prefix, "/")
	relPath = strings.TrimPrefix(relPath, "/")

	if prefix == "" {
		return relPath
	}

	if relPath == "" {
		return prefix
	}

	return prefix + "/" + relPath
}

// EncodePathB64 base64-encodes a UTF-8 path for the
// metadata.original_path_encoded object metadata field.
func EncodePathB64(path string) string {
	return base64.StdEncoding.EncodeToString([]byte(path))
}
