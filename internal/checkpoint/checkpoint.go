// Package checkpoint persists and loads the small JSON state records the
// sync engine uses to resume incrementally: a per-target delta cursor and a
// per-source last-backup marker. Both are stored in the destination Blob
// under a reserved metadata prefix, never on local disk, so resuming a
// backup job requires nothing beyond credentials for the destination.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
)

// DeltaCursor is the resumable state for a single drive target: the
// server-issued delta token plus the wall-clock time it was captured at,
// used as the fallback boundary if the token later expires.
type DeltaCursor struct {
	TargetID       string    `json:"target_id"`
	Token          string    `json:"delta_token"`
	LastBackupTime time.Time `json:"last_backup_time"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Stats carries the counters a SourceCheckpoint records for its most recent
// completed run.
type Stats struct {
	FilesProcessed   int64 `json:"files_processed"`
	FilesUploaded    int64 `json:"files_uploaded"`
	FilesSkipped     int64 `json:"files_skipped"`
	BytesTransferred int64 `json:"bytes_transferred"`
}

// SourceCheckpoint is the resumable state for an entire source: the last
// time any target in the source completed with at least one upload.
type SourceCheckpoint struct {
	SourceName     string    `json:"source_name"`
	LastBackupTime time.Time `json:"last_backup_time"`
	Stats          Stats     `json:"stats"`
}

// Store reads and writes checkpoint records against a destination Blob.
// Safe for concurrent use — each method makes its own Blob call, and
// distinct targets never share a key.
type Store struct {
	blob   blob.Blob
	logger *slog.Logger
}

// New returns a Store backed by b.
func New(b blob.Blob, logger *slog.Logger) *Store {
	return &Store{blob: b, logger: logger}
}

func deltaTokenKey(sourceName, targetID string) string {
	return fmt.Sprintf(".backup-metadata/%s_delta_tokens/%s.json", sourceName, targetID)
}

func lastBackupKey(sourceName string) string {
	return fmt.Sprintf(".backup-metadata/%s_last_backup.json", sourceName)
}

// LoadCursor returns the persisted delta cursor for a target, or nil if
// none exists. A malformed record is logged as a warning and treated as
// "no prior cursor" — the walker falls back to a fresh delta rather than
// failing the run.
func (s *Store) LoadCursor(ctx context.Context, sourceName, targetID string) (*DeltaCursor, error) {
	key := deltaTokenKey(sourceName, targetID)

	var cursor DeltaCursor
	if err := s.blob.GetJSON(ctx, key, &cursor); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil
		}

		s.logger.Warn("malformed delta cursor, treating as absent",
			slog.String("source", sourceName),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)

		return nil, nil
	}

	return &cursor, nil
}

// SaveCursor persists a target's delta cursor. Callers must only call this
// after the walker has returned a terminal delta_link AND the worker pool
// has fully drained — a partial walk must never advance the cursor, since
// that would silently drop the unprocessed remainder on the next run.
func (s *Store) SaveCursor(ctx context.Context, sourceName, targetID, token string, lastBackupTime time.Time) error {
	cursor := DeltaCursor{
		TargetID:       targetID,
		Token:          token,
		LastBackupTime: lastBackupTime,
		LastUpdated:    lastBackupTime,
	}

	key := deltaTokenKey(sourceName, targetID)
	if err := s.blob.PutJSON(ctx, key, cursor); err != nil {
		return fmt.Errorf("checkpoint: saving delta cursor for %s/%s: %w", sourceName, targetID, err)
	}

	s.logger.Debug("saved delta cursor",
		slog.String("source", sourceName),
		slog.String("target_id", targetID),
	)

	return nil
}

// LoadSourceCheckpoint returns the persisted source-level checkpoint, or
// nil if none exists.
func (s *Store) LoadSourceCheckpoint(ctx context.Context, sourceName string) (*SourceCheckpoint, error) {
	key := lastBackupKey(sourceName)

	var sc SourceCheckpoint
	if err := s.blob.GetJSON(ctx, key, &sc); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil
		}

		s.logger.Warn("malformed source checkpoint, treating as absent",
			slog.String("source", sourceName),
			slog.String("error", err.Error()),
		)

		return nil, nil
	}

	return &sc, nil
}

// SaveSourceCheckpoint persists the source-level checkpoint. Callers must
// only call this when at least one file was uploaded during the run —
// a zero-upload run (everything skipped or no changes) leaves the prior
// checkpoint untouched.
func (s *Store) SaveSourceCheckpoint(ctx context.Context, sc SourceCheckpoint) error {
	key := lastBackupKey(sc.SourceName)
	if err := s.blob.PutJSON(ctx, key, sc); err != nil {
		return fmt.Errorf("checkpoint: saving source checkpoint for %s: %w", sc.SourceName, err)
	}

	s.logger.Debug("saved source checkpoint",
		slog.String("source", sc.SourceName),
		slog.Int64("files_uploaded", sc.Stats.FilesUploaded),
	)

	return nil
}
