// Package workerpool implements the bounded producer/consumer pipeline
// that turns a stream of file changes into uploads: one DeltaWalker
// producer feeds N workers that skip-check, download, and upload each
// file, in the teacher's atomic-counters-plus-capped-error-slice style.
package workerpool

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
	"github.com/tonimelisma/onedrive-backup/internal/cryptoname"
	"github.com/tonimelisma/onedrive-backup/internal/deltawalker"
)

// DefaultWorkers is the default pool concurrency (overridable by config).
const DefaultWorkers = 20

// maxRecordedErrors caps the diagnostic error slice to bound memory on
// targets with many failures; Failed() remains accurate regardless.
const maxRecordedErrors = 1000

// Downloader streams a file change's content from the source.
type Downloader interface {
	DownloadRef(ctx context.Context, ref string, w io.Writer) (int64, error)
}

// Stats summarizes one Pool.Run call.
type Stats struct {
	Processed        int64
	Uploaded         int64
	Skipped          int64
	BytesTransferred int64
	Failed           int64
	Errors           []error
}

// Pool runs a bounded set of workers over a FileChange stream.
type Pool struct {
	concurrency  int
	downloader   Downloader
	dest         blob.Blob
	destPrefix   string
	storageClass string
	nameCipher   *cryptoname.Cipher
	dryRun       bool
	logger       *slog.Logger

	processed atomic.Int64
	uploaded  atomic.Int64
	skipped   atomic.Int64
	bytes     atomic.Int64
	failed    atomic.Int64

	errorsMu sync.Mutex
	errors   []error
	dropped  atomic.Int64
}

// Config configures a Pool.
type Config struct {
	Concurrency  int // <= 0 uses DefaultWorkers
	Downloader   Downloader
	Destination  blob.Blob
	DestPrefix   string // object key prefix, e.g. "s3://bucket/prefix"'s local part
	StorageClass string
	// NameCipher, when set, encrypts every path segment of an uploaded
	// object's key — the destination.encrypt_filenames option.
	NameCipher *cryptoname.Cipher
	DryRun     bool
}

// New returns a Pool configured per cfg.
func New(cfg Config, logger *slog.Logger) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultWorkers
	}

	return &Pool{
		concurrency:  concurrency,
		downloader:   cfg.Downloader,
		dest:         cfg.Destination,
		destPrefix:   cfg.DestPrefix,
		storageClass: cfg.StorageClass,
		nameCipher:   cfg.NameCipher,
		dryRun:       cfg.DryRun,
		logger:       logger,
	}
}

// Run starts concurrency workers draining changes, and blocks until the
// channel is closed and every in-flight file has been processed, or until
// ctx is cancelled (queued files are then left unprocessed). Closing
// the channel (rather than enqueueing per-worker sentinels) is how Go
// naturally broadcasts "producer done" to every receiving goroutine.
func (p *Pool) Run(ctx context.Context, changes <-chan deltawalker.FileChange) Stats {
	g, ctx := errgroup.WithContext(ctx)

	for range p.concurrency {
		g.Go(func() error {
			p.drain(ctx, changes)
			return nil
		})
	}

	_ = g.Wait()

	p.errorsMu.Lock()
	errs := make([]error, len(p.errors))
	copy(errs, p.errors)
	p.errorsMu.Unlock()

	return Stats{
		Processed:        p.processed.Load(),
		Uploaded:         p.uploaded.Load(),
		Skipped:          p.skipped.Load(),
		BytesTransferred: p.bytes.Load(),
		Failed:           p.failed.Load(),
		Errors:           errs,
	}
}

// drain is a single worker's main loop.
func (p *Pool) drain(ctx context.Context, changes <-chan deltawalker.FileChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case fc, ok := <-changes:
			if !ok {
				return
			}

			p.safeProcess(ctx, fc)
		}
	}
}

// safeProcess wraps process with panic recovery — one bad file must never
// take down the whole pool.
func (p *Pool) safeProcess(ctx context.Context, fc deltawalker.FileChange) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker: panic processing file",
				slog.String("path", fc.FullPath),
				slog.Any("panic", r),
			)
			p.recordFailure(fmt.Errorf("panic processing %s: %v", fc.FullPath, r))
		}
	}()

	p.process(ctx, fc)
}

// process implements the per-file pipeline: skip-check, then either
// dry-run-count or download-and-upload.
func (p *Pool) process(ctx context.Context, fc deltawalker.FileChange) {
	p.processed.Add(1)

	key, err := p.objectKey(fc.FullPath)
	if err != nil {
		p.logger.Error("worker: encrypting object key failed",
			slog.String("path", fc.FullPath),
			slog.String("error", err.Error()),
		)
		p.recordFailure(fmt.Errorf("encrypting key for %s: %w", fc.FullPath, err))

		return
	}

	head, err := p.dest.Head(ctx, key)
	if err == nil && head.Metadata[blob.MetaSourceModifiedTime] == fc.ModifiedTime.UTC().Format(rfc3339) {
		p.skipped.Add(1)
		return
	}

	if p.dryRun {
		p.uploaded.Add(1)
		return
	}

	if err := p.uploadFile(ctx, key, fc); err != nil {
		p.logger.Error("worker: upload failed",
			slog.String("path", fc.FullPath),
			slog.String("error", err.Error()),
		)
		p.recordFailure(fmt.Errorf("uploading %s: %w", fc.FullPath, err))

		return
	}

	p.uploaded.Add(1)
}

// objectKey builds the destination object key for fullPath, encrypting each
// path segment independently when the pool has a name cipher configured so
// a segment's ciphertext never depends on its neighbors.
func (p *Pool) objectKey(fullPath string) (string, error) {
	if p.nameCipher == nil {
		return p.destPrefix + "/" + fullPath, nil
	}

	segments := strings.Split(fullPath, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}

		enc, err := p.nameCipher.Encrypt(seg)
		if err != nil {
			return "", err
		}

		segments[i] = enc
	}

	return p.destPrefix + "/" + strings.Join(segments, "/"), nil
}

// rfc3339 matches the layout metadata.source_modified_time is stored in.
const rfc3339 = "2006-01-02T15:04:05Z07:00"

// uploadFile downloads fc's content into memory-bounded pipe and streams it
// into the destination, tagging the object with the metadata the core
// depends on for future skip-checks.
func (p *Pool) uploadFile(ctx context.Context, key string, fc deltawalker.FileChange) error {
	pr, pw := io.Pipe()

	var downloadErr error

	go func() {
		defer pw.Close()

		n, err := p.downloader.DownloadRef(ctx, fc.DownloadRef, pw)
		downloadErr = err
		p.bytes.Add(n)
	}()

	metadata := blob.Metadata{
		blob.MetaSourceModifiedTime: fc.ModifiedTime.UTC().Format(rfc3339),
		blob.MetaOriginalPathB64:    base64.StdEncoding.EncodeToString([]byte(fc.FullPath)),
		blob.MetaSource:             blob.SourceTag,
		blob.MetaEncoding:           blob.EncodingB64,
	}

	if err := p.dest.Put(ctx, key, pr, fc.Size, fc.MimeType, metadata, p.storageClass); err != nil {
		pr.CloseWithError(err)
		return err
	}

	if downloadErr != nil {
		return fmt.Errorf("downloading source content: %w", downloadErr)
	}

	return nil
}

// recordFailure increments the failed counter and appends to the capped
// error slice; beyond maxRecordedErrors, only the overflow counter grows.
func (p *Pool) recordFailure(err error) {
	p.failed.Add(1)

	p.errorsMu.Lock()
	defer p.errorsMu.Unlock()

	if len(p.errors) >= maxRecordedErrors {
		p.dropped.Add(1)
		return
	}

	p.errors = append(p.errors, err)
}
