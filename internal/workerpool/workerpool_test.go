package workerpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
	"github.com/tonimelisma/onedrive-backup/internal/deltawalker"
)

type memObject struct {
	size     int64
	metadata blob.Metadata
}

type memBlob struct {
	mu      sync.Mutex
	objects map[string]memObject
	putErr  error
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string]memObject)}
}

func (m *memBlob) Head(_ context.Context, key string) (*blob.HeadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}

	return &blob.HeadResult{Size: obj.size, Metadata: obj.metadata}, nil
}

func (m *memBlob) Put(_ context.Context, key string, r io.Reader, size int64, _ string, metadata blob.Metadata, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}

	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{size: size, metadata: metadata}

	return nil
}

func (m *memBlob) PutJSON(_ context.Context, _ string, _ any) error { return nil }
func (m *memBlob) GetJSON(_ context.Context, _ string, _ any) error { return blob.ErrNotFound }

var _ blob.Blob = (*memBlob)(nil)

type fakeDownloader struct {
	content map[string]string
	err     error
}

func (f *fakeDownloader) DownloadRef(_ context.Context, ref string, w io.Writer) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}

	data := f.content[ref]
	n, err := w.Write([]byte(data))

	return int64(n), err
}

func TestRun_UploadsNewFile(t *testing.T) {
	dest := newMemBlob()
	dl := &fakeDownloader{content: map[string]string{"ref-1": "hello world"}}

	pool := New(Config{
		Concurrency: 2,
		Downloader:  dl,
		Destination: dest,
		DestPrefix:  "alice",
	}, slog.Default())

	changes := make(chan deltawalker.FileChange, 1)
	changes <- deltawalker.FileChange{
		FullPath:     "a.txt",
		Size:         11,
		ModifiedTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MimeType:     "text/plain",
		DownloadRef:  "ref-1",
	}
	close(changes)

	stats := pool.Run(context.Background(), changes)

	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Uploaded)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Empty(t, stats.Errors)

	head, err := dest.Head(context.Background(), "alice/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", head.Metadata[blob.MetaSourceModifiedTime])
	assert.Equal(t, blob.SourceTag, head.Metadata[blob.MetaSource])
}

func TestRun_SkipsUnchangedFile(t *testing.T) {
	dest := newMemBlob()
	modified := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dest.objects["alice/a.txt"] = memObject{
		size:     11,
		metadata: blob.Metadata{blob.MetaSourceModifiedTime: modified.Format(rfc3339)},
	}

	dl := &fakeDownloader{}
	pool := New(Config{Concurrency: 1, Downloader: dl, Destination: dest, DestPrefix: "alice"}, slog.Default())

	changes := make(chan deltawalker.FileChange, 1)
	changes <- deltawalker.FileChange{FullPath: "a.txt", Size: 11, ModifiedTime: modified, DownloadRef: "ref-1"}
	close(changes)

	stats := pool.Run(context.Background(), changes)

	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(0), stats.Uploaded)
}

func TestRun_DryRunSkipsUpload(t *testing.T) {
	dest := newMemBlob()
	dl := &fakeDownloader{content: map[string]string{"ref-1": "hello"}}

	pool := New(Config{Concurrency: 1, Downloader: dl, Destination: dest, DestPrefix: "alice", DryRun: true}, slog.Default())

	changes := make(chan deltawalker.FileChange, 1)
	changes <- deltawalker.FileChange{FullPath: "a.txt", Size: 5, DownloadRef: "ref-1"}
	close(changes)

	stats := pool.Run(context.Background(), changes)

	assert.Equal(t, int64(1), stats.Uploaded)
	_, err := dest.Head(context.Background(), "alice/a.txt")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestRun_DownloadFailureRecordsError(t *testing.T) {
	dest := newMemBlob()
	dl := &fakeDownloader{err: errors.New("network down")}

	pool := New(Config{Concurrency: 1, Downloader: dl, Destination: dest, DestPrefix: "alice"}, slog.Default())

	changes := make(chan deltawalker.FileChange, 1)
	changes <- deltawalker.FileChange{FullPath: "broken.txt", Size: 5, DownloadRef: "ref-1"}
	close(changes)

	stats := pool.Run(context.Background(), changes)

	assert.Equal(t, int64(1), stats.Failed)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0].Error(), "broken.txt")
}

func TestRun_PutFailureRecordsError(t *testing.T) {
	dest := newMemBlob()
	dest.putErr = errors.New("bucket unreachable")
	dl := &fakeDownloader{content: map[string]string{"ref-1": "hello"}}

	pool := New(Config{Concurrency: 1, Downloader: dl, Destination: dest, DestPrefix: "alice"}, slog.Default())

	changes := make(chan deltawalker.FileChange, 1)
	changes <- deltawalker.FileChange{FullPath: "a.txt", Size: 5, DownloadRef: "ref-1"}
	close(changes)

	stats := pool.Run(context.Background(), changes)

	assert.Equal(t, int64(1), stats.Failed)
	require.Len(t, stats.Errors, 1)
}

func TestRun_ManyFilesAcrossWorkers(t *testing.T) {
	dest := newMemBlob()
	content := map[string]string{}
	for i := range 50 {
		content[refFor(i)] = "data"
	}

	dl := &fakeDownloader{content: content}
	pool := New(Config{Concurrency: 8, Downloader: dl, Destination: dest, DestPrefix: "bob"}, slog.Default())

	changes := make(chan deltawalker.FileChange, 50)
	for i := range 50 {
		changes <- deltawalker.FileChange{FullPath: pathFor(i), Size: 4, DownloadRef: refFor(i)}
	}
	close(changes)

	stats := pool.Run(context.Background(), changes)

	assert.Equal(t, int64(50), stats.Processed)
	assert.Equal(t, int64(50), stats.Uploaded)
	assert.Equal(t, int64(0), stats.Failed)
}

func refFor(i int) string  { return "ref-" + strconv.Itoa(i) }
func pathFor(i int) string { return "file" + strconv.Itoa(i) + ".txt" }
