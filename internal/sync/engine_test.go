package sync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
	"github.com/tonimelisma/onedrive-backup/internal/discovery"
	"github.com/tonimelisma/onedrive-backup/internal/driveid"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
)

type fakeClient struct {
	users        []graph.TenantUser
	drivesByUser map[string]*graph.Drive
	deltaPages   map[string]*graph.DeltaPage
	content      map[string]string

	// cancelDuringDownload, when set, is invoked the first time DownloadRef
	// is called — used to simulate a cancellation signal arriving while the
	// worker pool is still mid-drain, after the walker has already reached
	// a clean terminal state.
	cancelDuringDownload context.CancelFunc
}

func (f *fakeClient) ListUsers(_ context.Context) ([]graph.TenantUser, error) { return f.users, nil }

func (f *fakeClient) UserDrive(_ context.Context, userID string) (*graph.Drive, error) {
	d, ok := f.drivesByUser[userID]
	if !ok {
		return nil, graph.ErrNotFound
	}

	return d, nil
}

func (f *fakeClient) Drives(_ context.Context) ([]graph.Drive, error) { return nil, nil }

func (f *fakeClient) ResolveSite(_ context.Context, _ string) (*graph.Site, error) {
	return nil, graph.ErrNotFound
}

func (f *fakeClient) SiteDrives(_ context.Context, _ string) ([]graph.Drive, error) { return nil, nil }

func (f *fakeClient) Delta(_ context.Context, _, token string) (*graph.DeltaPage, error) {
	page, ok := f.deltaPages[token]
	if !ok {
		return nil, assert.AnError
	}

	return page, nil
}

func (f *fakeClient) ListChildrenFiltered(_ context.Context, _ driveid.ID, _ string, _ time.Time) ([]graph.Item, error) {
	return nil, nil
}

func (f *fakeClient) ListChildren(_ context.Context, _ driveid.ID, _ string) ([]graph.Item, error) {
	return nil, nil
}

func (f *fakeClient) DownloadRef(_ context.Context, ref string, w io.Writer) (int64, error) {
	if f.cancelDuringDownload != nil {
		f.cancelDuringDownload()
	}

	data := f.content[ref]
	n, err := w.Write([]byte(data))

	return int64(n), err
}

type memBlob struct {
	objects map[string][]byte
	meta    map[string]blob.Metadata
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte), meta: make(map[string]blob.Metadata)}
}

func (m *memBlob) Head(_ context.Context, key string) (*blob.HeadResult, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}

	return &blob.HeadResult{Size: int64(len(data)), Metadata: m.meta[key]}, nil
}

func (m *memBlob) Put(_ context.Context, key string, r io.Reader, _ int64, _ string, metadata blob.Metadata, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.objects[key] = data
	m.meta[key] = metadata

	return nil
}

func (m *memBlob) PutJSON(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.objects[key] = data

	return nil
}

func (m *memBlob) GetJSON(_ context.Context, key string, value any) error {
	data, ok := m.objects[key]
	if !ok {
		return blob.ErrNotFound
	}

	return json.Unmarshal(data, value)
}

var _ blob.Blob = (*memBlob)(nil)

func TestRunJob_PersonalSourceUploadsAndSavesCursor(t *testing.T) {
	client := &fakeClient{
		users: []graph.TenantUser{{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}},
		drivesByUser: map[string]*graph.Drive{
			"u1": {ID: driveid.New("d1"), Name: "Alice's OneDrive"},
		},
		deltaPages: map[string]*graph.DeltaPage{
			"": {
				Items: []graph.Item{
					{ID: "f1", Name: "report.docx", Size: 4, ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
				},
				DeltaLink: "delta-link-1",
			},
		},
		content: map[string]string{"/drives/" + driveid.New("d1").String() + "/items/f1/content": "data"},
	}

	dest := newMemBlob()
	engine := New(client, dest, slog.Default())

	job := JobConfig{
		Name: "daily",
		Sources: []discovery.SourceConfig{
			{Name: "onedrive", Type: discovery.SourcePersonal, Users: []string{"all"}},
		},
		DestPrefix: "backup",
		Workers:    2,
	}

	result, err := engine.RunJob(context.Background(), job)
	require.NoError(t, err)
	require.False(t, result.Failed())
	require.Len(t, result.Sources, 1)
	require.Len(t, result.Sources[0].Targets, 1)

	tr := result.Sources[0].Targets[0]
	assert.Equal(t, int64(1), tr.Stats.Uploaded)
	assert.False(t, tr.Aborted)

	_, err = dest.Head(context.Background(), "backup/alice/report.docx")
	require.NoError(t, err)

	_, err = dest.Head(context.Background(), ".backup-metadata/onedrive_delta_tokens/"+driveid.New("d1").String()+".json")
	require.NoError(t, err)
	_, err = dest.Head(context.Background(), ".backup-metadata/onedrive_last_backup.json")
	require.NoError(t, err)
}

func TestRunJob_WalkerFailureAbortsTargetWithoutCursor(t *testing.T) {
	client := &fakeClient{
		users: []graph.TenantUser{{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}},
		drivesByUser: map[string]*graph.Drive{
			"u1": {ID: driveid.New("d1"), Name: "Alice's OneDrive"},
		},
		deltaPages: map[string]*graph.DeltaPage{},
	}

	dest := newMemBlob()
	engine := New(client, dest, slog.Default())

	job := JobConfig{
		Name: "daily",
		Sources: []discovery.SourceConfig{
			{Name: "onedrive", Type: discovery.SourcePersonal, Users: []string{"all"}},
		},
		DestPrefix: "backup",
	}

	result, err := engine.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, result.Failed())

	tr := result.Sources[0].Targets[0]
	assert.True(t, tr.Aborted)

	_, err = dest.Head(context.Background(), ".backup-metadata/onedrive_delta_tokens/"+driveid.New("d1").String()+".json")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestRunJob_CancellationMidDrainDoesNotPersistCursor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		users: []graph.TenantUser{{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}},
		drivesByUser: map[string]*graph.Drive{
			"u1": {ID: driveid.New("d1"), Name: "Alice's OneDrive"},
		},
		deltaPages: map[string]*graph.DeltaPage{
			"": {
				Items: []graph.Item{
					{ID: "f1", Name: "report.docx", Size: 4, ModifiedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
				},
				DeltaLink: "delta-link-1",
			},
		},
		content: map[string]string{"/drives/" + driveid.New("d1").String() + "/items/f1/content": "data"},
	}
	// Cancel the run's own context from inside the download call — this
	// simulates a cancellation signal arriving after the walker has
	// already reached a clean terminal delta_link (walkResult.Err == nil)
	// but while the worker pool is still mid-drain.
	client.cancelDuringDownload = cancel

	dest := newMemBlob()
	engine := New(client, dest, slog.Default())

	job := JobConfig{
		Name: "daily",
		Sources: []discovery.SourceConfig{
			{Name: "onedrive", Type: discovery.SourcePersonal, Users: []string{"all"}},
		},
		DestPrefix: "backup",
		Workers:    1,
	}

	result, err := engine.RunJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, result.Failed())

	tr := result.Sources[0].Targets[0]
	assert.True(t, tr.Aborted, "a target whose run was cancelled mid-drain must be reported as aborted")

	_, err = dest.Head(context.Background(), ".backup-metadata/onedrive_delta_tokens/"+driveid.New("d1").String()+".json")
	assert.ErrorIs(t, err, blob.ErrNotFound, "cursor must not be persisted when cancellation raced the walker's clean completion")
}

func TestRunJob_UnknownSourceTypeSkipsSourceNotJob(t *testing.T) {
	client := &fakeClient{}
	dest := newMemBlob()
	engine := New(client, dest, slog.Default())

	job := JobConfig{
		Name: "daily",
		Sources: []discovery.SourceConfig{
			{Name: "bad", Type: "bogus"},
			{Name: "onedrive", Type: discovery.SourcePersonal, Users: []string{"all"}},
		},
	}

	result, err := engine.RunJob(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	assert.Error(t, result.Sources[0].Err)
	assert.NoError(t, result.Sources[1].Err)
}

func TestRunJob_DryRunDoesNotPersistCursor(t *testing.T) {
	client := &fakeClient{
		users: []graph.TenantUser{{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}},
		drivesByUser: map[string]*graph.Drive{
			"u1": {ID: driveid.New("d1"), Name: "Alice's OneDrive"},
		},
		deltaPages: map[string]*graph.DeltaPage{
			"": {
				Items:     []graph.Item{{ID: "f1", Name: "a.txt", Size: 4}},
				DeltaLink: "delta-link-1",
			},
		},
		content: map[string]string{"/drives/" + driveid.New("d1").String() + "/items/f1/content": "data"},
	}

	dest := newMemBlob()
	engine := New(client, dest, slog.Default())

	job := JobConfig{
		Name: "daily",
		Sources: []discovery.SourceConfig{
			{Name: "onedrive", Type: discovery.SourcePersonal, Users: []string{"all"}},
		},
		DestPrefix: "backup",
		DryRun:     true,
	}

	result, err := engine.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, result.Failed())

	_, err = dest.Head(context.Background(), ".backup-metadata/onedrive_delta_tokens/"+driveid.New("d1").String()+".json")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}
