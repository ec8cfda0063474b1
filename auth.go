package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tonimelisma/onedrive-backup/internal/auth"
	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/driveid"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
	"github.com/tonimelisma/onedrive-backup/internal/sync"
)

// newTokenSource builds the single app-only client-credentials TokenSource
// an authConfig yields. Callers share one instance across every
// graph.Client built for the same source — the TokenSource's own mutex
// already serializes concurrent refreshes, so there is no benefit to, and
// a correctness cost from, constructing more than one per tenant.
func newTokenSource(authCfg config.AuthConfig, logger *slog.Logger) (graph.TokenSource, error) {
	secret := os.Getenv(authCfg.ClientSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("auth: environment variable %q (auth.client_secret_env) is not set", authCfg.ClientSecretEnv)
	}

	return auth.New(authCfg.TenantID, authCfg.ClientID, secret, logger), nil
}

// newSourceClient builds the graph.Client used for control-plane calls
// (discovery, delta paging, metadata) against ts, bounded by
// httpClientTimeout per call.
func newSourceClient(ts graph.TokenSource, logger *slog.Logger) *graph.Client {
	httpClient := &http.Client{Timeout: httpClientTimeout}

	return graph.NewClient(graph.DefaultBaseURL, httpClient, ts, logger, "onedrive-backup/"+version)
}

// transferSourceClient builds a graph.Client sharing the same ts as
// newSourceClient's, but with no fixed HTTP timeout for the download path —
// large files on slow connections can exceed any reasonable fixed timeout;
// transfers are bounded only by context cancellation instead.
func transferSourceClient(ts graph.TokenSource, logger *slog.Logger) *graph.Client {
	httpClient := &http.Client{Timeout: 0}

	return graph.NewClient(graph.DefaultBaseURL, httpClient, ts, logger, "onedrive-backup/"+version)
}

// sourceClient satisfies sync.SourceClient by splitting calls across two
// graph.Client instances that share one TokenSource: control is bounded by
// httpClientTimeout, DownloadRef is not.
type sourceClient struct {
	control  *graph.Client
	transfer *graph.Client
}

// buildSourceClient constructs the control/transfer client pair for a
// single configured source, sharing one app-only TokenSource between them.
func buildSourceClient(authCfg config.AuthConfig, logger *slog.Logger) (*sourceClient, error) {
	ts, err := newTokenSource(authCfg, logger)
	if err != nil {
		return nil, err
	}

	return &sourceClient{
		control:  newSourceClient(ts, logger),
		transfer: transferSourceClient(ts, logger),
	}, nil
}

func (s *sourceClient) ListUsers(ctx context.Context) ([]graph.TenantUser, error) {
	return s.control.ListUsers(ctx)
}

func (s *sourceClient) UserDrive(ctx context.Context, userID string) (*graph.Drive, error) {
	return s.control.UserDrive(ctx, userID)
}

func (s *sourceClient) Drives(ctx context.Context) ([]graph.Drive, error) {
	return s.control.Drives(ctx)
}

func (s *sourceClient) ResolveSite(ctx context.Context, siteURL string) (*graph.Site, error) {
	return s.control.ResolveSite(ctx, siteURL)
}

func (s *sourceClient) SiteDrives(ctx context.Context, siteID string) ([]graph.Drive, error) {
	return s.control.SiteDrives(ctx, siteID)
}

func (s *sourceClient) Delta(ctx context.Context, driveID, token string) (*graph.DeltaPage, error) {
	return s.control.Delta(ctx, driveID, token)
}

func (s *sourceClient) ListChildrenFiltered(ctx context.Context, driveID driveid.ID, parentID string, since time.Time) ([]graph.Item, error) {
	return s.control.ListChildrenFiltered(ctx, driveID, parentID, since)
}

func (s *sourceClient) ListChildren(ctx context.Context, driveID driveid.ID, parentID string) ([]graph.Item, error) {
	return s.control.ListChildren(ctx, driveID, parentID)
}

func (s *sourceClient) DownloadRef(ctx context.Context, ref string, w io.Writer) (int64, error) {
	return s.transfer.DownloadRef(ctx, ref, w)
}

var _ sync.SourceClient = (*sourceClient)(nil)
