// Package discovery enumerates the drive targets a configured source
// fans out to: personal drives for a tenant's users, shared "team" drives
// visible to the authenticated account, and SharePoint document libraries
// resolved from a site URL.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/onedrive-backup/internal/driveid"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
)

// Kind identifies what a DriveTarget's underlying drive is.
type Kind string

const (
	KindPersonal Kind = "personal"
	KindTeam     Kind = "team"
)

// SourceKind identifies a configured source's discovery strategy.
type SourceKind string

const (
	SourcePersonal   SourceKind = "personal"
	SourceTeam       SourceKind = "team"
	SourceSharePoint SourceKind = "sharepoint"
)

// SourceConfig describes one configured source to discover targets for.
// Mirrors the job configuration's [[sources]] table.
type SourceConfig struct {
	Name string
	Type SourceKind

	// Users is either ["all"] or an allow-list: email addresses for
	// SourcePersonal, drive names for SourceTeam. An empty list selects
	// everything.
	Users []string

	// SiteURL and Libraries are only meaningful for SourceSharePoint.
	SiteURL   string
	Libraries []string
}

// usersAll reports whether Users selects every discovered user or drive:
// an empty list or ["all"].
func (s SourceConfig) usersAll() bool {
	return len(s.Users) == 0 || (len(s.Users) == 1 && strings.EqualFold(s.Users[0], "all"))
}

// DriveTarget is one drive to run a sync pipeline against.
type DriveTarget struct {
	ID          driveid.ID
	DisplayName string
	Kind        Kind
	PathPrefix  string
}

// graphClient is the narrow surface Discovery depends on — satisfied by
// *graph.Client, narrowed here for testability.
type graphClient interface {
	ListUsers(ctx context.Context) ([]graph.TenantUser, error)
	UserDrive(ctx context.Context, userID string) (*graph.Drive, error)
	Drives(ctx context.Context) ([]graph.Drive, error)
	ResolveSite(ctx context.Context, siteURL string) (*graph.Site, error)
	SiteDrives(ctx context.Context, siteID string) ([]graph.Drive, error)
}

// Discovery enumerates DriveTargets for configured sources.
type Discovery struct {
	client graphClient
	logger *slog.Logger
}

// New returns a Discovery backed by client.
func New(client graphClient, logger *slog.Logger) *Discovery {
	return &Discovery{client: client, logger: logger}
}

// Targets enumerates the drive targets for a source, per its Type.
func (d *Discovery) Targets(ctx context.Context, src SourceConfig) ([]DriveTarget, error) {
	switch src.Type {
	case SourcePersonal:
		return d.personalTargets(ctx, src)
	case SourceTeam:
		return d.teamTargets(ctx, src)
	case SourceSharePoint:
		return d.sharePointTargets(ctx, src)
	default:
		return nil, fmt.Errorf("discovery: unknown source type %q", src.Type)
	}
}

// personalTargets lists tenant users and probes each for a personal drive,
// recording those that have one, filtered by the source's allow-list.
func (d *Discovery) personalTargets(ctx context.Context, src SourceConfig) ([]DriveTarget, error) {
	users, err := d.client.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: listing users for source %q: %w", src.Name, err)
	}

	d.logger.Info("discovering personal drives",
		slog.String("source", src.Name),
		slog.Int("candidate_users", len(users)),
	)

	var targets []DriveTarget

	for _, u := range users {
		if !src.usersAll() && !matchesAllowList(src.Users, u.Email, "") {
			continue
		}

		drive, err := d.client.UserDrive(ctx, u.ID)
		if err != nil {
			d.logger.Debug("user has no accessible personal drive",
				slog.String("user_id", u.ID),
				slog.String("email", u.Email),
			)

			continue
		}

		prefix := u.Email
		if at := strings.IndexByte(prefix, '@'); at >= 0 {
			prefix = prefix[:at]
		}

		targets = append(targets, DriveTarget{
			ID:          drive.ID,
			DisplayName: u.DisplayName,
			Kind:        KindPersonal,
			PathPrefix:  prefix,
		})
	}

	d.logger.Info("discovered personal drives",
		slog.String("source", src.Name),
		slog.Int("count", len(targets)),
	)

	return targets, nil
}

// teamTargets lists shared drives visible to the authenticated account,
// filtered by the source's allow-list on drive name.
func (d *Discovery) teamTargets(ctx context.Context, src SourceConfig) ([]DriveTarget, error) {
	drives, err := d.client.Drives(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: listing team drives for source %q: %w", src.Name, err)
	}

	var targets []DriveTarget

	for _, drv := range drives {
		if !src.usersAll() && !matchesAllowList(src.Users, "", drv.Name) {
			continue
		}

		targets = append(targets, DriveTarget{
			ID:          drv.ID,
			DisplayName: drv.Name,
			Kind:        KindTeam,
			PathPrefix:  sanitizePrefix(drv.Name),
		})
	}

	d.logger.Info("discovered team drives",
		slog.String("source", src.Name),
		slog.Int("count", len(targets)),
	)

	return targets, nil
}

// sharePointTargets resolves src.SiteURL to a site, lists its document
// libraries, and optionally filters by configured library names.
func (d *Discovery) sharePointTargets(ctx context.Context, src SourceConfig) ([]DriveTarget, error) {
	if src.SiteURL == "" {
		return nil, fmt.Errorf("discovery: sharepoint source %q has no site_url", src.Name)
	}

	site, err := d.client.ResolveSite(ctx, src.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolving site for source %q: %w", src.Name, err)
	}

	libraries, err := d.client.SiteDrives(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("discovery: listing libraries for source %q: %w", src.Name, err)
	}

	var targets []DriveTarget

	for _, lib := range libraries {
		if len(src.Libraries) > 0 && !matchesAllowList(src.Libraries, "", lib.Name) {
			continue
		}

		targets = append(targets, DriveTarget{
			ID:          lib.ID,
			DisplayName: lib.Name,
			Kind:        KindTeam,
			PathPrefix:  sanitizePrefix(site.Name) + "/" + sanitizePrefix(lib.Name),
		})
	}

	d.logger.Info("discovered SharePoint libraries",
		slog.String("source", src.Name),
		slog.String("site", site.DisplayName),
		slog.Int("count", len(targets)),
	)

	return targets, nil
}

// matchesAllowList reports whether email or name case-insensitively
// matches any entry in allowList.
func matchesAllowList(allowList []string, email, name string) bool {
	for _, entry := range allowList {
		if email != "" && strings.EqualFold(entry, email) {
			return true
		}

		if name != "" && strings.EqualFold(entry, name) {
			return true
		}
	}

	return false
}

// sanitizePrefix makes name safe for use as an object-key path segment:
// lowercased, with whitespace collapsed to hyphens.
func sanitizePrefix(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}
