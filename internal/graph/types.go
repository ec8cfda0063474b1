package graph

import (
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/onedrive-backup/internal/driveid"
)

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// Item represents a OneDrive drive item (file, folder, or package).
// Fields are normalized from the Graph API response — callers never see raw API data.
type Item struct {
	ID            string
	Name          string
	DriveID       string // normalized: lowercase (Graph API casing is inconsistent)
	ParentID      string
	ParentDriveID string // drive containing parent (for cross-drive references)
	ParentPath    string // parentReference.path, with the "/drive/root:" prefix stripped
	Size          int64
	ETag          string
	CTag          string
	IsFolder      bool
	IsRoot        bool
	IsDeleted     bool
	IsPackage     bool // OneNote packages — sync should skip these
	MimeType      string
	QuickXorHash  string // base64-encoded
	SHA1Hash      string // hex (Personal accounts only)
	SHA256Hash    string // hex (Business accounts, sometimes)
	CreatedAt     time.Time
	ModifiedAt    time.Time
	ChildCount    int    // ChildCountUnknown if not present
	DownloadURL   string // pre-authenticated, ephemeral; NEVER log
}

// DownloadURL is a pre-authenticated download URL. It logs as "[REDACTED]"
// so the token embedded in the URL never reaches log output.
type DownloadURL string

// LogValue implements slog.LogValuer.
func (DownloadURL) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// User represents the authenticated account, normalized from /me.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Drive represents a OneDrive drive (personal drive or SharePoint document
// library), normalized from the Graph API drive resource.
type Drive struct {
	ID         driveid.ID
	Name       string
	DriveType  string // "personal", "business", or "documentLibrary"
	OwnerName  string
	OwnerEmail string
	QuotaUsed  int64
	QuotaTotal int64
}

// Site represents a SharePoint site, normalized from the Graph API site
// resource.
type Site struct {
	ID          string
	DisplayName string
	Name        string
	WebURL      string
}

// Organization represents the authenticated tenant's organization.
// Personal accounts have no organization — callers receive a zero-value
// Organization.
type Organization struct {
	DisplayName string
}

// DeltaPage is one page of a drive's delta feed: normalized items plus
// exactly one of NextLink (more pages follow) or DeltaLink (this was the
// final page; DeltaLink is the durable cursor for the next sync cycle).
type DeltaPage struct {
	Items     []Item
	NextLink  string
	DeltaLink string
}

// FullPath joins ParentPath and Name into the item's path relative to the
// drive root, e.g. "Documents/Reports/q3.xlsx". Name is normalized to NFC
// first: the source API is free to return either normalization form for
// the same Unicode filename, and an object key built from the "wrong" form
// would defeat skip-detection on a later run that happens to observe the
// other form for an otherwise-unchanged file.
func (i Item) FullPath() string {
	name := norm.NFC.String(i.Name)

	if i.ParentPath == "" {
		return name
	}

	return i.ParentPath + "/" + name
}
