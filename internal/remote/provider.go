// Package remote models the external storage tree and walks it.
package remote

import (
	"context"
	"time"
)

//go:generate mockgen -source=provider.go -destination=mock_provider.go -package=remote

// FolderMimeType is the MIME type Google Drive reports for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// Kind distinguishes files from folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Entry is one file or folder as listed by the provider. Path and
// ListedIn are filled in by the Walker: Path is relative to the walk
// root and is a diagnostic string, not an identifier; ListedIn is the
// folder whose listing produced the entry, so the last directory of
// Path names it.
type Entry struct {
	ID          string
	Name        string
	Kind        Kind
	MimeType    string
	SizeBytes   int64
	CreatedAt   time.Time
	ModifiedAt  time.Time
	ParentIDs   []string
	Path        string
	ListedIn    string
	WebViewLink string
}

// IsFolder reports whether the entry is a folder.
func (e Entry) IsFolder() bool {
	return e.Kind == KindFolder
}

// Page is one page of a folder listing.
type Page struct {
	Entries       []Entry
	NextPageToken string
}

// Provider lists the direct children of a remote folder, one page at a
// time. An empty pageToken requests the first page; an empty
// NextPageToken in the result means the listing is complete.
type Provider interface {
	ListFiles(ctx context.Context, folderID, pageToken string) (*Page, error)
}

// CredentialChecker is implemented by providers that can verify their
// credential with a cheap call before a walk starts.
type CredentialChecker interface {
	CheckCredential(ctx context.Context) error
}
