// Package gdrive adapts the Google Drive v3 API to remote.Provider.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	apperrors "github.com/qadhya/drivesync/internal/errors"
	"github.com/qadhya/drivesync/internal/remote"
)

const (
	// DefaultPageSize is used when the caller passes a non-positive size.
	DefaultPageSize int64 = 100

	// maxPageSize is the largest page the Drive API accepts.
	maxPageSize int64 = 1000

	listFields = "nextPageToken, files(id, name, mimeType, size, webViewLink, createdTime, modifiedTime, parents)"
)

// Client lists Drive folders. It satisfies remote.Provider and
// remote.CredentialChecker.
type Client struct {
	srv      *drive.Service
	pageSize int64
}

// New creates a Drive client. Callers normally pass
// option.WithTokenSource; tests pass option.WithEndpoint and
// option.WithHTTPClient.
func New(ctx context.Context, pageSize int64, opts ...option.ClientOption) (*Client, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	return &Client{srv: srv, pageSize: pageSize}, nil
}

// ListFiles returns one page of the non-trashed children of folderID.
func (c *Client) ListFiles(ctx context.Context, folderID, pageToken string) (*remote.Page, error) {
	req := c.srv.Files.List().
		Q(childrenQuery(folderID)).
		PageSize(c.pageSize).
		Fields(listFields).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)

	if pageToken != "" {
		req = req.PageToken(pageToken)
	}

	resp, err := req.Do()
	if err != nil {
		return nil, mapError(err)
	}

	page := &remote.Page{
		Entries:       make([]remote.Entry, 0, len(resp.Files)),
		NextPageToken: resp.NextPageToken,
	}
	for _, f := range resp.Files {
		page.Entries = append(page.Entries, toEntry(f))
	}

	return page, nil
}

// CheckCredential performs the cheapest authenticated call available so
// an expired credential fails the run before any listing.
func (c *Client) CheckCredential(ctx context.Context) error {
	if _, err := c.srv.About.Get().Fields("user(emailAddress)").Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

// childrenQuery builds the Drive search expression for the direct,
// non-trashed children of folderID.
func childrenQuery(folderID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(folderID)
	return fmt.Sprintf("'%s' in parents and trashed = false", escaped)
}

func toEntry(f *drive.File) remote.Entry {
	kind := remote.KindFile
	if f.MimeType == remote.FolderMimeType {
		kind = remote.KindFolder
	}

	return remote.Entry{
		ID:          f.Id,
		Name:        f.Name,
		Kind:        kind,
		MimeType:    f.MimeType,
		SizeBytes:   f.Size,
		CreatedAt:   parseTime(f.CreatedTime),
		ModifiedAt:  parseTime(f.ModifiedTime),
		ParentIDs:   f.Parents,
		WebViewLink: f.WebViewLink,
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// mapError translates Drive API failures into the shared error kinds.
// Quota and server errors are wrapped as transient so the walker
// retries them.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: refreshing token: %w", apperrors.ErrAuthExpired, err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &remote.TransientError{Err: fmt.Errorf("%w: %w", apperrors.ErrTransport, err)}
	}

	switch {
	case gerr.Code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", apperrors.ErrAuthExpired, gerr.Message)
	case gerr.Code == http.StatusTooManyRequests, gerr.Code == http.StatusForbidden:
		return &remote.TransientError{Err: fmt.Errorf("%w: %s", apperrors.ErrQuotaExceeded, gerr.Message)}
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, gerr.Message)
	case gerr.Code >= http.StatusInternalServerError:
		return &remote.TransientError{Err: fmt.Errorf("%w: HTTP %d: %s", apperrors.ErrTransport, gerr.Code, gerr.Message)}
	default:
		return fmt.Errorf("%w: HTTP %d: %s", apperrors.ErrTransport, gerr.Code, gerr.Message)
	}
}
