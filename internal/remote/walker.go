package remote

import (
	"context"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	// defaultMaxAttempts is how many times a single page request is tried
	// before the failure is surfaced.
	defaultMaxAttempts = 5

	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 30 * time.Second

	// jitterDivisor: jitter is uniform in [0, backoff/jitterDivisor).
	jitterDivisor = 2

	retryBackoffMultiplier = 2
)

// RetryPolicy bounds how the Walker retries transient listing failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
	}
}

// Walker enumerates every descendant of a remote folder.
type Walker struct {
	provider Provider
	retry    RetryPolicy
	logger   *slog.Logger
}

// NewWalker creates a Walker over provider. A zero RetryPolicy falls back
// to DefaultRetryPolicy.
func NewWalker(provider Provider, retry RetryPolicy, logger *slog.Logger) *Walker {
	def := DefaultRetryPolicy()
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = def.MaxAttempts
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = def.BaseDelay
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = def.MaxDelay
	}
	return &Walker{provider: provider, retry: retry, logger: logger}
}

// frame is one folder on the work stack: its identity, its path
// relative to the root, and the part of the current page not yet yielded.
type frame struct {
	folderID  string
	path      string
	pending   []Entry
	pageToken string
	listed    bool
}

func (f *frame) exhausted() bool {
	return f.listed && len(f.pending) == 0 && f.pageToken == ""
}

// Walk yields every file and folder beneath rootFolderID in pre-order: a
// folder is yielded before any of its descendants, and a folder's
// subtree is finished before its next sibling. The sequence is lazy;
// pages are fetched only as the consumer advances, and breaking out of
// the loop stops all further listing.
//
// A listing failure that survives retries is yielded once as a
// *RemoteListError and ends the sequence. Context cancellation is
// yielded as ctx.Err().
//
// Folders reachable through more than one parent are expanded once.
func (w *Walker) Walk(ctx context.Context, rootFolderID string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		stack := []*frame{{folderID: rootFolderID}}
		expanded := map[string]bool{rootFolderID: true}

		for len(stack) > 0 {
			top := stack[len(stack)-1]

			if top.exhausted() {
				stack = stack[:len(stack)-1]
				continue
			}

			if len(top.pending) == 0 {
				if err := ctx.Err(); err != nil {
					yield(Entry{}, err)
					return
				}

				page, err := w.listPage(ctx, top.folderID, top.pageToken)
				if err != nil {
					yield(Entry{}, err)
					return
				}
				top.listed = true
				top.pending = page.Entries
				top.pageToken = page.NextPageToken
				continue
			}

			entry := top.pending[0]
			top.pending = top.pending[1:]

			entry.Path = joinPath(top.path, entry.Name)
			entry.ListedIn = top.folderID
			if len(entry.ParentIDs) == 0 {
				entry.ParentIDs = []string{top.folderID}
			}

			if !yield(entry, nil) {
				return
			}

			if entry.IsFolder() && !expanded[entry.ID] {
				expanded[entry.ID] = true
				stack = append(stack, &frame{folderID: entry.ID, path: entry.Path})
			}
		}
	}
}

// listPage fetches one page, retrying transient failures with
// exponential backoff and jitter.
func (w *Walker) listPage(ctx context.Context, folderID, pageToken string) (*Page, error) {
	backoff := w.retry.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		page, err := w.provider.ListFiles(ctx, folderID, pageToken)
		if err == nil {
			if page == nil {
				page = &Page{}
			}
			return page, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsTransient(err) || attempt == w.retry.MaxAttempts {
			return nil, &RemoteListError{
				FolderID:  folderID,
				PageToken: pageToken,
				Kind:      KindOf(err),
				Attempts:  attempt,
				Err:       err,
			}
		}

		w.logger.Warn("listing failed, retrying",
			slog.String("folder_id", folderID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		var jitter time.Duration
		if half := int64(backoff) / jitterDivisor; half > 0 {
			jitter = time.Duration(rand.Int64N(half)) //nolint:gosec // G404: jitter only
		}

		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*retryBackoffMultiplier, w.retry.MaxDelay)
	}

	// Unreachable with MaxAttempts >= 1.
	return nil, &RemoteListError{FolderID: folderID, PageToken: pageToken, Kind: KindOf(lastErr), Err: lastErr}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
