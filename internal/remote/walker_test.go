package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	apperrors "github.com/qadhya/drivesync/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func folder(id, name string) Entry {
	return Entry{ID: id, Name: name, Kind: KindFolder, MimeType: FolderMimeType}
}

func file(id, name string) Entry {
	return Entry{ID: id, Name: name, Kind: KindFile, MimeType: "application/pdf"}
}

func collect(t *testing.T, seq func(func(Entry, error) bool)) ([]Entry, error) {
	t.Helper()
	var out []Entry
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestWalk_PreOrderAcrossPages(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	gomock.InOrder(
		p.EXPECT().ListFiles(gomock.Any(), "root", "").
			Return(&Page{Entries: []Entry{folder("a", "A")}, NextPageToken: "p2"}, nil),
		p.EXPECT().ListFiles(gomock.Any(), "a", "").
			Return(&Page{Entries: []Entry{file("a1", "one.pdf"), folder("ab", "B")}}, nil),
		p.EXPECT().ListFiles(gomock.Any(), "ab", "").
			Return(&Page{Entries: []Entry{file("ab1", "deep.pdf")}}, nil),
		p.EXPECT().ListFiles(gomock.Any(), "root", "p2").
			Return(&Page{Entries: []Entry{file("r1", "top.pdf")}}, nil),
	)

	w := NewWalker(p, fastRetry(), testLogger())
	got, err := collect(t, w.Walk(context.Background(), "root"))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "A/one.pdf", "A/B", "A/B/deep.pdf", "top.pdf"}, paths(got))
	assert.Equal(t, []string{"ab"}, got[3].ParentIDs)
	assert.Equal(t, []string{"root"}, got[4].ParentIDs)
	assert.Equal(t, "ab", got[3].ListedIn)
	assert.Equal(t, "root", got[4].ListedIn)
}

func TestWalk_KeepsProviderParents(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	e := file("f", "x.pdf")
	e.ParentIDs = []string{"root", "other"}
	p.EXPECT().ListFiles(gomock.Any(), "root", "").Return(&Page{Entries: []Entry{e}}, nil)

	w := NewWalker(p, fastRetry(), testLogger())
	got, err := collect(t, w.Walk(context.Background(), "root"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"root", "other"}, got[0].ParentIDs)
	assert.Equal(t, "root", got[0].ListedIn)
}

func TestWalk_EmptyRoot(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)
	p.EXPECT().ListFiles(gomock.Any(), "root", "").Return(&Page{}, nil)

	w := NewWalker(p, fastRetry(), testLogger())
	got, err := collect(t, w.Walk(context.Background(), "root"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWalk_NilPageTreatedAsEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)
	p.EXPECT().ListFiles(gomock.Any(), "root", "").Return(nil, nil)

	w := NewWalker(p, fastRetry(), testLogger())
	got, err := collect(t, w.Walk(context.Background(), "root"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWalk_RetriesTransient(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	transient := &TransientError{Err: errors.New("503")}
	gomock.InOrder(
		p.EXPECT().ListFiles(gomock.Any(), "root", "").Return(nil, transient),
		p.EXPECT().ListFiles(gomock.Any(), "root", "").Return(nil, transient),
		p.EXPECT().ListFiles(gomock.Any(), "root", "").
			Return(&Page{Entries: []Entry{file("f", "x.pdf")}}, nil),
	)

	w := NewWalker(p, fastRetry(), testLogger())
	got, err := collect(t, w.Walk(context.Background(), "root"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWalk_RetriesExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	cause := &TransientError{Err: apperrors.ErrQuotaExceeded}
	p.EXPECT().ListFiles(gomock.Any(), "root", "").Return(nil, cause).Times(3)

	w := NewWalker(p, fastRetry(), testLogger())
	_, err := collect(t, w.Walk(context.Background(), "root"))
	require.Error(t, err)

	var listErr *RemoteListError
	require.ErrorAs(t, err, &listErr)
	assert.Equal(t, "root", listErr.FolderID)
	assert.Equal(t, KindQuotaExceeded, listErr.Kind)
	assert.Equal(t, 3, listErr.Attempts)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
}

func TestWalk_PermanentErrorStopsWalk(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	gomock.InOrder(
		p.EXPECT().ListFiles(gomock.Any(), "root", "").
			Return(&Page{Entries: []Entry{file("f1", "first.pdf")}, NextPageToken: "next"}, nil),
		p.EXPECT().ListFiles(gomock.Any(), "root", "next").
			Return(nil, apperrors.ErrAuthExpired).Times(1),
	)

	w := NewWalker(p, fastRetry(), testLogger())
	got, err := collect(t, w.Walk(context.Background(), "root"))
	require.Error(t, err)
	assert.Len(t, got, 1)

	var listErr *RemoteListError
	require.ErrorAs(t, err, &listErr)
	assert.Equal(t, "next", listErr.PageToken)
	assert.Equal(t, KindAuthExpired, listErr.Kind)
	assert.Equal(t, 1, listErr.Attempts)
	assert.ErrorIs(t, err, apperrors.ErrAuthExpired)
}

func TestWalk_UnknownErrorIsTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	boom := errors.New("connection reset")
	p.EXPECT().ListFiles(gomock.Any(), "root", "").Return(nil, boom)

	w := NewWalker(p, fastRetry(), testLogger())
	_, err := collect(t, w.Walk(context.Background(), "root"))
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.ErrorIs(t, err, boom)
}

func TestWalk_EarlyBreakStopsListing(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	// Only the root page may be requested; folder "a" is never expanded.
	p.EXPECT().ListFiles(gomock.Any(), "root", "").
		Return(&Page{Entries: []Entry{folder("a", "A"), file("f", "x.pdf")}, NextPageToken: "p2"}, nil)

	w := NewWalker(p, fastRetry(), testLogger())
	var seen int
	for _, err := range w.Walk(context.Background(), "root") {
		require.NoError(t, err)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestWalk_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWalker(p, fastRetry(), testLogger())
	_, err := collect(t, w.Walk(ctx, "root"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalk_CancelDuringBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	p.EXPECT().ListFiles(gomock.Any(), "root", "").
		DoAndReturn(func(context.Context, string, string) (*Page, error) {
			cancel()
			return nil, &TransientError{Err: errors.New("503")}
		})

	w := NewWalker(p, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, testLogger())
	_, err := collect(t, w.Walk(ctx, "root"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalk_SharedFolderExpandedOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockProvider(ctrl)

	shared := folder("s", "Shared")
	gomock.InOrder(
		p.EXPECT().ListFiles(gomock.Any(), "root", "").
			Return(&Page{Entries: []Entry{folder("a", "A"), shared}}, nil),
		p.EXPECT().ListFiles(gomock.Any(), "a", "").
			Return(&Page{Entries: []Entry{shared}}, nil),
		p.EXPECT().ListFiles(gomock.Any(), "s", "").
			Return(&Page{Entries: []Entry{file("f", "x.pdf")}}, nil).Times(1),
	)

	w := NewWalker(p, fastRetry(), testLogger())
	got, err := collect(t, w.Walk(context.Background(), "root"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A/Shared", "A/Shared/x.pdf", "Shared"}, paths(got))
}

func TestNewWalker_Defaults(t *testing.T) {
	w := NewWalker(nil, RetryPolicy{}, testLogger())
	assert.Equal(t, DefaultRetryPolicy(), w.retry)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAuthExpired, KindOf(apperrors.ErrAuthExpired))
	assert.Equal(t, KindQuotaExceeded, KindOf(&TransientError{Err: apperrors.ErrQuotaExceeded}))
	assert.Equal(t, KindNotFound, KindOf(apperrors.ErrNotFound))
	assert.Equal(t, KindTransport, KindOf(errors.New("eof")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&TransientError{Err: errors.New("x")}))
	assert.False(t, IsTransient(errors.New("x")))
}
