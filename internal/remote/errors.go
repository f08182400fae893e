package remote

import (
	"errors"
	"fmt"

	apperrors "github.com/qadhya/drivesync/internal/errors"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrorKind names the failure class of a remote listing.
type ErrorKind string

const (
	KindAuthExpired   ErrorKind = "auth-expired"
	KindQuotaExceeded ErrorKind = "quota-exceeded"
	KindNotFound      ErrorKind = "not-found"
	KindTransport     ErrorKind = "transport"
)

// KindOf classifies a provider error. Anything not recognised is a
// transport failure.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, apperrors.ErrAuthExpired):
		return KindAuthExpired
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, apperrors.ErrNotFound):
		return KindNotFound
	default:
		return KindTransport
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuthExpired:
		return apperrors.ErrAuthExpired
	case KindQuotaExceeded:
		return apperrors.ErrQuotaExceeded
	case KindNotFound:
		return apperrors.ErrNotFound
	default:
		return apperrors.ErrTransport
	}
}

// RemoteListError is yielded by the Walker when a folder listing fails
// for good. It matches both its kind sentinel and the underlying cause
// under errors.Is.
type RemoteListError struct {
	FolderID  string
	PageToken string
	Kind      ErrorKind
	Attempts  int
	Err       error
}

func (e *RemoteListError) Error() string {
	return fmt.Sprintf("listing remote folder %s (%s after %d attempt(s)): %v", e.FolderID, e.Kind, e.Attempts, e.Err)
}

func (e *RemoteListError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}
