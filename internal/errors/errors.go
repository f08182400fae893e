package errors

import "errors"

// Prerequisite errors. A run that hits one of these is failed before any
// remote call is made.
var (
	ErrTenantMissing     = errors.New("tenant id is required")
	ErrRootFolderMissing = errors.New("remote root folder is not configured")
	ErrCredentialMissing = errors.New("remote storage credential is missing")
)

// Remote listing errors. RemoteListError unwraps to one of these.
var (
	ErrAuthExpired   = errors.New("remote credential rejected or expired")
	ErrQuotaExceeded = errors.New("remote quota or rate limit exceeded")
	ErrNotFound      = errors.New("remote folder not found")
	ErrTransport     = errors.New("remote transport failure")
)

// Run lifecycle errors.
var (
	ErrRunInProgress     = errors.New("a sync run is already in progress for this tenant")
	ErrInvalidTransition = errors.New("invalid sync run state transition")
	ErrRunNotFound       = errors.New("sync run not found")
)

// Store lookups.
var (
	ErrStorageConfigNotFound = errors.New("storage configuration not found")
	ErrDocumentNotFound      = errors.New("document not found")
)
