// Package reconcile mirrors a tenant's remote drive into document records.
package reconcile

import (
	"errors"
	"time"

	"github.com/qadhya/drivesync/internal/classify"
	"github.com/qadhya/drivesync/internal/models"
)

const (
	defaultLeaseTTL = time.Hour

	// finalizeTimeout bounds the writes made after the run context may
	// already be cancelled.
	finalizeTimeout = 10 * time.Second
)

// errLeaseLost ends a run whose lease was taken over by another holder.
var errLeaseLost = errors.New("lease lost")

// SyncConfig is everything a single run needs. It is built once by the
// caller; the engine never reads the environment.
type SyncConfig struct {
	TenantID string

	// Provider names the storage_configs row. Defaults to Google Drive.
	Provider string

	// RootFolderID overrides the tenant's configured root folder.
	RootFolderID string

	// Timeout bounds the whole run. Zero means no deadline beyond ctx.
	Timeout time.Duration

	// LeaseTTL is how long the per-tenant lease lives without renewal.
	// A running engine renews it every third of the TTL, so only a
	// crashed run's lease expires.
	LeaseTTL time.Duration

	// Rules are the folder naming conventions. Nil means the defaults.
	Rules *classify.Rules
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.Provider == "" {
		c.Provider = models.ProviderGoogleDrive
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.Rules == nil {
		c.Rules = classify.DefaultRules()
	}
	return c
}
