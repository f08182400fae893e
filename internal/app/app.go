// Package app wires configuration into a ready reconcile engine. Both
// binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/qadhya/drivesync/internal/classify"
	"github.com/qadhya/drivesync/internal/config"
	"github.com/qadhya/drivesync/internal/reconcile"
	"github.com/qadhya/drivesync/internal/remote"
	"github.com/qadhya/drivesync/internal/remote/gdrive"
	"github.com/qadhya/drivesync/internal/state"
	"github.com/qadhya/drivesync/internal/store"
)

// App holds the long-lived resources of a drivesync process.
type App struct {
	Store    *store.Store
	State    *state.Shared
	Engine   *reconcile.Engine
	Defaults reconcile.SyncConfig
}

// Open opens the relational store and the state file and builds the
// engine. The state file is opened per operation, so `serve` and the
// MCP binary can share one STATE_PATH. Extra Drive client options (for
// example a test endpoint) are appended to every client.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, driveOpts ...option.ClientOption) (*App, error) {
	rules, err := classify.LoadRules(cfg.ClassifyRulesFile, cfg.UnclassifiedFolderName)
	if err != nil {
		return nil, fmt.Errorf("loading classification rules: %w", err)
	}

	var creds []byte
	if cfg.GoogleCredentialsFile != "" {
		creds, err = os.ReadFile(cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("reading google credentials: %w", err)
		}
		kind, err := gdrive.CredentialKind(creds)
		if err != nil {
			return nil, err
		}
		logger.Info("google credentials loaded", slog.String("kind", kind))
	}

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	st, err := state.OpenShared(cfg.StatePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading state: %w", err)
	}

	providers := ProviderFactory(creds, cfg.PageSize, st, logger, driveOpts...)

	return &App{
		Store:  db,
		State:  st,
		Engine: reconcile.NewEngine(db, st, providers, logger),
		Defaults: reconcile.SyncConfig{
			Timeout:  cfg.RunTimeout,
			LeaseTTL: cfg.LeaseTTL,
			Rules:    rules,
		},
	}, nil
}

// Close releases the store and the state file.
func (a *App) Close() error {
	stErr := a.State.Close()
	if err := a.Store.Close(); err != nil {
		return err
	}
	return stErr
}

// ProviderFactory builds Drive providers per tenant. With credentials
// (an OAuth client secret or a service account key) tokens refresh;
// without, the tenant's stored access token is used until it expires.
func ProviderFactory(creds []byte, pageSize int64, tokens gdrive.TokenStore, logger *slog.Logger, driveOpts ...option.ClientOption) reconcile.ProviderFactory {
	return func(ctx context.Context, tenantID string) (remote.Provider, error) {
		var (
			ts  oauth2.TokenSource
			err error
		)
		if creds != nil {
			ts, err = gdrive.TokenSource(ctx, creds, tenantID, tokens, logger)
		} else {
			ts, err = gdrive.StoredTokenSource(tenantID, tokens)
		}
		if err != nil {
			return nil, err
		}

		opts := append([]option.ClientOption{option.WithTokenSource(ts)}, driveOpts...)
		return gdrive.New(ctx, pageSize, opts...)
	}
}
