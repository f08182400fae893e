package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/qadhya/drivesync/internal/errors"
	"github.com/qadhya/drivesync/internal/models"
)

// GetStorageConfig returns the tenant's configuration for provider.
func (s *Store) GetStorageConfig(ctx context.Context, tenantID, provider string) (*models.StorageConfig, error) {
	row := s.queryRow(ctx, `
		SELECT tenant_id, provider, root_folder_id, enabled, last_sync_at
		FROM storage_configs WHERE tenant_id = ? AND provider = ?`, tenantID, provider)

	cfg, err := scanStorageConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s provider %s: %w", tenantID, provider, apperrors.ErrStorageConfigNotFound)
	}
	return cfg, err
}

// ListEnabledStorageConfigs returns every enabled configuration for
// provider, ordered by tenant.
func (s *Store) ListEnabledStorageConfigs(ctx context.Context, provider string) ([]models.StorageConfig, error) {
	rows, err := s.query(ctx, `
		SELECT tenant_id, provider, root_folder_id, enabled, last_sync_at
		FROM storage_configs WHERE provider = ? AND enabled = ? ORDER BY tenant_id`, provider, true)
	if err != nil {
		return nil, fmt.Errorf("query storage configs: %w", err)
	}
	defer rows.Close()

	var out []models.StorageConfig
	for rows.Next() {
		cfg, err := scanStorageConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

// UpsertStorageConfig creates or replaces a configuration. last_sync_at
// is preserved.
func (s *Store) UpsertStorageConfig(ctx context.Context, cfg models.StorageConfig) error {
	_, err := s.exec(ctx, `
		INSERT INTO storage_configs (tenant_id, provider, root_folder_id, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			root_folder_id = excluded.root_folder_id,
			enabled = excluded.enabled`,
		cfg.TenantID, cfg.Provider, cfg.RootFolderID, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("upsert storage config %s/%s: %w", cfg.TenantID, cfg.Provider, err)
	}
	return nil
}

// TouchLastSync stamps the time of the last non-failed run.
func (s *Store) TouchLastSync(ctx context.Context, tenantID, provider string, at time.Time) error {
	res, err := s.exec(ctx, `
		UPDATE storage_configs SET last_sync_at = ? WHERE tenant_id = ? AND provider = ?`,
		at.UTC(), tenantID, provider)
	if err != nil {
		return fmt.Errorf("touch last sync %s/%s: %w", tenantID, provider, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch last sync %s/%s: %w", tenantID, provider, err)
	}
	if n == 0 {
		return fmt.Errorf("touch last sync %s/%s: %w", tenantID, provider, apperrors.ErrStorageConfigNotFound)
	}
	return nil
}

func scanStorageConfig(sc scanner) (*models.StorageConfig, error) {
	var (
		cfg      models.StorageConfig
		lastSync sql.NullTime
	)
	if err := sc.Scan(&cfg.TenantID, &cfg.Provider, &cfg.RootFolderID, &cfg.Enabled, &lastSync); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan storage config: %w", err)
	}
	if lastSync.Valid {
		t := lastSync.Time.UTC()
		cfg.LastSyncAt = &t
	}
	return &cfg, nil
}
