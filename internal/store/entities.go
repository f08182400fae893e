package store

import (
	"context"
	"fmt"

	"github.com/qadhya/drivesync/internal/models"
)

// ListClients returns the tenant's clients ordered by id.
func (s *Store) ListClients(ctx context.Context, tenantID string) ([]models.Client, error) {
	rows, err := s.query(ctx, `
		SELECT id, tenant_id, display_name, identity_number, remote_folder_id
		FROM clients WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var out []models.Client
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DisplayName, &c.IdentityNumber, &c.RemoteFolderID); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCases returns the tenant's cases ordered by id.
func (s *Store) ListCases(ctx context.Context, tenantID string) ([]models.Case, error) {
	rows, err := s.query(ctx, `
		SELECT id, tenant_id, client_id, case_number, remote_folder_id
		FROM cases WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var out []models.Case
	for rows.Next() {
		var c models.Case
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ClientID, &c.CaseNumber, &c.RemoteFolderID); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertClient inserts or replaces a client. Used by seeding tools; the
// sync engine only reads clients.
func (s *Store) UpsertClient(ctx context.Context, c models.Client) error {
	_, err := s.exec(ctx, `
		INSERT INTO clients (id, tenant_id, display_name, identity_number, remote_folder_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			display_name = excluded.display_name,
			identity_number = excluded.identity_number,
			remote_folder_id = excluded.remote_folder_id`,
		c.ID, c.TenantID, c.DisplayName, c.IdentityNumber, c.RemoteFolderID)
	if err != nil {
		return fmt.Errorf("upsert client %s: %w", c.ID, err)
	}
	return nil
}

// UpsertCase inserts or replaces a case.
func (s *Store) UpsertCase(ctx context.Context, c models.Case) error {
	_, err := s.exec(ctx, `
		INSERT INTO cases (id, tenant_id, client_id, case_number, remote_folder_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			client_id = excluded.client_id,
			case_number = excluded.case_number,
			remote_folder_id = excluded.remote_folder_id`,
		c.ID, c.TenantID, c.ClientID, c.CaseNumber, c.RemoteFolderID)
	if err != nil {
		return fmt.Errorf("upsert case %s: %w", c.ID, err)
	}
	return nil
}
