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

const documentColumns = `id, tenant_id, case_id, client_id, remote_file_id, name, mime_type, size_bytes,
	remote_modified_at, sharing_link, remote_path, source_kind, needs_classification,
	classified_at, created_at, updated_at`

// ExistingDocuments returns every document of the tenant keyed by remote
// file id.
func (s *Store) ExistingDocuments(ctx context.Context, tenantID string) (map[string]models.DocumentRef, error) {
	rows, err := s.query(ctx, `
		SELECT id, remote_file_id, name, remote_modified_at
		FROM documents WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.DocumentRef)
	for rows.Next() {
		var ref models.DocumentRef
		if err := rows.Scan(&ref.ID, &ref.RemoteFileID, &ref.Name, &ref.RemoteModifiedAt); err != nil {
			return nil, fmt.Errorf("scan document ref: %w", err)
		}
		ref.RemoteModifiedAt = ref.RemoteModifiedAt.UTC()
		out[ref.RemoteFileID] = ref
	}
	return out, rows.Err()
}

// InsertDocument stores a new document. A duplicate (tenant, remote file
// id) is rejected by the unique constraint.
func (s *Store) InsertDocument(ctx context.Context, d *models.Document) error {
	_, err := s.exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, nullString(d.CaseID), nullString(d.ClientID), d.RemoteFileID, d.Name,
		d.MimeType, d.SizeBytes, d.RemoteModifiedAt.UTC(), d.SharingLink, d.RemotePath,
		d.SourceKind, d.NeedsClassification, nullTime(d.ClassifiedAt), d.CreatedAt.UTC(), d.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert document %s: %w", d.RemoteFileID, err)
	}
	return nil
}

// UpdateDocumentMetadata refreshes the remote metadata of a document.
// Classification columns are never touched.
func (s *Store) UpdateDocumentMetadata(ctx context.Context, tenantID, documentID string, upd models.MetadataUpdate, now time.Time) error {
	res, err := s.exec(ctx, `
		UPDATE documents SET
			name = ?, size_bytes = ?, remote_modified_at = ?, sharing_link = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		upd.Name, upd.SizeBytes, upd.RemoteModifiedAt.UTC(), upd.SharingLink, now.UTC(), tenantID, documentID)
	if err != nil {
		return fmt.Errorf("update document %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s: %w", documentID, err)
	}
	if n == 0 {
		return fmt.Errorf("update document %s: %w", documentID, apperrors.ErrDocumentNotFound)
	}
	return nil
}

// GetDocumentByRemoteID looks a document up by its idempotency key.
func (s *Store) GetDocumentByRemoteID(ctx context.Context, tenantID, remoteFileID string) (*models.Document, error) {
	row := s.queryRow(ctx, `SELECT `+documentColumns+`
		FROM documents WHERE tenant_id = ? AND remote_file_id = ?`, tenantID, remoteFileID)

	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", remoteFileID, apperrors.ErrDocumentNotFound)
	}
	return d, err
}

// ListDocuments returns the tenant's documents ordered by remote path.
func (s *Store) ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	rows, err := s.query(ctx, `SELECT `+documentColumns+`
		FROM documents WHERE tenant_id = ? ORDER BY remote_path, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (*models.Document, error) {
	var (
		d                models.Document
		caseID, clientID sql.NullString
		classifiedAt     sql.NullTime
	)
	err := sc.Scan(&d.ID, &d.TenantID, &caseID, &clientID, &d.RemoteFileID, &d.Name, &d.MimeType,
		&d.SizeBytes, &d.RemoteModifiedAt, &d.SharingLink, &d.RemotePath, &d.SourceKind,
		&d.NeedsClassification, &classifiedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	d.CaseID = caseID.String
	d.ClientID = clientID.String
	d.RemoteModifiedAt = d.RemoteModifiedAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	if classifiedAt.Valid {
		t := classifiedAt.Time.UTC()
		d.ClassifiedAt = &t
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
