// Package models defines types shared across internal packages.
package models

import "time"

// Source kinds of a document record.
const (
	SourceManual     = "manual"
	SourceRemoteSync = "remote-sync"
)

// ProviderGoogleDrive is the only remote storage provider wired today.
const ProviderGoogleDrive = "google_drive"

// Client is a law-practice client. RemoteFolderID is empty when no
// folder was provisioned for the client.
type Client struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	DisplayName    string `json:"display_name"`
	IdentityNumber string `json:"identity_number,omitempty"`
	RemoteFolderID string `json:"remote_folder_id,omitempty"`
}

// Case is a legal matter owned by exactly one client.
type Case struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id"`
	CaseNumber     string `json:"case_number"`
	RemoteFolderID string `json:"remote_folder_id,omitempty"`
}

// Document is the internal mirror of a remote file. NeedsClassification
// is true exactly when CaseID is empty.
type Document struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	CaseID              string     `json:"case_id,omitempty"`
	ClientID            string     `json:"client_id,omitempty"`
	RemoteFileID        string     `json:"remote_file_id"`
	Name                string     `json:"name"`
	MimeType            string     `json:"mime_type"`
	SizeBytes           int64      `json:"size_bytes"`
	RemoteModifiedAt    time.Time  `json:"remote_modified_at"`
	SharingLink         string     `json:"sharing_link,omitempty"`
	RemotePath          string     `json:"remote_path,omitempty"`
	SourceKind          string     `json:"source_kind"`
	NeedsClassification bool       `json:"needs_classification"`
	ClassifiedAt        *time.Time `json:"classified_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DocumentRef is the slice of a Document the reconciler compares against.
type DocumentRef struct {
	ID               string
	RemoteFileID     string
	Name             string
	RemoteModifiedAt time.Time
}

// MetadataUpdate carries the fields a reconciliation run may change on
// an existing document. Classification is fixed at insert and has no fields here.
type MetadataUpdate struct {
	Name             string
	SizeBytes        int64
	RemoteModifiedAt time.Time
	SharingLink      string
}

// StorageConfig is a tenant's remote storage configuration.
type StorageConfig struct {
	TenantID     string     `json:"tenant_id"`
	Provider     string     `json:"provider"`
	RootFolderID string     `json:"root_folder_id"`
	Enabled      bool       `json:"enabled"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}
