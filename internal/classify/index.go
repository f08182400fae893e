// Package classify maps remote files onto clients and cases.
package classify

import (
	"context"
	"fmt"

	"github.com/qadhya/drivesync/internal/models"
)

// Loader reads the entities that own remote folders.
type Loader interface {
	ListClients(ctx context.Context, tenantID string) ([]models.Client, error)
	ListCases(ctx context.Context, tenantID string) ([]models.Case, error)
}

// Index is the per-run lookup structure for classification. Clients and
// cases without a linked folder appear only in the ID/number maps.
type Index struct {
	ClientsByFolder   map[string]models.Client
	CasesByFolder     map[string]models.Case
	ClientsByID       map[string]models.Client
	CasesByNumber     map[string]models.Case
	ClientsByIdentity map[string]models.Client
}

// NewIndex builds an Index from already loaded entities. When two
// entities claim the same folder or key, the first one wins.
func NewIndex(clients []models.Client, cases []models.Case) *Index {
	idx := &Index{
		ClientsByFolder:   make(map[string]models.Client),
		CasesByFolder:     make(map[string]models.Case),
		ClientsByID:       make(map[string]models.Client, len(clients)),
		CasesByNumber:     make(map[string]models.Case, len(cases)),
		ClientsByIdentity: make(map[string]models.Client),
	}

	for _, c := range clients {
		putFirst(idx.ClientsByID, c.ID, c)
		if c.RemoteFolderID != "" {
			putFirst(idx.ClientsByFolder, c.RemoteFolderID, c)
		}
		if c.IdentityNumber != "" {
			putFirst(idx.ClientsByIdentity, normalize(c.IdentityNumber), c)
		}
	}

	for _, c := range cases {
		if c.RemoteFolderID != "" {
			putFirst(idx.CasesByFolder, c.RemoteFolderID, c)
		}
		if c.CaseNumber != "" {
			putFirst(idx.CasesByNumber, normalize(c.CaseNumber), c)
		}
	}

	return idx
}

// BuildIndex loads the tenant's clients and cases and indexes them.
func BuildIndex(ctx context.Context, loader Loader, tenantID string) (*Index, error) {
	clients, err := loader.ListClients(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading clients: %w", err)
	}
	cases, err := loader.ListCases(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading cases: %w", err)
	}
	return NewIndex(clients, cases), nil
}

func putFirst[V any](m map[string]V, key string, v V) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}
