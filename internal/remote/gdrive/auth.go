package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	apperrors "github.com/qadhya/drivesync/internal/errors"
)

// Credential file kinds as found in Google Cloud console downloads.
const (
	CredentialServiceAccount = "service_account"
	CredentialOAuthClient    = "oauth_client"
)

// TokenStore persists per-tenant OAuth tokens.
type TokenStore interface {
	TenantToken(tenantID string) (*oauth2.Token, error)
	SetTenantToken(tenantID string, tok *oauth2.Token) error
}

// CredentialKind reports whether raw is a service-account key or an
// OAuth client secret. It returns an error for anything else.
func CredentialKind(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("credentials file is not valid JSON")
	}
	if gjson.GetBytes(raw, "type").String() == CredentialServiceAccount {
		return CredentialServiceAccount, nil
	}
	if gjson.GetBytes(raw, "installed.client_id").Exists() || gjson.GetBytes(raw, "web.client_id").Exists() {
		return CredentialOAuthClient, nil
	}
	return "", fmt.Errorf("unrecognised credentials file: expected a service account key or an OAuth client secret")
}

// TokenSource builds a read-only Drive token source for tenantID.
//
// A service-account key is used as is and ignores the tenant. An OAuth
// client secret is combined with the tenant's stored token; a missing
// token yields ErrCredentialMissing, and refreshed tokens are written
// back to the store.
func TokenSource(ctx context.Context, raw []byte, tenantID string, store TokenStore, logger *slog.Logger) (oauth2.TokenSource, error) {
	kind, err := CredentialKind(raw)
	if err != nil {
		return nil, err
	}

	if kind == CredentialServiceAccount {
		creds, err := google.CredentialsFromJSON(ctx, raw, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parsing service account key: %w", err)
		}
		return creds.TokenSource, nil
	}

	cfg, err := google.ConfigFromJSON(raw, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing oauth client secret: %w", err)
	}

	tok, err := store.TenantToken(tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading token for tenant %s: %w", tenantID, err)
	}
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, fmt.Errorf("%w: no oauth token stored for tenant %s", apperrors.ErrCredentialMissing, tenantID)
	}

	return &persistingSource{
		base:     cfg.TokenSource(ctx, tok),
		tenantID: tenantID,
		store:    store,
		last:     tok.AccessToken,
		logger:   logger,
	}, nil
}

// StoredTokenSource uses the tenant's stored token without any client
// secret, so it cannot be refreshed once it expires.
func StoredTokenSource(tenantID string, store TokenStore) (oauth2.TokenSource, error) {
	tok, err := store.TenantToken(tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading token for tenant %s: %w", tenantID, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token stored for tenant %s", apperrors.ErrCredentialMissing, tenantID)
	}
	return oauth2.StaticTokenSource(tok), nil
}

// persistingSource saves a token whenever the underlying source
// refreshes it.
type persistingSource struct {
	base     oauth2.TokenSource
	tenantID string
	store    TokenStore
	logger   *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.SetTenantToken(s.tenantID, tok); err != nil {
			s.logger.Warn("persisting refreshed token failed",
				slog.String("tenant_id", s.tenantID),
				slog.String("error", err.Error()),
			)
		}
	}

	return tok, nil
}
