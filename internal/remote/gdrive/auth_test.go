package gdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/qadhya/drivesync/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	saves  int
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: map[string]*oauth2.Token{}}
}

func (m *memTokenStore) TenantToken(tenantID string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[tenantID], nil
}

func (m *memTokenStore) SetTenantToken(tenantID string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tenantID] = tok
	m.saves++
	return nil
}

func oauthClientJSON(tokenURL string) []byte {
	return fmt.Appendf(nil, `{"installed":{"client_id":"cid","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":%q}}`, tokenURL)
}

func TestCredentialKind(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "service account", raw: `{"type":"service_account","client_email":"x@y"}`, want: CredentialServiceAccount},
		{name: "installed client", raw: `{"installed":{"client_id":"a"}}`, want: CredentialOAuthClient},
		{name: "web client", raw: `{"web":{"client_id":"a"}}`, want: CredentialOAuthClient},
		{name: "unknown", raw: `{"foo":1}`, wantErr: true},
		{name: "not json", raw: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CredentialKind([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenSource_MissingTenantToken(t *testing.T) {
	_, err := TokenSource(context.Background(), oauthClientJSON("http://127.0.0.1/token"), "t1", newMemTokenStore(), testLogger())
	assert.ErrorIs(t, err, apperrors.ErrCredentialMissing)
}

func TestTokenSource_PersistsRefreshedToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	store := newMemTokenStore()
	require.NoError(t, store.SetTenantToken("t1", &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))
	store.saves = 0

	ts, err := TokenSource(context.Background(), oauthClientJSON(tokenSrv.URL), "t1", store, testLogger())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, 1, store.saves)

	saved, _ := store.TenantToken("t1")
	assert.Equal(t, "fresh", saved.AccessToken)

	// A cached token is not written again.
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
}

func TestTokenSource_RejectsUnknownCredentials(t *testing.T) {
	_, err := TokenSource(context.Background(), []byte(`{}`), "t1", newMemTokenStore(), testLogger())
	assert.Error(t, err)
}

func TestStoredTokenSource(t *testing.T) {
	store := newMemTokenStore()

	_, err := StoredTokenSource("t1", store)
	require.ErrorIs(t, err, apperrors.ErrCredentialMissing)

	store.tokens["t1"] = &oauth2.Token{AccessToken: "static", Expiry: time.Now().Add(time.Hour)}
	ts, err := StoredTokenSource("t1", store)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "static", tok.AccessToken)
}
