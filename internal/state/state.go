package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/oauth2"

	apperrors "github.com/qadhya/drivesync/internal/errors"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	// The file holds refresh tokens.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	tenantTokensBucket = []byte("tenant_tokens")
	leasesBucket       = []byte("leases")
)

// Lease is an advisory, time-bounded claim on a tenant's sync.
type Lease struct {
	TenantID   string    `json:"tenant_id"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease no longer holds at now.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// State wraps a bbolt database holding tenant credentials and run leases.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(tenantTokensBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(leasesBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// TenantToken returns the stored OAuth token for a tenant, or nil.
func (s *State) TenantToken(tenantID string) (*oauth2.Token, error) {
	var tok *oauth2.Token

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(tenantTokensBucket).Get([]byte(tenantID))
		if v == nil {
			return nil
		}

		tok = &oauth2.Token{}

		return json.Unmarshal(v, tok)
	})

	return tok, err
}

// SetTenantToken persists the OAuth token for a tenant.
func (s *State) SetTenantToken(tenantID string, tok *oauth2.Token) error {
	if tenantID == "" {
		return apperrors.ErrTenantMissing
	}
	if tok == nil {
		return fmt.Errorf("token is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(tok)
		if err != nil {
			return err
		}

		return tx.Bucket(tenantTokensBucket).Put([]byte(tenantID), data)
	})
}

// DeleteTenantToken removes a tenant's token.
func (s *State) DeleteTenantToken(tenantID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tenantTokensBucket).Delete([]byte(tenantID))
	})
}

// TenantsWithTokens lists tenants that have a stored token, sorted.
func (s *State) TenantsWithTokens() ([]string, error) {
	var tenants []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tenantTokensBucket).ForEach(func(k, _ []byte) error {
			tenants = append(tenants, string(k))
			return nil
		})
	})
	sort.Strings(tenants)

	return tenants, err
}

// AcquireLease claims tenantID for holder until now+ttl. It fails with
// ErrRunInProgress while another holder's lease is live. An expired
// lease is taken over; the same holder may renew.
func (s *State) AcquireLease(tenantID, holder string, ttl time.Duration, now time.Time) error {
	if tenantID == "" {
		return apperrors.ErrTenantMissing
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(leasesBucket)

		if v := b.Get([]byte(tenantID)); v != nil {
			var cur Lease
			if err := json.Unmarshal(v, &cur); err != nil {
				return fmt.Errorf("decoding lease for %s: %w", tenantID, err)
			}

			if cur.Holder != holder && !cur.Expired(now) {
				return fmt.Errorf("%w: held by %s until %s", apperrors.ErrRunInProgress,
					cur.Holder, cur.ExpiresAt.Format(time.RFC3339))
			}
		}

		data, err := json.Marshal(Lease{
			TenantID:   tenantID,
			Holder:     holder,
			AcquiredAt: now.UTC(),
			ExpiresAt:  now.Add(ttl).UTC(),
		})
		if err != nil {
			return err
		}

		return b.Put([]byte(tenantID), data)
	})
}

// ReleaseLease drops the lease if holder still owns it.
func (s *State) ReleaseLease(tenantID, holder string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(leasesBucket)

		v := b.Get([]byte(tenantID))
		if v == nil {
			return nil
		}

		var cur Lease
		if err := json.Unmarshal(v, &cur); err != nil {
			return fmt.Errorf("decoding lease for %s: %w", tenantID, err)
		}

		if cur.Holder != holder {
			return nil
		}

		return b.Delete([]byte(tenantID))
	})
}

// GetLease returns the current lease for a tenant, or nil.
func (s *State) GetLease(tenantID string) (*Lease, error) {
	var l *Lease

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(leasesBucket).Get([]byte(tenantID))
		if v == nil {
			return nil
		}

		l = &Lease{}

		return json.Unmarshal(v, l)
	})

	return l, err
}
