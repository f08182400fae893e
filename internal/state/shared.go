package state

import (
	"time"

	"golang.org/x/oauth2"
)

// Shared opens the state file for each operation and closes it again,
// so several drivesync processes can use one file. bbolt locks the file
// for as long as a handle is open.
type Shared struct {
	path string
}

// OpenShared checks that the state file at path can be opened and
// initialised, then returns a handle that reopens it per operation.
func OpenShared(path string) (*Shared, error) {
	s, err := LoadAt(path)
	if err != nil {
		return nil, err
	}
	if err := s.Close(); err != nil {
		return nil, err
	}
	return &Shared{path: path}, nil
}

func (s *Shared) with(fn func(*State) error) error {
	st, err := LoadAt(s.path)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		st.Close()
		return err
	}
	return st.Close()
}

// Close is a no-op; the file is closed after every operation.
func (s *Shared) Close() error {
	return nil
}

// TenantToken returns the stored OAuth token for a tenant, or nil.
func (s *Shared) TenantToken(tenantID string) (*oauth2.Token, error) {
	var tok *oauth2.Token
	err := s.with(func(st *State) error {
		var err error
		tok, err = st.TenantToken(tenantID)
		return err
	})
	return tok, err
}

// SetTenantToken stores a tenant's OAuth token.
func (s *Shared) SetTenantToken(tenantID string, tok *oauth2.Token) error {
	return s.with(func(st *State) error {
		return st.SetTenantToken(tenantID, tok)
	})
}

// AcquireLease claims tenantID for holder; see State.AcquireLease.
func (s *Shared) AcquireLease(tenantID, holder string, ttl time.Duration, now time.Time) error {
	return s.with(func(st *State) error {
		return st.AcquireLease(tenantID, holder, ttl, now)
	})
}

// ReleaseLease drops the lease if holder still owns it.
func (s *Shared) ReleaseLease(tenantID, holder string) error {
	return s.with(func(st *State) error {
		return st.ReleaseLease(tenantID, holder)
	})
}

// GetLease returns the current lease for a tenant, or nil.
func (s *Shared) GetLease(tenantID string) (*Lease, error) {
	var l *Lease
	err := s.with(func(st *State) error {
		var err error
		l, err = st.GetLease(tenantID)
		return err
	})
	return l, err
}
