// Package token manages per-facility gateway credentials: caching,
// expiry checks and the single refresh retry the payment flows are
// allowed.  "Not connected" is a terminal, operator-actionable
// condition, never silently retried.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/repository"
)

// ErrNotConnected means the facility has no usable gateway credential
// and must (re)complete the authorization flow.
var ErrNotConnected = errors.New("token: facility not connected to payment gateway")

// Refresher is the slice of the gateway needed to rotate a credential.
type Refresher interface {
	RefreshGrant(ctx context.Context, refreshToken string) (*model.TokenGrant, error)
}

// CredentialStore is the persistence contract for credentials;
// repository.CredentialRepo is the production implementation.
type CredentialStore interface {
	GetByFacility(ctx context.Context, facilityID string) (*model.OperatorCredential, error)
	Upsert(ctx context.Context, cred *model.OperatorCredential) error
	ListAll(ctx context.Context) ([]*model.OperatorCredential, error)
}

// Manager caches credentials in memory in front of the credential
// store.  All mutations to OperatorCredential records go through this
// type.
type Manager struct {
	creds   CredentialStore
	gateway Refresher
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]*model.OperatorCredential
}

// NewManager returns a Manager backed by the given store and gateway.
func NewManager(creds CredentialStore, gateway Refresher) *Manager {
	return &Manager{
		creds:   creds,
		gateway: gateway,
		now:     time.Now,
		cache:   make(map[string]*model.OperatorCredential),
	}
}

// AccessToken returns a usable bearer token for the facility.  A
// cached, non-expired token is returned as is; a token past its expiry
// hint is refreshed first.  ErrNotConnected is returned when no
// credential exists or the refresh path cannot produce one.
func (m *Manager) AccessToken(ctx context.Context, facilityID string) (string, error) {
	cred, err := m.load(ctx, facilityID)
	if err != nil {
		return "", err
	}
	if cred.AccessToken == "" {
		return "", ErrNotConnected
	}
	if cred.Expired(m.now()) {
		refreshed, err := m.Refresh(ctx, facilityID)
		if err != nil {
			return "", fmt.Errorf("%w: expired token and refresh failed: %v", ErrNotConnected, err)
		}
		return refreshed, nil
	}
	return cred.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new pair, persists
// it and returns the new access token.  Failure propagates without
// further retry; callers fall back to ErrNotConnected handling.
func (m *Manager) Refresh(ctx context.Context, facilityID string) (string, error) {
	cred, err := m.load(ctx, facilityID)
	if err != nil {
		return "", err
	}
	if cred.RefreshToken == "" {
		return "", fmt.Errorf("token: facility %q has no refresh token", facilityID)
	}
	grant, err := m.gateway.RefreshGrant(ctx, cred.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh grant: %w", err)
	}
	if err := m.StoreGrant(ctx, facilityID, grant); err != nil {
		return "", err
	}
	return grant.AccessToken, nil
}

// StoreGrant persists a token pair obtained from the OAuth flow or a
// refresh, and updates the in-memory cache.
func (m *Manager) StoreGrant(ctx context.Context, facilityID string, grant *model.TokenGrant) error {
	now := m.now()
	cred := &model.OperatorCredential{
		FacilityID:   facilityID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		RefreshedAt:  now,
	}
	if grant.ExpiresIn > 0 {
		exp := now.Add(time.Duration(grant.ExpiresIn) * time.Second)
		cred.ExpiresAt = &exp
	}
	if err := m.creds.Upsert(ctx, cred); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[facilityID] = cred
	m.mu.Unlock()
	return nil
}

// Connected reports whether the facility currently has a usable
// credential, for the operator-facing status endpoint.  A credential
// past its expiry hint with no refresh token counts as disconnected:
// every payment attempt with it would fail, so the operator must
// re-run the authorization flow.
func (m *Manager) Connected(ctx context.Context, facilityID string) bool {
	cred, err := m.load(ctx, facilityID)
	if err != nil || cred.AccessToken == "" {
		return false
	}
	if cred.Expired(m.now()) && cred.RefreshToken == "" {
		return false
	}
	return true
}

// ProbeList returns every stored credential, most recently refreshed
// first.  The webhook reconciler walks this list when it must verify a
// payment before knowing which facility owns it.
func (m *Manager) ProbeList(ctx context.Context) ([]*model.OperatorCredential, error) {
	return m.creds.ListAll(ctx)
}

func (m *Manager) load(ctx context.Context, facilityID string) (*model.OperatorCredential, error) {
	m.mu.Lock()
	cred, ok := m.cache[facilityID]
	m.mu.Unlock()
	if ok {
		return cred, nil
	}
	cred, err := m.creds.GetByFacility(ctx, facilityID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	m.mu.Lock()
	m.cache[facilityID] = cred
	m.mu.Unlock()
	return cred, nil
}
