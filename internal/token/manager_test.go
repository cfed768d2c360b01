package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/repository"
)

type memCredStore struct {
	creds   map[string]*model.OperatorCredential
	upserts int
}

func (s *memCredStore) GetByFacility(_ context.Context, id string) (*model.OperatorCredential, error) {
	if c, ok := s.creds[id]; ok {
		return c, nil
	}
	return nil, repository.ErrCredentialNotFound
}

func (s *memCredStore) Upsert(_ context.Context, cred *model.OperatorCredential) error {
	s.upserts++
	s.creds[cred.FacilityID] = cred
	return nil
}

func (s *memCredStore) ListAll(_ context.Context) ([]*model.OperatorCredential, error) {
	out := make([]*model.OperatorCredential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out, nil
}

type fakeRefresher struct {
	grant *model.TokenGrant
	err   error
	calls int
}

func (g *fakeRefresher) RefreshGrant(_ context.Context, _ string) (*model.TokenGrant, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.grant, nil
}

func TestAccessToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Returns Stored Token", func(t *testing.T) {
		creds := &memCredStore{creds: map[string]*model.OperatorCredential{
			"club-a": {FacilityID: "club-a", AccessToken: "tok-a", RefreshToken: "ref-a"},
		}}
		gateway := &fakeRefresher{}
		m := NewManager(creds, gateway)
		m.now = func() time.Time { return now }

		tok, err := m.AccessToken(ctx, "club-a")
		require.NoError(t, err)
		assert.Equal(t, "tok-a", tok)
		assert.Zero(t, gateway.calls, "a live token must not trigger a refresh")
	})

	t.Run("Unknown Facility Is Not Connected", func(t *testing.T) {
		m := NewManager(&memCredStore{creds: map[string]*model.OperatorCredential{}}, &fakeRefresher{})
		_, err := m.AccessToken(ctx, "nowhere")
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("Refreshes Past Expiry Hint", func(t *testing.T) {
		expired := now.Add(-time.Minute)
		creds := &memCredStore{creds: map[string]*model.OperatorCredential{
			"club-a": {FacilityID: "club-a", AccessToken: "tok-old", RefreshToken: "ref-a", ExpiresAt: &expired},
		}}
		gateway := &fakeRefresher{grant: &model.TokenGrant{
			AccessToken:  "tok-new",
			RefreshToken: "ref-new",
			ExpiresIn:    3600,
		}}
		m := NewManager(creds, gateway)
		m.now = func() time.Time { return now }

		tok, err := m.AccessToken(ctx, "club-a")
		require.NoError(t, err)
		assert.Equal(t, "tok-new", tok)
		assert.Equal(t, 1, gateway.calls)

		stored := creds.creds["club-a"]
		assert.Equal(t, "tok-new", stored.AccessToken, "rotated pair must be persisted")
		assert.Equal(t, "ref-new", stored.RefreshToken)
		require.NotNil(t, stored.ExpiresAt)
		assert.Equal(t, now.Add(time.Hour), *stored.ExpiresAt)
	})

	t.Run("Failed Refresh Surfaces Not Connected", func(t *testing.T) {
		expired := now.Add(-time.Minute)
		creds := &memCredStore{creds: map[string]*model.OperatorCredential{
			"club-a": {FacilityID: "club-a", AccessToken: "tok-old", RefreshToken: "ref-a", ExpiresAt: &expired},
		}}
		gateway := &fakeRefresher{err: errors.New("gateway down")}
		m := NewManager(creds, gateway)
		m.now = func() time.Time { return now }

		_, err := m.AccessToken(ctx, "club-a")
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, 1, gateway.calls, "refresh is attempted once, never retried")
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("No Refresh Token", func(t *testing.T) {
		creds := &memCredStore{creds: map[string]*model.OperatorCredential{
			"club-a": {FacilityID: "club-a", AccessToken: "tok-a"},
		}}
		m := NewManager(creds, &fakeRefresher{})
		_, err := m.Refresh(ctx, "club-a")
		assert.Error(t, err)
	})

	t.Run("Caches Rotated Credential", func(t *testing.T) {
		creds := &memCredStore{creds: map[string]*model.OperatorCredential{
			"club-a": {FacilityID: "club-a", AccessToken: "tok-old", RefreshToken: "ref-a"},
		}}
		gateway := &fakeRefresher{grant: &model.TokenGrant{AccessToken: "tok-new", RefreshToken: "ref-new"}}
		m := NewManager(creds, gateway)

		_, err := m.Refresh(ctx, "club-a")
		require.NoError(t, err)

		// Subsequent reads hit the cache without touching the store.
		creds.creds = nil
		tok, err := m.AccessToken(ctx, "club-a")
		require.NoError(t, err)
		assert.Equal(t, "tok-new", tok)
	})
}

func TestConnected(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	creds := &memCredStore{creds: map[string]*model.OperatorCredential{
		"club-a": {FacilityID: "club-a", AccessToken: "tok-a"},
		"club-c": {FacilityID: "club-c", AccessToken: "tok-c", ExpiresAt: &expired},
		"club-d": {FacilityID: "club-d", AccessToken: "tok-d", RefreshToken: "ref-d", ExpiresAt: &expired},
	}}
	m := NewManager(creds, &fakeRefresher{})
	m.now = func() time.Time { return now }

	assert.True(t, m.Connected(ctx, "club-a"))
	assert.False(t, m.Connected(ctx, "club-b"))
	assert.False(t, m.Connected(ctx, "club-c"), "expired with no refresh token cannot serve payments")
	assert.True(t, m.Connected(ctx, "club-d"), "expired but refreshable still counts as connected")
}

func TestStoreGrant(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	creds := &memCredStore{creds: map[string]*model.OperatorCredential{}}
	m := NewManager(creds, &fakeRefresher{})
	m.now = func() time.Time { return now }

	err := m.StoreGrant(ctx, "club-a", &model.TokenGrant{AccessToken: "tok-a", RefreshToken: "ref-a", ExpiresIn: 21600})
	require.NoError(t, err)
	require.Equal(t, 1, creds.upserts)

	stored := creds.creds["club-a"]
	assert.Equal(t, now, stored.RefreshedAt)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, now.Add(6*time.Hour), *stored.ExpiresAt)
}
