package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recomplejos/court-booking/internal/hold"
	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/payment"
	"github.com/recomplejos/court-booking/internal/repository"
	"github.com/recomplejos/court-booking/internal/store"
	"github.com/recomplejos/court-booking/internal/token"
)

const slotKeyA = "cluba-cancha1-2024-05-01-20:00"

type stubCredStore struct {
	creds map[string]*model.OperatorCredential
}

func (s *stubCredStore) GetByFacility(_ context.Context, id string) (*model.OperatorCredential, error) {
	if c, ok := s.creds[id]; ok {
		return c, nil
	}
	return nil, repository.ErrCredentialNotFound
}

func (s *stubCredStore) Upsert(_ context.Context, cred *model.OperatorCredential) error {
	s.creds[cred.FacilityID] = cred
	return nil
}

func (s *stubCredStore) ListAll(_ context.Context) ([]*model.OperatorCredential, error) {
	out := make([]*model.OperatorCredential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out, nil
}

// stubGateway scripts CreatePreference outcomes per access token and
// hands out a fresh token pair on refresh.
type stubGateway struct {
	rejectTokens map[string]bool
	failAll      bool
	prefCalls    int
	lastReq      payment.PreferenceRequest
	refreshed    *payment.TokenGrant
}

func (g *stubGateway) CreatePreference(_ context.Context, accessToken string, req payment.PreferenceRequest) (*payment.Preference, error) {
	g.prefCalls++
	g.lastReq = req
	if g.failAll {
		return nil, errors.New("gateway unavailable")
	}
	if g.rejectTokens[accessToken] {
		return nil, payment.ErrUnauthorized
	}
	return &payment.Preference{ID: "pref-1", InitPoint: "https://mp.example/checkout/pref-1"}, nil
}

func (g *stubGateway) GetPayment(context.Context, string, string) (*payment.Payment, error) {
	return nil, errors.New("not scripted")
}

func (g *stubGateway) ExchangeCode(context.Context, string) (*payment.TokenGrant, error) {
	return nil, errors.New("not scripted")
}

func (g *stubGateway) RefreshGrant(context.Context, string) (*payment.TokenGrant, error) {
	if g.refreshed == nil {
		return nil, errors.New("refresh rejected")
	}
	return g.refreshed, nil
}

type orchFixture struct {
	store   *store.MemoryStore
	index   *store.MemoryIndex
	holds   *hold.Manager
	gateway *stubGateway
	orch    *payment.Orchestrator
}

func newOrchFixture(t *testing.T, gateway *stubGateway) *orchFixture {
	t.Helper()
	s := store.NewMemoryStore()
	idx := store.NewMemoryIndex()
	holds := hold.NewManager(s, 10*time.Minute, time.Minute)
	creds := &stubCredStore{creds: map[string]*model.OperatorCredential{
		"club-a": {FacilityID: "club-a", AccessToken: "tok-a", RefreshToken: "ref-a"},
	}}
	tokens := token.NewManager(creds, gateway)
	urls := payment.ReturnURLs{
		Success:      "https://booking.example/ok",
		Pending:      "https://booking.example/pending",
		Failure:      "https://booking.example/failed",
		Notification: "https://booking.example/webhook/mp",
	}
	return &orchFixture{
		store:   s,
		index:   idx,
		holds:   holds,
		gateway: gateway,
		orch:    payment.NewOrchestrator(s, idx, tokens, gateway, holds, urls),
	}
}

func (f *orchFixture) seedHold(t *testing.T) {
	t.Helper()
	_, err := f.holds.TryHold(context.Background(), slotKeyA, hold.Metadata{
		FacilityID:    "club-a",
		CustomerName:  "Ana",
		CustomerPhone: "123",
		AmountCents:   5000,
	})
	require.NoError(t, err)
}

func TestOpenSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Transitions Hold To Pending", func(t *testing.T) {
		f := newOrchFixture(t, &stubGateway{})
		f.seedHold(t)

		sess, err := f.orch.OpenSession(ctx, slotKeyA, "club-a", "")
		require.NoError(t, err)
		assert.Equal(t, "pref-1", sess.PreferenceID)
		assert.Equal(t, "https://mp.example/checkout/pref-1", sess.RedirectURL)

		rec, err := f.store.Get(ctx, slotKeyA)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, rec.Status)
		assert.Equal(t, "pref-1", rec.PaymentSessionID)

		ref, err := f.index.Resolve(ctx, "pref-1")
		require.NoError(t, err)
		assert.Equal(t, slotKeyA, ref.SlotKey)
		assert.Equal(t, "club-a", ref.FacilityID)
	})

	t.Run("Preference Carries Slot Metadata And Amount", func(t *testing.T) {
		f := newOrchFixture(t, &stubGateway{})
		f.seedHold(t)

		_, err := f.orch.OpenSession(ctx, slotKeyA, "club-a", "Seña cancha 1")
		require.NoError(t, err)

		req := f.gateway.lastReq
		require.Len(t, req.Items, 1)
		assert.Equal(t, "Seña cancha 1", req.Items[0].Title)
		assert.Equal(t, 50.0, req.Items[0].UnitPrice, "cents convert to currency units")
		assert.Equal(t, slotKeyA, req.Metadata[payment.MetaSlotKey])
		assert.Equal(t, "club-a", req.Metadata[payment.MetaFacilityID])
		assert.Equal(t, "https://booking.example/webhook/mp", req.NotificationURL)
	})

	t.Run("Gateway Failure Releases Hold", func(t *testing.T) {
		f := newOrchFixture(t, &stubGateway{failAll: true})
		f.seedHold(t)

		_, err := f.orch.OpenSession(ctx, slotKeyA, "club-a", "")
		require.Error(t, err)

		_, err = f.store.Get(ctx, slotKeyA)
		assert.ErrorIs(t, err, store.ErrNotFound, "failed session must free the slot immediately")

		// And the freed slot is claimable again without waiting out the lease.
		f.seedHold(t)
	})

	t.Run("Retries Once After Credential Refresh", func(t *testing.T) {
		gateway := &stubGateway{
			rejectTokens: map[string]bool{"tok-a": true},
			refreshed:    &payment.TokenGrant{AccessToken: "tok-new", RefreshToken: "ref-new", ExpiresIn: 3600},
		}
		f := newOrchFixture(t, gateway)
		f.seedHold(t)

		sess, err := f.orch.OpenSession(ctx, slotKeyA, "club-a", "")
		require.NoError(t, err)
		assert.Equal(t, "pref-1", sess.PreferenceID)
		assert.Equal(t, 2, gateway.prefCalls)
	})

	t.Run("Second Rejection Gives Up And Releases", func(t *testing.T) {
		gateway := &stubGateway{
			rejectTokens: map[string]bool{"tok-a": true, "tok-new": true},
			refreshed:    &payment.TokenGrant{AccessToken: "tok-new", RefreshToken: "ref-new"},
		}
		f := newOrchFixture(t, gateway)
		f.seedHold(t)

		_, err := f.orch.OpenSession(ctx, slotKeyA, "club-a", "")
		assert.ErrorIs(t, err, payment.ErrUnauthorized)
		assert.Equal(t, 2, gateway.prefCalls, "exactly one retry")

		_, err = f.store.Get(ctx, slotKeyA)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Foreign Facility Leaves Hold", func(t *testing.T) {
		f := newOrchFixture(t, &stubGateway{})
		f.seedHold(t)

		_, err := f.orch.OpenSession(ctx, slotKeyA, "club-b", "")
		assert.ErrorIs(t, err, payment.ErrNoLiveHold, "holds are owned by the facility that placed them")

		rec, err := f.store.Get(ctx, slotKeyA)
		require.NoError(t, err)
		assert.Equal(t, model.StatusHold, rec.Status, "a precondition failure must not release the hold")
	})

	t.Run("Not Connected Releases Hold", func(t *testing.T) {
		f := newOrchFixture(t, &stubGateway{})
		_, err := f.holds.TryHold(ctx, slotKeyA, hold.Metadata{FacilityID: "club-x", AmountCents: 5000})
		require.NoError(t, err)

		_, err = f.orch.OpenSession(ctx, slotKeyA, "club-x", "")
		assert.ErrorIs(t, err, token.ErrNotConnected)

		_, err = f.store.Get(ctx, slotKeyA)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
