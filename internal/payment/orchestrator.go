package payment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/store"
	"github.com/recomplejos/court-booking/internal/token"
)

// Metadata keys carried on every preference.  The webhook reconciler
// reads them back off the payment object as its primary resolution
// path; the session index is only the fallback.
const (
	MetaSlotKey    = "slot_key"
	MetaFacilityID = "facility_id"
)

// ErrNoLiveHold is returned when OpenSession finds no hold or pending
// record for the slot, or one owned by a different facility.
var ErrNoLiveHold = errors.New("payment: no live hold for slot")

// Releaser frees a slot after a downstream failure; hold.Manager is
// the production implementation.
type Releaser interface {
	Release(ctx context.Context, slotKey string) error
}

// Session is the caller-facing result of opening a payment session.
type Session struct {
	PreferenceID string
	RedirectURL  string
}

// ReturnURLs configures where the gateway sends the customer and its
// server-to-server notifications.
type ReturnURLs struct {
	Success      string
	Pending      string
	Failure      string
	Notification string
}

// Orchestrator opens external payment sessions for held slots and
// keeps the reservation record, the session index and the gateway in
// step.  On any gateway failure the hold is released immediately so
// the slot does not stay blocked until lease expiry.
type Orchestrator struct {
	store   store.Store
	index   store.Index
	tokens  *token.Manager
	gateway Gateway
	holds   Releaser
	urls    ReturnURLs
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(s store.Store, idx store.Index, tokens *token.Manager, gateway Gateway, holds Releaser, urls ReturnURLs) *Orchestrator {
	return &Orchestrator{store: s, index: idx, tokens: tokens, gateway: gateway, holds: holds, urls: urls}
}

// OpenSession creates a payment session for a held slot.  The record
// must be a hold or pending record owned by facilityID.  On success
// the session is indexed and the record transitions to pending with
// the session reference attached.  On failure the hold is released.
// An authentication failure is retried exactly once after a credential
// refresh.
func (o *Orchestrator) OpenSession(ctx context.Context, slotKey, facilityID, title string) (*Session, error) {
	rec, err := o.store.Get(ctx, slotKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoLiveHold
	}
	if err != nil {
		return nil, err
	}
	if (rec.Status != model.StatusHold && rec.Status != model.StatusPending) || rec.FacilityID != facilityID {
		return nil, ErrNoLiveHold
	}

	accessToken, err := o.tokens.AccessToken(ctx, facilityID)
	if err != nil {
		o.release(ctx, slotKey)
		return nil, err
	}

	if title == "" {
		title = "Seña de reserva"
	}
	req := PreferenceRequest{
		Items: []Item{{
			Title:     title,
			UnitPrice: float64(rec.AmountCents) / 100,
			Quantity:  1,
		}},
		BackURLs: BackURLs{
			Success: o.urls.Success,
			Pending: o.urls.Pending,
			Failure: o.urls.Failure,
		},
		AutoReturn:      "approved",
		NotificationURL: o.urls.Notification,
		Metadata: map[string]string{
			MetaSlotKey:    slotKey,
			MetaFacilityID: facilityID,
		},
	}

	pref, err := o.gateway.CreatePreference(ctx, accessToken, req)
	if errors.Is(err, ErrUnauthorized) {
		// One refresh, one retry; a second rejection gives up.
		if accessToken, err = o.tokens.Refresh(ctx, facilityID); err == nil {
			pref, err = o.gateway.CreatePreference(ctx, accessToken, req)
		}
	}
	if err != nil {
		o.release(ctx, slotKey)
		return nil, fmt.Errorf("create payment session: %w", err)
	}

	if err := o.index.Put(ctx, pref.ID, store.SessionRef{SlotKey: slotKey, FacilityID: facilityID}); err != nil {
		// Metadata on the preference still resolves the webhook; losing
		// the fallback entry is logged, not fatal.
		log.Printf("payment: index session %s: %v", pref.ID, err)
	}

	upd := *rec
	upd.Status = model.StatusPending
	upd.PaymentSessionID = pref.ID
	upd.RedirectURL = pref.InitPoint
	if err := o.store.Update(ctx, slotKey, &upd); err != nil {
		// The hold vanished or changed mid-flight (lease takeover); the
		// session cannot be honored.
		return nil, fmt.Errorf("record session on hold: %w", err)
	}
	return &Session{PreferenceID: pref.ID, RedirectURL: pref.InitPoint}, nil
}

func (o *Orchestrator) release(ctx context.Context, slotKey string) {
	if err := o.holds.Release(ctx, slotKey); err != nil {
		log.Printf("payment: release %s: %v", slotKey, err)
	}
}
