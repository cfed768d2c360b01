// Package webhook reconciles asynchronous payment events with the
// reservation store.  Events are at-least-once and possibly duplicated;
// the reconciler verifies each one against the gateway, resolves it to
// a slot key and applies the correct transition exactly once per
// terminal outcome.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/payment"
	"github.com/recomplejos/court-booking/internal/queue"
	"github.com/recomplejos/court-booking/internal/store"
	"github.com/recomplejos/court-booking/internal/token"
)

// ErrUnresolvable marks an event that could not be mapped to a slot.
// It is logged and dropped, never retried: the hold lease bounds how
// long a slot can stay incorrectly blocked by a lost event.
var ErrUnresolvable = errors.New("webhook: event does not resolve to a slot")

// PaymentFetcher is the slice of the gateway the reconciler needs.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, accessToken, paymentID string) (*payment.Payment, error)
}

// Notifier delivers confirmation events; queue.Publisher is
// the production implementation.  Calls must not block or fail the
// transition that triggered them.
type Notifier interface {
	BookingConfirmed(ctx context.Context, event queue.BookingConfirmedEvent) error
}

// Reconciler drives the per-reservation state machine from inbound
// gateway events.
type Reconciler struct {
	store    store.Store
	index    store.Index
	tokens   *token.Manager
	gateway  PaymentFetcher
	notifier Notifier
	now      func() time.Time

	// async controls whether notifications are dispatched on their own
	// goroutine.  Tests disable it to observe the dispatch count.
	async bool
}

// NewReconciler wires the reconciler's collaborators.
func NewReconciler(s store.Store, idx store.Index, tokens *token.Manager, gateway PaymentFetcher, notifier Notifier) *Reconciler {
	return &Reconciler{store: s, index: idx, tokens: tokens, gateway: gateway, notifier: notifier, now: time.Now, async: true}
}

// Process handles one webhook delivery for the given payment
// identifier.  It runs after the HTTP acknowledgement has been sent,
// so every error here is terminal for this delivery: logged by the
// caller, never surfaced to the gateway.
func (r *Reconciler) Process(ctx context.Context, paymentID string) error {
	pay, err := r.lookupPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	slotKey, err := r.resolve(ctx, pay)
	if err != nil {
		return err
	}

	return r.apply(ctx, slotKey, pay)
}

// lookupPayment verifies the event by fetching the payment from the
// gateway.  The owning facility is unknown until the payment resolves,
// so every stored credential is probed in order with each attempt's
// outcome logged; the payload alone is never trusted.
func (r *Reconciler) lookupPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	creds, err := r.tokens.ProbeList(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("payment %s: no credentials to verify with", paymentID)
	}
	for _, cred := range creds {
		if cred.AccessToken == "" {
			continue
		}
		pay, err := r.gateway.GetPayment(ctx, cred.AccessToken, paymentID)
		if err == nil {
			return pay, nil
		}
		if errors.Is(err, payment.ErrUnauthorized) {
			log.Printf("webhook: payment %s: credential of %s rejected, trying next", paymentID, cred.FacilityID)
			continue
		}
		log.Printf("webhook: payment %s: lookup with credential of %s failed: %v", paymentID, cred.FacilityID, err)
	}
	return nil, fmt.Errorf("payment %s: no credential could verify it", paymentID)
}

// resolve maps a verified payment to its slot key: first from the
// metadata carried on the payment object, then by looking the session
// identifier up in the index.
func (r *Reconciler) resolve(ctx context.Context, pay *payment.Payment) (string, error) {
	if key := pay.Metadata[payment.MetaSlotKey]; key != "" {
		return key, nil
	}
	sessionID := pay.SessionID()
	if sessionID == "" {
		return "", fmt.Errorf("payment %s carries neither metadata nor session id: %w", pay.ID, ErrUnresolvable)
	}
	ref, err := r.index.Resolve(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("session %s not indexed: %w", sessionID, ErrUnresolvable)
	}
	if err != nil {
		return "", fmt.Errorf("resolve session %s: %w", sessionID, err)
	}
	return ref.SlotKey, nil
}

// apply runs the state machine.  The revision-checked store writes
// make each terminal transition all-or-nothing; a conflicting write
// from the sweeper or a racing delivery re-reads and re-decides.
func (r *Reconciler) apply(ctx context.Context, slotKey string, pay *payment.Payment) error {
	paymentID := pay.ID.String()
	for attempt := 0; attempt < 3; attempt++ {
		rec, err := r.store.Get(ctx, slotKey)
		if errors.Is(err, store.ErrNotFound) {
			// Lease expired and swept, or already released: drop.
			log.Printf("webhook: payment %s: no record for %s, dropped", paymentID, slotKey)
			return nil
		}
		if err != nil {
			return err
		}

		// The slot may have been taken over after the original lease
		// expired.  An event for the previous occupant's payment
		// session must not confirm or delete the current occupant's
		// record.
		if sid := pay.SessionID(); sid != "" && rec.PaymentSessionID != "" && rec.PaymentSessionID != sid {
			log.Printf("webhook: payment %s: session %s does not match record %s on %s, dropped",
				paymentID, sid, rec.PaymentSessionID, slotKey)
			return nil
		}

		switch pay.Status {
		case "approved":
			if rec.Status == model.StatusApproved {
				// Duplicate delivery after confirmation: no re-stamp,
				// no second notification.
				return nil
			}
			if rec.Status != model.StatusHold && rec.Status != model.StatusPending {
				log.Printf("webhook: payment %s: record %s is %s, dropped", paymentID, slotKey, rec.Status)
				return nil
			}
			upd := *rec
			upd.Status = model.StatusApproved
			upd.PaymentID = paymentID
			now := r.now()
			upd.ConfirmedAt = &now
			upd.HoldExpiresAt = nil
			if err := r.store.Update(ctx, slotKey, &upd); err != nil {
				if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			r.dispatch(queue.BookingConfirmedEvent{
				SlotKey:       slotKey,
				FacilityID:    upd.FacilityID,
				CustomerName:  upd.CustomerName,
				CustomerPhone: upd.CustomerPhone,
				AmountCents:   upd.AmountCents,
				PaymentID:     paymentID,
				ConfirmedAt:   now.UTC().Format(time.RFC3339),
			})
			return nil

		case "rejected", "cancelled":
			if rec.Status != model.StatusHold && rec.Status != model.StatusPending {
				return nil
			}
			if err := r.store.Delete(ctx, slotKey, rec.Version); err != nil {
				if errors.Is(err, store.ErrVersionConflict) {
					continue
				}
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				return err
			}
			return nil

		case "pending", "in_process":
			if rec.Status != model.StatusHold && rec.Status != model.StatusPending {
				return nil
			}
			if rec.Status == model.StatusPending {
				return nil // idempotent re-write, nothing to change
			}
			upd := *rec
			upd.Status = model.StatusPending
			upd.PaymentID = paymentID
			if err := r.store.Update(ctx, slotKey, &upd); err != nil {
				if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			return nil

		default:
			log.Printf("webhook: payment %s: unknown status %q, dropped", paymentID, pay.Status)
			return nil
		}
	}
	return fmt.Errorf("payment %s: gave up applying transition to %s", paymentID, slotKey)
}

// dispatch fires the confirmation notification without blocking the
// transition.  Failures are logged, never raised.
func (r *Reconciler) dispatch(ev queue.BookingConfirmedEvent) {
	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := r.notifier.BookingConfirmed(ctx, ev); err != nil {
			log.Printf("webhook: notify %s: %v", ev.SlotKey, err)
		}
	}
	if r.async {
		go send()
		return
	}
	send()
}
