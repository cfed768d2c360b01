// Package hold grants and expires time-bounded exclusive claims on
// slot keys.  All writes funnel through the store's atomic primitives;
// the manager never read-modify-writes without a revision check, which
// is what keeps two racing requests from both claiming a free slot.
package hold

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/recomplejos/court-booking/internal/model"
	"github.com/recomplejos/court-booking/internal/store"
)

// ErrSlotTaken is returned when the slot is covered by an approved,
// manual or blocked record, or by an unexpired hold or pending record.
var ErrSlotTaken = errors.New("hold: slot already taken")

// Metadata carries the customer details captured when a hold is
// created; they travel with the record into the approved state.
type Metadata struct {
	FacilityID    string
	CustomerName  string
	CustomerPhone string
	AmountCents   int64
}

// Manager creates, releases and sweeps slot holds.
type Manager struct {
	store store.Store
	lease time.Duration
	sweep time.Duration
	now   func() time.Time
}

// NewManager returns a Manager granting leases of the given duration
// and sweeping expired holds at the given interval.
func NewManager(s store.Store, lease, sweep time.Duration) *Manager {
	return &Manager{store: s, lease: lease, sweep: sweep, now: time.Now}
}

// TryHold attempts to claim the slot.  Exactly one of N concurrent
// calls for the same free key succeeds; the rest receive ErrSlotTaken.
// An expired hold or pending record is indistinguishable from a free
// slot and is replaced in place.  On success the stored record is
// returned, including its lease expiry and revision.
func (m *Manager) TryHold(ctx context.Context, slotKey string, meta Metadata) (*model.ReservationRecord, error) {
	now := m.now()
	expires := now.Add(m.lease)
	rec := &model.ReservationRecord{
		Status:        model.StatusHold,
		HoldExpiresAt: &expires,
		FacilityID:    meta.FacilityID,
		CustomerName:  meta.CustomerName,
		CustomerPhone: meta.CustomerPhone,
		AmountCents:   meta.AmountCents,
	}
	return rec, m.place(ctx, slotKey, rec, now)
}

// Place installs an operator-created record (manual or blocked) using
// the same atomic claim path as TryHold.  These records carry no lease
// and stay until an administrative delete.
func (m *Manager) Place(ctx context.Context, slotKey string, rec *model.ReservationRecord) error {
	if rec.Status != model.StatusManual && rec.Status != model.StatusBlocked {
		return fmt.Errorf("hold: cannot place record with status %q", rec.Status)
	}
	return m.place(ctx, slotKey, rec, m.now())
}

// place is the shared claim loop: create when free, replace when the
// existing record's lease expired, deny otherwise.  A bounded number
// of retries absorbs create/replace races; losing every round means
// someone else now owns the slot.
func (m *Manager) place(ctx context.Context, slotKey string, rec *model.ReservationRecord, now time.Time) error {
	for attempt := 0; attempt < 3; attempt++ {
		existing, err := m.store.Get(ctx, slotKey)
		if errors.Is(err, store.ErrNotFound) {
			created, err := m.store.CreateIfAbsent(ctx, slotKey, rec)
			if err != nil {
				return err
			}
			if created {
				return nil
			}
			continue // lost the create race; re-read
		}
		if err != nil {
			return err
		}
		if existing.Blocks(now) {
			return ErrSlotTaken
		}
		// Expired lease: take the slot over, conditional on the revision
		// we just read so a concurrent taker cannot be overwritten.
		rec.Version = existing.Version
		err = m.store.Update(ctx, slotKey, rec)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
			continue
		}
		return err
	}
	return ErrSlotTaken
}

// Release frees a slot after a downstream failure.  Only hold and
// pending records are removed; terminal records are left untouched.
// Releasing an already-free slot is a no-op.
func (m *Manager) Release(ctx context.Context, slotKey string) error {
	rec, err := m.store.Get(ctx, slotKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status != model.StatusHold && rec.Status != model.StatusPending {
		return nil
	}
	err = m.store.Delete(ctx, slotKey, rec.Version)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrVersionConflict) {
		// The record moved on (approval or takeover); nothing to release.
		return nil
	}
	return err
}

// SweepExpired deletes every hold whose lease has passed, making those
// slots free again.  Deletes are revision-checked so a sweep can never
// race an approval: if the reconciler advanced the record first, the
// conditional delete fails and the record survives.
func (m *Manager) SweepExpired(ctx context.Context) error {
	all, err := m.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("sweep list: %w", err)
	}
	now := m.now()
	for key, rec := range all {
		if rec.Status != model.StatusHold || !rec.LeaseExpired(now) {
			continue
		}
		err := m.store.Delete(ctx, key, rec.Version)
		if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrVersionConflict) {
			log.Printf("sweeper: delete %s: %v", key, err)
		}
	}
	return nil
}

// RunSweeper runs SweepExpired on the configured interval until the
// context is cancelled.  Intended to run as a background goroutine.
func (m *Manager) RunSweeper(ctx context.Context) {
	t := time.NewTicker(m.sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.SweepExpired(ctx); err != nil {
				log.Printf("sweeper: %v", err)
			}
		}
	}
}
