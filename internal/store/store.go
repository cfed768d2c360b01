// Package store provides the key/value reservation store and the
// payment-session index.  The store is the single source of truth for
// slot state; every mutation goes through its atomic primitives so
// that two requests racing for one slot can never both win.
package store

import (
	"context"
	"errors"

	"github.com/recomplejos/court-booking/internal/model"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("store: record not found")

// ErrVersionConflict is returned by Update and Delete when the record
// was rewritten (or removed and recreated) since the caller read it.
var ErrVersionConflict = errors.New("store: version conflict")

// Store is the reservation-record collaborator.  Get returns the
// current record including its revision; CreateIfAbsent installs a
// fresh record only when the key is free; Update and Delete are
// revision-checked so that read-modify-write sequences are safe
// without external locking.  ListAll is used by the sweeper and the
// operator calendar and carries no consistency guarantee beyond
// per-record atomicity.
type Store interface {
	Get(ctx context.Context, key string) (*model.ReservationRecord, error)
	// CreateIfAbsent stores the record with revision 1 and reports
	// whether the write happened.  false means another record already
	// exists for the key.
	CreateIfAbsent(ctx context.Context, key string, rec *model.ReservationRecord) (bool, error)
	// Update replaces the record if its stored revision still equals
	// rec.Version, then bumps rec.Version.  Returns ErrNotFound when
	// the key is free and ErrVersionConflict when the revision moved.
	Update(ctx context.Context, key string, rec *model.ReservationRecord) error
	// Delete removes the record if its stored revision equals version.
	Delete(ctx context.Context, key string, version int64) error
	ListAll(ctx context.Context) (map[string]*model.ReservationRecord, error)
}

// SessionRef maps an external payment-session identifier back to the
// domain.  Entries are write-once and never overwritten.
type SessionRef struct {
	SlotKey    string `json:"slot_key"`
	FacilityID string `json:"facility_id"`
}

// Index is the payment-session index collaborator.  It is the fallback
// resolution path for webhook events whose metadata was stripped in
// transit.  Resolve returns ErrNotFound for unknown identifiers.
type Index interface {
	Put(ctx context.Context, sessionID string, ref SessionRef) error
	Resolve(ctx context.Context, sessionID string) (*SessionRef, error)
}
