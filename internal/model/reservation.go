package model

import "time"

// ReservationStatus enumerates the lifecycle states of a slot record.
// A slot with no record at all is free; the statuses below describe
// every occupied state.
type ReservationStatus string

const (
	// StatusHold marks a time-bounded exclusive claim awaiting payment.
	StatusHold ReservationStatus = "hold"
	// StatusPending marks a hold that already has an open payment session.
	StatusPending ReservationStatus = "pending"
	// StatusApproved marks a confirmed, paid reservation.
	StatusApproved ReservationStatus = "approved"
	// StatusManual marks a reservation entered by the operator without payment.
	StatusManual ReservationStatus = "manual"
	// StatusBlocked marks a slot the operator closed off entirely.
	StatusBlocked ReservationStatus = "blocked"
)

// ReservationRecord is the single source of truth for one slot key.
// At most one live record exists per key.  Records are created by the
// hold manager (status=hold) or directly by an operator (manual/blocked),
// advanced to pending by the payment orchestrator and to approved (or
// deleted) by the webhook reconciler.
//
// Fields:
//  Status           – current lifecycle state.
//  HoldExpiresAt    – lease expiry; set for hold and pending records.
//  FacilityID       – owning facility.
//  CustomerName     – customer display name captured at hold time.
//  CustomerPhone    – customer contact captured at hold time.
//  AmountCents      – deposit amount in cents.
//  PaymentSessionID – external payment-session (preference) identifier.
//  RedirectURL      – checkout URL returned by the gateway.
//  PaymentID        – gateway payment identifier, set on approval.
//  ConfirmedAt      – approval timestamp, set exactly once.
//  Version          – store revision used for optimistic writes.
type ReservationRecord struct {
	Status           ReservationStatus `json:"status"`
	HoldExpiresAt    *time.Time        `json:"hold_expires_at,omitempty"`
	FacilityID       string            `json:"facility_id"`
	CustomerName     string            `json:"customer_name,omitempty"`
	CustomerPhone    string            `json:"customer_phone,omitempty"`
	AmountCents      int64             `json:"amount_cents,omitempty"`
	PaymentSessionID string            `json:"payment_session_id,omitempty"`
	RedirectURL      string            `json:"redirect_url,omitempty"`
	PaymentID        string            `json:"payment_id,omitempty"`
	ConfirmedAt      *time.Time        `json:"confirmed_at,omitempty"`
	Version          int64             `json:"version"` // managed by the store
}

// LeaseExpired reports whether the record carries a lease that has
// already passed at the given instant.  Records without a lease
// (approved, manual, blocked) never expire.
func (r *ReservationRecord) LeaseExpired(now time.Time) bool {
	switch r.Status {
	case StatusHold, StatusPending:
		return r.HoldExpiresAt != nil && !now.Before(*r.HoldExpiresAt)
	default:
		return false
	}
}

// Blocks reports whether the record keeps the slot unavailable at the
// given instant.  An expired hold or pending record no longer blocks.
func (r *ReservationRecord) Blocks(now time.Time) bool {
	switch r.Status {
	case StatusApproved, StatusManual, StatusBlocked:
		return true
	case StatusHold, StatusPending:
		return !r.LeaseExpired(now)
	default:
		return false
	}
}
