// Package queue defines message payloads exchanged over the message
// broker and the background consumer that delivers owner notifications.
package queue

// BookingConfirmedEvent is published when a reservation reaches the
// approved state.  It carries enough information for the notification
// consumer to message the facility owner without querying the
// reservation store.
type BookingConfirmedEvent struct {
	SlotKey       string `json:"slot_key"`
	FacilityID    string `json:"facility_id"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	AmountCents   int64  `json:"amount_cents"`
	PaymentID     string `json:"payment_id"`
	ConfirmedAt   string `json:"confirmed_at"`
}
