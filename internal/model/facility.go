package model

// Window describes a daily open/close interval in facility-local civil
// time, both endpoints formatted "HH:MM".  When Open is later than
// Close the window wraps past midnight (e.g. 18:00–02:00).  Equal
// endpoints mean open all day.
type Window struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Resource is one bookable unit inside a facility, typically a court.
// A per-resource deposit overrides the facility-wide default when set.
//
// Fields:
//  Name         – free-text display name; matching is done on the
//                 normalized slug, never on this raw string.
//  DepositCents – optional per-resource deposit override.
type Resource struct {
	Name         string `json:"name"`
	DepositCents int64  `json:"deposit_cents,omitempty"`
}

// Facility holds the operator-editable configuration of one complex.
// It is stored as a JSON document in MySQL and served to validators
// through a versioned read-through cache.
//
// Fields:
//  ID               – stable identifier chosen at onboarding.
//  Name             – display name.
//  UTCOffsetMinutes – fixed offset of the facility's civil time; the
//                     system applies no DST rules.
//  Resources        – bookable resources.
//  DefaultWindow    – opening hours applied to weekdays without an
//                     explicit entry in Hours.
//  Hours            – per-weekday opening hours keyed by lowercase
//                     English weekday name ("monday" … "sunday").
//  DepositCents     – facility-wide deposit charged when the booking
//                     request carries no amount.
//  OwnerWhatsApp    – destination for WhatsApp confirmations.
//  OwnerEmail       – destination for e-mail confirmations.
type Facility struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	UTCOffsetMinutes int               `json:"utc_offset_minutes"`
	Resources        []Resource        `json:"resources"`
	DefaultWindow    Window            `json:"default_window"`
	Hours            map[string]Window `json:"hours,omitempty"`
	DepositCents     int64             `json:"deposit_cents"`
	OwnerWhatsApp    string            `json:"owner_whatsapp,omitempty"`
	OwnerEmail       string            `json:"owner_email,omitempty"`
}
