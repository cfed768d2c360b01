package model

import "time"

// OperatorCredential stores one facility's payment-gateway tokens.
// Tokens originate either from the OAuth connect flow (access +
// refresh pair) or from manual onboarding (access token only).  Only
// the token lifecycle manager mutates these records; both token
// columns are encrypted at rest.
//
// Fields:
//  FacilityID   – owning facility.
//  AccessToken  – bearer token used against the gateway API.
//  RefreshToken – token exchanged for a new pair when the access
//                 token is rejected; empty for manual onboarding.
//  ExpiresAt    – expiry hint reported by the gateway, when known.
//  RefreshedAt  – when the pair was last obtained or refreshed.
type OperatorCredential struct {
	FacilityID   string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	RefreshedAt  time.Time
}

// Expired reports whether the expiry hint has passed.  Credentials
// without a hint are assumed valid until the gateway rejects them.
func (c *OperatorCredential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
