package model

import "encoding/json"

// TokenGrant is the response of both OAuth grants.
type TokenGrant struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	UserID       json.Number `json:"user_id"`
}
