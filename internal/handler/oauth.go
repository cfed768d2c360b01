package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/recomplejos/court-booking/internal/payment"
	"github.com/recomplejos/court-booking/internal/token"
)

// stateTTL bounds how long an authorization redirect stays usable.
const stateTTL = 15 * time.Minute

// OAuthHandler drives the gateway connect flow: the operator is sent
// to the gateway's authorization page with a signed state carrying the
// facility id, and the callback exchanges the returned code for a
// token pair.  Credentials can also be entered manually for operators
// onboarded outside the redirect flow.
type OAuthHandler struct {
	Gateway     *payment.Client
	Tokens      *token.Manager
	StateSecret string
}

// NewOAuthHandler constructs an OAuthHandler.
func NewOAuthHandler(gateway *payment.Client, tokens *token.Manager, stateSecret string) *OAuthHandler {
	if gateway == nil || tokens == nil || stateSecret == "" {
		panic("nil dependency passed to NewOAuthHandler")
	}
	return &OAuthHandler{Gateway: gateway, Tokens: tokens, StateSecret: stateSecret}
}

// Connect handles GET /v1/mp/connect?facility_id=...  It signs the
// facility id into the OAuth state and redirects the operator to the
// gateway's authorization page.
func (h *OAuthHandler) Connect(c echo.Context) error {
	facilityID := c.QueryParam("facility_id")
	if facilityID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "facility_id is required"})
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"facility_id": facilityID,
		"iat":         now.Unix(),
		"exp":         now.Add(stateTTL).Unix(),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.StateSecret))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "state signing failed"})
	}
	return c.Redirect(http.StatusFound, h.Gateway.AuthorizationURL(state))
}

// Callback handles GET /v1/mp/callback?code=...&state=...  The state
// signature proves the flow started here and names the facility the
// credential belongs to; the code is exchanged and the pair stored.
func (h *OAuthHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code and state are required"})
	}
	facilityID, err := h.verifyState(state)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid state"})
	}
	ctx := c.Request().Context()
	grant, err := h.Gateway.ExchangeCode(ctx, code)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "code exchange failed"})
	}
	if err := h.Tokens.StoreGrant(ctx, facilityID, grant); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store credential failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"facility_id": facilityID, "connected": true})
}

// Status handles GET /v1/mp/status?facility_id=... for the operator
// panel's connection indicator.
func (h *OAuthHandler) Status(c echo.Context) error {
	facilityID := c.QueryParam("facility_id")
	if facilityID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "facility_id is required"})
	}
	connected := h.Tokens.Connected(c.Request().Context(), facilityID)
	return c.JSON(http.StatusOK, echo.Map{"facility_id": facilityID, "connected": connected})
}

// credentialRequest is the POST /v1/facilities/:id/credentials body
// for manual onboarding with a pre-issued token pair.
type credentialRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// UpsertCredential handles POST /v1/facilities/:id/credentials.
func (h *OAuthHandler) UpsertCredential(c echo.Context) error {
	var body credentialRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.AccessToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "access_token is required"})
	}
	facilityID := c.Param("id")
	grant := &payment.TokenGrant{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    body.ExpiresIn,
	}
	if err := h.Tokens.StoreGrant(c.Request().Context(), facilityID, grant); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store credential failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"facility_id": facilityID, "connected": true})
}

// verifyState checks the signature and expiry of the OAuth state and
// extracts the facility id it was issued for.
func (h *OAuthHandler) verifyState(state string) (string, error) {
	tok, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(h.StateSecret), nil
	})
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("parse state: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	facilityID, _ := claims["facility_id"].(string)
	if facilityID == "" {
		return "", fmt.Errorf("state carries no facility id")
	}
	return facilityID, nil
}
