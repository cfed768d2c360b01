// Package payment talks to the Mercado Pago REST API: checkout
// preferences (payment sessions), payment lookup, and the OAuth token
// endpoint used to connect facilities.  Every call runs on one
// http.Client with a bounded timeout so a stalled gateway cannot hold
// resources indefinitely.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/recomplejos/court-booking/internal/model"
)

// ErrUnauthorized is returned when the gateway rejects the supplied
// credential.  Callers retry exactly once after a token refresh.
var ErrUnauthorized = errors.New("payment: gateway rejected credential")

// Gateway is the outbound collaborator contract.  The production
// implementation is Client; tests substitute fakes.
type Gateway interface {
	CreatePreference(ctx context.Context, accessToken string, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error)
	ExchangeCode(ctx context.Context, code string) (*TokenGrant, error)
	RefreshGrant(ctx context.Context, refreshToken string) (*TokenGrant, error)
}

// Item is one line of a checkout preference.
type Item struct {
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// BackURLs are the client-facing return pages for each payment outcome.
type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// PreferenceRequest creates a payment session.  Metadata carries the
// slot key and facility id as opaque strings; it is the primary path
// for resolving the eventual webhook back to the domain.
type PreferenceRequest struct {
	Items           []Item            `json:"items"`
	BackURLs        BackURLs          `json:"back_urls"`
	AutoReturn      string            `json:"auto_return,omitempty"`
	NotificationURL string            `json:"notification_url,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Preference is the created payment session.
type Preference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// Payment is the gateway's view of one payment, fetched by ID when a
// webhook arrives.  Status values: approved, pending, in_process,
// rejected, cancelled.
type Payment struct {
	ID       json.Number       `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Order    struct {
		ID json.Number `json:"id"`
	} `json:"order"`
}

// SessionID returns the payment-session identifier the payment belongs
// to, or "" when the gateway did not include one.
func (p *Payment) SessionID() string { return p.Order.ID.String() }

// TokenGrant is the response of both OAuth grants.
type TokenGrant = model.TokenGrant

// Config collects the gateway endpoints and OAuth application
// credentials.
type Config struct {
	BaseURL      string        // https://api.mercadopago.com
	AuthURL      string        // https://auth.mercadopago.com
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
}

// Client implements Gateway over HTTP.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient returns a Client with the configured request timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{http: &http.Client{Timeout: cfg.Timeout}, cfg: cfg}
}

// AuthorizationURL builds the user-facing authorization redirect for
// the OAuth connect flow.  state round-trips through the gateway and
// is verified on callback.
func (c *Client) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("state", state)
	q.Set("scope", "offline_access read write")
	return c.cfg.AuthURL + "/authorization?" + q.Encode()
}

// CreatePreference opens a payment session.
func (c *Client) CreatePreference(ctx context.Context, accessToken string, req PreferenceRequest) (*Preference, error) {
	var pref Preference
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/checkout/preferences", accessToken, req, &pref); err != nil {
		return nil, err
	}
	if pref.ID == "" {
		return nil, errors.New("payment: preference response missing id")
	}
	return &pref, nil
}

// GetPayment fetches a payment by identifier.  The webhook reconciler
// uses this to verify events instead of trusting their payloads.
func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error) {
	var pay Payment
	if err := c.doJSON(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/payments/"+url.PathEscape(paymentID), accessToken, nil, &pay); err != nil {
		return nil, err
	}
	return &pay, nil
}

// ExchangeCode redeems an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenGrant, error) {
	return c.tokenGrant(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"code":          code,
		"redirect_uri":  c.cfg.RedirectURI,
	})
}

// RefreshGrant exchanges a refresh token for a new pair.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	return c.tokenGrant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"refresh_token": refreshToken,
	})
}

func (c *Client) tokenGrant(ctx context.Context, body map[string]string) (*TokenGrant, error) {
	var grant TokenGrant
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth/token", "", body, &grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" {
		return nil, errors.New("payment: token response missing access_token")
	}
	return &grant, nil
}

// doJSON performs one JSON request/response round trip.  401 and 403
// map to ErrUnauthorized; other non-2xx statuses surface with a body
// snippet for the logs.
func (c *Client) doJSON(ctx context.Context, method, endpoint, accessToken string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, endpoint, ErrUnauthorized)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
