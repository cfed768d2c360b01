package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/recomplejos/court-booking/internal/model"
)

// OwnerNotifier delivers confirmation messages to facility owners via
// the WhatsApp Cloud API and Resend.  Providers left unconfigured are
// skipped silently; a configured provider that fails is logged and
// never retried here (the broker redelivery policy decides).
type OwnerNotifier struct {
	http *http.Client

	WhatsAppToken   string // WHATSAPP_TOKEN
	WhatsAppPhoneID string // WHATSAPP_PHONE_ID
	AdminWhatsAppTo string // fallback destination

	ResendAPIKey string // RESEND_API_KEY
	ResendFrom   string // RESEND_FROM
	AdminEmail   string // fallback destination
}

// NewOwnerNotifier returns a notifier with a bounded HTTP timeout.
func NewOwnerNotifier() *OwnerNotifier {
	return &OwnerNotifier{http: &http.Client{Timeout: 10 * time.Second}}
}

// NotifyConfirmed sends the confirmation to every configured channel.
func (n *OwnerNotifier) NotifyConfirmed(ctx context.Context, fac *model.Facility, ev BookingConfirmedEvent) {
	text := fmt.Sprintf("Nueva reserva confirmada\nComplejo: %s\nTurno: %s\nCliente: %s (%s)\nSeña: $%.2f",
		fac.Name, ev.SlotKey, ev.CustomerName, ev.CustomerPhone, float64(ev.AmountCents)/100)

	if err := n.sendWhatsApp(ctx, fac, text); err != nil {
		log.Printf("notify: whatsapp: %v", err)
	}
	if err := n.sendEmail(ctx, fac, "Nueva reserva confirmada", text); err != nil {
		log.Printf("notify: email: %v", err)
	}
}

func (n *OwnerNotifier) sendWhatsApp(ctx context.Context, fac *model.Facility, text string) error {
	if n.WhatsAppToken == "" || n.WhatsAppPhoneID == "" {
		return nil // not configured
	}
	to := fac.OwnerWhatsApp
	if to == "" {
		to = n.AdminWhatsAppTo
	}
	if to == "" {
		return nil
	}
	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	url := "https://graph.facebook.com/v20.0/" + n.WhatsAppPhoneID + "/messages"
	return n.post(ctx, url, n.WhatsAppToken, body)
}

func (n *OwnerNotifier) sendEmail(ctx context.Context, fac *model.Facility, subject, text string) error {
	if n.ResendAPIKey == "" || n.ResendFrom == "" {
		return nil // not configured
	}
	to := fac.OwnerEmail
	if to == "" {
		to = n.AdminEmail
	}
	if to == "" {
		return nil
	}
	body := map[string]interface{}{
		"from":    n.ResendFrom,
		"to":      []string{to},
		"subject": subject,
		"text":    text,
	}
	return n.post(ctx, "https://api.resend.com/emails", n.ResendAPIKey, body)
}

func (n *OwnerNotifier) post(ctx context.Context, url, bearer string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider status %d", resp.StatusCode)
	}
	return nil
}
