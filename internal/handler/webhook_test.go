package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingProcessor records processed ids and holds every Process call
// until released, so tests can observe the response arriving first.
type blockingProcessor struct {
	mu      sync.Mutex
	ids     []string
	started chan struct{}
	release chan struct{}
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (p *blockingProcessor) Process(_ context.Context, paymentID string) error {
	p.mu.Lock()
	p.ids = append(p.ids, paymentID)
	p.mu.Unlock()
	p.started <- struct{}{}
	<-p.release
	return nil
}

func (p *blockingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}

func postWebhook(t *testing.T, h *WebhookHandler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Receive(e.NewContext(req, rec)))
	return rec
}

func TestReceiveAcksBeforeProcessing(t *testing.T) {
	proc := newBlockingProcessor()
	h := NewWebhookHandler(proc)

	rec := postWebhook(t, h, "/webhook/mp", `{"type":"payment","data":{"id":123}}`)

	// The 200 is already written; the processor is still blocked (or
	// has not even started).  Only now let it run to completion.
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-proc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("processor never invoked")
	}
	close(proc.release)
	assert.Equal(t, []string{"123"}, proc.processed())
}

func TestReceivePaymentIDExtraction(t *testing.T) {
	cases := []struct {
		name   string
		target string
		body   string
		want   string
	}{
		{"Nested Data ID", "/webhook/mp", `{"data":{"id":456}}`, "456"},
		{"Top Level ID", "/webhook/mp", `{"id":"789"}`, "789"},
		{"Data ID Query Param", "/webhook/mp?data.id=111&type=payment", ``, "111"},
		{"ID Query Param", "/webhook/mp?id=222", ``, "222"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := newBlockingProcessor()
			close(proc.release) // no blocking needed here
			h := NewWebhookHandler(proc)

			rec := postWebhook(t, h, tc.target, tc.body)
			assert.Equal(t, http.StatusOK, rec.Code)

			select {
			case <-proc.started:
			case <-time.After(2 * time.Second):
				t.Fatal("processor never invoked")
			}
			assert.Equal(t, []string{tc.want}, proc.processed())
		})
	}
}

func TestReceiveWithoutPaymentID(t *testing.T) {
	proc := newBlockingProcessor()
	close(proc.release)
	h := NewWebhookHandler(proc)

	// Malformed deliveries are still acknowledged so the gateway stops
	// resending them, but nothing reaches the processor.
	rec := postWebhook(t, h, "/webhook/mp", `{"type":"test"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, proc.processed())
}
