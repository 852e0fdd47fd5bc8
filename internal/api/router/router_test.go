package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/clinicflow/booking-engine/internal/gateway"
	"github.com/clinicflow/booking-engine/internal/webhook"
	"github.com/clinicflow/booking-engine/pkg/logging"
)

type echoEngine struct{}

func (echoEngine) Handle(ctx context.Context, sender, text string) (string, error) {
	return "echo: " + text, nil
}

type noopMessenger struct{}

func (noopMessenger) SendMessage(ctx context.Context, req gateway.SendRequest) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	handler := webhook.NewHandler("", echoEngine{}, noopMessenger{}, nil, nil, "+15550000000", logging.Default())
	return New(&Config{WebhookHandler: handler})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookRoute(t *testing.T) {
	router := newTestRouter(t)

	form := url.Values{}
	form.Set("Body", "hi")
	form.Set("From", "+15551234567")
	form.Set("MessageSid", "SM1")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterWebhookRejectsGet(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/gateway/messages", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	handler := webhook.NewHandler("", echoEngine{}, noopMessenger{}, nil, nil, "", logging.Default())
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router := New(&Config{WebhookHandler: handler, MetricsHandler: metricsHandler})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}
