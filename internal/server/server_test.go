package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rowanhall/tutorbill/internal/database"
	"github.com/rowanhall/tutorbill/internal/stripeclient"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, cfg, logger)
}

func TestHealthAlwaysAvailable(t *testing.T) {
	srv := newTestServer(t, Config{})
	router := srv.Router()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestBillingDisabledWithoutStripeKey(t *testing.T) {
	srv := newTestServer(t, Config{})
	if srv.BillingEnabled() {
		t.Fatal("billing should be disabled without a stripe key")
	}

	router := srv.Router()
	req := httptest.NewRequest("GET", "/api/billing/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when billing is disabled", rec.Code)
	}
}

func TestBillingRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t, Config{
		Stripe:     stripeclient.Config{SecretKey: "sk_test_x", WebhookSecret: "whsec_x"},
		BaseURL:    "http://localhost:8090",
		AuthSecret: "test-secret",
	})
	if !srv.BillingEnabled() {
		t.Fatal("billing should be enabled")
	}

	router := srv.Router()
	req := httptest.NewRequest("GET", "/api/billing/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", rec.Code)
	}
}

func TestWebhookRouteRejectsUnsignedPayload(t *testing.T) {
	srv := newTestServer(t, Config{
		Stripe:     stripeclient.Config{SecretKey: "sk_test_x", WebhookSecret: "whsec_x"},
		BaseURL:    "http://localhost:8090",
		AuthSecret: "test-secret",
	})

	router := srv.Router()
	req := httptest.NewRequest("POST", "/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unsigned payload", rec.Code)
	}
}
