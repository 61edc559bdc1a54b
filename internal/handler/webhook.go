package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/rowanhall/tutorbill/internal/billing"
	"github.com/rowanhall/tutorbill/internal/stripeclient"
)

type WebhookHandler struct {
	stripeClient *stripeclient.Client
	ingestor     *billing.WebhookIngestor
	logger       *slog.Logger
}

func NewWebhookHandler(sc *stripeclient.Client, ingestor *billing.WebhookIngestor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{stripeClient: sc, ingestor: ingestor, logger: logger}
}

func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	// A non-2xx makes the remote side redeliver; ingestion is idempotent so
	// that is the desired recovery path for transient store failures.
	if err := h.ingestor.HandleEvent(r.Context(), event); err != nil {
		h.logger.Error("webhook ingestion failed", "event_type", event.Type, "error", err)
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
