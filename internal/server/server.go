package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/rowanhall/tutorbill/internal/billing"
	"github.com/rowanhall/tutorbill/internal/handler"
	"github.com/rowanhall/tutorbill/internal/middleware"
	"github.com/rowanhall/tutorbill/internal/store"
	"github.com/rowanhall/tutorbill/internal/stripeclient"
)

type Config struct {
	Stripe     stripeclient.Config
	BaseURL    string
	AuthSecret string
}

// Server wires stores, the billing service and the HTTP handlers. When no
// Stripe secret key is configured the server still starts, but only the
// health route is registered and every billing capability stays dark.
type Server struct {
	cfg    Config
	logger *slog.Logger

	billingHandler *handler.BillingHandler
	webhookHandler *handler.WebhookHandler
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, logger: logger}

	if cfg.Stripe.SecretKey == "" {
		logger.Warn("stripe secret key not configured, billing disabled")
		return s
	}

	plans := store.NewPlanStore(db)
	ledger := store.NewFamilyBillingStore(db)
	users := store.NewUserStore(db)

	stripeClient := stripeclient.New(cfg.Stripe)
	planCache := billing.NewPlanCache(plans, logger.With("component", "plan_cache"))

	svc := billing.NewService(stripeClient, planCache, ledger, users, billing.Config{
		SuccessURL:      cfg.BaseURL + "/billing/success",
		CancelURL:       cfg.BaseURL + "/billing/canceled",
		PortalReturnURL: cfg.BaseURL + "/account",
	}, logger.With("component", "billing"))

	ingestor := billing.NewWebhookIngestor(planCache, ledger, users, logger.With("component", "webhook"))

	s.billingHandler = handler.NewBillingHandler(svc, logger.With("component", "billing_handler"))
	s.webhookHandler = handler.NewWebhookHandler(stripeClient, ingestor, logger.With("component", "webhook_handler"))
	return s
}

// BillingEnabled reports whether Stripe is configured and billing routes are
// being served.
func (s *Server) BillingEnabled() bool {
	return s.billingHandler != nil
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if !s.BillingEnabled() {
		return mux
	}

	requireParent := middleware.RequireParent([]byte(s.cfg.AuthSecret))

	authed := http.NewServeMux()
	authed.HandleFunc("POST /api/billing/checkout", s.billingHandler.Checkout)
	authed.HandleFunc("POST /api/billing/portal", s.billingHandler.Portal)
	authed.HandleFunc("GET /api/billing/status", s.billingHandler.Status)
	authed.HandleFunc("POST /api/billing/children/add", s.billingHandler.AddChildren)
	authed.HandleFunc("POST /api/billing/children/remove", s.billingHandler.RemoveChildren)
	authed.HandleFunc("POST /api/billing/pending-removal/cancel", s.billingHandler.CancelPendingRemoval)
	authed.HandleFunc("POST /api/billing/cancel", s.billingHandler.Cancel)
	authed.HandleFunc("POST /api/billing/resume", s.billingHandler.Resume)
	authed.HandleFunc("POST /api/billing/prorata", s.billingHandler.Prorata)
	mux.Handle("/api/billing/", requireParent(authed))

	mux.HandleFunc("POST /webhooks/stripe", s.webhookHandler.HandleStripeWebhook)

	return mux
}
