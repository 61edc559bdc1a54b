package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rowanhall/tutorbill/internal/billing"
)

// BillingHandler exposes the billing orchestration operations as JSON routes.
type BillingHandler struct {
	svc    *billing.Service
	logger *slog.Logger
}

func NewBillingHandler(svc *billing.Service, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, logger: logger}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps business-rule errors to client-facing failures; anything
// unrecognized is a 500.
func (h *BillingHandler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, billing.ErrNoChildrenSelected):
		status = http.StatusBadRequest
	case errors.Is(err, billing.ErrParentNotFound),
		errors.Is(err, billing.ErrNoSubscription),
		errors.Is(err, billing.ErrNoCustomer):
		status = http.StatusNotFound
	case errors.Is(err, billing.ErrExistingSubscription),
		errors.Is(err, billing.ErrSubscriptionCanceledPending),
		errors.Is(err, billing.ErrNoPendingChanges):
		status = http.StatusConflict
	case errors.Is(err, billing.ErrSubscriptionFullyCanceled):
		status = http.StatusGone
	case errors.Is(err, billing.ErrNoPlanConfigured):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("billing operation failed", "error", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

type childrenRequest struct {
	ChildrenIDs []string `json:"children_ids"`
}

func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	var req childrenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	url, err := h.svc.StartCheckout(r.Context(), parentID, req.ChildrenIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	url, err := h.svc.PortalURL(r.Context(), parentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *BillingHandler) Status(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	status, err := h.svc.GetSubscriptionStatus(r.Context(), parentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *BillingHandler) AddChildren(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	var req childrenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	result, err := h.svc.AddChildren(r.Context(), parentID, req.ChildrenIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) RemoveChildren(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	var req childrenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	result, err := h.svc.RemoveChildren(r.Context(), parentID, req.ChildrenIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	result, err := h.svc.CancelSubscription(r.Context(), parentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) Resume(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	result, err := h.svc.ResumeSubscription(r.Context(), parentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) CancelPendingRemoval(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	var req struct {
		ChildID string `json:"child_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	result, err := h.svc.CancelPendingRemoval(r.Context(), parentID, req.ChildID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) Prorata(w http.ResponseWriter, r *http.Request) {
	parentID := ParentIDFromContext(r.Context())
	var req struct {
		NumChildren int `json:"num_children"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	amount, err := h.svc.CalculateAddChildrenProrata(r.Context(), parentID, req.NumChildren)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"prorated_amount_cents": amount})
}
