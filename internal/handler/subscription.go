package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/service"
	"github.com/go-chi/chi/v5"
)

// SubscriptionHandler handles HTTP requests for subscription endpoints.
type SubscriptionHandler struct {
	notifySvc *service.NotifyService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(notifySvc *service.NotifyService) *SubscriptionHandler {
	return &SubscriptionHandler{notifySvc: notifySvc}
}

// upsertSubscriptionRequest is the JSON request body for POST /subscriptions.
type upsertSubscriptionRequest struct {
	Subscriber string   `json:"subscriber"`
	URL        string   `json:"url"`
	Events     []string `json:"events"`
}

type subscriptionResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Subscriber     string `json:"subscriber"`
	Event          string `json:"event"`
	URL            string `json:"url"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// subscriptionListResponse is the JSON response for POST and
// GET /subscriptions.
type subscriptionListResponse struct {
	Subscriptions []subscriptionResponse `json:"subscriptions"`
}

// Upsert handles POST /subscriptions.
func (h *SubscriptionHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertSubscriptionRequest
	if err := ParseJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	subs, anyCreated, err := h.notifySvc.Upsert(service.UpsertSubscriptionRequest{
		Subscriber: req.Subscriber,
		URL:        req.URL,
		Events:     req.Events,
	})
	if err != nil {
		mapSubscriptionError(w, err)
		return
	}

	status := http.StatusOK
	if anyCreated {
		status = http.StatusCreated
	}
	WriteJSON(w, status, subscriptionListResponse{Subscriptions: buildSubscriptionResponses(subs)})
}

// List handles GET /subscriptions.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.notifySvc.List(r.URL.Query().Get("subscriber"))
	if err != nil {
		mapSubscriptionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, subscriptionListResponse{Subscriptions: buildSubscriptionResponses(subs)})
}

// Delete handles DELETE /subscriptions/{subscription_id}.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.notifySvc.Delete(chi.URLParam(r, "subscription_id")); err != nil {
		mapSubscriptionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildSubscriptionResponses(subs []*domain.Subscription) []subscriptionResponse {
	result := make([]subscriptionResponse, len(subs))
	for i, s := range subs {
		result[i] = subscriptionResponse{
			SubscriptionID: s.SubscriptionID,
			Subscriber:     s.Subscriber,
			Event:          s.Event,
			URL:            s.URL,
			CreatedAt:      s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			UpdatedAt:      s.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return result
}

// mapSubscriptionError maps domain errors to HTTP responses for
// subscription endpoints.
func mapSubscriptionError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		WriteError(w, http.StatusNotFound, "subscription_not_found", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
