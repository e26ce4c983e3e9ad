package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/handoff/internal/application"
	"github.com/ericfisherdev/handoff/internal/domain/model"
)

const defaultOutboxPage = 100

// RecordSale stores the outcome of an external payment for a listing.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req SaleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.svc.Orders.RecordSale(r.Context(), actor, r.PathValue("id"), req.BuyerID, req.AmountCents)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(*order))
}

// ListOutbox returns outbox messages, optionally filtered by ?status=.
func (h *Handler) ListOutbox(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	limit := defaultOutboxPage
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, application.CodeValidationFailed, "invalid limit")
			return
		}
		limit = n
	}

	status := model.OutboxStatus(r.URL.Query().Get("status"))
	msgs, err := h.svc.Outbox.List(r.Context(), actor, status, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make([]OutboxMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, toOutboxMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RequeueOutbox returns a failed message to the delivery queue.
func (h *Handler) RequeueOutbox(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	if err := h.svc.Outbox.Requeue(r.Context(), actor, r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// IdentityWebhook applies a user event pushed by the identity provider. The body
// must carry a valid X-Signature HMAC.
func (h *Handler) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == nil {
		writeError(w, http.StatusNotFound, application.CodeNotFound, "identity webhook is disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, application.CodeValidationFailed, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, application.CodeValidationFailed, "unreadable request body")
		return
	}

	if !validSignature(h.webhookSecret, body, r.Header.Get("X-Signature")) {
		h.logger.Warn("identity webhook signature rejected", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, application.CodeUnauthenticated, "invalid signature")
		return
	}

	var req IdentityEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, application.CodeValidationFailed, "invalid request body")
		return
	}

	if err := h.svc.UserSync.HandleEvent(r.Context(), req.toEvent()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
