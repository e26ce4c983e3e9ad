// Package httphandler is the REST driving adapter.
package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/handoff/internal/application"
	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

const maxBodyBytes = 1 << 20

// Services groups the application services the handler drives.
type Services struct {
	Listings  *application.ListingService
	Lifecycle *application.LifecycleService
	Orders    *application.OrderService
	Outbox    *application.OutboxService
	UserSync  *application.UserSyncService
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	svc           Services
	verifier      driven.IdentityVerifier
	users         driven.UserStore
	webhookSecret []byte
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. An empty
// webhookSecret disables the identity webhook.
func NewHandler(
	svc Services,
	verifier driven.IdentityVerifier,
	users driven.UserStore,
	webhookSecret string,
	logger *slog.Logger,
) *Handler {
	var secret []byte
	if webhookSecret != "" {
		secret = []byte(webhookSecret)
	}
	return &Handler{
		svc:           svc,
		verifier:      verifier,
		users:         users,
		webhookSecret: secret,
		logger:        logger,
	}
}

// RegisterAPIRoutes registers all REST API routes on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/listings", h.ListPublic)
	mux.HandleFunc("POST /api/v1/listings", h.authenticated(h.CreateListing))
	mux.HandleFunc("GET /api/v1/listings/{id}", h.optionalActor(h.GetListing))
	mux.HandleFunc("PUT /api/v1/listings/{id}", h.authenticated(h.UpdateListing))
	mux.HandleFunc("DELETE /api/v1/listings/{id}", h.authenticated(h.DeleteListing))
	mux.HandleFunc("PUT /api/v1/listings/{id}/status", h.authenticated(h.ToggleStatus))
	mux.HandleFunc("PUT /api/v1/listings/{id}/featured", h.authenticated(h.MarkFeatured))

	mux.HandleFunc("POST /api/v1/listings/{id}/credentials", h.authenticated(h.SubmitCredentials))
	mux.HandleFunc("POST /api/v1/listings/{id}/credentials/verify", h.authenticated(h.VerifyCredentials))
	mux.HandleFunc("POST /api/v1/listings/{id}/credentials/change", h.authenticated(h.ChangeCredentials))
	mux.HandleFunc("GET /api/v1/listings/{id}/credentials/history", h.authenticated(h.CredentialHistory))

	mux.HandleFunc("GET /api/v1/me/listings", h.authenticated(h.MyListings))
	mux.HandleFunc("GET /api/v1/me/orders", h.authenticated(h.MyOrders))
	mux.HandleFunc("POST /api/v1/me/withdrawals", h.authenticated(h.Withdraw))

	mux.HandleFunc("POST /api/v1/admin/listings/{id}/sale", h.authenticated(h.RecordSale))
	mux.HandleFunc("GET /api/v1/admin/outbox", h.authenticated(h.ListOutbox))
	mux.HandleFunc("POST /api/v1/admin/outbox/{id}/requeue", h.authenticated(h.RequeueOutbox))

	mux.HandleFunc("POST /api/v1/webhooks/identity", h.IdentityWebhook)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// decodeBody reads a JSON request body into v. It writes a 400 response and
// reports false when the body is malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, application.CodeValidationFailed, "invalid request body")
		return false
	}
	return true
}

// ListPublic returns active listings matching the query filters.
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := application.PublicFilter{
		Platform: q.Get("platform"),
		Niche:    q.Get("niche"),
		Query:    q.Get("q"),
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"min_price", &filter.MinPriceCents},
		{"max_price", &filter.MaxPriceCents},
		{"min_followers", &filter.MinFollowers},
	}
	for _, p := range ints {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, application.CodeValidationFailed, "invalid "+p.name)
			return
		}
		*p.dst = n
	}
	if v := q.Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, application.CodeValidationFailed, "invalid verified")
			return
		}
		filter.VerifiedOnly = b
	}

	listings, err := h.svc.Listings.ListPublic(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// CreateListing adds a listing owned by the caller.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req ListingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.svc.Listings.Create(r.Context(), actor, req.toInput())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(*l))
}

// GetListing returns one listing.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	l, err := h.svc.Listings.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(*l))
}

// UpdateListing replaces the catalogue fields of the caller's listing.
func (h *Handler) UpdateListing(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req ListingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.svc.Listings.Update(r.Context(), actor, r.PathValue("id"), req.toInput())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(*l))
}

// DeleteListing soft-deletes the caller's listing.
func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	if err := h.svc.Lifecycle.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleStatus flips the caller's listing between active and inactive.
func (h *Handler) ToggleStatus(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	l, err := h.svc.Listings.ToggleStatus(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(*l))
}

// MarkFeatured makes the listing the caller's single featured listing.
func (h *Handler) MarkFeatured(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	l, err := h.svc.Lifecycle.MarkFeatured(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(*l))
}

// SubmitCredentials stores the seller's access secrets for a listing.
func (h *Handler) SubmitCredentials(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req SubmitCredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.svc.Lifecycle.Submit(r.Context(), actor, r.PathValue("id"), toCredentialFields(req.Fields))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(*l))
}

// VerifyCredentials confirms the submitted secrets work.
func (h *Handler) VerifyCredentials(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	l, err := h.svc.Lifecycle.Verify(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(*l))
}

// ChangeCredentials rotates verified secrets and notifies the recipient.
func (h *Handler) ChangeCredentials(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req ChangeCredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.Lifecycle.Change(r.Context(), actor, r.PathValue("id"), toCredentialFields(req.Changes))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChangeResponse{
		Listing:    toListingResponse(res.Listing),
		Credential: toCredentialVersionResponse(res.Version),
	})
}

// CredentialHistory returns every credential version of a listing, oldest first.
func (h *Handler) CredentialHistory(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	versions, err := h.svc.Lifecycle.CredentialHistory(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make([]CredentialVersionResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, toCredentialVersionResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MyListings returns the caller's listings and balance.
func (h *Handler) MyListings(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	own, err := h.svc.Listings.ListForOwner(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OwnerListingsResponse{
		Listings: toListingResponses(own.Listings),
		Balance:  toBalanceResponse(own.Balance),
	})
}

// MyOrders returns the caller's paid orders with credentials.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	purchases, err := h.svc.Orders.ListOrders(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make([]PurchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		resp = append(resp, toPurchaseResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Withdraw pays out part of the caller's available balance.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var req WithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.svc.Orders.Withdraw(r.Context(), actor, req.AmountCents, req.Account)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(*balance))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

