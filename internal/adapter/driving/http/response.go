package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/handoff/internal/application"
	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"INTERNAL"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// kindStatus maps each application error kind to its HTTP status.
var kindStatus = map[application.Kind]int{
	application.KindValidation:      http.StatusBadRequest,
	application.KindUnauthenticated: http.StatusUnauthorized,
	application.KindAuthorization:   http.StatusForbidden,
	application.KindNotFound:        http.StatusNotFound,
	application.KindConflict:        http.StatusConflict,
	application.KindDependency:      http.StatusServiceUnavailable,
	application.KindInternal:        http.StatusInternalServerError,
}

// writeServiceError writes err as returned by an application service.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	d := application.DetailsOf(err)
	status, ok := kindStatus[d.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", d.Kind, "error", err)
	}

	writeJSON(w, status, errorResponse{
		Error:   d.Message,
		Code:    d.Code,
		Kind:    string(d.Kind),
		Fields:  d.Fields,
		Details: d.Metadata,
	})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Kind    string            `json:"kind,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// ListingRequest is the JSON body for creating or updating a listing.
type ListingRequest struct {
	Title          string   `json:"title"`
	Platform       string   `json:"platform"`
	Username       string   `json:"username"`
	Niche          string   `json:"niche"`
	FollowersCount int64    `json:"followers_count"`
	EngagementRate float64  `json:"engagement_rate"`
	MonthlyViews   int64    `json:"monthly_views"`
	PriceCents     int64    `json:"price_cents"`
	Description    string   `json:"description"`
	Images         []string `json:"images"`
}

func (req ListingRequest) toInput() application.ListingInput {
	return application.ListingInput{
		Title:          req.Title,
		Platform:       req.Platform,
		Username:       req.Username,
		Niche:          req.Niche,
		FollowersCount: req.FollowersCount,
		EngagementRate: req.EngagementRate,
		MonthlyViews:   req.MonthlyViews,
		PriceCents:     req.PriceCents,
		Description:    req.Description,
		Images:         req.Images,
	}
}

// ListingResponse is the JSON representation of a listing. The three credential
// flags are derived from the single stored credential state.
type ListingResponse struct {
	ID                    string   `json:"id"`
	OwnerID               string   `json:"owner_id"`
	Title                 string   `json:"title"`
	Platform              string   `json:"platform"`
	Username              string   `json:"username"`
	Niche                 string   `json:"niche"`
	FollowersCount        int64    `json:"followers_count"`
	EngagementRate        float64  `json:"engagement_rate"`
	MonthlyViews          int64    `json:"monthly_views"`
	PriceCents            int64    `json:"price_cents"`
	Description           string   `json:"description"`
	DescriptionHTML       string   `json:"description_html"`
	Images                []string `json:"images"`
	Status                string   `json:"status"`
	Featured              bool     `json:"featured"`
	CredentialState       string   `json:"credential_state"`
	IsCredentialSubmitted bool     `json:"is_credential_submitted"`
	IsCredentialVerified  bool     `json:"is_credential_verified"`
	IsCredentialChanged   bool     `json:"is_credential_changed"`
	Version               int64    `json:"version"`
	CreatedAt             string   `json:"created_at"`
	UpdatedAt             string   `json:"updated_at"`
}

func toListingResponse(l model.Listing) ListingResponse {
	images := l.Images
	if images == nil {
		images = []string{}
	}

	return ListingResponse{
		ID:                    l.ID,
		OwnerID:               l.OwnerID,
		Title:                 l.Title,
		Platform:              l.Platform,
		Username:              l.Username,
		Niche:                 l.Niche,
		FollowersCount:        l.FollowersCount,
		EngagementRate:        l.EngagementRate,
		MonthlyViews:          l.MonthlyViews,
		PriceCents:            l.PriceCents,
		Description:           l.Description,
		DescriptionHTML:       RenderMarkdown(l.Description),
		Images:                images,
		Status:                string(l.Status),
		Featured:              l.Featured,
		CredentialState:       string(l.CredentialState),
		IsCredentialSubmitted: l.CredentialSubmitted(),
		IsCredentialVerified:  l.CredentialVerified(),
		IsCredentialChanged:   l.CredentialChanged(),
		Version:               l.Version,
		CreatedAt:             formatTime(l.CreatedAt),
		UpdatedAt:             formatTime(l.UpdatedAt),
	}
}

func toListingResponses(listings []model.Listing) []ListingResponse {
	resp := make([]ListingResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, toListingResponse(l))
	}
	return resp
}

// BalanceResponse is a seller's earnings summary.
type BalanceResponse struct {
	EarnedCents    int64 `json:"earned_cents"`
	WithdrawnCents int64 `json:"withdrawn_cents"`
	AvailableCents int64 `json:"available_cents"`
}

func toBalanceResponse(b application.Balance) BalanceResponse {
	return BalanceResponse{
		EarnedCents:    b.EarnedCents,
		WithdrawnCents: b.WithdrawnCents,
		AvailableCents: b.AvailableCents,
	}
}

// OwnerListingsResponse is the seller dashboard.
type OwnerListingsResponse struct {
	Listings []ListingResponse `json:"listings"`
	Balance  BalanceResponse   `json:"balance"`
}

// CredentialFieldBody is one named secret in a request or response.
type CredentialFieldBody struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SubmitCredentialsRequest is the JSON body for a seller submission.
type SubmitCredentialsRequest struct {
	Fields []CredentialFieldBody `json:"fields"`
}

// ChangeCredentialsRequest is the JSON body for an admin rotation. An empty value
// asks the service to generate one.
type ChangeCredentialsRequest struct {
	Changes []CredentialFieldBody `json:"changes"`
}

func toCredentialFields(body []CredentialFieldBody) []model.CredentialField {
	fields := make([]model.CredentialField, 0, len(body))
	for _, f := range body {
		fields = append(fields, model.CredentialField{Name: f.Name, Value: f.Value})
	}
	return fields
}

// CredentialVersionResponse is one entry of the credential audit trail.
type CredentialVersionResponse struct {
	ID         string                `json:"id"`
	Seq        int64                 `json:"seq"`
	Submission int64                 `json:"submission"`
	Kind       string                `json:"kind"`
	Fields     []CredentialFieldBody `json:"fields"`
	CreatedBy  string                `json:"created_by"`
	CreatedAt  string                `json:"created_at"`
	Redacted   bool                  `json:"redacted,omitempty"`
}

func toCredentialVersionResponse(v model.CredentialVersion) CredentialVersionResponse {
	fields := make([]CredentialFieldBody, 0, len(v.Fields))
	for _, f := range v.Fields {
		fields = append(fields, CredentialFieldBody{Name: f.Name, Value: f.Value})
	}

	return CredentialVersionResponse{
		ID:         v.ID,
		Seq:        v.Seq,
		Submission: v.Submission,
		Kind:       string(v.Kind),
		Fields:     fields,
		CreatedBy:  v.CreatedBy,
		CreatedAt:  formatTime(v.CreatedAt),
		Redacted:   v.Redacted,
	}
}

// ChangeResponse is the result of an admin rotation.
type ChangeResponse struct {
	Listing    ListingResponse           `json:"listing"`
	Credential CredentialVersionResponse `json:"credential"`
}

// SaleRequest is the JSON body for recording a paid sale.
type SaleRequest struct {
	BuyerID     string `json:"buyer_id"`
	AmountCents int64  `json:"amount_cents"`
}

// OrderResponse is the JSON representation of an order.
type OrderResponse struct {
	ID          string `json:"id"`
	ListingID   string `json:"listing_id"`
	BuyerID     string `json:"buyer_id"`
	AmountCents int64  `json:"amount_cents"`
	IsPaid      bool   `json:"is_paid"`
	CreatedAt   string `json:"created_at"`
}

func toOrderResponse(o model.Order) OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		ListingID:   o.ListingID,
		BuyerID:     o.BuyerID,
		AmountCents: o.AmountCents,
		IsPaid:      o.IsPaid,
		CreatedAt:   formatTime(o.CreatedAt),
	}
}

// PurchaseResponse is a buyer's order with the listing and its current credentials.
type PurchaseResponse struct {
	Order      OrderResponse              `json:"order"`
	Listing    *ListingResponse           `json:"listing"`
	Credential *CredentialVersionResponse `json:"credential"`
}

func toPurchaseResponse(p application.PurchasedListing) PurchaseResponse {
	resp := PurchaseResponse{Order: toOrderResponse(p.Order)}
	if p.Listing != nil {
		l := toListingResponse(*p.Listing)
		resp.Listing = &l
	}
	if p.Credential != nil {
		c := toCredentialVersionResponse(*p.Credential)
		resp.Credential = &c
	}
	return resp
}

// WithdrawRequest is the JSON body for a payout.
type WithdrawRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Account     string `json:"account"`
}

// OutboxMessageResponse is one entry of the operator queue.
type OutboxMessageResponse struct {
	ID            string            `json:"id"`
	ListingID     string            `json:"listing_id"`
	RecipientID   string            `json:"recipient_id"`
	Template      string            `json:"template"`
	Payload       map[string]string `json:"payload"`
	Status        string            `json:"status"`
	Attempts      int               `json:"attempts"`
	NextAttemptAt string            `json:"next_attempt_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

func toOutboxMessageResponse(m model.OutboxMessage) OutboxMessageResponse {
	payload := m.Payload
	if payload == nil {
		payload = map[string]string{}
	}

	resp := OutboxMessageResponse{
		ID:          m.ID,
		ListingID:   m.ListingID,
		RecipientID: m.RecipientID,
		Template:    m.Template,
		Payload:     payload,
		Status:      string(m.Status),
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		CreatedAt:   formatTime(m.CreatedAt),
		UpdatedAt:   formatTime(m.UpdatedAt),
	}
	if !m.NextAttemptAt.IsZero() {
		resp.NextAttemptAt = formatTime(m.NextAttemptAt)
	}
	return resp
}

// IdentityEventRequest is the body the identity provider POSTs for user changes.
type IdentityEventRequest struct {
	Type string           `json:"type"`
	Data IdentityUserBody `json:"data"`
}

// IdentityUserBody is the user record inside an identity event.
type IdentityUserBody struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Plan     string `json:"plan"`
}

func (req IdentityEventRequest) toEvent() model.UserEvent {
	return model.UserEvent{
		Type: req.Type,
		User: model.User{
			ID:       req.Data.ID,
			Email:    req.Data.Email,
			Name:     req.Data.Name,
			ImageURL: req.Data.ImageURL,
			Plan:     model.Plan(req.Data.Plan),
		},
	}
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
