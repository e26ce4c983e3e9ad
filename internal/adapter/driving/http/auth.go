package httphandler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ericfisherdev/handoff/internal/application"
	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// actorHandler is a handler that runs on behalf of a resolved caller.
type actorHandler func(w http.ResponseWriter, r *http.Request, actor model.Actor)

// authenticated resolves the bearer token into an Actor and rejects anonymous calls.
func (h *Handler) authenticated(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.resolveActor(w, r)
		if !ok {
			return
		}
		if actor.ID == "" {
			h.writeServiceError(w, r, application.NewUnauthenticatedError(nil))
			return
		}
		next(w, r, actor)
	}
}

// optionalActor resolves the caller when a token is present. Anonymous callers get
// the zero Actor; a present but invalid token is still rejected.
func (h *Handler) optionalActor(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.resolveActor(w, r)
		if !ok {
			return
		}
		next(w, r, actor)
	}
}

// resolveActor verifies the token and loads the caller's plan from the user store.
// It writes the error response itself and reports false on failure.
func (h *Handler) resolveActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return model.Actor{}, true
	}

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		h.writeServiceError(w, r, application.NewUnauthenticatedError(nil))
		return model.Actor{}, false
	}

	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		h.logger.Debug("token rejected", "error", err)
		h.writeServiceError(w, r, application.NewUnauthenticatedError(err))
		return model.Actor{}, false
	}

	actor := model.Actor{ID: identity.UserID, Role: identity.Role, Plan: model.PlanFree}
	u, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to load user", "user_id", identity.UserID, "error", err)
		writeError(w, http.StatusServiceUnavailable, application.CodeDependencyFailure, "user store unavailable")
		return model.Actor{}, false
	}
	if u != nil && u.Plan != "" {
		actor.Plan = u.Plan
	}
	return actor, true
}

// validSignature reports whether signature is the hex HMAC-SHA256 of body under
// secret. An optional "sha256=" prefix is accepted.
func validSignature(secret []byte, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
