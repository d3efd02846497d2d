package credentials

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/respond"
)

// Handler exposes the credential lifecycle over HTTP.
//
//	GET  /credentials/authorize?returnUrl=  → 302 to the consent screen
//	GET  /credentials/callback              → 302 back to the app
//	GET  /credentials/status                → {isConnected, needsRefresh, expiresAt}
//	POST /credentials/unlink                → {success:true}
//
// The callback is reached by the browser straight from the provider and is
// the only route that does not require x-user-id.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the credential routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /credentials/authorize", h.authorize)
	mux.HandleFunc("GET /credentials/callback", h.callback)
	mux.HandleFunc("GET /credentials/status", h.status)
	mux.HandleFunc("POST /credentials/unlink", h.unlink)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	authURL, err := h.svc.Authorize(r.Context(), userID, r.URL.Query().Get("returnUrl"))
	if err != nil {
		respond.Err(w, err)
		return
	}
	// SPA callers fetch the URL and navigate themselves.
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		respond.OK(w, map[string]string{"authUrl": authURL})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	ret, err := h.svc.Callback(r.Context(), code, state)
	if err != nil {
		reason := "internal error"
		var ae *apperr.AuthExchangeError
		if errors.As(err, &ae) {
			reason = ae.Reason
		}
		// The provider reports a denied consent as ?error= without a code.
		if providerErr := q.Get("error"); providerErr != "" && code == "" {
			reason = providerErr
		}
		slog.Warn("authorization callback failed", "reason", reason, "err", err)
		http.Redirect(w, r, withQuery(ret, "connected", "error", "reason", reason), http.StatusFound)
		return
	}
	http.Redirect(w, r, withQuery(ret, "connected", "success"), http.StatusFound)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Status(r.Context(), userID)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.OK(w, st)
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	if err := h.svc.Unlink(r.Context(), userID); err != nil {
		respond.Err(w, err)
		return
	}
	respond.OK(w, map[string]bool{"success": true})
}
