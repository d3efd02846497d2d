// Package respond holds the JSON response helpers shared by the HTTP handlers.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"jobmate/leads-service/internal/apperr"
)

// OwnerHeader is the header carrying the caller's user id, forwarded by the Gateway.
const OwnerHeader = "x-user-id"

// MaxBodyBytes caps a JSON request body. It leaves room for one base64
// attachment on /emails/send.
const MaxBodyBytes = 10 << 20

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// OK writes v with 200.
func OK(w http.ResponseWriter, v any) { JSON(w, http.StatusOK, v) }

// Error writes {"error": msg} with the given status code.
func Error(w http.ResponseWriter, msg string, code int) {
	JSON(w, code, map[string]string{"error": msg})
}

// Err maps a domain error onto a status code and writes it.
func Err(w http.ResponseWriter, err error) {
	var (
		ve *apperr.ValidationError
		ae *apperr.AuthExchangeError
		ce *apperr.CredentialError
		pe *apperr.ProviderError
	)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &ve):
		Error(w, ve.Msg, http.StatusBadRequest)
	case errors.As(err, &ae):
		Error(w, ae.Reason, http.StatusBadRequest)
	case errors.As(err, &ce):
		Error(w, ce.Msg, http.StatusBadRequest)
	case errors.As(err, &pe):
		slog.Error("provider error", "err", err)
		Error(w, pe.Error(), http.StatusBadGateway)
	default:
		slog.Error("internal error", "err", err)
		Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Owner returns the caller's user id or writes 401 and returns false.
func Owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(OwnerHeader)
	if userID == "" {
		Error(w, "missing x-user-id header", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// DecodeJSON decodes at most MaxBodyBytes of the request body into v,
// writing 400 on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, "request body too large", http.StatusBadRequest)
			return false
		}
		Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}
