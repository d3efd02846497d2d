package mailer

import (
	"net/http"

	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/respond"
)

// Handler exposes application sending over HTTP.
//
//	POST /emails/send          → {success:true, channel}
//	GET  /emails/applications  → sent applications, newest first
type Handler struct {
	d *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{d: d}
}

// RegisterRoutes mounts the send routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /emails/send", h.send)
	mux.HandleFunc("GET /emails/applications", h.applications)
}

type sendResponse struct {
	Success bool              `json:"success"`
	Channel model.SendChannel `json:"channel"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	var in SendInput
	if !respond.DecodeJSON(w, r, &in) {
		return
	}
	channel, err := h.d.Send(r.Context(), userID, in)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.OK(w, sendResponse{Success: true, Channel: channel})
}

func (h *Handler) applications(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	apps, err := h.d.ListApplications(r.Context(), userID)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.OK(w, apps)
}
