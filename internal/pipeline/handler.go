package pipeline

import (
	"net/http"
	"time"

	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/respond"
)

// ─── Response types ───────────────────────────────────────────────────────────

// RequestView is the JSON shape of one request returned to polling clients.
type RequestView struct {
	ID              string                  `json:"id"`
	Status          model.Status            `json:"status"`
	Results         []model.RawRecord       `json:"results,omitempty"`
	FilteredResults []model.JobLead         `json:"filteredResults,omitempty"`
	EnrichedResults []model.EnrichedJobLead `json:"enrichedResults,omitempty"`
	ErrorMessage    *string                 `json:"errorMessage,omitempty"`
	TotalCount      int                     `json:"totalCount"`
	FilteredCount   int                     `json:"filteredCount"`
	CanApplyCount   int                     `json:"canApplyCount"`
	Aborted         bool                    `json:"aborted"`
	KeepPolling     bool                    `json:"keepPolling"`
	CreatedAt       time.Time               `json:"createdAt"`
	CompletedAt     *time.Time              `json:"completedAt,omitempty"`
}

// NewRequestView converts a stored request into its response shape.
func NewRequestView(r *model.ScrapingRequest) RequestView {
	return RequestView{
		ID:              r.ID,
		Status:          r.Status,
		Results:         r.RawResults,
		FilteredResults: r.FilteredResults,
		EnrichedResults: r.EnrichedResults,
		ErrorMessage:    r.ErrorMessage,
		TotalCount:      r.Counts.Total,
		FilteredCount:   r.Counts.Filtered,
		CanApplyCount:   r.Counts.CanApply,
		Aborted:         r.Aborted,
		KeepPolling:     model.KeepPolling(r.Status),
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

// RequestSummary is the list form of a request, without result payloads.
type RequestSummary struct {
	ID            string         `json:"id"`
	Keyword       string         `json:"keyword"`
	Location      string         `json:"location"`
	WorkType      model.WorkType `json:"workType"`
	Status        model.Status   `json:"status"`
	Aborted       bool           `json:"aborted"`
	TotalCount    int            `json:"totalCount"`
	FilteredCount int            `json:"filteredCount"`
	CanApplyCount int            `json:"canApplyCount"`
	CreatedAt     time.Time      `json:"createdAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler exposes the request lifecycle over HTTP. All routes expect the
// x-user-id header forwarded by the Gateway.
//
//	POST /scrape-requests              → submit a search, 201 {requestId}
//	GET  /scrape-requests              → recent requests of the caller
//	GET  /scrape-requests/{id}         → status and results
//	POST /scrape-requests/{id}/abort   → stop a running request
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the request lifecycle routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /scrape-requests", h.submit)
	mux.HandleFunc("GET /scrape-requests", h.list)
	mux.HandleFunc("GET /scrape-requests/{id}", h.get)
	mux.HandleFunc("POST /scrape-requests/{id}/abort", h.abort)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	var in SubmitInput
	if !respond.DecodeJSON(w, r, &in) {
		return
	}
	id, err := h.svc.Submit(r.Context(), userID, in)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]string{"requestId": id})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	reqs, err := h.svc.List(r.Context(), userID)
	if err != nil {
		respond.Err(w, err)
		return
	}
	out := make([]RequestSummary, 0, len(reqs))
	for _, q := range reqs {
		out = append(out, RequestSummary{
			ID:            q.ID,
			Keyword:       q.Keyword,
			Location:      q.Location,
			WorkType:      q.WorkType,
			Status:        q.Status,
			Aborted:       q.Aborted,
			TotalCount:    q.Counts.Total,
			FilteredCount: q.Counts.Filtered,
			CanApplyCount: q.Counts.CanApply,
			CreatedAt:     q.CreatedAt,
			CompletedAt:   q.CompletedAt,
		})
	}
	respond.OK(w, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	req, err := h.svc.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.OK(w, NewRequestView(req))
}

func (h *Handler) abort(w http.ResponseWriter, r *http.Request) {
	userID, ok := respond.Owner(w, r)
	if !ok {
		return
	}
	if err := h.svc.Abort(r.Context(), userID, r.PathValue("id")); err != nil {
		respond.Err(w, err)
		return
	}
	respond.OK(w, map[string]bool{"success": true})
}
