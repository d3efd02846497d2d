// Package pipeline drives scrape requests through
// pending → processing → filtering → enriching → completed, or to failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/discovery"
	"jobmate/leads-service/internal/events"
	"jobmate/leads-service/internal/metrics"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/scraper"
	"jobmate/leads-service/internal/store"
)

const (
	// MsgBudgetExceeded is the errorMessage of a run that outlived its budget.
	MsgBudgetExceeded = "run exceeded maximum duration"
	MsgShutdown       = "interrupted by service shutdown"

	writeTimeout = 10 * time.Second
)

var (
	errAborted       = errors.New("aborted")
	errBudget        = errors.New("budget exceeded")
	errShutdown      = errors.New("shutdown")
	errNoLongerOwned = errors.New("request left the active states")
)

// Scraper runs a provider job for a canonical query.
type Scraper interface {
	Scrape(ctx context.Context, query string, onStart func(runID string) error) ([]model.RawRecord, error)
}

// RunnerConfig bundles the runner's collaborators.
type RunnerConfig struct {
	Requests    store.RequestStore
	Scraper     Scraper
	Finder      discovery.Finder
	Publisher   events.Publisher
	Concurrency int
	Budget      time.Duration
}

// Runner executes one goroutine per request and keeps a registry of the
// runs living in this process so they can be cancelled or awaited.
type Runner struct {
	cfg RunnerConfig

	base context.Context
	stop context.CancelCauseFunc

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 15 * time.Minute
	}
	base, stop := context.WithCancelCause(context.Background())
	return &Runner{cfg: cfg, base: base, stop: stop, runs: make(map[string]*run)}
}

// Start launches the pipeline for a freshly created pending request.
// It returns immediately.
func (r *Runner) Start(req *model.ScrapingRequest) {
	ctx, cancel := context.WithCancelCause(r.base)
	ctx, cancelBudget := context.WithTimeoutCause(ctx, r.cfg.Budget, errBudget)
	rn := &run{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.runs[req.ID] = rn
	r.mu.Unlock()

	r.wg.Add(1)
	metrics.RunsInFlight.Inc()
	go func() {
		defer func() {
			cancelBudget()
			cancel(nil)
			r.mu.Lock()
			delete(r.runs, req.ID)
			r.mu.Unlock()
			close(rn.done)
			metrics.RunsInFlight.Dec()
			r.wg.Done()
		}()
		r.execute(ctx, req)
	}()
}

// Cancel stops an in-process run after its abort has been recorded.
// It reports whether a run was found.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	rn, ok := r.runs[id]
	r.mu.Unlock()
	if ok {
		rn.cancel(errAborted)
	}
	return ok
}

// Wait blocks until the run for id exits or ctx ends. It returns
// immediately when no such run lives in this process.
func (r *Runner) Wait(ctx context.Context, id string) error {
	r.mu.Lock()
	rn, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-rn.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every in-flight run and waits for each to record its
// terminal state.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stop(errShutdown)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) execute(ctx context.Context, req *model.ScrapingRequest) {
	log := slog.With("requestId", req.ID)

	if !r.advance(ctx, req, model.StatusPending, model.StatusProcessing, store.Update{}) {
		return
	}

	// processing
	began := time.Now()
	raws, err := r.cfg.Scraper.Scrape(ctx, req.SourceQuery, func(runID string) error {
		ok, err := r.cfg.Requests.SetRunID(ctx, req.ID, runID)
		if err != nil {
			return err
		}
		if !ok {
			return errNoLongerOwned
		}
		log.Info("provider run started", "runId", runID)
		return nil
	})
	if err != nil {
		r.fail(ctx, req, err)
		return
	}
	leads, err := scraper.NormalizeAll(raws)
	if err != nil {
		r.fail(ctx, req, &apperr.ProviderError{Provider: "scrape provider", Msg: "malformed payload", Err: err})
		return
	}
	metrics.StageDuration.WithLabelValues(string(model.StatusProcessing)).Observe(time.Since(began).Seconds())
	counts := model.LeadCounts{Total: len(raws)}
	if !r.advance(ctx, req, model.StatusProcessing, model.StatusFiltering,
		store.Update{RawResults: raws, Counts: &counts}) {
		return
	}

	// filtering
	began = time.Now()
	filtered, stats := FilterLeads(leads, req.ExcludeTerms)
	log.Info("leads filtered", "total", len(leads), "kept", len(filtered),
		"noLocation", stats.NoLocation, "duplicate", stats.Duplicate, "redFlag", stats.RedFlag)
	metrics.Leads.WithLabelValues("dropped").Add(float64(len(leads) - len(filtered)))
	metrics.StageDuration.WithLabelValues(string(model.StatusFiltering)).Observe(time.Since(began).Seconds())
	counts.Filtered = len(filtered)
	if !r.advance(ctx, req, model.StatusFiltering, model.StatusEnriching,
		store.Update{FilteredResults: filtered, Counts: &counts}) {
		return
	}

	// enriching
	began = time.Now()
	enriched, err := r.enrich(ctx, filtered)
	if err != nil {
		r.fail(ctx, req, err)
		return
	}
	for _, l := range enriched {
		if l.CanApply() {
			counts.CanApply++
		}
	}
	metrics.Leads.WithLabelValues("can_apply").Add(float64(counts.CanApply))
	metrics.StageDuration.WithLabelValues(string(model.StatusEnriching)).Observe(time.Since(began).Seconds())
	now := time.Now().UTC()
	if r.advance(ctx, req, model.StatusEnriching, model.StatusCompleted,
		store.Update{EnrichedResults: enriched, Counts: &counts, CompletedAt: &now}) {
		log.Info("request completed", "total", counts.Total, "filtered", counts.Filtered, "canApply", counts.CanApply)
	}
}

// enrich attaches a discovery verdict to every lead, preserving order.
func (r *Runner) enrich(ctx context.Context, leads []model.JobLead) ([]model.EnrichedJobLead, error) {
	out := make([]model.EnrichedJobLead, len(leads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, lead := range leads {
		if !discovery.Searchable(lead.CompanyName, lead.PosterName) {
			out[i] = model.EnrichedJobLead{JobLead: lead, EmailVerificationStatus: model.VerificationNone}
			continue
		}
		g.Go(func() error {
			res, err := r.cfg.Finder.Find(gctx, lead.CompanyName, lead.PosterName)
			if err != nil {
				if discovery.Fatal(err) {
					return err
				}
				slog.Warn("contact discovery failed", "company", lead.CompanyName, "err", err)
				out[i] = model.EnrichedJobLead{JobLead: lead, EmailVerificationStatus: model.VerificationError}
				return nil
			}
			out[i] = model.EnrichedJobLead{JobLead: lead, ContactEmail: res.Email, EmailVerificationStatus: res.Status}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &apperr.ProviderError{Provider: "contact discovery", Msg: "enrichment stopped", Err: err}
	}
	return out, nil
}

// advance writes a stage transition. It returns false when the run must
// stop: the CAS lost (abort or sweeper got there first) or the write failed.
func (r *Runner) advance(ctx context.Context, req *model.ScrapingRequest, from, to model.Status, u store.Update) bool {
	if ctx.Err() != nil {
		r.fail(ctx, req, ctx.Err())
		return false
	}
	ok, err := r.cfg.Requests.Transition(ctx, req.ID, from, to, u)
	if err != nil {
		r.fail(ctx, req, fmt.Errorf("write %s: %w", to, err))
		return false
	}
	if !ok {
		slog.Info("stage write discarded", "requestId", req.ID, "from", from, "to", to)
		return false
	}
	r.notify(req, from, to, false)
	return true
}

// fail records the terminal failed state on a context detached from the
// run, so cancellation cannot prevent it.
func (r *Runner) fail(ctx context.Context, req *model.ScrapingRequest, err error) {
	cause := context.Cause(ctx)
	if errors.Is(cause, errAborted) || errors.Is(err, errNoLongerOwned) {
		return
	}

	msg := err.Error()
	switch {
	case errors.Is(cause, errBudget):
		msg = MsgBudgetExceeded
	case errors.Is(cause, errShutdown):
		msg = MsgShutdown
	case errors.Is(err, context.DeadlineExceeded):
		// A provider gave up waiting on a deadline inside the run.
		msg = MsgBudgetExceeded
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	// The last status this run observed is unknown here; read it for the event.
	from := model.Status("")
	if cur, gerr := r.cfg.Requests.Get(wctx, req.ID); gerr == nil {
		from = cur.Status
	}
	ok, ferr := r.cfg.Requests.Fail(wctx, req.ID, msg, false)
	if ferr != nil {
		slog.Error("record failure", "requestId", req.ID, "err", ferr)
		return
	}
	if ok {
		slog.Warn("request failed", "requestId", req.ID, "reason", msg)
		r.notify(req, from, model.StatusFailed, false)
	}
}

func (r *Runner) notify(req *model.ScrapingRequest, from, to model.Status, aborted bool) {
	metrics.Transitions.WithLabelValues(string(to)).Inc()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	ev := events.StatusEvent{RequestID: req.ID, UserID: req.OwnerID, From: from, To: to, Aborted: aborted}
	if err := r.cfg.Publisher.PublishStatus(ctx, ev); err != nil {
		slog.Warn("publish EVENT_SCRAPE_STATUS failed", "requestId", req.ID, "err", err)
	}
}
