// Package scheduler wires up the cron job that enforces the run budget on
// requests left behind by a crashed or restarted process, and drops expired
// pending authorizations from the in-process cache.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"jobmate/leads-service/internal/events"
	"jobmate/leads-service/internal/metrics"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/pipeline"
	"jobmate/leads-service/internal/store"
)

// Sweeper is a cache that needs explicit eviction.
type Sweeper interface {
	Sweep() int
}

// Scheduler wraps robfig/cron and runs the sweep loop.
type Scheduler struct {
	cron     *cron.Cron
	requests store.RequestStore
	events   events.Publisher
	caches   []Sweeper
	budget   time.Duration
	spec     string // cron spec, e.g. "@every 1m"
	now      func() time.Time
}

// New creates a Scheduler that fails requests older than budget on every
// tick of spec and announces each one on pub.
func New(requests store.RequestStore, pub events.Publisher, budget time.Duration, spec string, caches ...Sweeper) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)))),
		requests: requests,
		events:   pub,
		caches:   caches,
		budget:   budget,
		spec:     spec,
		now:      time.Now,
	}
}

// Start registers the job and starts the scheduler. One sweep also runs
// immediately so rows orphaned by the previous process are settled early.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	slog.Info("sweeper started", "spec", s.spec, "budget", s.budget)

	go s.Sweep(ctx)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("sweeper stopped")
}

// Sweep runs one cycle and returns the number of requests it failed.
func (s *Scheduler) Sweep(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.budget)
	failed, err := s.requests.FailStale(ctx, cutoff, pipeline.MsgBudgetExceeded)
	if err != nil {
		slog.Error("sweep stale requests", "err", err)
	} else if len(failed) > 0 {
		metrics.StaleSwept.Add(float64(len(failed)))
		slog.Warn("failed stale requests", "count", len(failed), "createdBefore", cutoff)
	}
	for _, r := range failed {
		metrics.Transitions.WithLabelValues(string(model.StatusFailed)).Inc()
		ev := events.StatusEvent{RequestID: r.ID, UserID: r.OwnerID, From: r.From, To: model.StatusFailed}
		if err := s.events.PublishStatus(ctx, ev); err != nil {
			slog.Warn("publish EVENT_SCRAPE_STATUS failed", "requestId", r.ID, "err", err)
		}
	}

	for _, c := range s.caches {
		if dropped := c.Sweep(); dropped > 0 {
			slog.Debug("dropped expired cache entries", "count", dropped)
		}
	}
	return int64(len(failed))
}
