package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/model"
)

const providerName = "scrape provider"

// abortTimeout bounds the best-effort provider abort issued when a run's
// context ends before the provider does.
const abortTimeout = 10 * time.Second

// Orchestrator drives one provider run from start to dataset listing.
type Orchestrator struct {
	provider   Provider
	poll       time.Duration
	maxResults int
}

// NewOrchestrator returns an orchestrator that sleeps poll between provider
// long-polls.
func NewOrchestrator(p Provider, poll time.Duration, maxResults int) *Orchestrator {
	return &Orchestrator{provider: p, poll: poll, maxResults: maxResults}
}

// Provider exposes the underlying adapter, used by the abort path.
func (o *Orchestrator) Provider() Provider { return o.provider }

// Scrape starts a run for query, reports the run id through onStart, waits
// for the run to finish and returns its dataset items. A non-nil error from
// onStart stops the run. Provider failures are returned as
// *apperr.ProviderError; context errors are returned unwrapped.
func (o *Orchestrator) Scrape(ctx context.Context, query string, onStart func(runID string) error) ([]model.RawRecord, error) {
	run, err := o.provider.StartRun(ctx, query, o.maxResults)
	if err != nil {
		return nil, o.fail(ctx, "start run", err)
	}
	if err := onStart(run.ID); err != nil {
		o.abort(run.ID)
		return nil, err
	}

	for !run.Status.Finished() {
		next, err := o.provider.WaitForRun(ctx, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				o.abort(run.ID)
			}
			return nil, o.fail(ctx, "poll run", err)
		}
		run.Status = next.Status
		if next.DatasetID != "" {
			run.DatasetID = next.DatasetID
		}
		if run.Status.Finished() {
			break
		}
		select {
		case <-ctx.Done():
			o.abort(run.ID)
			return nil, ctx.Err()
		case <-time.After(o.poll):
		}
	}

	if run.Status != RunSucceeded {
		return nil, &apperr.ProviderError{
			Provider: providerName,
			Msg:      fmt.Sprintf("run %s finished with status %s", run.ID, run.Status),
		}
	}

	items, err := o.provider.ListItems(ctx, run.DatasetID)
	if err != nil {
		return nil, o.fail(ctx, "list items", err)
	}
	return items, nil
}

func (o *Orchestrator) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &apperr.ProviderError{Provider: providerName, Msg: op, Err: err}
}

func (o *Orchestrator) abort(runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if err := o.provider.AbortRun(ctx, runID); err != nil {
		slog.Warn("provider abort failed", "runId", runID, "err", err)
	}
}
