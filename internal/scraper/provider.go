package scraper

import (
	"context"
	"fmt"
	"sort"

	"jobmate/leads-service/internal/model"
)

// RunStatus is a provider run state.
type RunStatus string

const (
	RunReady     RunStatus = "READY"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunAborting  RunStatus = "ABORTING"
	RunAborted   RunStatus = "ABORTED"
	RunTimingOut RunStatus = "TIMING-OUT"
	RunTimedOut  RunStatus = "TIMED-OUT"
)

// Finished reports whether the provider will not change the run any more.
func (s RunStatus) Finished() bool {
	switch s {
	case RunSucceeded, RunFailed, RunAborted, RunTimedOut:
		return true
	}
	return false
}

// Run is the provider's view of one scraping job.
type Run struct {
	ID        string
	DatasetID string
	Status    RunStatus
}

// Provider is the adapter over an external scraping service.
type Provider interface {
	// StartRun launches a run for the canonical query and returns at once.
	StartRun(ctx context.Context, query string, maxResults int) (Run, error)
	// WaitForRun blocks at most one provider long-poll and returns the run's
	// current state.
	WaitForRun(ctx context.Context, runID string) (Run, error)
	// ListItems returns the records a finished run produced.
	ListItems(ctx context.Context, datasetID string) ([]model.RawRecord, error)
	// AbortRun asks the provider to stop a run.
	AbortRun(ctx context.Context, runID string) error
}

// Profile names an actor and the input shape it expects.
type Profile struct {
	Name    string
	ActorID string
	Input   func(query string, maxResults int) map[string]any
}

var profiles = map[string]Profile{
	"linkedin-jobs": {
		Name:    "linkedin-jobs",
		ActorID: "curious_coder/linkedin-jobs-scraper",
		Input: func(query string, maxResults int) map[string]any {
			return map[string]any{
				"urls":          []string{query},
				"count":         maxResults,
				"scrapeCompany": true,
			}
		},
	},
	"linkedin-jobs-start-urls": {
		Name:    "linkedin-jobs-start-urls",
		ActorID: "curl_craper/linkedin-jobs-scraper",
		Input: func(query string, maxResults int) map[string]any {
			return map[string]any{
				"startUrls":  []map[string]string{{"url": query}},
				"maxResults": maxResults,
			}
		},
	},
}

// LookupProfile returns the named profile. A non-empty actorOverride
// replaces the profile's actor id.
func LookupProfile(name, actorOverride string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown scrape provider %q (known: %v)", name, ProfileNames())
	}
	if actorOverride != "" {
		p.ActorID = actorOverride
	}
	return p, nil
}

// ProfileNames lists the registered profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
