// Package store persists scraping requests, delegated-send credentials and
// the email application log. Every mutation is a single-row statement; the
// status and token columns are written with compare-and-set so concurrent
// writers never overwrite a newer state.
package store

import (
	"context"
	"time"

	"jobmate/leads-service/internal/model"
)

// Update carries the stage payload written together with a status
// transition. Nil fields leave the stored value untouched.
type Update struct {
	RawResults      []model.RawRecord
	FilteredResults []model.JobLead
	EnrichedResults []model.EnrichedJobLead
	Counts          *model.LeadCounts
	CompletedAt     *time.Time
}

// StaleRequest identifies a request failed by FailStale and the status it
// was in.
type StaleRequest struct {
	ID      string
	OwnerID string
	From    model.Status
}

// RequestStore persists ScrapingRequest rows.
type RequestStore interface {
	Create(ctx context.Context, req *model.ScrapingRequest) error
	Get(ctx context.Context, id string) (*model.ScrapingRequest, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.ScrapingRequest, error)

	// SetRunID records the provider run handle. It reports false when the
	// request already left the non-terminal states (e.g. it was aborted).
	SetRunID(ctx context.Context, id, runID string) (bool, error)

	// Transition moves the request from → to only if it is still in from and
	// not aborted. It reports whether the write landed.
	Transition(ctx context.Context, id string, from, to model.Status, u Update) (bool, error)

	// Fail moves a non-terminal, non-aborted request to failed.
	Fail(ctx context.Context, id, msg string, aborted bool) (bool, error)

	// FailStale fails every non-terminal request created before the cutoff
	// and returns the rows it failed.
	FailStale(ctx context.Context, createdBefore time.Time, msg string) ([]StaleRequest, error)
}

// CredentialStore persists one DelegatedCredential per owner.
type CredentialStore interface {
	Get(ctx context.Context, ownerID string) (*model.DelegatedCredential, error)

	// Upsert stores a fresh authorization. The stored refresh token is only
	// replaced when c.RefreshToken is non-empty.
	Upsert(ctx context.Context, c *model.DelegatedCredential) error

	// SwapToken replaces the access token and expiry only if the stored
	// access token still equals prevAccess. It reports whether it won.
	SwapToken(ctx context.Context, ownerID, prevAccess string, next *model.DelegatedCredential) (bool, error)

	// Deactivate sets isActive=false and keeps the tokens.
	Deactivate(ctx context.Context, ownerID string) error
}

// ApplicationLog is the append-only log of sent application emails.
type ApplicationLog interface {
	Append(ctx context.Context, a *model.EmailApplication) error
	List(ctx context.Context, ownerID string, limit int) ([]model.EmailApplication, error)
}
