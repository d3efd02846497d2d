package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/model"
)

// ─── Requests ─────────────────────────────────────────────────────────────────

// MemoryRequests is an in-process RequestStore used by tests and by the
// "memory" store backend.
type MemoryRequests struct {
	mu   sync.Mutex
	rows map[string]*model.ScrapingRequest
	now  func() time.Time
}

// NewMemoryRequests returns an empty MemoryRequests.
func NewMemoryRequests() *MemoryRequests {
	return &MemoryRequests{rows: make(map[string]*model.ScrapingRequest), now: time.Now}
}

func (m *MemoryRequests) Create(_ context.Context, req *model.ScrapingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[req.ID]; ok {
		return apperr.Persistence("create request", fmt.Errorf("duplicate id %s", req.ID))
	}
	row := cloneRequest(req)
	now := m.now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	m.rows[req.ID] = row
	return nil
}

func (m *MemoryRequests) Get(_ context.Context, id string) (*model.ScrapingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return cloneRequest(row), nil
}

func (m *MemoryRequests) ListByOwner(_ context.Context, ownerID string, limit int) ([]model.ScrapingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ScrapingRequest, 0)
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			out = append(out, *cloneRequest(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRequests) SetRunID(_ context.Context, id, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if model.IsTerminal(row.Status) || row.Aborted {
		return false, nil
	}
	row.ProviderRunID = runID
	row.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryRequests) Transition(_ context.Context, id string, from, to model.Status, u Update) (bool, error) {
	if !model.IsTransitionAllowed(from, to) {
		return false, fmt.Errorf("transition %s → %s is not allowed", from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if row.Status != from || row.Aborted {
		return false, nil
	}
	row.Status = to
	if u.RawResults != nil {
		row.RawResults = slices.Clone(u.RawResults)
	}
	if u.FilteredResults != nil {
		row.FilteredResults = slices.Clone(u.FilteredResults)
	}
	if u.EnrichedResults != nil {
		row.EnrichedResults = slices.Clone(u.EnrichedResults)
	}
	if u.Counts != nil {
		row.Counts = *u.Counts
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		row.CompletedAt = &t
	}
	row.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryRequests) Fail(_ context.Context, id, msg string, aborted bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if model.IsTerminal(row.Status) || row.Aborted {
		return false, nil
	}
	m.failLocked(row, msg, aborted)
	return true, nil
}

func (m *MemoryRequests) FailStale(_ context.Context, createdBefore time.Time, msg string) ([]StaleRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []StaleRequest
	for _, row := range m.rows {
		if !model.IsTerminal(row.Status) && !row.Aborted && row.CreatedAt.Before(createdBefore) {
			failed = append(failed, StaleRequest{ID: row.ID, OwnerID: row.OwnerID, From: row.Status})
			m.failLocked(row, msg, false)
		}
	}
	return failed, nil
}

func (m *MemoryRequests) failLocked(row *model.ScrapingRequest, msg string, aborted bool) {
	now := m.now()
	row.Status = model.StatusFailed
	row.Aborted = aborted
	row.ErrorMessage = &msg
	row.CompletedAt = &now
	row.UpdatedAt = now
}

func cloneRequest(r *model.ScrapingRequest) *model.ScrapingRequest {
	c := *r
	c.ExcludeTerms = slices.Clone(r.ExcludeTerms)
	c.RawResults = slices.Clone(r.RawResults)
	c.FilteredResults = slices.Clone(r.FilteredResults)
	c.EnrichedResults = slices.Clone(r.EnrichedResults)
	if r.ErrorMessage != nil {
		msg := *r.ErrorMessage
		c.ErrorMessage = &msg
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ─── Credentials ──────────────────────────────────────────────────────────────

// MemoryCredentials is an in-process CredentialStore.
type MemoryCredentials struct {
	mu   sync.Mutex
	rows map[string]model.DelegatedCredential
	now  func() time.Time
}

// NewMemoryCredentials returns an empty MemoryCredentials.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{rows: make(map[string]model.DelegatedCredential), now: time.Now}
}

func (m *MemoryCredentials) Get(_ context.Context, ownerID string) (*model.DelegatedCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[ownerID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &c, nil
}

func (m *MemoryCredentials) Upsert(_ context.Context, c *model.DelegatedCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	row, exists := m.rows[c.OwnerID]
	if !exists {
		row = model.DelegatedCredential{OwnerID: c.OwnerID, CreatedAt: now}
	}
	row.AccessToken = c.AccessToken
	if c.RefreshToken != "" {
		row.RefreshToken = c.RefreshToken
	}
	row.ExpiresAt = c.ExpiresAt
	row.IsActive = true
	row.UpdatedAt = now
	m.rows[c.OwnerID] = row
	return nil
}

func (m *MemoryCredentials) SwapToken(_ context.Context, ownerID, prevAccess string, next *model.DelegatedCredential) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[ownerID]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if !row.IsActive || row.AccessToken != prevAccess {
		return false, nil
	}
	row.AccessToken = next.AccessToken
	if next.RefreshToken != "" {
		row.RefreshToken = next.RefreshToken
	}
	row.ExpiresAt = next.ExpiresAt
	row.UpdatedAt = m.now()
	m.rows[ownerID] = row
	return true, nil
}

func (m *MemoryCredentials) Deactivate(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[ownerID]
	if !ok {
		return nil
	}
	row.IsActive = false
	row.UpdatedAt = m.now()
	m.rows[ownerID] = row
	return nil
}

// ─── Application log ──────────────────────────────────────────────────────────

// MemoryApplications is an in-process ApplicationLog.
type MemoryApplications struct {
	mu   sync.Mutex
	rows []model.EmailApplication
}

// NewMemoryApplications returns an empty MemoryApplications.
func NewMemoryApplications() *MemoryApplications { return &MemoryApplications{} }

func (m *MemoryApplications) Append(_ context.Context, a *model.EmailApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *a)
	return nil
}

func (m *MemoryApplications) List(_ context.Context, ownerID string, limit int) ([]model.EmailApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EmailApplication, 0)
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].OwnerID == ownerID {
			out = append(out, m.rows[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
