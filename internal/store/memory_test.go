package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/store"
)

func newPending(t *testing.T, s store.RequestStore, id string) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &model.ScrapingRequest{
		ID:          id,
		OwnerID:     "owner-1",
		Keyword:     "Go developer",
		Location:    "Bengaluru",
		WorkType:    model.WorkRemote,
		SourceQuery: "https://www.linkedin.com/jobs/search?keywords=Go",
		Status:      model.StatusPending,
	}))
}

func TestMemoryRequests_TransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryRequests()
	newPending(t, s, "r1")

	ok, err := s.Transition(ctx, "r1", model.StatusPending, model.StatusProcessing, store.Update{})
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale "from" loses.
	ok, err = s.Transition(ctx, "r1", model.StatusPending, model.StatusProcessing, store.Update{})
	require.NoError(t, err)
	assert.False(t, ok)

	raw := []model.RawRecord{model.RawRecord(`{"title":"x"}`)}
	ok, err = s.Transition(ctx, "r1", model.StatusProcessing, model.StatusFiltering, store.Update{RawResults: raw})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFiltering, got.Status)
	assert.Len(t, got.RawResults, 1)
}

func TestMemoryRequests_TransitionRejectsIllegalEdges(t *testing.T) {
	s := store.NewMemoryRequests()
	newPending(t, s, "r1")

	_, err := s.Transition(context.Background(), "r1", model.StatusPending, model.StatusCompleted, store.Update{})
	assert.Error(t, err)
}

func TestMemoryRequests_FailIsTerminalAndSticky(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryRequests()
	newPending(t, s, "r1")

	ok, err := s.Fail(ctx, "r1", model.AbortedMessage, true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Fail(ctx, "r1", "late provider error", false)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Transition(ctx, "r1", model.StatusPending, model.StatusProcessing, store.Update{})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.True(t, got.Aborted)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, model.AbortedMessage, *got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestMemoryRequests_SetRunIDAfterAbort(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryRequests()
	newPending(t, s, "r1")

	_, err := s.Fail(ctx, "r1", model.AbortedMessage, true)
	require.NoError(t, err)

	ok, err := s.SetRunID(ctx, "r1", "run-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRequests_FailStale(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryRequests()
	newPending(t, s, "old")

	failed, err := s.FailStale(ctx, time.Now().Add(-time.Hour), "run exceeded maximum duration")
	require.NoError(t, err)
	assert.Empty(t, failed)

	failed, err = s.FailStale(ctx, time.Now().Add(time.Second), "run exceeded maximum duration")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "old", failed[0].ID)
	assert.Equal(t, "owner-1", failed[0].OwnerID)
	assert.Equal(t, model.StatusPending, failed[0].From)

	got, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.False(t, got.Aborted)
}

func TestMemoryRequests_GetMissing(t *testing.T) {
	_, err := store.NewMemoryRequests().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryRequests_ListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryRequests()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, &model.ScrapingRequest{
			ID: id, OwnerID: "o", Status: model.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Create(ctx, &model.ScrapingRequest{ID: "x", OwnerID: "other", Status: model.StatusPending}))

	got, err := s.ListByOwner(ctx, "o", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

// ── Credentials ───────────────────────────────────────────────────────────

func TestMemoryCredentials_UpsertRetainsRefreshToken(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCredentials()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, s.Upsert(ctx, &model.DelegatedCredential{
		OwnerID: "o", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: exp,
	}))
	require.NoError(t, s.Upsert(ctx, &model.DelegatedCredential{
		OwnerID: "o", AccessToken: "a2", ExpiresAt: exp,
	}))

	got, err := s.Get(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)

	require.NoError(t, s.Upsert(ctx, &model.DelegatedCredential{
		OwnerID: "o", AccessToken: "a3", RefreshToken: "r2", ExpiresAt: exp,
	}))
	got, err = s.Get(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, "r2", got.RefreshToken)
}

func TestMemoryCredentials_UpsertReactivates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCredentials()
	require.NoError(t, s.Upsert(ctx, &model.DelegatedCredential{OwnerID: "o", AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, s.Deactivate(ctx, "o"))

	got, err := s.Get(ctx, "o")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "a1", got.AccessToken, "unlink keeps tokens for audit")

	require.NoError(t, s.Upsert(ctx, &model.DelegatedCredential{OwnerID: "o", AccessToken: "a2"}))
	got, err = s.Get(ctx, "o")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestMemoryCredentials_SwapTokenLosesToNewerToken(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCredentials()
	require.NoError(t, s.Upsert(ctx, &model.DelegatedCredential{OwnerID: "o", AccessToken: "a1", RefreshToken: "r1"}))

	won, err := s.SwapToken(ctx, "o", "a1", &model.DelegatedCredential{AccessToken: "a2"})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.SwapToken(ctx, "o", "a1", &model.DelegatedCredential{AccessToken: "stale"})
	require.NoError(t, err)
	assert.False(t, won)

	got, err := s.Get(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
}

func TestMemoryApplications_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryApplications()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Append(ctx, &model.EmailApplication{ID: id, OwnerID: "o"}))
	}
	got, err := s.List(ctx, "o", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}
