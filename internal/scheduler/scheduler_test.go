package scheduler

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/leads-service/internal/events"
	"jobmate/leads-service/internal/metrics"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/pipeline"
	"jobmate/leads-service/internal/store"
	"jobmate/leads-service/internal/ttlcache"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.StatusEvent
}

func (p *recordingPublisher) PublishStatus(_ context.Context, ev events.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) sorted() []events.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]events.StatusEvent(nil), p.events...)
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out
}

func TestSweep_FailsOnlyStaleRunningRequests(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	requests := store.NewMemoryRequests()

	seed := []model.ScrapingRequest{
		{ID: "stale-pending", OwnerID: "u1", Status: model.StatusPending, CreatedAt: now.Add(-20 * time.Minute)},
		{ID: "stale-enriching", OwnerID: "u1", Status: model.StatusEnriching, CreatedAt: now.Add(-16 * time.Minute)},
		{ID: "fresh", OwnerID: "u1", Status: model.StatusProcessing, CreatedAt: now.Add(-5 * time.Minute)},
		{ID: "old-done", OwnerID: "u1", Status: model.StatusCompleted, CreatedAt: now.Add(-time.Hour)},
	}
	for i := range seed {
		require.NoError(t, requests.Create(ctx, &seed[i]))
	}

	cache := ttlcache.NewMemoryCache()
	require.NoError(t, cache.Put(ctx, "nonce", "u1", time.Nanosecond))
	time.Sleep(time.Millisecond)

	pub := &recordingPublisher{}
	s := New(requests, pub, 15*time.Minute, "@every 1m", cache)
	s.now = func() time.Time { return now }
	toFailed := metrics.Transitions.WithLabelValues(string(model.StatusFailed))
	before := testutil.ToFloat64(toFailed)

	assert.EqualValues(t, 2, s.Sweep(ctx))
	assert.Equal(t, before+2, testutil.ToFloat64(toFailed))
	assert.Equal(t, []events.StatusEvent{
		{RequestID: "stale-enriching", UserID: "u1", From: model.StatusEnriching, To: model.StatusFailed},
		{RequestID: "stale-pending", UserID: "u1", From: model.StatusPending, To: model.StatusFailed},
	}, pub.sorted())

	for id, want := range map[string]model.Status{
		"stale-pending":   model.StatusFailed,
		"stale-enriching": model.StatusFailed,
		"fresh":           model.StatusProcessing,
		"old-done":        model.StatusCompleted,
	} {
		got, err := requests.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
		if want == model.StatusFailed {
			require.NotNil(t, got.ErrorMessage)
			assert.Equal(t, pipeline.MsgBudgetExceeded, *got.ErrorMessage)
			assert.False(t, got.Aborted)
		}
	}
	assert.Zero(t, cache.Len())

	// A second sweep finds nothing left to fail.
	assert.Zero(t, s.Sweep(ctx))
	assert.Len(t, pub.sorted(), 2)
}

func TestStartStop(t *testing.T) {
	s := New(store.NewMemoryRequests(), events.Nop{}, time.Minute, "@every 1h")
	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	bad := New(store.NewMemoryRequests(), events.Nop{}, time.Minute, "whenever")
	assert.Error(t, bad.Start(context.Background()))
}
