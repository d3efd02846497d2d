package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/leads-service/internal/model"
)

func TestRedisPublisher_PublishStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, ChannelScrapeStatus)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(rdb)
	require.NoError(t, p.PublishStatus(ctx, StatusEvent{
		RequestID: "r1", UserID: "u1", From: model.StatusFiltering, To: model.StatusFailed, Aborted: true,
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got StatusEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, ChannelScrapeStatus, got.Type)
	assert.Equal(t, "r1", got.RequestID)
	assert.Equal(t, model.StatusFailed, got.To)
	assert.True(t, got.Aborted)
	assert.False(t, got.At.IsZero())
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.PublishStatus(context.Background(), StatusEvent{}))
}
