package health

import (
	"context"
	"errors"
	"testing"

	"agrihill-backend/internal/application/live"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFeed live.State

func (f staticFeed) State() live.State { return live.State(f) }

type failingDB struct{}

func (failingDB) PingContext(context.Context) error { return errors.New("down") }

func TestCollectHealth_WithNilRedis(t *testing.T) {
	result := CollectHealth(context.Background(), nil, nil, nil)
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "memory", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
	assert.Equal(t, 0, result.Traffic.TotalRequests)
}

func TestCollectHealth_WithMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	result := CollectHealth(ctx, rdb, nil, nil)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.Equal(t, "100", result.Traffic.SuccessRate)

	require.NoError(t, rdb.Set(ctx, "health:global:req_total", "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:req_errors", "2", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:res_time_total", "150.5", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:res_count", "10", 0).Err())
	require.NoError(t, rdb.Set(ctx, "health:global:start_time", "1000000", 0).Err())
	require.NoError(t, rdb.HIncrBy(ctx, "health:global:post_failed", "unavailable", 2).Err())

	result2 := CollectHealth(ctx, rdb, nil, nil)
	assert.Equal(t, 10, result2.Traffic.TotalRequests)
	assert.Equal(t, 2, result2.Traffic.FailedCount)
	assert.Equal(t, 8, result2.Traffic.SuccessCount)
	assert.Equal(t, "80.0", result2.Traffic.SuccessRate)
	assert.Equal(t, "15.05", result2.Traffic.AvgResponseTime)
	assert.Equal(t, 2, result2.PostFailures["unavailable"])
}

func TestCollectHealth_FeedErrorIsAnIssue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	result := CollectHealth(context.Background(), rdb, nil, map[string]Feed{
		"produce": staticFeed{Remote: nil, Version: 3},
		"rides":   staticFeed{Err: errors.New("live subscription failed: produce: offline")},
	})
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "live", result.Feeds["produce"].Status)
	assert.Equal(t, uint64(3), result.Feeds["produce"].Version)
	assert.Equal(t, "error", result.Feeds["rides"].Status)
	assert.Contains(t, result.Feeds["rides"].Error, "offline")
}

func TestCollectHealth_DatabaseError(t *testing.T) {
	result := CollectHealth(context.Background(), nil, failingDB{}, nil)
	assert.Equal(t, "error", result.Dependencies["database"].Status)
}
