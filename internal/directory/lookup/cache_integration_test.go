//go:build integration

package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollbank/internal/directory/models"
	"pollbank/pkg/platform/sentinel"
	"pollbank/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	rc.Reset(t)

	cache := NewRedisCache(rc.Client)

	_, err := cache.Get(ctx, "SBIN0000001")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, cache.Set(ctx, "SBIN0000001", &models.LookupResult{BankName: "SBI", BranchName: "Sadar", RoutingCode: "SBIN0000001"}, time.Minute))
	res, err := cache.Get(ctx, "SBIN0000001")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Sadar", res.BranchName)

	require.NoError(t, cache.Set(ctx, "HDFC0000009", nil, time.Minute))
	res, err = cache.Get(ctx, "HDFC0000009")
	require.NoError(t, err)
	assert.Nil(t, res)

	ttl, err := rc.Client.TTL(ctx, redisKeyPrefix+"HDFC0000009").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
