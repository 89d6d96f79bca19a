package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerly/einvoice/internal/utils"
)

func TestJSONRoundTrip(t *testing.T) {
	rdb := utils.SetupTestRedis(t)
	ctx := context.Background()

	type entry struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	}

	var got entry
	assert.ErrorIs(t, GetJSON(ctx, rdb, "catalog:test:missing", &got), ErrMiss)

	require.NoError(t, SetJSON(ctx, rdb, "catalog:test:p1", entry{ID: "p1", Price: "9.50"}, time.Minute))
	require.NoError(t, GetJSON(ctx, rdb, "catalog:test:p1", &got))
	assert.Equal(t, entry{ID: "p1", Price: "9.50"}, got)

	ttl, err := rdb.TTL(ctx, "catalog:test:p1").Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}
