package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/recurpay/billing-gateway/internal/adapters/redis"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/test/mocks"
)

// setupTestRedis connects to a local Redis or skips the test.
// Run Redis locally with: docker run -p 6379:6379 redis:7
func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redisadapter.Connect(ctx, "redis://localhost:6379/15")
	if err != nil {
		t.Skipf("test redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

// testIdentifier returns a unique identifier and registers key cleanup.
func testIdentifier(t *testing.T, client *goredis.Client, prefix string) string {
	t.Helper()

	id := prefix + uuid.New().String()
	t.Cleanup(func() {
		client.Del(context.Background(), "ratelimit:"+id)
	})
	return id
}

func TestRateLimiter_FirstRequestStartsWindow(t *testing.T) {
	client := setupTestRedis(t)
	limiter := redisadapter.NewRateLimiter(client, mocks.NewMockLogger())
	id := testIdentifier(t, client, ports.RateLimitPrefixIP)

	decision, err := limiter.IsAllowed(context.Background(), id, 10, 0)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(9), decision.Remaining)
	assert.False(t, decision.FailedOpen)

	ttl, err := client.TTL(context.Background(), "ratelimit:"+id).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestRateLimiter_DecrementsWithinWindow(t *testing.T) {
	client := setupTestRedis(t)
	limiter := redisadapter.NewRateLimiter(client, mocks.NewMockLogger())
	id := testIdentifier(t, client, ports.RateLimitPrefixUser)

	for _, want := range []int64{9, 8, 7} {
		decision, err := limiter.IsAllowed(context.Background(), id, 10, 0)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, want, decision.Remaining)
	}
}

func TestRateLimiter_DeniesWhenExhausted(t *testing.T) {
	client := setupTestRedis(t)
	limiter := redisadapter.NewRateLimiter(client, mocks.NewMockLogger())
	id := testIdentifier(t, client, ports.RateLimitPrefixAPI)

	for i := 0; i < 2; i++ {
		decision, err := limiter.IsAllowed(context.Background(), id, 2, 0)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.IsAllowed(context.Background(), id, 2, 0)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(-1), decision.Remaining)
	assert.False(t, decision.FailedOpen)
}

func TestRateLimiter_BurstDoesNotInflateHourlyWindow(t *testing.T) {
	client := setupTestRedis(t)
	limiter := redisadapter.NewRateLimiter(client, mocks.NewMockLogger())
	id := testIdentifier(t, client, ports.RateLimitPrefixIP)

	// The hourly window holds exactly limitPerHour tokens regardless of
	// the burst argument; call limit+1 must be denied.
	for i := 0; i < 2; i++ {
		decision, err := limiter.IsAllowed(context.Background(), id, 2, 1)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision, err := limiter.IsAllowed(context.Background(), id, 2, 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(-1), decision.Remaining)
}

func TestRateLimiter_IndependentIdentifiers(t *testing.T) {
	client := setupTestRedis(t)
	limiter := redisadapter.NewRateLimiter(client, mocks.NewMockLogger())
	ipID := testIdentifier(t, client, ports.RateLimitPrefixIP)
	userID := testIdentifier(t, client, ports.RateLimitPrefixUser)

	decision, err := limiter.IsAllowed(context.Background(), ipID, 1, 0)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// Exhausting the IP bucket leaves the user bucket untouched.
	decision, err = limiter.IsAllowed(context.Background(), ipID, 1, 0)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = limiter.IsAllowed(context.Background(), userID, 1, 0)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRateLimiter_FailsOpenWhenStoreDown(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	logger := mocks.NewMockLogger()
	limiter := redisadapter.NewRateLimiter(client, logger)

	decision, err := limiter.IsAllowed(context.Background(), "ip:198.51.100.7", 10, 0)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.True(t, decision.FailedOpen)
	assert.NotEmpty(t, logger.WarnCalls)
}
