package tracking

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapfinder/backend/internal/model"
)

func TestNewRedisRunLock_NilClientDisablesLock(t *testing.T) {
	t.Parallel()

	lock := NewRedisRunLock(nil, "", time.Minute, nil)
	assert.Nil(t, lock)

	// A nil RunLock leaves only the in-process guard.
	h := newHarness(t, newFakeScraper("nrml", "https://nrml.ca", fixedPrice("$10.00")))
	h.track(t, "nrml", "https://nrml.ca/products/beta", "Beta Jacket")
	o := NewOrchestrator(Dependencies{Store: h.store, Scrapers: h.scrapers, Limits: h.limits, Lock: lock}, testConfig(), nil)

	run, err := o.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)
}

func TestRedisRunLock_UnreachableRedisFailsRun(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewRedisRunLock(client, "", 0, nil)
	require.NotNil(t, lock)

	release, ok, err := lock.TryAcquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire run lock")
	assert.False(t, ok)
	assert.Nil(t, release)

	// The orchestrator refuses to run without knowing who holds the lock.
	h := newHarness(t, newFakeScraper("nrml", "https://nrml.ca", fixedPrice("$10.00")))
	h.track(t, "nrml", "https://nrml.ca/products/beta", "Beta Jacket")
	o := NewOrchestrator(Dependencies{Store: h.store, Scrapers: h.scrapers, Limits: h.limits, Lock: lock}, testConfig(), nil)
	_, err = o.Run(context.Background(), model.TriggerManual)
	assert.Error(t, err)
	assert.False(t, o.Running())
}

func TestRetryConfig_Policy(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxWait: time.Second}
	b := cfg.policy(context.Background())

	assert.NotEqual(t, time.Duration(-1), b.NextBackOff())
	assert.NotEqual(t, time.Duration(-1), b.NextBackOff())
	assert.Equal(t, time.Duration(-1), b.NextBackOff(), "two retries after the first attempt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, time.Duration(-1), cfg.policy(ctx).NextBackOff())
}
