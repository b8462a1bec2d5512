package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestFastRetryPolicyAllowsOneRetry(t *testing.T) {
	policy := fastRetryPolicy(context.Background())

	d := policy.NextBackOff()
	assert.InDelta(t, float64(500*time.Millisecond), float64(d), float64(150*time.Millisecond))
	assert.Equal(t, backoff.Stop, policy.NextBackOff())
}

func TestSlowRetryPolicyDoublesToCeiling(t *testing.T) {
	policy := slowRetryPolicy(context.Background())

	want := []time.Duration{
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, policy.NextBackOff(), "interval %d", i)
	}
}

func TestSlowRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := slowRetryPolicy(ctx)
	assert.Equal(t, backoff.Stop, policy.NextBackOff())
}
