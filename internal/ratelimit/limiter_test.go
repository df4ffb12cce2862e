package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterEnforcesBurst(t *testing.T) {
	limiter := New(true, 1, 2)

	assert.True(t, limiter.Allow("inst-1"))
	assert.True(t, limiter.Allow("inst-1"))
	assert.False(t, limiter.Allow("inst-1"))
}

func TestLimiterIsolatesKeys(t *testing.T) {
	limiter := New(true, 1, 1)

	assert.True(t, limiter.Allow("inst-1"))
	assert.False(t, limiter.Allow("inst-1"))
	// A different instance has its own bucket.
	assert.True(t, limiter.Allow("inst-2"))
}

func TestLimiterDisabledAllowsEverything(t *testing.T) {
	limiter := New(false, 1, 1)

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("inst-1"))
	}
}
