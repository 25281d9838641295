package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/upb/inference-router/config"
)

func TestRoutingConfigMapping(t *testing.T) {
	rc := config.RouterConfig{
		ShedThreshold:       0.7,
		FailureThreshold:    3,
		TransientCooldown:   45 * time.Second,
		RateLimitCooldown:   90 * time.Second,
		TimeoutCooldown:     time.Minute,
		MaxCooldown:         5 * time.Minute,
		ThrottleWindow:      time.Minute,
		ThrottleMultiplier:  1.5,
		BackoffBase:         2 * time.Second,
		BackoffCap:          time.Minute,
		HealthWindowSize:    100,
		HealthEMAAlpha:      0.3,
		HealthRecencyWindow: 2 * time.Minute,
		HealthSuccessWeight: 0.5,
		HealthLatencyWeight: 0.3,
		HealthRecencyWeight: 0.2,
		HealthLatencyScale:  750 * time.Millisecond,
	}

	got := routingConfig(rc)

	assert.Equal(t, 0.7, got.ShedThreshold)
	assert.Equal(t, 3, got.Breaker.FailureThreshold)
	assert.Equal(t, 45*time.Second, got.Breaker.TransientCooldown)
	assert.Equal(t, 90*time.Second, got.Breaker.RateLimitCooldown)
	assert.Equal(t, time.Minute, got.Breaker.TimeoutCooldown)
	assert.Equal(t, 5*time.Minute, got.Breaker.MaxCooldown)

	assert.Equal(t, 0.3, got.Health.EMAAlpha)
	assert.Equal(t, 100, got.Health.WindowSize)
	assert.Equal(t, 2*time.Minute, got.Health.RecencyHalfLife)
	assert.Equal(t, 0.5, got.Health.SuccessWeight)
	assert.Equal(t, 0.3, got.Health.LatencyWeight)
	assert.Equal(t, 0.2, got.Health.RecencyWeight)
	assert.Equal(t, 750*time.Millisecond, got.Health.LatencyScale)

	assert.Equal(t, time.Minute, got.Throttle.Window)
	assert.Equal(t, 1.5, got.Throttle.K)
	assert.Equal(t, 2*time.Second, got.RateLimit.BackoffBase)
	assert.Equal(t, time.Minute, got.RateLimit.BackoffCap)
}
