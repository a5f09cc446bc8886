package server

import (
	"fmt"
	"testing"
)

func TestRateLimiterBlocksPastConfiguredCap(t *testing.T) {
	rl := NewWebhookRateLimiter(3)
	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("hit %d blocked under cap", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("hit past the cap allowed")
	}
	// Other keys count independently.
	if !rl.Allow("10.0.0.2") {
		t.Error("fresh key blocked")
	}
}

func TestRateLimiterDefaultsWhenUnset(t *testing.T) {
	rl := NewWebhookRateLimiter(0)
	allowed := 0
	for i := 0; i < defaultRateLimitMaxHits+5; i++ {
		if rl.Allow("k") {
			allowed++
		}
	}
	if allowed != defaultRateLimitMaxHits {
		t.Errorf("allowed = %d, want %d", allowed, defaultRateLimitMaxHits)
	}
}

func TestRateLimiterEvictsAtTrackedKeyCap(t *testing.T) {
	rl := NewWebhookRateLimiter(1)
	for i := 0; i < maxTrackedKeys; i++ {
		rl.Allow(fmt.Sprintf("key-%d", i))
	}
	if !rl.Allow("one-more") {
		t.Error("new key blocked at the tracked-key cap")
	}
	if n := len(rl.entries); n > maxTrackedKeys {
		t.Errorf("tracked keys = %d, cap is %d", n, maxTrackedKeys)
	}
}
