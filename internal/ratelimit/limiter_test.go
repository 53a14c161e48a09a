package ratelimit

import (
	"testing"
	"time"
)

func TestBucket_Allow(t *testing.T) {
	config := Config{
		RequestsPerSecond: 10,
		BurstSize:         5,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}

	if bucket.Allow() {
		t.Error("request after burst should be denied")
	}
}

func TestBucket_Refill(t *testing.T) {
	config := Config{
		RequestsPerSecond: 100, // fast refill for the test
		BurstSize:         2,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	bucket.Allow()
	bucket.Allow()

	if bucket.Allow() {
		t.Error("should be denied after exhausting tokens")
	}

	time.Sleep(50 * time.Millisecond)

	if !bucket.Allow() {
		t.Error("should be allowed after refill")
	}
}

func TestBucket_Tokens(t *testing.T) {
	config := Config{
		RequestsPerSecond: 10,
		BurstSize:         5,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	initial := bucket.Tokens()
	if initial != 5 {
		t.Errorf("initial tokens = %f, want 5", initial)
	}

	bucket.Allow()
	after := bucket.Tokens()
	if after >= initial {
		t.Error("tokens should decrease after Allow()")
	}
}

func TestBucket_WaitTime(t *testing.T) {
	config := Config{
		RequestsPerSecond: 10,
		BurstSize:         1,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	if bucket.WaitTime() != 0 {
		t.Error("should not wait when tokens available")
	}

	bucket.Allow()

	wait := bucket.WaitTime()
	if wait <= 0 {
		t.Error("should need to wait when no tokens")
	}
}

func TestBucket_AllowN(t *testing.T) {
	config := Config{
		RequestsPerSecond: 10,
		BurstSize:         5,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	if !bucket.AllowN(3) {
		t.Error("should allow 3 requests")
	}
	if !bucket.AllowN(2) {
		t.Error("should allow 2 more requests")
	}
	if bucket.AllowN(1) {
		t.Error("should deny when no tokens left")
	}
}

func TestBucket_ZeroConfig_UsesDefaults(t *testing.T) {
	config := Config{
		RequestsPerSecond: 0,
		BurstSize:         0,
		Enabled:           true,
	}
	bucket := NewBucket(config)

	if !bucket.Allow() {
		t.Error("Allow() should succeed on a zero-config bucket with defaults applied")
	}

	tokens := bucket.Tokens()
	if tokens <= 0 {
		t.Errorf("expected positive default tokens after one Allow(), got %f", tokens)
	}
	if tokens < 15 || tokens > 20 {
		t.Errorf("expected tokens in range [15,20] with default burst of 20, got %f", tokens)
	}

	if !bucket.AllowN(5) {
		t.Error("AllowN(5) should succeed with default burst")
	}

	if bucket.WaitTime() != 0 {
		t.Error("WaitTime should be 0 while tokens remain")
	}
}

func TestBucket_AllowNZeroOrNegativeAlwaysAllowed(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 1, BurstSize: 1, Enabled: true})
	bucket.Allow() // exhaust the single token

	if !bucket.AllowN(0) {
		t.Error("AllowN(0) should always be allowed")
	}
	if !bucket.AllowN(-1) {
		t.Error("AllowN(negative) should always be allowed")
	}
}
