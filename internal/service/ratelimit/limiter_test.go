package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := PerMinute(2).WithClock(func() time.Time { return now })

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 must pass")
	}
	if l.Allow("a") {
		t.Fatal("third call within the minute must be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys are independent")
	}
	now = now.Add(30 * time.Second)
	if !l.Allow("a") {
		t.Fatal("one token refills every 30s")
	}
	if l.Allow("a") {
		t.Fatal("only one token refilled")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := PerMinute(0)
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatal("zero rate disables limiting")
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.Allow("a") {
		t.Fatal("nil limiter allows")
	}
}
