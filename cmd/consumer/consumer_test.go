package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/presence"
)

// fakeUpserter implements LocationUpserter for tests
type fakeUpserter struct {
	failures int // number of times to fail before succeeding
	calls    int
}

func (f *fakeUpserter) Upsert(ctx context.Context, loc presence.DriverLocation) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("store fail")
	}
	return nil
}

func TestUpsertWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpserter{failures: 2}
	loc := presence.DriverLocation{DriverID: "d1", Lat: 1, Lng: 2, Cell: "abc", Online: true}
	start := time.Now()
	if err := upsertWithRetry(context.Background(), f, loc, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpsertWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpserter{failures: 5}
	loc := presence.DriverLocation{DriverID: "d1"}
	if err := upsertWithRetry(context.Background(), f, loc, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", f.calls)
	}
}
