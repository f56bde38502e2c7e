package rides

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/example/ride-hailing/internal/models"
)

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")

	const n = 32
	var wg sync.WaitGroup
	outcomes := make(chan ClaimOutcome, n)
	for i := 0; i < n; i++ {
		driverID := fmt.Sprintf("driver-%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Claim(ctx, ride.ID, driverID)
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	assigned, taken := 0, 0
	for o := range outcomes {
		switch o {
		case ClaimAssigned:
			assigned++
		case ClaimAlreadyTaken:
			taken++
		default:
			t.Fatalf("unexpected outcome %s", o)
		}
	}
	if assigned != 1 || taken != n-1 {
		t.Fatalf("assigned=%d taken=%d, want 1 and %d", assigned, taken, n-1)
	}

	got, err := store.Get(ctx, ride.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusDriverAssigned || got.DriverID == nil {
		t.Fatalf("ride not cleanly assigned: %+v", got)
	}
}

func TestClaimVsCancelRace(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")

	var wg sync.WaitGroup
	var claimRes ClaimResult
	var cancelRes TransitionResult

	wg.Add(2)
	go func() {
		defer wg.Done()
		claimRes, _ = svc.Claim(ctx, ride.ID, "d1")
	}()
	go func() {
		defer wg.Done()
		cancelRes, _ = svc.Transition(ctx, ride.ID, TransitionInput{
			ActorID: "p1", Role: models.RolePassenger, Target: StatusCancelled, Reason: "no longer needed",
		})
	}()
	wg.Wait()

	got, _ := store.Get(ctx, ride.ID)
	switch {
	case claimRes.Outcome == ClaimAssigned && cancelRes.Outcome == TransitionApplied:
		// claim won first, passenger cancelled the assigned ride after
		if got.Status != StatusCancelled {
			t.Fatalf("both succeeded but status is %s", got.Status)
		}
	case claimRes.Outcome == ClaimAssigned:
		if got.Status != StatusDriverAssigned {
			t.Fatalf("claim won but status is %s", got.Status)
		}
	case cancelRes.Outcome == TransitionApplied:
		// a claim losing to cancellation must observe the cancellation
		if claimRes.Outcome != ClaimRideNotPending {
			t.Fatalf("losing claim outcome %s", claimRes.Outcome)
		}
		if got.Status != StatusCancelled || got.DriverID != nil {
			t.Fatalf("cancel won but ride is %+v", got)
		}
	default:
		t.Fatalf("neither claim (%s) nor cancel (%s) succeeded", claimRes.Outcome, cancelRes.Outcome)
	}
}

func TestClaimRetriesAreIdempotentFailures(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")

	if res, _ := svc.Claim(ctx, ride.ID, "winner"); res.Outcome != ClaimAssigned {
		t.Fatal("initial claim failed")
	}
	for i := 0; i < 3; i++ {
		res, err := svc.Claim(ctx, ride.ID, "loser")
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != ClaimAlreadyTaken {
			t.Fatalf("retry %d: %s", i, res.Outcome)
		}
	}
	got, _ := store.Get(ctx, ride.ID)
	if *got.DriverID != "winner" {
		t.Fatalf("driver overwritten: %s", *got.DriverID)
	}
}

func TestClaimUnknownRide(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	res, err := svc.Claim(context.Background(), "no-such-ride", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != ClaimNotFound {
		t.Fatalf("expected not_found, got %s", res.Outcome)
	}
}

func TestClaimRejectsBusyDriver(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()

	first := createRide(t, store, "p1")
	second := createRide(t, store, "p2")

	if res, _ := svc.Claim(ctx, first.ID, "d1"); res.Outcome != ClaimAssigned {
		t.Fatal("first claim failed")
	}
	res, err := svc.Claim(ctx, second.ID, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != ClaimDriverBusy {
		t.Fatalf("expected driver_busy, got %s", res.Outcome)
	}

	// finishing the first ride frees the driver
	advance(t, svc, first.ID, "d1", StatusRideCompleted)
	if res, _ := svc.Claim(ctx, second.ID, "d1"); res.Outcome != ClaimAssigned {
		t.Fatalf("claim after completion: %s", res.Outcome)
	}
}
