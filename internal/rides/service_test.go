package rides

import (
	"context"
	"testing"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/search"
)

type fakeQuoter struct{ fare models.FareBreakdown }

func (f *fakeQuoter) Quote(context.Context, models.Coord, models.Coord) (models.FareBreakdown, error) {
	return f.fare, nil
}

type recordingNotifier struct {
	offers   int
	claimed  []string
	statuses []Status
}

func (r *recordingNotifier) OfferRide(_ context.Context, ride *Ride, cands []search.Candidate) {
	r.offers += len(cands)
}
func (r *recordingNotifier) RideClaimed(_ context.Context, ride *Ride) {
	r.claimed = append(r.claimed, ride.ID)
}
func (r *recordingNotifier) RideStatus(_ context.Context, ride *Ride) {
	r.statuses = append(r.statuses, ride.Status)
}

type recordingSettler struct {
	held, settled, released []string
}

func (s *recordingSettler) Hold(_ context.Context, r *Ride) error {
	s.held = append(s.held, r.ID)
	return nil
}
func (s *recordingSettler) Settle(_ context.Context, r *Ride) error {
	s.settled = append(s.settled, r.ID)
	return nil
}
func (s *recordingSettler) Release(_ context.Context, r *Ride) error {
	s.released = append(s.released, r.ID)
	return nil
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *presence.MemoryStore, *recordingNotifier, *recordingSettler) {
	t.Helper()
	store := NewMemoryStore()
	locs := presence.NewMemoryStore(0)
	notifier := &recordingNotifier{}
	settler := &recordingSettler{}
	grid := geo.NewGrid(9, 0.174)
	svc := &Service{
		Store:    store,
		Search:   &search.Service{Grid: grid, Store: locs, MaxK: 3},
		Fares:    &fakeQuoter{fare: models.FareBreakdown{Total: 180, Currency: "INR"}},
		Notify:   notifier,
		Payments: settler,
		Logger:   logging.Discard(),
	}
	return svc, store, locs, notifier, settler
}

// createRide puts a PENDING ride with a known OTP straight into the store.
func createRide(t *testing.T, store *MemoryStore, passengerID string) *Ride {
	t.Helper()
	r := NewRide(passengerID, models.Coord{Lat: 28.6139, Lng: 77.2090},
		models.Coord{Lat: 28.7041, Lng: 77.1025}, "CP", "Rohini",
		models.FareBreakdown{Total: 180, Currency: "INR"})
	r.OTP = "4821"
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

// advance drives the ride to the wanted status through the service.
func advance(t *testing.T, svc *Service, rideID, driverID string, upto Status) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		target Status
		otp    string
	}{
		{StatusConfirmed, ""},
		{StatusDriverArrived, ""},
		{StatusRideStarted, "4821"},
		{StatusRideCompleted, ""},
	}
	for _, step := range steps {
		res, err := svc.Transition(ctx, rideID, TransitionInput{
			ActorID: driverID, Role: models.RoleDriver, Target: step.target, OTP: step.otp,
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != TransitionApplied {
			t.Fatalf("advance to %s: %s", step.target, res.Outcome)
		}
		if step.target == upto {
			return
		}
	}
}

func TestRequestCreatesPendingRideWithOTP(t *testing.T) {
	svc, _, locs, notifier, settler := newTestService(t)
	ctx := context.Background()

	// one dispatchable driver near the pickup
	grid := svc.Search.Grid
	_ = locs.Upsert(ctx, presence.DriverLocation{
		DriverID: "d1", Lat: 28.6142, Lng: 77.2093,
		Cell:   grid.Cell(28.6142, 77.2093),
		Online: true, Active: true, Verified: true,
	})

	ride, cands, err := svc.Request(ctx, RequestInput{
		PassengerID: "p1",
		Pickup:      models.Coord{Lat: 28.6139, Lng: 77.2090},
		Drop:        models.Coord{Lat: 28.7041, Lng: 77.1025},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != StatusPending || ride.DriverID != nil {
		t.Fatalf("new ride not pending/unassigned: %+v", ride)
	}
	if len(ride.OTP) != 4 {
		t.Fatalf("expected 4-digit otp, got %q", ride.OTP)
	}
	if ride.Fare.Total != 180 {
		t.Fatalf("fare not consumed from quoter: %+v", ride.Fare)
	}
	if len(cands) != 1 || cands[0].DriverID != "d1" {
		t.Fatalf("unexpected candidates: %v", cands)
	}
	if notifier.offers != 1 {
		t.Fatalf("expected 1 offer dispatched, got %d", notifier.offers)
	}
	if len(settler.held) != 1 {
		t.Fatalf("expected payment hold, got %v", settler.held)
	}
}

func TestRequestWithNoDriversStillCreatesRide(t *testing.T) {
	svc, store, _, notifier, _ := newTestService(t)
	ride, cands, err := svc.Request(context.Background(), RequestInput{
		PassengerID: "p1",
		Pickup:      models.Coord{Lat: 28.6139, Lng: 77.2090},
		Drop:        models.Coord{Lat: 28.7041, Lng: 77.1025},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 || notifier.offers != 0 {
		t.Fatalf("expected no candidates, got %v", cands)
	}
	if got, err := store.Get(context.Background(), ride.ID); err != nil || got.Status != StatusPending {
		t.Fatalf("ride not persisted pending: %v %v", got, err)
	}
}

func TestFullLifecycle(t *testing.T) {
	svc, store, _, notifier, settler := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")

	res, err := svc.Claim(ctx, ride.ID, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != ClaimAssigned {
		t.Fatalf("claim: %s", res.Outcome)
	}
	if res.Ride.DriverID == nil || *res.Ride.DriverID != "d1" || res.Ride.AssignedAt == nil {
		t.Fatalf("assignment not recorded: %+v", res.Ride)
	}

	advance(t, svc, ride.ID, "d1", StatusRideCompleted)

	got, err := store.Get(ctx, ride.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRideCompleted {
		t.Fatalf("status %s", got.Status)
	}
	if got.ConfirmedAt == nil || got.ArrivedAt == nil || got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("transition timestamps missing: %+v", got)
	}
	if len(settler.settled) != 1 {
		t.Fatalf("completion did not hand off settlement: %v", settler.settled)
	}
	if len(notifier.claimed) != 1 {
		t.Fatalf("claim not notified")
	}
}

func TestOTPGateBlocksStart(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")

	if res, _ := svc.Claim(ctx, ride.ID, "d1"); res.Outcome != ClaimAssigned {
		t.Fatal("claim failed")
	}
	advance(t, svc, ride.ID, "d1", StatusDriverArrived)

	// wrong OTP any number of times never advances the ride
	for i := 0; i < 5; i++ {
		res, err := svc.Transition(ctx, ride.ID, TransitionInput{
			ActorID: "d1", Role: models.RoleDriver, Target: StatusRideStarted, OTP: "0000",
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != TransitionOTPMismatch {
			t.Fatalf("attempt %d: %s", i, res.Outcome)
		}
		got, _ := store.Get(ctx, ride.ID)
		if got.Status != StatusDriverArrived {
			t.Fatalf("status moved to %s on bad otp", got.Status)
		}
	}

	// the OTP was not consumed by the mismatches
	res, err := svc.Transition(ctx, ride.ID, TransitionInput{
		ActorID: "d1", Role: models.RoleDriver, Target: StatusRideStarted, OTP: "4821",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != TransitionApplied || res.Ride.Status != StatusRideStarted {
		t.Fatalf("correct otp rejected: %s", res.Outcome)
	}
}

func TestReplayedTransitionFailsWithoutMutating(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")
	_, _ = svc.Claim(ctx, ride.ID, "d1")
	advance(t, svc, ride.ID, "d1", StatusConfirmed)

	before, _ := store.Get(ctx, ride.ID)
	res, err := svc.Transition(ctx, ride.ID, TransitionInput{
		ActorID: "d1", Role: models.RoleDriver, Target: StatusConfirmed,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != TransitionPrecondition {
		t.Fatalf("replay outcome %s", res.Outcome)
	}
	after, _ := store.Get(ctx, ride.ID)
	if after.Status != before.Status || !after.ConfirmedAt.Equal(*before.ConfirmedAt) {
		t.Fatalf("replay mutated state: %+v vs %+v", before, after)
	}
}

func TestTransitionRoleAndActorChecks(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")
	_, _ = svc.Claim(ctx, ride.ID, "d1")

	// passenger cannot confirm
	res, _ := svc.Transition(ctx, ride.ID, TransitionInput{
		ActorID: "p1", Role: models.RolePassenger, Target: StatusConfirmed,
	})
	if res.Outcome != TransitionWrongRole {
		t.Fatalf("expected wrong_role, got %s", res.Outcome)
	}

	// another driver cannot act on this ride
	res, _ = svc.Transition(ctx, ride.ID, TransitionInput{
		ActorID: "d2", Role: models.RoleDriver, Target: StatusConfirmed,
	})
	if res.Outcome != TransitionWrongActor {
		t.Fatalf("expected wrong_actor, got %s", res.Outcome)
	}

	// DRIVER_ASSIGNED is not reachable via transition
	res, _ = svc.Transition(ctx, ride.ID, TransitionInput{
		ActorID: "d1", Role: models.RoleDriver, Target: StatusDriverAssigned,
	})
	if res.Outcome != TransitionInvalidTarget {
		t.Fatalf("expected invalid_target, got %s", res.Outcome)
	}
}

func TestCancelledRideRejectsEverything(t *testing.T) {
	svc, store, _, _, settler := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")
	_, _ = svc.Claim(ctx, ride.ID, "d1")
	advance(t, svc, ride.ID, "d1", StatusConfirmed)

	res, err := svc.Transition(ctx, ride.ID, TransitionInput{
		ActorID: "p1", Role: models.RolePassenger, Target: StatusCancelled, Reason: "changed plans",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != TransitionApplied {
		t.Fatalf("cancel rejected: %s", res.Outcome)
	}
	got, _ := store.Get(ctx, ride.ID)
	if got.Status != StatusCancelled || got.CancelledBy != models.RolePassenger || got.CancelReason != "changed plans" {
		t.Fatalf("cancel fields not recorded: %+v", got)
	}
	if len(settler.released) != 1 {
		t.Fatal("cancellation did not release the payment hold")
	}

	// terminal: claims and transitions are refused
	cres, _ := svc.Claim(ctx, ride.ID, "d9")
	if cres.Outcome != ClaimRideNotPending {
		t.Fatalf("claim on cancelled ride: %s", cres.Outcome)
	}
	tres, _ := svc.Transition(ctx, ride.ID, TransitionInput{
		ActorID: "d1", Role: models.RoleDriver, Target: StatusDriverArrived,
	})
	if tres.Outcome != TransitionPrecondition {
		t.Fatalf("transition on cancelled ride: %s", tres.Outcome)
	}
}

func TestRatingOnlyOnTerminalRides(t *testing.T) {
	svc, store, _, _, _ := newTestService(t)
	ctx := context.Background()
	ride := createRide(t, store, "p1")
	_, _ = svc.Claim(ctx, ride.ID, "d1")

	err := svc.Rate(ctx, ride.ID, "p1", models.RolePassenger, Rating{Stars: 5})
	if err == nil {
		t.Fatal("rating accepted on active ride")
	}

	advance(t, svc, ride.ID, "d1", StatusRideCompleted)
	if err := svc.Rate(ctx, ride.ID, "p1", models.RolePassenger, Rating{Stars: 5, Feedback: "smooth"}); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, ride.ID)
	if got.RatingByPassenger == nil || got.RatingByPassenger.Stars != 5 {
		t.Fatalf("rating not recorded: %+v", got)
	}
}
