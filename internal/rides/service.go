package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/search"
)

// TransitionOutcome classifies a transition attempt. Everything except
// TransitionApplied is an expected business-rule rejection; infrastructure
// failures travel separately as errors.
type TransitionOutcome int

const (
	TransitionApplied TransitionOutcome = iota
	TransitionNotFound
	TransitionInvalidTarget
	TransitionWrongRole
	TransitionWrongActor
	TransitionOTPMismatch
	TransitionPrecondition
)

func (o TransitionOutcome) String() string {
	switch o {
	case TransitionApplied:
		return "applied"
	case TransitionNotFound:
		return "not_found"
	case TransitionInvalidTarget:
		return "invalid_target"
	case TransitionWrongRole:
		return "wrong_role"
	case TransitionWrongActor:
		return "wrong_actor"
	case TransitionOTPMismatch:
		return "otp_mismatch"
	case TransitionPrecondition:
		return "precondition_failed"
	}
	return "unknown"
}

type ClaimResult struct {
	Outcome ClaimOutcome
	Ride    *Ride // populated on ClaimAssigned
}

type TransitionResult struct {
	Outcome TransitionOutcome
	Ride    *Ride // populated on TransitionApplied
}

// Notifier is the best-effort notification path. Failures are logged and
// never roll back the state change they report.
type Notifier interface {
	OfferRide(ctx context.Context, ride *Ride, cands []search.Candidate)
	RideClaimed(ctx context.Context, ride *Ride)
	RideStatus(ctx context.Context, ride *Ride)
}

// FareQuoter supplies the pre-computed fare attached at creation.
type FareQuoter interface {
	Quote(ctx context.Context, pickup, drop models.Coord) (models.FareBreakdown, error)
}

// Settler is the payment collaborator: a hold at creation, capture on
// completion, release on cancellation. All calls are best-effort from the
// core's point of view.
type Settler interface {
	Hold(ctx context.Context, ride *Ride) error
	Settle(ctx context.Context, ride *Ride) error
	Release(ctx context.Context, ride *Ride) error
}

// Service is the ride lifecycle entry point: request, claim, transition,
// rate. Correctness under concurrent callers comes entirely from the store's
// conditional writes; the service holds no locks.
type Service struct {
	Store    Store
	Search   *search.Service
	Fares    FareQuoter
	Notify   Notifier // optional
	Payments Settler  // optional
	Logger   *slog.Logger
}

type RequestInput struct {
	PassengerID   string       `json:"passenger_id"`
	Pickup        models.Coord `json:"pickup"`
	PickupAddress string       `json:"pickup_address"`
	Drop          models.Coord `json:"drop"`
	DropAddress   string       `json:"drop_address"`
	MaxK          int          `json:"max_k,omitempty"`
}

// Request creates a PENDING ride and searches for candidates around the
// pickup. An empty candidate list is a normal outcome; the ride still exists
// and can be retried or cancelled by the passenger.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Ride, []search.Candidate, error) {
	fare, err := s.Fares.Quote(ctx, in.Pickup, in.Drop)
	if err != nil {
		return nil, nil, fmt.Errorf("fare quote: %w", err)
	}

	ride := NewRide(in.PassengerID, in.Pickup, in.Drop, in.PickupAddress, in.DropAddress, fare)
	if err := s.Store.Create(ctx, ride); err != nil {
		return nil, nil, err
	}

	cands, foundAtK, err := s.Search.FindCandidates(ctx, in.Pickup.Lat, in.Pickup.Lng, in.MaxK)
	if err != nil {
		// the ride is created; surface the search failure for the caller to retry
		return ride, nil, err
	}
	if s.Payments != nil {
		if err := s.Payments.Hold(ctx, ride); err != nil {
			s.Logger.Error("payment hold failed", "ride_id", ride.ID, "error", err)
		}
	}
	if len(cands) > 0 && s.Notify != nil {
		s.Notify.OfferRide(ctx, ride, cands)
	}
	s.Logger.Info("ride requested",
		"ride_id", ride.ID, "passenger_id", in.PassengerID,
		"candidates", len(cands), "found_at_k", foundAtK)
	return ride, cands, nil
}

// FindCandidates is the read-only candidate lookup, safe to retry.
func (s *Service) FindCandidates(ctx context.Context, lat, lng float64, maxK int) ([]search.Candidate, error) {
	cands, _, err := s.Search.FindCandidates(ctx, lat, lng, maxK)
	return cands, err
}

// Claim is the assignment coordinator: of N concurrent claims on one
// PENDING ride exactly one wins; the rest observe a deterministic outcome.
func (s *Service) Claim(ctx context.Context, rideID, driverID string) (ClaimResult, error) {
	outcome, err := s.Store.Claim(ctx, rideID, driverID)
	if err != nil {
		return ClaimResult{}, err
	}
	observability.ClaimsTotal.WithLabelValues(outcome.String()).Inc()

	res := ClaimResult{Outcome: outcome}
	if outcome == ClaimAssigned {
		ride, err := s.Store.Get(ctx, rideID)
		if err != nil {
			// the claim itself committed; report it even if the re-read failed
			s.Logger.Error("claimed ride re-read failed", "ride_id", rideID, "error", err)
		} else {
			res.Ride = ride
			if s.Notify != nil {
				s.Notify.RideClaimed(ctx, ride)
			}
		}
		s.Logger.Info("ride claimed", "ride_id", rideID, "driver_id", driverID)
	}
	return res, nil
}

// TransitionInput names one lifecycle edge attempt. OTP is only consulted
// for DRIVER_ARRIVED -> RIDE_STARTED; Reason only for cancellations.
type TransitionInput struct {
	ActorID string           `json:"actor_id"`
	Role    models.ActorRole `json:"role"`
	Target  Status           `json:"target"`
	OTP     string           `json:"otp,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// Transition applies one lifecycle edge on behalf of an actor. The legal
// edges, their required roles and the OTP gate live here; the atomic
// "set X where currently Y" guard lives in the store.
func (s *Service) Transition(ctx context.Context, rideID string, in TransitionInput) (TransitionResult, error) {
	actorID, role, target := in.ActorID, in.Role, in.Target
	reject := func(o TransitionOutcome) (TransitionResult, error) {
		observability.TransitionsTotal.WithLabelValues(string(target), o.String()).Inc()
		return TransitionResult{Outcome: o}, nil
	}

	if !target.Valid() || target == StatusPending || target == StatusDriverAssigned {
		// PENDING is the creation state; DRIVER_ASSIGNED only via Claim
		return reject(TransitionInvalidTarget)
	}

	ride, err := s.Store.Get(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return reject(TransitionNotFound)
	}
	if err != nil {
		return TransitionResult{}, err
	}

	var from Status
	var mut Mutation
	if target == StatusCancelled {
		if !cancellableBy(role, ride.Status) {
			return reject(TransitionPrecondition)
		}
		if err := checkActor(ride, actorID, role); err != nil {
			return reject(TransitionWrongActor)
		}
		from = ride.Status
		mut = Mutation{CancelledBy: role, CancelReason: in.Reason}
	} else {
		required, ok := PredecessorOf(target)
		if !ok {
			return reject(TransitionInvalidTarget)
		}
		wantRole, _ := RequiredRole(required, target)
		if role != wantRole {
			return reject(TransitionWrongRole)
		}
		if err := checkActor(ride, actorID, role); err != nil {
			return reject(TransitionWrongActor)
		}
		if target == StatusRideStarted && in.OTP != ride.OTP {
			// mismatch leaves the ride untouched; the OTP is never consumed
			return reject(TransitionOTPMismatch)
		}
		from = required
	}

	applied, err := s.Store.Transition(ctx, rideID, from, target, mut)
	if err != nil {
		return TransitionResult{}, err
	}
	if !applied {
		// lost a race or replayed an already-applied edge
		return reject(TransitionPrecondition)
	}

	observability.TransitionsTotal.WithLabelValues(string(target), TransitionApplied.String()).Inc()
	updated, err := s.Store.Get(ctx, rideID)
	if err != nil {
		s.Logger.Error("transitioned ride re-read failed", "ride_id", rideID, "error", err)
		updated = ride
	}

	s.afterTransition(ctx, updated, target)
	s.Logger.Info("ride transition", "ride_id", rideID, "from", from, "to", target, "actor", actorID)
	return TransitionResult{Outcome: TransitionApplied, Ride: updated}, nil
}

// afterTransition fires the best-effort collaborators. Their failure never
// rolls back the committed transition.
func (s *Service) afterTransition(ctx context.Context, ride *Ride, target Status) {
	if s.Payments != nil {
		switch target {
		case StatusRideCompleted:
			if err := s.Payments.Settle(ctx, ride); err != nil {
				s.Logger.Error("fare settlement handoff failed", "ride_id", ride.ID, "error", err)
			}
		case StatusCancelled:
			if err := s.Payments.Release(ctx, ride); err != nil {
				s.Logger.Error("payment release failed", "ride_id", ride.ID, "error", err)
			}
		}
	}
	if s.Notify != nil {
		s.Notify.RideStatus(ctx, ride)
	}
}

// Rate records feedback; only terminal rides accept it.
func (s *Service) Rate(ctx context.Context, rideID, actorID string, role models.ActorRole, rating Rating) error {
	ride, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return err
	}
	if err := checkActor(ride, actorID, role); err != nil {
		return err
	}
	if rating.Stars < 1 || rating.Stars > 5 {
		return errors.New("rating stars out of range")
	}
	return s.Store.SetRating(ctx, rideID, role, rating)
}

var errWrongActor = errors.New("actor does not own this ride")

func checkActor(ride *Ride, actorID string, role models.ActorRole) error {
	switch role {
	case models.RolePassenger:
		if ride.PassengerID != actorID {
			return errWrongActor
		}
	case models.RoleDriver:
		if ride.DriverID == nil || *ride.DriverID != actorID {
			return errWrongActor
		}
	default:
		return errWrongActor
	}
	return nil
}
