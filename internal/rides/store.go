package rides

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

var ErrRideNotFound = errors.New("ride not found")

// ClaimOutcome classifies a claim attempt. All values except ClaimAssigned
// are expected business outcomes, not errors.
type ClaimOutcome int

const (
	ClaimAssigned ClaimOutcome = iota
	ClaimAlreadyTaken
	ClaimRideNotPending
	ClaimNotFound
	ClaimDriverBusy
)

func (c ClaimOutcome) String() string {
	switch c {
	case ClaimAssigned:
		return "assigned"
	case ClaimAlreadyTaken:
		return "already_taken"
	case ClaimRideNotPending:
		return "ride_not_pending"
	case ClaimNotFound:
		return "not_found"
	case ClaimDriverBusy:
		return "driver_busy"
	}
	return "unknown"
}

// Mutation carries the extra fields a transition may write alongside the
// status and its timestamp.
type Mutation struct {
	CancelledBy  models.ActorRole
	CancelReason string
}

// Store persists rides. Claim and Transition are single atomic conditional
// writes: the precondition check and the mutation happen against the record
// in one step, never as a separate read followed by a write.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id string) (*Ride, error)

	// Claim assigns driverID to a PENDING, unassigned ride held by a driver
	// with no other active ride, advancing it to DRIVER_ASSIGNED. On any
	// failed precondition nothing is written.
	Claim(ctx context.Context, rideID, driverID string) (ClaimOutcome, error)

	// Transition sets status to `to` where the current status is `from`,
	// stamping the timestamp matching `to`. applied=false means the
	// precondition did not hold; no fields were modified.
	Transition(ctx context.Context, rideID string, from, to Status, mut Mutation) (applied bool, err error)

	// SetRating records feedback on a terminal ride.
	SetRating(ctx context.Context, rideID string, by models.ActorRole, rating Rating) error
}

// stamp points the timestamp field matching a target status.
func stamp(r *Ride, to Status, at time.Time) {
	switch to {
	case StatusDriverAssigned:
		r.AssignedAt = &at
	case StatusConfirmed:
		r.ConfirmedAt = &at
	case StatusDriverArrived:
		r.ArrivedAt = &at
	case StatusRideStarted:
		r.StartedAt = &at
	case StatusRideCompleted:
		r.CompletedAt = &at
	case StatusCancelled:
		r.CancelledAt = &at
	}
}
