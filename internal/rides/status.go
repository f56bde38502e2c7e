package rides

import "github.com/example/ride-hailing/internal/models"

// Status is the closed set of ride lifecycle states.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusDriverAssigned Status = "DRIVER_ASSIGNED"
	StatusConfirmed      Status = "CONFIRMED"
	StatusDriverArrived  Status = "DRIVER_ARRIVED"
	StatusRideStarted    Status = "RIDE_STARTED"
	StatusRideCompleted  Status = "RIDE_COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusRideCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDriverAssigned, StatusConfirmed,
		StatusDriverArrived, StatusRideStarted, StatusRideCompleted, StatusCancelled:
		return true
	}
	return false
}

type edge struct {
	from, to Status
}

// transitions is the audited set of legal (from, to, required-role) triples.
// PENDING -> DRIVER_ASSIGNED is absent: that edge exists only through the
// atomic claim. CANCELLED edges are handled by cancellableBy below since the
// cancelling role depends on the actor, not the edge.
var transitions = map[edge]models.ActorRole{
	{StatusDriverAssigned, StatusConfirmed}:  models.RoleDriver,
	{StatusConfirmed, StatusDriverArrived}:   models.RoleDriver,
	{StatusDriverArrived, StatusRideStarted}: models.RoleDriver,
	{StatusRideStarted, StatusRideCompleted}: models.RoleDriver,
}

// RequiredRole returns the role allowed to drive from->to, or ok=false if
// the edge is not in the table.
func RequiredRole(from, to Status) (models.ActorRole, bool) {
	role, ok := transitions[edge{from, to}]
	return role, ok
}

// PredecessorOf returns the unique required predecessor of a non-cancel
// target status.
func PredecessorOf(to Status) (Status, bool) {
	for e := range transitions {
		if e.to == to {
			return e.from, true
		}
	}
	return "", false
}

// cancellableBy: either party may cancel any non-terminal ride.
func cancellableBy(role models.ActorRole, current Status) bool {
	return role.Valid() && !current.Terminal()
}
