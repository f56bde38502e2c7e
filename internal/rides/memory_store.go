package rides

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// MemoryStore backs tests and single-node runs. Each operation takes the
// lock once, checks its precondition and mutates under it, mirroring the
// single-record compare-and-set the postgres store gets from conditional
// UPDATEs. The lock is never held across I/O because there is none.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*Ride)}
}

func (m *MemoryStore) Create(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return errors.New("ride id collision")
	}
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrRideNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Claim(_ context.Context, rideID, driverID string) (ClaimOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[rideID]
	if !ok {
		return ClaimNotFound, nil
	}
	if r.Status.Terminal() {
		return ClaimRideNotPending, nil
	}
	if r.DriverID != nil {
		return ClaimAlreadyTaken, nil
	}
	if r.Status != StatusPending {
		return ClaimRideNotPending, nil
	}
	for _, other := range m.rides {
		if other.DriverID != nil && *other.DriverID == driverID && !other.Status.Terminal() {
			return ClaimDriverBusy, nil
		}
	}

	d := driverID
	r.DriverID = &d
	r.Status = StatusDriverAssigned
	stamp(r, StatusDriverAssigned, time.Now())
	return ClaimAssigned, nil
}

func (m *MemoryStore) Transition(_ context.Context, rideID string, from, to Status, mut Mutation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[rideID]
	if !ok {
		return false, ErrRideNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	stamp(r, to, time.Now())
	if to == StatusCancelled {
		r.CancelledBy = mut.CancelledBy
		r.CancelReason = mut.CancelReason
	}
	return true, nil
}

func (m *MemoryStore) SetRating(_ context.Context, rideID string, by models.ActorRole, rating Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[rideID]
	if !ok {
		return ErrRideNotFound
	}
	if !r.Status.Terminal() {
		return errors.New("ride not terminal")
	}
	cp := rating
	if by == models.RolePassenger {
		r.RatingByPassenger = &cp
	} else {
		r.RatingByDriver = &cp
	}
	return nil
}
