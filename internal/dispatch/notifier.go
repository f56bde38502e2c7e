package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/ride-hailing/internal/rides"
	"github.com/example/ride-hailing/internal/search"
)

// Event is the wire shape for both WS and push delivery.
type Event struct {
	Type       string  `json:"type"`
	RideID     string  `json:"ride_id"`
	Status     string  `json:"status,omitempty"`
	PickupLat  float64 `json:"pickup_lat,omitempty"`
	PickupLng  float64 `json:"pickup_lng,omitempty"`
	Address    string  `json:"address,omitempty"`
	DistanceKm float64 `json:"distance_km,omitempty"`
	FareTotal  float64 `json:"fare_total,omitempty"`
	Currency   string  `json:"currency,omitempty"`
}

// Notifier fans ride events out to driver and passenger sessions, falling
// back to push. It remembers which drivers were offered each ride so the
// losers of a claim race can be told the ride is gone. Everything here is
// fire-and-forget: a delivery failure never affects ride state.
type Notifier struct {
	WS     *Registry
	Push   *PushClient // optional
	Logger *slog.Logger

	mu      sync.Mutex
	offered map[string][]string // ride id -> offered driver ids
}

func NewNotifier(ws *Registry, push *PushClient, logger *slog.Logger) *Notifier {
	return &Notifier{WS: ws, Push: push, Logger: logger, offered: make(map[string][]string)}
}

func (n *Notifier) OfferRide(_ context.Context, ride *rides.Ride, cands []search.Candidate) {
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.DriverID)
		n.deliver(c.DriverID, Event{
			Type:       "ride_offer",
			RideID:     ride.ID,
			PickupLat:  ride.Pickup.Lat,
			PickupLng:  ride.Pickup.Lng,
			Address:    ride.PickupAddress,
			DistanceKm: c.DistanceKm,
			FareTotal:  ride.Fare.Total,
			Currency:   ride.Fare.Currency,
		})
	}
	n.mu.Lock()
	n.offered[ride.ID] = ids
	n.mu.Unlock()
}

// RideClaimed tells every offered driver except the winner that the ride is
// no longer available, and tells the passenger who got it.
func (n *Notifier) RideClaimed(_ context.Context, ride *rides.Ride) {
	n.mu.Lock()
	ids := n.offered[ride.ID]
	delete(n.offered, ride.ID)
	n.mu.Unlock()

	winner := ""
	if ride.DriverID != nil {
		winner = *ride.DriverID
	}
	for _, id := range ids {
		if id == winner {
			continue
		}
		n.deliver(id, Event{Type: "ride_unavailable", RideID: ride.ID})
	}
	n.deliver(ride.PassengerID, Event{Type: "ride_status", RideID: ride.ID, Status: string(ride.Status)})
}

func (n *Notifier) RideStatus(_ context.Context, ride *rides.Ride) {
	if ride.Status.Terminal() {
		n.mu.Lock()
		delete(n.offered, ride.ID)
		n.mu.Unlock()
	}
	ev := Event{Type: "ride_status", RideID: ride.ID, Status: string(ride.Status)}
	n.deliver(ride.PassengerID, ev)
	if ride.DriverID != nil {
		n.deliver(*ride.DriverID, ev)
	}
}

func (n *Notifier) deliver(actorID string, ev Event) {
	err := n.WS.Send(actorID, ev)
	if err == nil {
		return
	}
	if errors.Is(err, ErrNoSession) && n.Push != nil {
		if perr := n.Push.Push(actorID, ev); perr == nil {
			return
		} else {
			err = perr
		}
	}
	n.Logger.Debug("notify failed", "actor_id", actorID, "event", ev.Type, "error", err)
}
