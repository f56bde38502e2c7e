// Package presence tracks each driver's online flag and last known position,
// with the hex cell derived once per update so candidate queries never
// convert coordinates.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/observability"
)

var ErrDriverNotFound = errors.New("driver not found")

type DriverLocation struct {
	DriverID string    `json:"driver_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Cell     string    `json:"cell"`
	Online   bool      `json:"online"`
	Active   bool      `json:"active"`
	Verified bool      `json:"verified"`
	Updated  time.Time `json:"updated"`
}

// Dispatchable reports whether the driver may be offered rides.
func (d DriverLocation) Dispatchable() bool {
	return d.Online && d.Active && d.Verified
}

// Store persists driver locations keyed by driver and by cell.
type Store interface {
	Upsert(ctx context.Context, loc DriverLocation) error
	Get(ctx context.Context, driverID string) (DriverLocation, error)
	// InCells returns dispatchable drivers located in any of the given
	// cells, skipping entries older than the staleness cutoff.
	InCells(ctx context.Context, cells []string) ([]DriverLocation, error)
	SetOnline(ctx context.Context, driverID string, online bool) error
}

// Publisher receives every accepted location ping (kafka in production).
type Publisher interface {
	PublishLocation(loc DriverLocation) error
}

// Tracker owns DriverLocation records: it recomputes the cell on every ping
// and is the only writer to the store.
type Tracker struct {
	grid  *geo.Grid
	store Store
	pub   Publisher // optional
}

func NewTracker(grid *geo.Grid, store Store, pub Publisher) *Tracker {
	return &Tracker{grid: grid, store: store, pub: pub}
}

// Update records a location ping. The cell is derived here, exactly once.
func (t *Tracker) Update(ctx context.Context, loc DriverLocation) (DriverLocation, error) {
	prev, prevErr := t.store.Get(ctx, loc.DriverID)

	loc.Cell = t.grid.Cell(loc.Lat, loc.Lng)
	loc.Updated = time.Now()
	if err := t.store.Upsert(ctx, loc); err != nil {
		return DriverLocation{}, err
	}
	if t.pub != nil {
		// best-effort; the store is the source of truth
		_ = t.pub.PublishLocation(loc)
	}

	wasOnline := prevErr == nil && prev.Online
	if loc.Online && !wasOnline {
		observability.DriversOnline.Inc()
	} else if !loc.Online && wasOnline {
		observability.DriversOnline.Dec()
	}
	return loc, nil
}

func (t *Tracker) SetOnline(ctx context.Context, driverID string, online bool) error {
	return t.store.SetOnline(ctx, driverID, online)
}
