// Package search finds nearby dispatchable drivers by growing a hexagonal
// k-ring around the pickup point until a ring yields candidates.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/presence"
)

type Candidate struct {
	DriverID   string  `json:"driver_id"`
	DistanceKm float64 `json:"distance_km"`
}

// Rings walks the expanding search one ring step at a time so the caller can
// stop at the first non-empty result. A Rings value is single-use: it is not
// restartable once advanced.
type Rings struct {
	grid  *geo.Grid
	store presence.Store
	lat   float64
	lng   float64
	maxK  int
	k     int
}

func NewRings(grid *geo.Grid, store presence.Store, lat, lng float64, maxK int) *Rings {
	return &Rings{grid: grid, store: store, lat: lat, lng: lng, maxK: maxK, k: 1}
}

// K reports the ring radius the last Next call searched.
func (r *Rings) K() int { return r.k - 1 }

// Next searches the full disk at the current radius and advances. The coarse
// cell filter is corrected by an exact-distance pass: only drivers within
// RadiusKm(k) survive, sorted nearest first. ok is false once maxK is passed.
func (r *Rings) Next(ctx context.Context) (cands []Candidate, ok bool, err error) {
	if r.k > r.maxK {
		return nil, false, nil
	}
	k := r.k
	r.k++

	cells := r.grid.Disk(r.lat, r.lng, k)
	locs, err := r.store.InCells(ctx, cells)
	if err != nil {
		return nil, true, fmt.Errorf("search: ring %d: %w", k, err)
	}

	radius := r.grid.RadiusKm(k)
	for _, loc := range locs {
		d := geo.DistanceKm(r.lat, r.lng, loc.Lat, loc.Lng)
		if d > radius {
			continue
		}
		cands = append(cands, Candidate{DriverID: loc.DriverID, DistanceKm: d})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].DistanceKm < cands[j].DistanceKm })
	return cands, true, nil
}

// Service is the read-only findCandidates entry point. It never mutates
// state and is safe to retry.
type Service struct {
	Grid  *geo.Grid
	Store presence.Store
	MaxK  int
}

// FindCandidates expands ring by ring and stops at the first ring with at
// least one candidate. An empty result after maxK rings is a normal
// "no drivers available" outcome, not an error. foundAtK is 0 when empty.
func (s *Service) FindCandidates(ctx context.Context, lat, lng float64, maxK int) ([]Candidate, int, error) {
	if maxK <= 0 || maxK > s.MaxK {
		maxK = s.MaxK
	}
	rings := NewRings(s.Grid, s.Store, lat, lng, maxK)
	for {
		cands, ok, err := rings.Next(ctx)
		if err != nil {
			observability.SearchesTotal.WithLabelValues("error").Inc()
			return nil, 0, err
		}
		if !ok {
			observability.SearchesTotal.WithLabelValues("exhausted").Inc()
			return nil, 0, nil
		}
		if len(cands) > 0 {
			observability.SearchesTotal.WithLabelValues("found").Inc()
			observability.SearchRings.Observe(float64(rings.K()))
			return cands, rings.K(), nil
		}
	}
}
