package geo

import (
	h3 "github.com/uber/h3-go/v4"
)

// Grid maps coordinates onto a fixed-resolution hexagonal partition of the
// earth. One conversion per location update; queries work on stored cells.
type Grid struct {
	resolution int
	edgeKm     float64
}

// NewGrid builds a grid at the given H3 resolution. edgeKm is the average
// hexagon edge length for that resolution and drives RadiusKm.
func NewGrid(resolution int, edgeKm float64) *Grid {
	return &Grid{resolution: resolution, edgeKm: edgeKm}
}

func (g *Grid) Resolution() int { return g.resolution }

func (g *Grid) EdgeKm() float64 { return g.edgeKm }

// Cell returns the identifier of the cell containing the point.
func (g *Grid) Cell(lat, lng float64) string {
	return h3.LatLngToCell(h3.NewLatLng(lat, lng), g.resolution).String()
}

// Disk returns every cell within k rings of the point's cell, the center
// included. A full disk at radius k holds 3k(k+1)+1 cells.
func (g *Grid) Disk(lat, lng float64, k int) []string {
	center := h3.LatLngToCell(h3.NewLatLng(lat, lng), g.resolution)
	cells := h3.GridDisk(center, k)
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.String())
	}
	return out
}

// RadiusKm is the search radius implied by a disk of k rings: (2k+1) average
// edge lengths. The same figure gates both the ring-expansion stopping
// condition and the exact-distance filter so the two cannot disagree.
func (g *Grid) RadiusKm(k int) float64 {
	return g.edgeKm * float64(2*k+1)
}
