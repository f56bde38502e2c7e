// Package fares obtains the pre-computed fare attached to a ride at
// creation. The core consumes these figures; it never prices rides itself.
package fares

import (
	"context"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
)

// Quoter is the pricing collaborator contract.
type Quoter interface {
	Quote(ctx context.Context, pickup, drop models.Coord) (models.FareBreakdown, error)
}

// Provider layers a TTL cache over the remote quote service, with a static
// rate card as the last resort so ride creation survives a pricing outage.
type Provider struct {
	Remote Quoter // optional
	Cache  *Cache // optional
	Static StaticRates
}

// StaticRates is the fallback rate card.
type StaticRates struct {
	BaseFare  float64
	PerKmRate float64
	Currency  string
}

func (p *Provider) Quote(ctx context.Context, pickup, drop models.Coord) (models.FareBreakdown, error) {
	if p.Cache != nil {
		if f, ok := p.Cache.Get(pickup, drop); ok {
			return f, nil
		}
	}
	if p.Remote != nil {
		if f, err := p.Remote.Quote(ctx, pickup, drop); err == nil {
			if p.Cache != nil {
				p.Cache.Set(pickup, drop, f)
			}
			return f, nil
		}
	}
	return p.static(pickup, drop), nil
}

func (p *Provider) static(pickup, drop models.Coord) models.FareBreakdown {
	rates := p.Static
	if rates.PerKmRate == 0 {
		rates = StaticRates{BaseFare: 50, PerKmRate: 12, Currency: "INR"}
	}
	d := geo.DistanceKm(pickup.Lat, pickup.Lng, drop.Lat, drop.Lng)
	return models.FareBreakdown{
		BaseFare:    rates.BaseFare,
		DistanceKm:  d,
		PerKmRate:   rates.PerKmRate,
		Total:       rates.BaseFare + rates.PerKmRate*d,
		Currency:    rates.Currency,
		QuoteSource: "static",
	}
}
