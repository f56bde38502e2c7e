package models

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FareBreakdown is supplied by the pricing provider at ride creation.
// The core stores and forwards it; it never computes fares itself.
type FareBreakdown struct {
	BaseFare    float64 `json:"base_fare"`
	DistanceKm  float64 `json:"distance_km"`
	PerKmRate   float64 `json:"per_km_rate"`
	Surcharge   float64 `json:"surcharge"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`
	QuoteSource string  `json:"quote_source"`
}

type ActorRole string

const (
	RolePassenger ActorRole = "passenger"
	RoleDriver    ActorRole = "driver"
)

func (r ActorRole) Valid() bool {
	return r == RolePassenger || r == RoleDriver
}
