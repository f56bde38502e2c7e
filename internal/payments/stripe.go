package payments

import (
	"context"
	"math"
	"sync"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/example/ride-hailing/internal/rides"
)

// StripeSettler maps the ride lifecycle onto PaymentIntent hold/capture/
// cancel: a manual-capture hold when the ride is created, capture on
// completion, cancel on cancellation.
type StripeSettler struct {
	mu    sync.Mutex
	holds map[string]string // ride id -> payment intent id
}

// NewStripeSettler initializes the stripe client with the given API key.
func NewStripeSettler(apiKey string) *StripeSettler {
	stripe.Key = apiKey
	return &StripeSettler{holds: make(map[string]string)}
}

// Hold places a manual-capture PaymentIntent for the quoted total.
func (s *StripeSettler) Hold(ctx context.Context, ride *rides.Ride) error {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(ride.Fare.Total)),
		Currency:      stripe.String(ride.Fare.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.AddMetadata("ride_id", ride.ID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.holds[ride.ID] = pi.ID
	s.mu.Unlock()
	return nil
}

// Settle captures the held funds. Without a recorded hold it creates a
// direct-capture intent instead, so completion still settles.
func (s *StripeSettler) Settle(ctx context.Context, ride *rides.Ride) error {
	if id, ok := s.takeHold(ride.ID); ok {
		_, err := paymentintent.Capture(id, nil)
		return err
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(ride.Fare.Total)),
		Currency: stripe.String(ride.Fare.Currency),
	}
	params.AddMetadata("ride_id", ride.ID)
	_, err := paymentintent.New(params)
	return err
}

// Release cancels the hold, if one exists.
func (s *StripeSettler) Release(ctx context.Context, ride *rides.Ride) error {
	id, ok := s.takeHold(ride.ID)
	if !ok {
		return nil
	}
	_, err := paymentintent.Cancel(id, nil)
	return err
}

func (s *StripeSettler) takeHold(rideID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.holds[rideID]
	if ok {
		delete(s.holds, rideID)
	}
	return id, ok
}

func minorUnits(total float64) int64 {
	return int64(math.Round(total * 100))
}
