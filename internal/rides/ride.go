package rides

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-hailing/internal/models"
)

type Rating struct {
	Stars    int    `json:"stars"`
	Feedback string `json:"feedback,omitempty"`
}

// Ride is the lifecycle record. After a terminal status it is immutable
// except for the rating fields.
type Ride struct {
	ID          string  `json:"id"`
	PassengerID string  `json:"passenger_id"`
	DriverID    *string `json:"driver_id,omitempty"`

	Pickup        models.Coord `json:"pickup"`
	PickupAddress string       `json:"pickup_address"`
	Drop          models.Coord `json:"drop"`
	DropAddress   string       `json:"drop_address"`

	Fare models.FareBreakdown `json:"fare"`

	// OTP is generated once at creation and never regenerated; it is only
	// ever compared against, at ride start.
	OTP string `json:"-"`

	Status Status `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CancelledBy  models.ActorRole `json:"cancelled_by,omitempty"`
	CancelReason string           `json:"cancel_reason,omitempty"`

	RatingByPassenger *Rating `json:"rating_by_passenger,omitempty"`
	RatingByDriver    *Rating `json:"rating_by_driver,omitempty"`
}

// NewRide builds a PENDING ride with a fresh id and OTP.
func NewRide(passengerID string, pickup, drop models.Coord, pickupAddr, dropAddr string, fare models.FareBreakdown) *Ride {
	return &Ride{
		ID:            uuid.NewString(),
		PassengerID:   passengerID,
		Pickup:        pickup,
		PickupAddress: pickupAddr,
		Drop:          drop,
		DropAddress:   dropAddr,
		Fare:          fare,
		OTP:           newOTP(),
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
}

// newOTP draws a 4-digit code from crypto/rand.
func newOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// crypto/rand failing means the process is in serious trouble
		panic(err)
	}
	code := n.Int64()
	digits := []byte{
		byte('0' + code/1000%10),
		byte('0' + code/100%10),
		byte('0' + code/10%10),
		byte('0' + code%10),
	}
	return string(digits)
}
