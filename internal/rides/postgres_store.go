package rides

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/models"
)

// PostgresStore relies on single-statement conditional UPDATEs for claim and
// transition correctness: the WHERE clause is the compare, the row either
// changes completely or not at all. No application-level lock is held.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("rides: postgres ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, r *Ride) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(
			id, passenger_id, driver_id,
			pickup_lat, pickup_lng, pickup_address,
			drop_lat, drop_lng, drop_address,
			fare_base, fare_distance_km, fare_per_km, fare_surcharge, fare_total, fare_currency, fare_source,
			otp, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.PassengerID, r.DriverID,
		r.Pickup.Lat, r.Pickup.Lng, r.PickupAddress,
		r.Drop.Lat, r.Drop.Lng, r.DropAddress,
		r.Fare.BaseFare, r.Fare.DistanceKm, r.Fare.PerKmRate, r.Fare.Surcharge, r.Fare.Total, r.Fare.Currency, r.Fare.QuoteSource,
		r.OTP, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("rides: insert %s: %w", r.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, passenger_id, driver_id,
		       pickup_lat, pickup_lng, pickup_address,
		       drop_lat, drop_lng, drop_address,
		       fare_base, fare_distance_km, fare_per_km, fare_surcharge, fare_total, fare_currency, fare_source,
		       otp, status, created_at,
		       assigned_at, confirmed_at, arrived_at, started_at, completed_at, cancelled_at,
		       cancelled_by, cancel_reason,
		       passenger_rating_stars, passenger_rating_feedback,
		       driver_rating_stars, driver_rating_feedback
		FROM rides WHERE id = $1`, id)

	var r Ride
	var driverID, cancelledBy, cancelReason sql.NullString
	var assignedAt, confirmedAt, arrivedAt, startedAt, completedAt, cancelledAt sql.NullTime
	var pStars, dStars sql.NullInt64
	var pFeedback, dFeedback sql.NullString
	var status string

	err := row.Scan(
		&r.ID, &r.PassengerID, &driverID,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.PickupAddress,
		&r.Drop.Lat, &r.Drop.Lng, &r.DropAddress,
		&r.Fare.BaseFare, &r.Fare.DistanceKm, &r.Fare.PerKmRate, &r.Fare.Surcharge, &r.Fare.Total, &r.Fare.Currency, &r.Fare.QuoteSource,
		&r.OTP, &status, &r.CreatedAt,
		&assignedAt, &confirmedAt, &arrivedAt, &startedAt, &completedAt, &cancelledAt,
		&cancelledBy, &cancelReason,
		&pStars, &pFeedback,
		&dStars, &dFeedback,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rides: get %s: %w", id, err)
	}

	r.Status = Status(status)
	if driverID.Valid {
		r.DriverID = &driverID.String
	}
	r.AssignedAt = timePtr(assignedAt)
	r.ConfirmedAt = timePtr(confirmedAt)
	r.ArrivedAt = timePtr(arrivedAt)
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	r.CancelledAt = timePtr(cancelledAt)
	if cancelledBy.Valid {
		r.CancelledBy = models.ActorRole(cancelledBy.String)
	}
	if cancelReason.Valid {
		r.CancelReason = cancelReason.String
	}
	if pStars.Valid {
		r.RatingByPassenger = &Rating{Stars: int(pStars.Int64), Feedback: pFeedback.String}
	}
	if dStars.Valid {
		r.RatingByDriver = &Rating{Stars: int(dStars.Int64), Feedback: dFeedback.String}
	}
	return &r, nil
}

// Claim is one conditional UPDATE; the NOT EXISTS clause enforces the single
// active ride per driver invariant inside the same statement, backed by a
// partial unique index in the migration.
func (p *PostgresStore) Claim(ctx context.Context, rideID, driverID string) (ClaimOutcome, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE rides
		SET driver_id = $2, status = $3, assigned_at = NOW()
		WHERE id = $1 AND status = $4 AND driver_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM rides busy
			WHERE busy.driver_id = $2 AND busy.status NOT IN ($5, $6)
		  )`,
		rideID, driverID, string(StatusDriverAssigned), string(StatusPending),
		string(StatusRideCompleted), string(StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("rides: claim %s by %s: %w", rideID, driverID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return ClaimAssigned, nil
	}

	// The write already decided the race; this read only classifies why it
	// was lost.
	r, err := p.Get(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return ClaimNotFound, nil
	}
	if err != nil {
		return 0, err
	}
	switch {
	case r.Status.Terminal():
		return ClaimRideNotPending, nil
	case r.DriverID != nil:
		return ClaimAlreadyTaken, nil
	case r.Status != StatusPending:
		return ClaimRideNotPending, nil
	default:
		return ClaimDriverBusy, nil
	}
}

func (p *PostgresStore) Transition(ctx context.Context, rideID string, from, to Status, mut Mutation) (bool, error) {
	var cancelledBy, cancelReason sql.NullString
	if to == StatusCancelled {
		cancelledBy = sql.NullString{String: string(mut.CancelledBy), Valid: true}
		cancelReason = sql.NullString{String: mut.CancelReason, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE rides
		SET status = $2,
		    confirmed_at = CASE WHEN $2 = 'CONFIRMED'      THEN NOW() ELSE confirmed_at END,
		    arrived_at   = CASE WHEN $2 = 'DRIVER_ARRIVED' THEN NOW() ELSE arrived_at END,
		    started_at   = CASE WHEN $2 = 'RIDE_STARTED'   THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $2 = 'RIDE_COMPLETED' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $2 = 'CANCELLED'      THEN NOW() ELSE cancelled_at END,
		    cancelled_by  = COALESCE($3, cancelled_by),
		    cancel_reason = COALESCE($4, cancel_reason)
		WHERE id = $1 AND status = $5`,
		rideID, string(to), cancelledBy, cancelReason, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("rides: transition %s %s->%s: %w", rideID, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) SetRating(ctx context.Context, rideID string, by models.ActorRole, rating Rating) error {
	var res sql.Result
	var err error
	if by == models.RolePassenger {
		res, err = p.db.ExecContext(ctx, `
			UPDATE rides SET passenger_rating_stars = $2, passenger_rating_feedback = $3
			WHERE id = $1 AND status IN ($4, $5)`,
			rideID, rating.Stars, rating.Feedback,
			string(StatusRideCompleted), string(StatusCancelled))
	} else {
		res, err = p.db.ExecContext(ctx, `
			UPDATE rides SET driver_rating_stars = $2, driver_rating_feedback = $3
			WHERE id = $1 AND status IN ($4, $5)`,
			rideID, rating.Stars, rating.Feedback,
			string(StatusRideCompleted), string(StatusCancelled))
	}
	if err != nil {
		return fmt.Errorf("rides: rate %s: %w", rideID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRideNotFound
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
