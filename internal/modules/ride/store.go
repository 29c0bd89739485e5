// README: Ride store interface and PostgreSQL implementation.
package ride

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gocab/internal/types"
)

// Store persists rides with compare-and-write semantics: every mutating call
// names the status (and, where it matters, the offer index) it read, and the
// write applies only if the record is unchanged. Races resolve to exactly one
// winner; losers get ok=false and no error.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error)
	HasActiveByRider(ctx context.Context, riderID types.ID) (bool, error)

	// UpdateStatus applies a lifecycle transition. Timestamps and the
	// is_searching / can_be_cancelled flags follow the target status.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID *types.ID) (bool, error)
	// MarkOffered moves searching → offer_pending while the cursor is at index.
	MarkOffered(ctx context.Context, id types.ID, version, index int) (bool, error)
	// AdvanceOffer moves offer_pending@index back to searching@index+1.
	AdvanceOffer(ctx context.Context, id types.ID, version, index int) (bool, error)
	// Expire closes the ride after the queue is exhausted.
	Expire(ctx context.Context, id types.ID, version int) (bool, error)
	// CompleteTrip moves ongoing_trip → completed and records the final fare.
	CompleteTrip(ctx context.Context, id types.ID, version int, fare types.Money) (bool, error)

	AppendEvent(ctx context.Context, e *Event) error
}

var ErrNotFound = errors.New("ride not found")

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
	id, rider_id, driver_id, kind, category_id, status, status_version,
	pickup_lat, pickup_lng, drop_lat, drop_lng, pickup_address, drop_address,
	trip_distance_km, trip_duration_s, fare_estimate, final_fare,
	candidates, offer_index, is_searching, can_be_cancelled,
	receiver_name, receiver_phone, goods_type,
	created_at, accepted_at, started_at, completed_at, cancelled_at, expired_at, updated_at`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	candidates := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		candidates[i] = string(c)
	}
	var receiverName, receiverPhone, goodsType *string
	if r.Parcel != nil {
		receiverName = &r.Parcel.ReceiverName
		receiverPhone = &r.Parcel.ReceiverPhone
		goodsType = &r.Parcel.GoodsType
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, rider_id, driver_id, kind, category_id, status, status_version,
			pickup_lat, pickup_lng, drop_lat, drop_lng, pickup_address, drop_address,
			trip_distance_km, trip_duration_s, fare_estimate, final_fare,
			candidates, offer_index, is_searching, can_be_cancelled,
			receiver_name, receiver_phone, goods_type, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21,
			$22, $23, $24, $25, $26
		)`,
		string(r.ID), string(r.RiderID), toStringPtr(r.DriverID), string(r.Kind), string(r.CategoryID),
		string(r.Status), r.StatusVersion,
		r.Pickup.Lat, r.Pickup.Lng, r.Drop.Lat, r.Drop.Lng, r.PickupAddress, r.DropAddress,
		r.TripDistanceKm, int64(r.TripDuration/time.Second), r.FareEstimate.Amount, toIntPtr(r.FinalFare),
		candidates, r.OfferIndex, r.IsSearching, r.CanBeCancelled,
		receiverName, receiverPhone, goodsType, r.CreatedAt, r.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	return scanRide(row)
}

func (s *PGStore) ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rideColumns+` FROM rides WHERE rider_id = $1 ORDER BY created_at DESC`, string(riderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) HasActiveByRider(ctx context.Context, riderID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE rider_id = $1
			  AND status IN ('created','searching','offer_pending','accepted','ongoing_trip')
		)`, string(riderID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
			status_version = status_version + 1,
			driver_id = COALESCE($2, driver_id),
			is_searching = CASE WHEN $1 IN ('accepted','cancelled','expired','completed') THEN FALSE ELSE is_searching END,
			can_be_cancelled = CASE WHEN $1 = 'ongoing_trip' THEN FALSE ELSE can_be_cancelled END,
			accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
			started_at = CASE WHEN $1 = 'ongoing_trip' THEN NOW() ELSE started_at END,
			cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
			updated_at = NOW()
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to), toStringPtr(driverID), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) MarkOffered(ctx context.Context, id types.ID, version, index int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = 'offer_pending',
			status_version = status_version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'searching' AND status_version = $2 AND offer_index = $3`,
		string(id), version, index,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AdvanceOffer(ctx context.Context, id types.ID, version, index int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = 'searching',
			status_version = status_version + 1,
			offer_index = offer_index + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'offer_pending' AND status_version = $2 AND offer_index = $3`,
		string(id), version, index,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) Expire(ctx context.Context, id types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = 'expired',
			status_version = status_version + 1,
			is_searching = FALSE,
			expired_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('searching','offer_pending') AND status_version = $2`,
		string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) CompleteTrip(ctx context.Context, id types.ID, version int, fare types.Money) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = 'completed',
			status_version = status_version + 1,
			final_fare = $1,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $2 AND status = 'ongoing_trip' AND status_version = $3`,
		fare.Amount, string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_state_events (
			ride_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, toStringPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*Ride, error) {
	var r Ride
	var driverID, pickupAddr, dropAddr sql.NullString
	var receiverName, receiverPhone, goodsType sql.NullString
	var finalFare sql.NullInt64
	var durationS int64
	var candidates []string
	var acceptedAt, startedAt, completedAt, cancelledAt, expiredAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.Kind, &r.CategoryID, &r.Status, &r.StatusVersion,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Drop.Lat, &r.Drop.Lng, &pickupAddr, &dropAddr,
		&r.TripDistanceKm, &durationS, &r.FareEstimate.Amount, &finalFare,
		&candidates, &r.OfferIndex, &r.IsSearching, &r.CanBeCancelled,
		&receiverName, &receiverPhone, &goodsType,
		&r.CreatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt, &expiredAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r.FareEstimate.Currency = currencyINR
	if driverID.Valid {
		d := types.ID(driverID.String)
		r.DriverID = &d
	}
	r.PickupAddress = pickupAddr.String
	r.DropAddress = dropAddr.String
	if finalFare.Valid {
		v := types.Money{Amount: finalFare.Int64, Currency: currencyINR}
		r.FinalFare = &v
	}
	r.TripDuration = time.Duration(durationS) * time.Second
	r.Candidates = make([]types.ID, len(candidates))
	for i, c := range candidates {
		r.Candidates[i] = types.ID(c)
	}
	if receiverName.Valid || goodsType.Valid {
		r.Parcel = &ParcelInfo{
			ReceiverName:  receiverName.String,
			ReceiverPhone: receiverPhone.String,
			GoodsType:     goodsType.String,
		}
	}
	r.AcceptedAt = toTimePtr(acceptedAt)
	r.StartedAt = toTimePtr(startedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	r.ExpiredAt = toTimePtr(expiredAt)
	return &r, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIntPtr(v *types.Money) *int64 {
	if v == nil {
		return nil
	}
	n := v.Amount
	return &n
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

var _ Store = (*PGStore)(nil)
