// README: Driver store interface, PostgreSQL and in-memory implementations.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gocab/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Store interface {
	Create(ctx context.Context, d *Driver) error
	Get(ctx context.Context, id types.ID) (*Driver, error)
	SetDuty(ctx context.Context, id types.ID, onDuty bool) error
	UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
	SetDeviceToken(ctx context.Context, id types.ID, token string) error

	// SetActiveRide claims the driver for a ride; it fails closed when the
	// driver already serves one.
	SetActiveRide(ctx context.Context, id, rideID types.ID) (bool, error)
	ClearActiveRide(ctx context.Context, id types.ID) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (
			id, name, phone, category_id, vehicle_number,
			on_duty, device_token, lat, lng, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		string(d.ID), d.Name, d.Phone, string(d.CategoryID), d.VehicleNumber,
		d.OnDuty, d.DeviceToken, d.Position.Lat, d.Position.Lng, d.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, phone, category_id, vehicle_number,
			on_duty, active_ride_id, device_token, lat, lng, location_at,
			created_at, updated_at
		FROM drivers WHERE id = $1`, string(id),
	)
	var d Driver
	var activeRideID sql.NullString
	var locationAt sql.NullTime
	err := row.Scan(
		&d.ID, &d.Name, &d.Phone, &d.CategoryID, &d.VehicleNumber,
		&d.OnDuty, &activeRideID, &d.DeviceToken, &d.Position.Lat, &d.Position.Lng, &locationAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if activeRideID.Valid {
		r := types.ID(activeRideID.String)
		d.ActiveRideID = &r
	}
	if locationAt.Valid {
		t := locationAt.Time
		d.LocationAt = &t
	}
	return &d, nil
}

func (s *PGStore) SetDuty(ctx context.Context, id types.ID, onDuty bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET on_duty = $1, updated_at = NOW() WHERE id = $2`, onDuty, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET lat = $1, lng = $2, location_at = $3, updated_at = NOW()
		WHERE id = $4`, p.Lat, p.Lng, at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetDeviceToken(ctx context.Context, id types.ID, token string) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET device_token = $1, updated_at = NOW() WHERE id = $2`, token, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetActiveRide(ctx context.Context, id, rideID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET active_ride_id = $1, updated_at = NOW()
		WHERE id = $2 AND active_ride_id IS NULL`, string(rideID), string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ClearActiveRide(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `UPDATE drivers SET active_ride_id = NULL, updated_at = NOW() WHERE id = $1`, string(id))
	return err
}

var _ Store = (*PGStore)(nil)

// MemStore backs driver service tests without a database.
type MemStore struct {
	mu      sync.Mutex
	drivers map[types.ID]*Driver
}

func NewMemStore() *MemStore {
	return &MemStore{drivers: make(map[types.ID]*Driver)}
}

func (s *MemStore) Create(ctx context.Context, d *Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.drivers[d.ID] = &cp
	return nil
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemStore) SetDuty(ctx context.Context, id types.ID, onDuty bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.OnDuty = onDuty
	d.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Position = p
	d.LocationAt = &at
	d.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) SetDeviceToken(ctx context.Context, id types.ID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.DeviceToken = token
	d.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) SetActiveRide(ctx context.Context, id, rideID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return false, ErrNotFound
	}
	if d.ActiveRideID != nil {
		return false, nil
	}
	r := rideID
	d.ActiveRideID = &r
	d.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemStore) ClearActiveRide(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.ActiveRideID = nil
	d.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*MemStore)(nil)
