// README: Driver service: presence, location pings and the active-ride back-reference.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gocab/internal/modules/matching"
	"gocab/internal/observability"
	"gocab/internal/types"
)

var (
	ErrBadRequest     = errors.New("bad request")
	ErrAlreadyServing = errors.New("driver already serving a ride")
)

// Service keeps the relational record and the geo index in step: every
// location ping lands in both, and going off duty removes the driver from
// the index so the selector never sees a stale position.
type Service struct {
	store Store
	geo   matching.Geo
	log   *slog.Logger
}

func NewService(store Store, geo matching.Geo, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, geo: geo, log: log}
}

type RegisterCommand struct {
	Name          string
	Phone         string
	CategoryID    types.ID
	VehicleNumber string
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (types.ID, error) {
	if cmd.Name == "" || cmd.Phone == "" || cmd.CategoryID == "" {
		return "", ErrBadRequest
	}
	d := &Driver{
		ID:            types.NewID(),
		Name:          cmd.Name,
		Phone:         cmd.Phone,
		CategoryID:    cmd.CategoryID,
		VehicleNumber: cmd.VehicleNumber,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.store.Create(ctx, d); err != nil {
		return "", err
	}
	return d.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

// UpdateLocation records a ping. On-duty drivers are also upserted into the
// geo index; the index write is best-effort because the next ping repairs it.
func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.UpdateLocation(ctx, id, p, time.Now()); err != nil {
		return err
	}
	if !d.OnDuty || s.geo == nil {
		return nil
	}
	if err := s.geo.Upsert(ctx, d.CategoryID, id, p); err != nil {
		s.log.Warn("geo upsert failed", "driver_id", id, "error", err)
	}
	return nil
}

// SetDuty flips a driver's availability. Going off duty drops the driver
// from the geo index; coming on duty waits for the first ping to re-enter it.
func (s *Service) SetDuty(ctx context.Context, id types.ID, onDuty bool) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.OnDuty == onDuty {
		return nil
	}
	if err := s.store.SetDuty(ctx, id, onDuty); err != nil {
		return err
	}
	if onDuty {
		observability.DriversOnline.Inc()
		if s.geo != nil && d.LocationAt != nil {
			if err := s.geo.Upsert(ctx, d.CategoryID, id, d.Position); err != nil {
				s.log.Warn("geo upsert failed", "driver_id", id, "error", err)
			}
		}
		return nil
	}
	observability.DriversOnline.Dec()
	if s.geo != nil {
		if err := s.geo.Remove(ctx, d.CategoryID, id); err != nil {
			s.log.Warn("geo remove failed", "driver_id", id, "error", err)
		}
	}
	return nil
}

func (s *Service) RegisterDeviceToken(ctx context.Context, id types.ID, token string) error {
	if token == "" {
		return ErrBadRequest
	}
	return s.store.SetDeviceToken(ctx, id, token)
}

// Available implements the selector's eligibility filter.
func (s *Service) Available(ctx context.Context, driverID types.ID) (bool, error) {
	d, err := s.store.Get(ctx, driverID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return d.Available(), nil
}

// SetActiveRide claims the driver for a ride and parks them out of the geo
// index until the ride resolves.
func (s *Service) SetActiveRide(ctx context.Context, driverID, rideID types.ID) error {
	ok, err := s.store.SetActiveRide(ctx, driverID, rideID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyServing
	}
	if s.geo != nil {
		if d, err := s.store.Get(ctx, driverID); err == nil {
			if err := s.geo.Remove(ctx, d.CategoryID, driverID); err != nil {
				s.log.Warn("geo remove failed", "driver_id", driverID, "error", err)
			}
		}
	}
	return nil
}

// ClearActiveRide frees the driver after completion or cancellation. An
// on-duty driver with a known position rejoins the geo index right away.
func (s *Service) ClearActiveRide(ctx context.Context, driverID types.ID) error {
	if err := s.store.ClearActiveRide(ctx, driverID); err != nil {
		return err
	}
	if s.geo == nil {
		return nil
	}
	d, err := s.store.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if d.OnDuty && d.LocationAt != nil {
		if err := s.geo.Upsert(ctx, d.CategoryID, driverID, d.Position); err != nil {
			s.log.Warn("geo upsert failed", "driver_id", driverID, "error", err)
		}
	}
	return nil
}

// DeviceToken implements the push gateway's token lookup.
func (s *Service) DeviceToken(ctx context.Context, driverID types.ID) (string, error) {
	d, err := s.store.Get(ctx, driverID)
	if err != nil {
		return "", err
	}
	return d.DeviceToken, nil
}
