// README: Ride lifecycle service: accept, start, complete, cancel.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gocab/internal/events"
	"gocab/internal/notify"
	"gocab/internal/observability"
	"gocab/internal/types"
)

// Pricing prices a trip for a vehicle category.
type Pricing interface {
	Fare(ctx context.Context, categoryID types.ID, distanceKm float64) (types.Money, error)
}

// DriverDirectory keeps the driver-side back-reference to the ride a driver
// is currently serving.
type DriverDirectory interface {
	SetActiveRide(ctx context.Context, driverID, rideID types.ID) error
	ClearActiveRide(ctx context.Context, driverID types.ID) error
}

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("ride state conflict")
	ErrBadRequest   = errors.New("bad request")
)

type Service struct {
	store   Store
	pricing Pricing
	drivers DriverDirectory
	gateway notify.Gateway
	stream  events.Publisher
	log     *slog.Logger
}

func NewService(store Store, pricing Pricing, drivers DriverDirectory, gateway notify.Gateway, stream events.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, pricing: pricing, drivers: drivers, gateway: gateway, stream: stream, log: log}
}

type AcceptCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type StartCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type CompleteCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type CancelCommand struct {
	RideID  types.ID
	RiderID types.ID
	Reason  string
}

// Accept claims the ride for the driver currently holding the offer. Only
// the candidate at the offer cursor may accept; anyone else gets ErrConflict.
// Under a race with the scheduler's escalation timer the conditional write
// decides the winner.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) error {
	if cmd.RideID == "" || cmd.DriverID == "" {
		return ErrBadRequest
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusAccepted) {
		return ErrInvalidState
	}
	if r.OfferIndex >= len(r.Candidates) || r.Candidates[r.OfferIndex] != cmd.DriverID {
		return ErrConflict
	}
	// Claim the driver before touching the ride. The claim fails closed when
	// the driver already serves a ride, so a driver sitting in two candidate
	// queues can win at most one of them.
	if s.drivers != nil {
		if err := s.drivers.SetActiveRide(ctx, cmd.DriverID, r.ID); err != nil {
			return ErrConflict
		}
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusAccepted, r.StatusVersion, &cmd.DriverID)
	if err != nil || !ok {
		s.releaseDriver(ctx, r.ID, cmd.DriverID)
		if err != nil {
			return err
		}
		return ErrConflict
	}
	observability.RidesAccepted.Inc()
	s.record(ctx, r.ID, r.Status, StatusAccepted, "driver", &cmd.DriverID)
	return nil
}

// releaseDriver undoes a driver claim whose ride transition did not go
// through. The claim was taken by this call, so clearing it cannot steal
// another ride's assignment.
func (s *Service) releaseDriver(ctx context.Context, rideID, driverID types.ID) {
	if s.drivers == nil {
		return
	}
	if err := s.drivers.ClearActiveRide(ctx, driverID); err != nil {
		s.log.Warn("release driver claim failed", "ride_id", rideID, "driver_id", driverID, "error", err)
	}
}

// Start marks the pickup done and the trip in motion. From here the rider
// can no longer cancel.
func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusOngoingTrip) {
		return ErrInvalidState
	}
	if r.DriverID == nil || *r.DriverID != cmd.DriverID {
		return ErrConflict
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusOngoingTrip, r.StatusVersion, r.DriverID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.record(ctx, r.ID, r.Status, StatusOngoingTrip, "driver", r.DriverID)
	return nil
}

// Complete closes the trip and settles the final fare from the recorded
// trip distance. The driver is freed for the next dispatch.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusCompleted) {
		return ErrInvalidState
	}
	if r.DriverID == nil || *r.DriverID != cmd.DriverID {
		return ErrConflict
	}
	fare := r.FareEstimate
	if s.pricing != nil {
		if m, err := s.pricing.Fare(ctx, r.CategoryID, r.TripDistanceKm); err == nil {
			fare = m
		}
	}
	ok, err := s.store.CompleteTrip(ctx, r.ID, r.StatusVersion, fare)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if s.drivers != nil {
		if err := s.drivers.ClearActiveRide(ctx, cmd.DriverID); err != nil {
			s.log.Warn("clear active ride failed", "ride_id", r.ID, "driver_id", cmd.DriverID, "error", err)
		}
	}
	s.record(ctx, r.ID, r.Status, StatusCompleted, "driver", r.DriverID)
	return nil
}

// Cancel is the rider abandoning the ride. Permitted up to the moment the
// trip starts; a pending offer is withdrawn from the notified driver and an
// accepted driver is told the ride is gone.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.RiderID != cmd.RiderID {
		return ErrNotFound
	}
	if !r.CanBeCancelled || !CanTransition(r.Status, StatusCancelled) {
		return ErrInvalidState
	}
	prev := r.Status
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusCancelled, r.StatusVersion, r.DriverID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	payload := notify.CancelPayload{RideID: r.ID, Reason: cmd.Reason}
	switch {
	case prev == StatusOfferPending && r.OfferIndex < len(r.Candidates):
		s.push(ctx, r.Candidates[r.OfferIndex], notify.EventRideOfferCancelled, payload)
	case prev == StatusAccepted && r.DriverID != nil:
		s.push(ctx, *r.DriverID, notify.EventRideCancelled, payload)
		if s.drivers != nil {
			if err := s.drivers.ClearActiveRide(ctx, *r.DriverID); err != nil {
				s.log.Warn("clear active ride failed", "ride_id", r.ID, "driver_id", *r.DriverID, "error", err)
			}
		}
	}
	s.record(ctx, r.ID, prev, StatusCancelled, "rider", &cmd.RiderID)
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

// History lists a rider's rides, newest first.
func (s *Service) History(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	return s.store.ListByRider(ctx, riderID)
}

func (s *Service) push(ctx context.Context, driverID types.ID, event string, payload any) {
	if s.gateway == nil {
		return
	}
	if err := s.gateway.Push(ctx, driverID, event, payload); err != nil {
		s.log.Debug("push skipped", "driver_id", driverID, "event", event, "error", err)
	}
}

func (s *Service) record(ctx context.Context, rideID types.ID, from, to Status, actorType string, actorID *types.ID) {
	now := time.Now()
	if err := s.store.AppendEvent(ctx, &Event{
		RideID:     rideID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  now,
	}); err != nil {
		s.log.Warn("append ride event failed", "ride_id", rideID, "error", err)
	}
	if s.stream == nil {
		return
	}
	ev := events.RideEvent{
		RideID:     rideID,
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorType:  actorType,
		OccurredAt: now,
	}
	if actorID != nil {
		ev.ActorID = *actorID
	}
	if err := s.stream.PublishRideEvent(ctx, ev); err != nil {
		s.log.Warn("publish ride event failed", "ride_id", rideID, "error", err)
	}
}
