// README: Dispatch service: ride intake and the sequential offer scheduler.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gocab/internal/events"
	"gocab/internal/modules/matching"
	"gocab/internal/modules/ride"
	"gocab/internal/notify"
	"gocab/internal/observability"
	"gocab/internal/routing"
	"gocab/internal/types"
)

// Selector freezes the ranked candidate queue for one request.
type Selector interface {
	Select(ctx context.Context, categoryID types.ID, pickup types.Point) ([]types.ID, error)
}

// RiderDirectory resolves the rider's display name for offer payloads.
type RiderDirectory interface {
	DisplayName(ctx context.Context, riderID types.ID) (string, error)
}

var (
	ErrNoCandidates = errors.New("no drivers available")
	ErrActiveRide   = errors.New("rider has active ride")
	ErrBadRequest   = errors.New("bad request")
)

type Config struct {
	// OfferWait is how long one driver holds an offer before the scheduler
	// moves to the next candidate.
	OfferWait time.Duration
}

// Service owns a ride from request until a driver accepts or the queue runs
// out. Each dispatched ride gets one goroutine that walks the frozen
// candidate queue; every step is a conditional write, so a stale timer or a
// racing decline resolves to exactly one winner.
type Service struct {
	store    ride.Store
	selector Selector
	routing  routing.Estimator
	pricing  ride.Pricing
	gateway  notify.Gateway
	stream   events.Publisher
	riders   RiderDirectory
	cfg      Config
	log      *slog.Logger

	mu   sync.Mutex
	wake map[types.ID]chan struct{}

	quit     chan struct{}
	quitOnce sync.Once
}

func NewService(store ride.Store, selector Selector, est routing.Estimator, pricing ride.Pricing, gateway notify.Gateway, stream events.Publisher, riders RiderDirectory, cfg Config, log *slog.Logger) *Service {
	if cfg.OfferWait <= 0 {
		cfg.OfferWait = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		selector: selector,
		routing:  est,
		pricing:  pricing,
		gateway:  gateway,
		stream:   stream,
		riders:   riders,
		cfg:      cfg,
		log:      log,
		wake:     make(map[types.ID]chan struct{}),
		quit:     make(chan struct{}),
	}
}

// Shutdown stops every in-flight offer loop. Rides caught mid-dispatch stay
// offer_pending or searching; conditional writes let a restarted process or
// a later operation resolve them.
func (s *Service) Shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
}

type RequestCommand struct {
	RiderID       types.ID
	Kind          ride.Kind
	CategoryID    types.ID
	Pickup        types.Point
	Drop          types.Point
	PickupAddress string
	DropAddress   string
	Parcel        *ride.ParcelInfo
}

// Request validates the booking, freezes the candidate queue and starts the
// offer loop. Nothing is persisted when no driver qualifies, so a retry is a
// clean slate.
func (s *Service) Request(ctx context.Context, cmd RequestCommand) (types.ID, error) {
	start := time.Now()
	if cmd.RiderID == "" || cmd.CategoryID == "" {
		return "", ErrBadRequest
	}
	if cmd.Kind == "" {
		cmd.Kind = ride.KindRide
	}
	if cmd.Kind == ride.KindParcel && cmd.Parcel == nil {
		return "", ErrBadRequest
	}
	active, err := s.store.HasActiveByRider(ctx, cmd.RiderID)
	if err != nil {
		return "", err
	}
	if active {
		return "", ErrActiveRide
	}

	est, err := s.routing.EstimateTravel(ctx, cmd.Pickup, cmd.Drop)
	if err != nil {
		return "", err
	}
	fare, err := s.pricing.Fare(ctx, cmd.CategoryID, est.DistanceKm)
	if err != nil {
		return "", err
	}

	candidates, err := s.selector.Select(ctx, cmd.CategoryID, cmd.Pickup)
	if err != nil {
		if errors.Is(err, matching.ErrNoCandidates) {
			return "", ErrNoCandidates
		}
		return "", err
	}
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	now := time.Now()
	r := &ride.Ride{
		ID:             types.NewID(),
		RiderID:        cmd.RiderID,
		Kind:           cmd.Kind,
		CategoryID:     cmd.CategoryID,
		Status:         ride.StatusCreated,
		Pickup:         cmd.Pickup,
		Drop:           cmd.Drop,
		PickupAddress:  cmd.PickupAddress,
		DropAddress:    cmd.DropAddress,
		TripDistanceKm: est.DistanceKm,
		TripDuration:   est.Duration,
		FareEstimate:   fare,
		Candidates:     candidates,
		OfferIndex:     0,
		IsSearching:    true,
		CanBeCancelled: true,
		Parcel:         cmd.Parcel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return "", err
	}
	s.record(ctx, r.ID, ride.StatusNone, ride.StatusCreated, "rider", &cmd.RiderID)

	ok, err := s.store.UpdateStatus(ctx, r.ID, ride.StatusCreated, ride.StatusSearching, 0, nil)
	if err != nil {
		return "", err
	}
	if ok {
		s.record(ctx, r.ID, ride.StatusCreated, ride.StatusSearching, "system", nil)
		go s.run(r.ID)
	}
	observability.DispatchDuration.Observe(time.Since(start).Seconds())
	return r.ID, nil
}

// Decline is the offered driver turning the ride down. The cursor advances
// immediately instead of waiting out the timer.
func (s *Service) Decline(ctx context.Context, rideID, driverID types.ID) error {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return err
	}
	if r.Status != ride.StatusOfferPending {
		return ride.ErrInvalidState
	}
	if r.OfferIndex >= len(r.Candidates) || r.Candidates[r.OfferIndex] != driverID {
		return ride.ErrConflict
	}
	ok, err := s.store.AdvanceOffer(ctx, r.ID, r.StatusVersion, r.OfferIndex)
	if err != nil {
		return err
	}
	if !ok {
		return ride.ErrConflict
	}
	observability.OfferEscalations.Inc()
	s.record(ctx, r.ID, ride.StatusOfferPending, ride.StatusSearching, "driver", &driverID)
	s.signal(rideID)
	return nil
}

// run walks the candidate queue for one ride. It re-reads the ride before
// every step, so any outside transition (accept, cancel, decline) makes the
// pending step a no-op.
func (s *Service) run(rideID types.ID) {
	ctx := context.Background()
	wake := s.register(rideID)
	defer s.unregister(rideID)

	timer := time.NewTimer(s.cfg.OfferWait)
	defer timer.Stop()

	for {
		r, err := s.store.Get(ctx, rideID)
		if err != nil {
			s.log.Error("offer loop read failed", "ride_id", rideID, "error", err)
			return
		}
		if !ride.Dispatchable(r.Status) {
			return
		}

		if r.Status == ride.StatusSearching {
			if r.OfferIndex >= len(r.Candidates) {
				ok, err := s.store.Expire(ctx, r.ID, r.StatusVersion)
				if err != nil {
					s.log.Error("expire failed", "ride_id", rideID, "error", err)
					return
				}
				if ok {
					observability.RidesExpired.Inc()
					s.record(ctx, r.ID, r.Status, ride.StatusExpired, "system", nil)
					s.log.Info("ride expired, queue exhausted", "ride_id", rideID, "candidates", len(r.Candidates))
				}
				return
			}
			ok, err := s.store.MarkOffered(ctx, r.ID, r.StatusVersion, r.OfferIndex)
			if err != nil {
				s.log.Error("mark offered failed", "ride_id", rideID, "error", err)
				return
			}
			if !ok {
				continue
			}
			s.record(ctx, r.ID, ride.StatusSearching, ride.StatusOfferPending, "system", nil)
			s.sendOffer(ctx, r, r.Candidates[r.OfferIndex])
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.cfg.OfferWait)

		select {
		case <-timer.C:
			s.escalate(ctx, rideID)
		case <-wake:
		case <-s.quit:
			return
		}
	}
}

// escalate times out the current offer. The conditional write names the
// version and cursor read moments ago, so an offer that was already accepted
// or declined is left alone.
func (s *Service) escalate(ctx context.Context, rideID types.ID) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		s.log.Error("escalate read failed", "ride_id", rideID, "error", err)
		return
	}
	if r.Status != ride.StatusOfferPending {
		return
	}
	ok, err := s.store.AdvanceOffer(ctx, r.ID, r.StatusVersion, r.OfferIndex)
	if err != nil {
		s.log.Error("advance offer failed", "ride_id", rideID, "error", err)
		return
	}
	if !ok {
		return
	}
	observability.OfferEscalations.Inc()
	s.record(ctx, r.ID, ride.StatusOfferPending, ride.StatusSearching, "system", nil)
	if r.OfferIndex < len(r.Candidates) {
		s.push(ctx, r.Candidates[r.OfferIndex], notify.EventRideOfferCancelled, notify.CancelPayload{RideID: r.ID, Reason: "offer timed out"})
	}
	s.log.Info("offer timed out, escalating", "ride_id", rideID, "offer_index", r.OfferIndex)
}

func (s *Service) sendOffer(ctx context.Context, r *ride.Ride, driverID types.ID) {
	riderName := ""
	if s.riders != nil {
		if name, err := s.riders.DisplayName(ctx, r.RiderID); err == nil {
			riderName = name
		}
	}
	payload := notify.OfferPayload{
		RideID:         r.ID,
		RiderName:      riderName,
		PickupAddress:  r.PickupAddress,
		DropAddress:    r.DropAddress,
		Pickup:         r.Pickup,
		Drop:           r.Drop,
		TripDistanceKm: r.TripDistanceKm,
		TripDurationS:  int64(r.TripDuration / time.Second),
		FareEstimate:   r.FareEstimate,
	}
	observability.OffersSent.Inc()
	s.push(ctx, driverID, notify.EventRideOffer, payload)
	s.log.Info("offer sent", "ride_id", r.ID, "driver_id", driverID, "offer_index", r.OfferIndex)
}

func (s *Service) push(ctx context.Context, driverID types.ID, event string, payload any) {
	if s.gateway == nil {
		return
	}
	if err := s.gateway.Push(ctx, driverID, event, payload); err != nil {
		s.log.Debug("push skipped", "driver_id", driverID, "event", event, "error", err)
	}
}

func (s *Service) register(rideID types.ID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.wake[rideID] = ch
	return ch
}

func (s *Service) unregister(rideID types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wake, rideID)
}

func (s *Service) signal(rideID types.ID) {
	s.mu.Lock()
	ch := s.wake[rideID]
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Service) record(ctx context.Context, rideID types.ID, from, to ride.Status, actorType string, actorID *types.ID) {
	now := time.Now()
	if err := s.store.AppendEvent(ctx, &ride.Event{
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
