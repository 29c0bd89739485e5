// README: Offer scheduler tests: accept, timeout escalation, decline, empty pool (run with -race).
package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gocab/internal/modules/matching"
	"gocab/internal/modules/ride"
	"gocab/internal/routing"
	"gocab/internal/types"
)

const testOfferWait = 40 * time.Millisecond

type fakeSelector struct {
	candidates []types.ID
	err        error
}

func (s fakeSelector) Select(ctx context.Context, categoryID types.ID, pickup types.Point) ([]types.ID, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

type fixedEstimator struct{}

func (fixedEstimator) EstimateTravel(ctx context.Context, origin, dest types.Point) (routing.Estimate, error) {
	return routing.Estimate{DistanceKm: 5.2, Duration: 14 * time.Minute}, nil
}

type fixedPricing struct{}

func (fixedPricing) Fare(ctx context.Context, categoryID types.ID, distanceKm float64) (types.Money, error) {
	return types.Money{Amount: 8700, Currency: "INR"}, nil
}

type recordedPush struct {
	driverID types.ID
	event    string
}

type recordingGateway struct {
	mu    sync.Mutex
	calls []recordedPush
}

func (g *recordingGateway) Push(ctx context.Context, driverID types.ID, event string, payload any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, recordedPush{driverID: driverID, event: event})
	return nil
}

func (g *recordingGateway) offers() []types.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []types.ID
	for _, c := range g.calls {
		if c.event == "ride-offer" {
			out = append(out, c.driverID)
		}
	}
	return out
}

func newTestService(store ride.Store, candidates []types.ID, gw *recordingGateway) *Service {
	return NewService(store, fakeSelector{candidates: candidates}, fixedEstimator{}, fixedPricing{}, gw, nil, nil, Config{OfferWait: testOfferWait}, nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func requestRide(t *testing.T, svc *Service) types.ID {
	t.Helper()
	id, err := svc.Request(context.Background(), RequestCommand{
		RiderID:    "rider-1",
		CategoryID: "cat-mini",
		Pickup:     types.Point{Lat: 12.9716, Lng: 77.5946},
		Drop:       types.Point{Lat: 12.9279, Lng: 77.6271},
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return id
}

func TestRequestOffersFirstCandidateAndAcceptStopsEscalation(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2"}, gw)
	lifecycle := ride.NewService(store, nil, nil, gw, nil, nil)

	id := requestRide(t, svc)

	waitFor(t, time.Second, func() bool {
		r, err := store.Get(ctx, id)
		return err == nil && r.Status == ride.StatusOfferPending
	})
	if offers := gw.offers(); len(offers) != 1 || offers[0] != "d1" {
		t.Fatalf("offers = %v, want [d1]", offers)
	}

	if err := lifecycle.Accept(ctx, ride.AcceptCommand{RideID: id, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// outlive several offer windows: the stale timer must not escalate an
	// accepted ride
	time.Sleep(3 * testOfferWait)
	r, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != ride.StatusAccepted {
		t.Fatalf("status = %s, want accepted", r.Status)
	}
	if r.OfferIndex != 0 {
		t.Fatalf("offer index moved to %d after accept", r.OfferIndex)
	}
	if offers := gw.offers(); len(offers) != 1 {
		t.Fatalf("offers after accept = %v, want just [d1]", offers)
	}
}

func TestTwoTimeoutsThenThirdCandidateAccepts(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2", "d3"}, gw)
	lifecycle := ride.NewService(store, nil, nil, gw, nil, nil)

	id := requestRide(t, svc)

	// d1 and d2 sit out their windows; the offer lands on d3
	waitFor(t, time.Second, func() bool {
		r, err := store.Get(ctx, id)
		return err == nil && r.Status == ride.StatusOfferPending && r.OfferIndex == 2
	})

	if err := lifecycle.Accept(ctx, ride.AcceptCommand{RideID: id, DriverID: "d3"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	time.Sleep(2 * testOfferWait)
	r, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != ride.StatusAccepted {
		t.Fatalf("status = %s, want accepted", r.Status)
	}
	if r.DriverID == nil || *r.DriverID != "d3" {
		t.Fatalf("driver = %v, want d3", r.DriverID)
	}
	if r.OfferIndex != 2 {
		t.Fatalf("offer index = %d, want 2", r.OfferIndex)
	}
	offers := gw.offers()
	if len(offers) != 3 || offers[0] != "d1" || offers[1] != "d2" || offers[2] != "d3" {
		t.Fatalf("offers = %v, want [d1 d2 d3]", offers)
	}
}

func TestTimeoutEscalatesThroughQueueToExpiry(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2", "d3"}, gw)

	id := requestRide(t, svc)

	waitFor(t, 2*time.Second, func() bool {
		r, err := store.Get(ctx, id)
		return err == nil && r.Status == ride.StatusExpired
	})

	offers := gw.offers()
	want := []types.ID{"d1", "d2", "d3"}
	if len(offers) != len(want) {
		t.Fatalf("offers = %v, want %v", offers, want)
	}
	for i := range want {
		if offers[i] != want[i] {
			t.Fatalf("offer %d went to %s, want %s", i, offers[i], want[i])
		}
	}

	r, _ := store.Get(ctx, id)
	if r.IsSearching {
		t.Fatal("expired ride still flagged searching")
	}
	if r.OfferIndex != len(r.Candidates) {
		t.Fatalf("offer index = %d, want %d (exhausted)", r.OfferIndex, len(r.Candidates))
	}
	if r.ExpiredAt == nil {
		t.Fatal("expired ride missing expiry timestamp")
	}
}

func TestDeclineAdvancesImmediately(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2"}, gw)

	id := requestRide(t, svc)

	waitFor(t, time.Second, func() bool {
		r, err := store.Get(ctx, id)
		return err == nil && r.Status == ride.StatusOfferPending && r.OfferIndex == 0
	})

	if err := svc.Decline(ctx, id, "d1"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// the wake channel should move the offer to d2 well before a full window
	waitFor(t, testOfferWait/2, func() bool {
		offers := gw.offers()
		return len(offers) == 2 && offers[1] == "d2"
	})

	r, _ := store.Get(ctx, id)
	if r.OfferIndex != 1 {
		t.Fatalf("offer index = %d, want 1", r.OfferIndex)
	}
}

func TestDeclineByWrongDriverIsConflict(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2"}, gw)

	id := requestRide(t, svc)
	waitFor(t, time.Second, func() bool {
		r, err := store.Get(ctx, id)
		return err == nil && r.Status == ride.StatusOfferPending
	})

	if err := svc.Decline(ctx, id, "d2"); err != ride.ErrConflict {
		t.Fatalf("decline by unoffered driver = %v, want ErrConflict", err)
	}
}

func TestNoCandidatesPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	svc := NewService(store, fakeSelector{err: matching.ErrNoCandidates}, fixedEstimator{}, fixedPricing{}, nil, nil, nil, Config{OfferWait: testOfferWait}, nil)

	_, err := svc.Request(ctx, RequestCommand{
		RiderID:    "rider-1",
		CategoryID: "cat-mini",
		Pickup:     types.Point{Lat: 12.9716, Lng: 77.5946},
		Drop:       types.Point{Lat: 12.9279, Lng: 77.6271},
	})
	if err != ErrNoCandidates {
		t.Fatalf("request = %v, want ErrNoCandidates", err)
	}

	rides, err := store.ListByRider(ctx, "rider-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rides) != 0 {
		t.Fatalf("expected no persisted ride, got %d", len(rides))
	}
	// a failed request must not lock the rider out of retrying
	active, _ := store.HasActiveByRider(ctx, "rider-1")
	if active {
		t.Fatal("rider flagged active after failed request")
	}
}

type failingPricing struct {
	err error
}

func (p failingPricing) Fare(ctx context.Context, categoryID types.ID, distanceKm float64) (types.Money, error) {
	return types.Money{}, p.err
}

func TestUnpriceableCategoryPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	unknownCategory := errors.New("category not found")
	svc := NewService(store, fakeSelector{candidates: []types.ID{"d1"}}, fixedEstimator{}, failingPricing{err: unknownCategory}, nil, nil, nil, Config{OfferWait: testOfferWait}, nil)

	_, err := svc.Request(ctx, RequestCommand{
		RiderID:    "rider-1",
		CategoryID: "cat-bogus",
		Pickup:     types.Point{Lat: 12.9716, Lng: 77.5946},
		Drop:       types.Point{Lat: 12.9279, Lng: 77.6271},
	})
	if !errors.Is(err, unknownCategory) {
		t.Fatalf("request = %v, want the pricing error", err)
	}

	rides, err := store.ListByRider(ctx, "rider-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rides) != 0 {
		t.Fatalf("expected no persisted ride, got %d", len(rides))
	}
}

func TestShutdownStopsOfferLoop(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2", "d3"}, gw)

	id := requestRide(t, svc)

	waitFor(t, time.Second, func() bool {
		r, err := store.Get(ctx, id)
		return err == nil && r.Status == ride.StatusOfferPending
	})
	svc.Shutdown()

	time.Sleep(3 * testOfferWait)
	r, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != ride.StatusOfferPending || r.OfferIndex != 0 {
		t.Fatalf("loop kept running after shutdown: status=%s index=%d", r.Status, r.OfferIndex)
	}
	if offers := gw.offers(); len(offers) != 1 {
		t.Fatalf("offers after shutdown = %v, want just the first", offers)
	}
}

func TestRequestRejectsSecondActiveRide(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1"}, gw)

	requestRide(t, svc)
	_, err := svc.Request(ctx, RequestCommand{
		RiderID:    "rider-1",
		CategoryID: "cat-mini",
		Pickup:     types.Point{Lat: 1},
		Drop:       types.Point{Lat: 2},
	})
	if err != ErrActiveRide {
		t.Fatalf("second request = %v, want ErrActiveRide", err)
	}
}

func TestRequestRejectsParcelWithoutDetails(t *testing.T) {
	store := ride.NewMemStore()
	svc := newTestService(store, []types.ID{"d1"}, &recordingGateway{})

	_, err := svc.Request(context.Background(), RequestCommand{
		RiderID:    "rider-1",
		CategoryID: "cat-mini",
		Kind:       ride.KindParcel,
	})
	if err != ErrBadRequest {
		t.Fatalf("parcel without details = %v, want ErrBadRequest", err)
	}
}

func TestConcurrentAcceptVsTimeoutOneWinner(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2"}, gw)
	lifecycle := ride.NewService(store, nil, nil, gw, nil, nil)

	id := requestRide(t, svc)
	waitFor(t, time.Second, func() bool {
		r, err := store.Get(ctx, id)
		return err == nil && r.Status == ride.StatusOfferPending
	})

	// race the accept against the expiring offer window
	time.Sleep(testOfferWait - 5*time.Millisecond)
	err := lifecycle.Accept(ctx, ride.AcceptCommand{RideID: id, DriverID: "d1"})

	if err == nil {
		r, _ := store.Get(ctx, id)
		if r.Status != ride.StatusAccepted {
			t.Fatalf("accept succeeded but status = %s", r.Status)
		}
		if r.DriverID == nil || *r.DriverID != "d1" {
			t.Fatalf("driver = %v, want d1", r.DriverID)
		}
		return
	}
	if err != ride.ErrConflict && err != ride.ErrInvalidState {
		t.Fatalf("unexpected accept error: %v", err)
	}
	// the timer won: the ride moved on without d1
	waitFor(t, time.Second, func() bool {
		r, e := store.Get(ctx, id)
		if e != nil {
			return false
		}
		return r.OfferIndex >= 1 || ride.IsTerminal(r.Status)
	})
}

func TestOfferIndexIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := ride.NewMemStore()
	gw := &recordingGateway{}
	svc := newTestService(store, []types.ID{"d1", "d2", "d3"}, gw)

	id := requestRide(t, svc)

	var (
		mu   sync.Mutex
		seen []int
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			r, err := store.Get(ctx, id)
			if err == nil {
				mu.Lock()
				if len(seen) == 0 || seen[len(seen)-1] != r.OfferIndex {
					seen = append(seen, r.OfferIndex)
				}
				mu.Unlock()
				if ride.IsTerminal(r.Status) {
					return
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("offer index went backwards: %v", seen)
		}
	}
}
