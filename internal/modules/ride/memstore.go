// README: In-memory ride store with the same conditional-write contract as PGStore.
package ride

import (
	"context"
	"sort"
	"sync"
	"time"

	"gocab/internal/types"
)

// MemStore keeps rides in a map guarded by one mutex. Conditional writes are
// checked under the lock, so it races the same way the SQL store does and can
// back service and scheduler tests without a database.
type MemStore struct {
	mu     sync.Mutex
	rides  map[types.ID]*Ride
	events []*Event
}

func NewMemStore() *MemStore {
	return &MemStore{rides: make(map[types.ID]*Ride)}
}

func (s *MemStore) Create(ctx context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rides[r.ID] = &cp
	return nil
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Ride
	for _, r := range s.rides {
		if r.RiderID == riderID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) HasActiveByRider(ctx context.Context, riderID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rides {
		if r.RiderID == riderID && !IsTerminal(r.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID *types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.Status != from || r.StatusVersion != version {
		return false, nil
	}
	now := time.Now()
	r.Status = to
	r.StatusVersion++
	if driverID != nil {
		d := *driverID
		r.DriverID = &d
	}
	switch to {
	case StatusAccepted:
		r.IsSearching = false
		r.AcceptedAt = &now
	case StatusOngoingTrip:
		r.CanBeCancelled = false
		r.StartedAt = &now
	case StatusCancelled:
		r.IsSearching = false
		r.CancelledAt = &now
	case StatusExpired, StatusCompleted:
		r.IsSearching = false
	}
	r.UpdatedAt = now
	return true, nil
}

func (s *MemStore) MarkOffered(ctx context.Context, id types.ID, version, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.Status != StatusSearching || r.StatusVersion != version || r.OfferIndex != index {
		return false, nil
	}
	r.Status = StatusOfferPending
	r.StatusVersion++
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemStore) AdvanceOffer(ctx context.Context, id types.ID, version, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.Status != StatusOfferPending || r.StatusVersion != version || r.OfferIndex != index {
		return false, nil
	}
	r.Status = StatusSearching
	r.StatusVersion++
	r.OfferIndex++
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemStore) Expire(ctx context.Context, id types.ID, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || !Dispatchable(r.Status) || r.StatusVersion != version {
		return false, nil
	}
	now := time.Now()
	r.Status = StatusExpired
	r.StatusVersion++
	r.IsSearching = false
	r.ExpiredAt = &now
	r.UpdatedAt = now
	return true, nil
}

func (s *MemStore) CompleteTrip(ctx context.Context, id types.ID, version int, fare types.Money) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.Status != StatusOngoingTrip || r.StatusVersion != version {
		return false, nil
	}
	now := time.Now()
	r.Status = StatusCompleted
	r.StatusVersion++
	f := fare
	r.FinalFare = &f
	r.CompletedAt = &now
	r.UpdatedAt = now
	return true, nil
}

func (s *MemStore) AppendEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.ID = int64(len(s.events) + 1)
	s.events = append(s.events, &cp)
	return nil
}

// Events returns a snapshot of the audit trail for a ride, oldest first.
func (s *MemStore) Events(rideID types.ID) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.RideID == rideID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

var _ Store = (*MemStore)(nil)
