// README: Ride aggregate and status definitions.
package ride

import (
	"time"

	"gocab/internal/types"
)

type Status string

const (
	StatusNone         Status = "none"
	StatusCreated      Status = "created"
	StatusSearching    Status = "searching"
	StatusOfferPending Status = "offer_pending"
	StatusAccepted     Status = "accepted"
	StatusOngoingTrip  Status = "ongoing_trip"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusExpired      Status = "expired"
)

const currencyINR = "INR"

type Kind string

const (
	KindRide   Kind = "ride"
	KindParcel Kind = "parcel"
)

// ParcelInfo carries the extra fields of a parcel-transport request.
type ParcelInfo struct {
	ReceiverName  string
	ReceiverPhone string
	GoodsType     string
}

// Ride is the authoritative dispatch record. Candidates is the queue frozen
// at creation; OfferIndex is the dispatch cursor and only ever moves forward.
type Ride struct {
	ID            types.ID
	RiderID       types.ID
	DriverID      *types.ID
	Kind          Kind
	CategoryID    types.ID
	Status        Status
	StatusVersion int

	Pickup        types.Point
	Drop          types.Point
	PickupAddress string
	DropAddress   string

	TripDistanceKm float64
	TripDuration   time.Duration
	FareEstimate   types.Money
	FinalFare      *types.Money

	Candidates     []types.ID
	OfferIndex     int
	IsSearching    bool
	CanBeCancelled bool

	Parcel *ParcelInfo

	CreatedAt   time.Time
	AcceptedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time
	UpdatedAt   time.Time
}

// Event is one audit-trail entry per status transition.
type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the ride state flow as code. The
// offer_pending → searching edge is the scheduler advancing the cursor to the
// next candidate; completed, cancelled and expired are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:      {StatusSearching, StatusCancelled},
	StatusSearching:    {StatusOfferPending, StatusCancelled, StatusExpired},
	StatusOfferPending: {StatusSearching, StatusAccepted, StatusCancelled, StatusExpired},
	StatusAccepted:     {StatusOngoingTrip, StatusCancelled},
	StatusOngoingTrip:  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Dispatchable reports whether the scheduler still owns the ride.
func Dispatchable(s Status) bool {
	return s == StatusSearching || s == StatusOfferPending
}
