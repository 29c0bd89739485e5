// README: Addressed, fire-and-forget push channel to driver devices.
package notify

import (
	"context"
	"errors"

	"gocab/internal/types"
)

// Event names pushed to driver channels.
const (
	EventRideOffer          = "ride-offer"
	EventRideOfferCancelled = "ride-offer-cancelled"
	EventRideCancelled      = "ride-cancelled"
)

// Gateway delivers an event to one specific driver. Delivery is at-most-once
// and best-effort; a returned error means the payload was not handed to the
// device, and callers treat that the same as a driver who never answers.
type Gateway interface {
	Push(ctx context.Context, driverID types.ID, event string, payload any) error
}

// ErrNoSession is returned when the addressed driver has no live channel.
var ErrNoSession = errors.New("driver has no active session")

// OfferPayload is the body of a ride-offer event.
type OfferPayload struct {
	RideID         types.ID    `json:"ride_id"`
	RiderName      string      `json:"rider_name"`
	PickupAddress  string      `json:"pickup_address"`
	DropAddress    string      `json:"drop_address"`
	Pickup         types.Point `json:"pickup"`
	Drop           types.Point `json:"drop"`
	TripDistanceKm float64     `json:"trip_distance_km"`
	TripDurationS  int64       `json:"trip_duration_s"`
	FareEstimate   types.Money `json:"fare_estimate"`
}

// CancelPayload is the body of ride-cancelled / ride-offer-cancelled events.
type CancelPayload struct {
	RideID types.ID `json:"ride_id"`
	Reason string   `json:"reason,omitempty"`
}
