// README: Driver profile and presence state.
package driver

import (
	"time"

	"gocab/internal/types"
)

type Driver struct {
	ID            types.ID
	Name          string
	Phone         string
	CategoryID    types.ID
	VehicleNumber string

	OnDuty       bool
	ActiveRideID *types.ID
	DeviceToken  string

	Position   types.Point
	LocationAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available reports whether the driver can be offered a ride.
func (d *Driver) Available() bool {
	return d.OnDuty && d.ActiveRideID == nil
}
