// README: Candidate driver as seen by the geo index and the selector.
package matching

import "gocab/internal/types"

// Candidate is one driver returned by the geo index, with the straight-line
// distance from the query origin.
type Candidate struct {
	DriverID   types.ID
	Position   types.Point
	DistanceKm float64
}
