// README: Travel-time estimation boundary (external routing collaborator).
package routing

import (
	"context"
	"errors"
	"time"

	"gocab/internal/types"
)

// Estimate is a single origin→destination travel estimate.
type Estimate struct {
	DistanceKm float64
	Duration   time.Duration
}

// Estimator abstracts the external routing API. Implementations must return
// ErrUnavailable (possibly wrapped) when the upstream call fails; callers
// abort the in-flight operation rather than defaulting to a zero estimate.
type Estimator interface {
	EstimateTravel(ctx context.Context, origin, dest types.Point) (Estimate, error)
}

var ErrUnavailable = errors.New("routing service unavailable")

// citySpeedKmh converts a straight-line distance into a rough duration.
const citySpeedKmh = 30.0

// Haversine estimates from great-circle distance at city speed. It backs
// deployments without a routing API key and never fails.
type Haversine struct{}

func (Haversine) EstimateTravel(_ context.Context, origin, dest types.Point) (Estimate, error) {
	km := types.HaversineKm(origin, dest)
	return Estimate{
		DistanceKm: km,
		Duration:   time.Duration(km / citySpeedKmh * float64(time.Hour)),
	}, nil
}

var _ Estimator = Haversine{}
