// README: Candidate selection: geo query, eligibility filter, ETA ranking.
package matching

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"gocab/internal/routing"
	"gocab/internal/types"
)

// ErrNoCandidates is returned when the filtered pool is empty.
var ErrNoCandidates = errors.New("no eligible drivers nearby")

// DriverFilter answers whether a driver can be offered a ride right now:
// on duty and not already serving one.
type DriverFilter interface {
	Available(ctx context.Context, driverID types.ID) (bool, error)
}

// poolFactor is how many times the final cap the geo query fetches, so the
// eligibility filter has slack to discard busy and off-duty drivers.
const poolFactor = 3

type Config struct {
	RadiusKm      float64
	MaxCandidates int
}

// Selector builds the frozen candidate queue for one ride request. The queue
// is ranked by estimated time to the pickup point, closest first, with the
// driver ID as a deterministic tie-break.
type Selector struct {
	geo     Geo
	filter  DriverFilter
	routing routing.Estimator
	cfg     Config
	log     *slog.Logger
}

func NewSelector(geo Geo, filter DriverFilter, est routing.Estimator, cfg Config, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{geo: geo, filter: filter, routing: est, cfg: cfg, log: log}
}

type ranked struct {
	driverID types.ID
	eta      time.Duration
}

func (s *Selector) Select(ctx context.Context, categoryID types.ID, pickup types.Point) ([]types.ID, error) {
	pool, err := s.geo.Nearby(ctx, categoryID, pickup, s.cfg.RadiusKm, s.cfg.MaxCandidates*poolFactor)
	if err != nil {
		return nil, err
	}

	var rankedPool []ranked
	for _, c := range pool {
		ok, err := s.filter.Available(ctx, c.DriverID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		eta, err := s.eta(ctx, c, pickup)
		if err != nil {
			return nil, err
		}
		rankedPool = append(rankedPool, ranked{driverID: c.DriverID, eta: eta})
	}
	if len(rankedPool) == 0 {
		return nil, ErrNoCandidates
	}

	sort.Slice(rankedPool, func(i, j int) bool {
		if rankedPool[i].eta != rankedPool[j].eta {
			return rankedPool[i].eta < rankedPool[j].eta
		}
		return rankedPool[i].driverID < rankedPool[j].driverID
	})
	if len(rankedPool) > s.cfg.MaxCandidates {
		rankedPool = rankedPool[:s.cfg.MaxCandidates]
	}

	out := make([]types.ID, len(rankedPool))
	for i, r := range rankedPool {
		out[i] = r.driverID
	}
	return out, nil
}

// eta asks the routing backend for the driver's travel time to the pickup.
// A routing failure aborts the whole selection rather than ranking on a
// made-up number; the caller surfaces it as an external-service error.
func (s *Selector) eta(ctx context.Context, c Candidate, pickup types.Point) (time.Duration, error) {
	est, err := s.routing.EstimateTravel(ctx, c.Position, pickup)
	if err != nil {
		s.log.Warn("eta estimate failed", "driver_id", c.DriverID, "error", err)
		return 0, err
	}
	return est.Duration, nil
}
