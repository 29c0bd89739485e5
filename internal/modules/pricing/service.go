// README: Fare computation and per-trip category quotes.
package pricing

import (
	"context"
	"math"

	"gocab/internal/types"
)

const currency = "INR"

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Fare prices a trip of the given length for a category. Distance is billed
// per started kilometre and the result never drops below the minimum fare.
func (s *Service) Fare(ctx context.Context, categoryID types.ID, distanceKm float64) (types.Money, error) {
	c, err := s.store.Get(ctx, categoryID)
	if err != nil {
		return types.Money{}, err
	}
	return fareFor(c, distanceKm), nil
}

// Quotes prices every active category for the straight-line trip between two
// points. Listing is pre-booking UI, so the haversine approximation is good
// enough; the real routed distance is fixed at request time.
func (s *Service) Quotes(ctx context.Context, pickup, drop types.Point) ([]CategoryQuote, error) {
	categories, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	distanceKm := types.HaversineKm(pickup, drop)
	out := make([]CategoryQuote, len(categories))
	for i, c := range categories {
		out[i] = CategoryQuote{Category: *c, Fare: fareFor(c, distanceKm)}
	}
	return out, nil
}

func fareFor(c *Category, distanceKm float64) types.Money {
	billedKm := int64(math.Ceil(distanceKm))
	amount := c.BaseFare + billedKm*c.PerKm
	if amount < c.MinFare {
		amount = c.MinFare
	}
	return types.Money{Amount: amount, Currency: currency}
}
