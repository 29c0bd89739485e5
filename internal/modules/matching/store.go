// README: Driver geo index backed by Redis GEO, one key per vehicle category.
package matching

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gocab/internal/types"
)

// Geo is the positional index the selector queries. Upsert is called on every
// location ping, so implementations must be cheap.
type Geo interface {
	Upsert(ctx context.Context, categoryID, driverID types.ID, p types.Point) error
	Remove(ctx context.Context, categoryID, driverID types.ID) error
	Nearby(ctx context.Context, categoryID types.ID, origin types.Point, radiusKm float64, limit int) ([]Candidate, error)
}

type GeoStore struct {
	redis *redis.Client
}

func NewGeoStore(redis *redis.Client) *GeoStore {
	return &GeoStore{redis: redis}
}

func geoKey(categoryID types.ID) string {
	return fmt.Sprintf("geo:drivers:%s", string(categoryID))
}

func (s *GeoStore) Upsert(ctx context.Context, categoryID, driverID types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, geoKey(categoryID), &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *GeoStore) Remove(ctx context.Context, categoryID, driverID types.ID) error {
	return s.redis.ZRem(ctx, geoKey(categoryID), string(driverID)).Err()
}

func (s *GeoStore) Nearby(ctx context.Context, categoryID types.ID, origin types.Point, radiusKm float64, limit int) ([]Candidate, error) {
	results, err := s.redis.GeoSearchLocation(ctx, geoKey(categoryID), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(results))
	for i, r := range results {
		out[i] = Candidate{
			DriverID:   types.ID(r.Name),
			Position:   types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}

var _ Geo = (*GeoStore)(nil)
