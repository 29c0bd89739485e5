// README: Google Distance Matrix travel-time estimator.
package routing

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"gocab/internal/types"
)

// GoogleClient estimates travel via the Google Distance Matrix API.
type GoogleClient struct {
	client *maps.Client
}

// NewGoogleClient creates a GoogleClient with the given API key.
func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleClient{client: client}, nil
}

func (c *GoogleClient) EstimateTravel(ctx context.Context, origin, dest types.Point) (Estimate, error) {
	r := &maps.DistanceMatrixRequest{
		Origins:      []string{coord(origin)},
		Destinations: []string{coord(dest)},
		Mode:         maps.TravelModeDriving,
	}
	resp, err := c.client.DistanceMatrix(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Estimate{}, fmt.Errorf("%w: empty matrix response", ErrUnavailable)
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Estimate{}, fmt.Errorf("%w: element status %s", ErrUnavailable, el.Status)
	}
	return Estimate{
		DistanceKm: float64(el.Distance.Meters) / 1000.0,
		Duration:   el.Duration,
	}, nil
}

func coord(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

var _ Estimator = (*GoogleClient)(nil)
