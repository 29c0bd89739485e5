// README: Selector ranking and filtering tests with fake geo/routing backends.
package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"gocab/internal/routing"
	"gocab/internal/types"
)

type fakeGeo struct {
	candidates []Candidate
	err        error
}

func (g fakeGeo) Upsert(ctx context.Context, categoryID, driverID types.ID, p types.Point) error {
	return nil
}

func (g fakeGeo) Remove(ctx context.Context, categoryID, driverID types.ID) error {
	return nil
}

func (g fakeGeo) Nearby(ctx context.Context, categoryID types.ID, origin types.Point, radiusKm float64, limit int) ([]Candidate, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.candidates) > limit {
		return g.candidates[:limit], nil
	}
	return g.candidates, nil
}

type fakeFilter map[types.ID]bool

func (f fakeFilter) Available(ctx context.Context, driverID types.ID) (bool, error) {
	return f[driverID], nil
}

// The fake keys ETAs by the candidate's latitude, so tests give each
// candidate a distinct Position.Lat matching the etas map.
type etaByPosition map[float64]time.Duration

type posEstimator struct {
	etas etaByPosition
	err  error
}

func (e posEstimator) EstimateTravel(ctx context.Context, origin, dest types.Point) (routing.Estimate, error) {
	if e.err != nil {
		return routing.Estimate{}, e.err
	}
	return routing.Estimate{Duration: e.etas[origin.Lat]}, nil
}

func TestSelectRanksByETA(t *testing.T) {
	geo := fakeGeo{candidates: []Candidate{
		{DriverID: "d-far", Position: types.Point{Lat: 1}, DistanceKm: 1.0},
		{DriverID: "d-near", Position: types.Point{Lat: 2}, DistanceKm: 2.0},
		{DriverID: "d-mid", Position: types.Point{Lat: 3}, DistanceKm: 3.0},
	}}
	est := posEstimator{etas: etaByPosition{
		1: 9 * time.Minute,
		2: 2 * time.Minute,
		3: 5 * time.Minute,
	}}
	filter := fakeFilter{"d-far": true, "d-near": true, "d-mid": true}
	sel := NewSelector(geo, filter, est, Config{RadiusKm: 10, MaxCandidates: 10}, nil)

	got, err := sel.Select(context.Background(), "cat-mini", types.Point{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	want := []types.ID{"d-near", "d-mid", "d-far"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSelectTieBreaksByDriverID(t *testing.T) {
	geo := fakeGeo{candidates: []Candidate{
		{DriverID: "d-b", Position: types.Point{Lat: 1}},
		{DriverID: "d-a", Position: types.Point{Lat: 2}},
	}}
	est := posEstimator{etas: etaByPosition{1: 3 * time.Minute, 2: 3 * time.Minute}}
	filter := fakeFilter{"d-a": true, "d-b": true}
	sel := NewSelector(geo, filter, est, Config{RadiusKm: 10, MaxCandidates: 10}, nil)

	got, err := sel.Select(context.Background(), "cat-mini", types.Point{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got[0] != "d-a" || got[1] != "d-b" {
		t.Fatalf("tie-break order = %v, want [d-a d-b]", got)
	}
}

func TestSelectFiltersUnavailable(t *testing.T) {
	geo := fakeGeo{candidates: []Candidate{
		{DriverID: "d-busy", Position: types.Point{Lat: 1}},
		{DriverID: "d-free", Position: types.Point{Lat: 2}},
		{DriverID: "d-offduty", Position: types.Point{Lat: 3}},
	}}
	est := posEstimator{etas: etaByPosition{1: time.Minute, 2: 2 * time.Minute, 3: 3 * time.Minute}}
	filter := fakeFilter{"d-free": true}
	sel := NewSelector(geo, filter, est, Config{RadiusKm: 10, MaxCandidates: 10}, nil)

	got, err := sel.Select(context.Background(), "cat-mini", types.Point{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 1 || got[0] != "d-free" {
		t.Fatalf("got %v, want [d-free]", got)
	}
}

func TestSelectCapsCandidates(t *testing.T) {
	var cands []Candidate
	filter := fakeFilter{}
	etas := etaByPosition{}
	for i := 0; i < 7; i++ {
		id := types.ID(string(rune('a' + i)))
		cands = append(cands, Candidate{DriverID: id, Position: types.Point{Lat: float64(i)}})
		filter[id] = true
		etas[float64(i)] = time.Duration(i) * time.Minute
	}
	sel := NewSelector(fakeGeo{candidates: cands}, filter, posEstimator{etas: etas}, Config{RadiusKm: 10, MaxCandidates: 3}, nil)

	got, err := sel.Select(context.Background(), "cat-mini", types.Point{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
}

func TestSelectEmptyPool(t *testing.T) {
	sel := NewSelector(fakeGeo{}, fakeFilter{}, posEstimator{}, Config{RadiusKm: 10, MaxCandidates: 10}, nil)
	if _, err := sel.Select(context.Background(), "cat-mini", types.Point{}); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestSelectAbortsOnRoutingOutage(t *testing.T) {
	geo := fakeGeo{candidates: []Candidate{
		{DriverID: "d-far", DistanceKm: 8.0},
		{DriverID: "d-near", DistanceKm: 0.5},
	}}
	filter := fakeFilter{"d-far": true, "d-near": true}
	sel := NewSelector(geo, filter, posEstimator{err: routing.ErrUnavailable}, Config{RadiusKm: 10, MaxCandidates: 10}, nil)

	if _, err := sel.Select(context.Background(), "cat-mini", types.Point{}); !errors.Is(err, routing.ErrUnavailable) {
		t.Fatalf("err = %v, want routing.ErrUnavailable", err)
	}
}
