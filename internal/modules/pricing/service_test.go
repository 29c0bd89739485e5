// README: Fare computation tests.
package pricing

import (
	"context"
	"testing"

	"gocab/internal/types"
)

func testCategories() []*Category {
	return []*Category{
		{ID: "cat-mini", Name: "Mini", Capacity: 4, BaseFare: 3000, PerKm: 1200, MinFare: 5000, Active: true},
		{ID: "cat-sedan", Name: "Sedan", Capacity: 4, BaseFare: 5000, PerKm: 1800, MinFare: 8000, Active: true},
		{ID: "cat-retired", Name: "Retired", BaseFare: 1000, PerKm: 1000, Active: false},
	}
}

func TestFarePerStartedKilometre(t *testing.T) {
	svc := NewService(NewMemStore(testCategories()...))

	// 4.2 km bills as 5 started km: 3000 + 5*1200
	m, err := svc.Fare(context.Background(), "cat-mini", 4.2)
	if err != nil {
		t.Fatalf("fare: %v", err)
	}
	if m.Amount != 9000 {
		t.Fatalf("fare = %d, want 9000", m.Amount)
	}
	if m.Currency != "INR" {
		t.Fatalf("currency = %s, want INR", m.Currency)
	}
}

func TestFareMinimumApplies(t *testing.T) {
	svc := NewService(NewMemStore(testCategories()...))

	// 1 km: 3000 + 1200 = 4200, below the 5000 floor
	m, err := svc.Fare(context.Background(), "cat-mini", 1.0)
	if err != nil {
		t.Fatalf("fare: %v", err)
	}
	if m.Amount != 5000 {
		t.Fatalf("fare = %d, want minimum 5000", m.Amount)
	}
}

func TestFareUnknownCategory(t *testing.T) {
	svc := NewService(NewMemStore(testCategories()...))
	if _, err := svc.Fare(context.Background(), "cat-ghost", 3); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestQuotesSkipInactiveAndSortByBaseFare(t *testing.T) {
	svc := NewService(NewMemStore(testCategories()...))

	// ~5.8 km apart in Bengaluru
	pickup := types.Point{Lat: 12.9716, Lng: 77.5946}
	drop := types.Point{Lat: 12.9279, Lng: 77.6271}

	quotes, err := svc.Quotes(context.Background(), pickup, drop)
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2 active categories", len(quotes))
	}
	if quotes[0].Category.ID != "cat-mini" || quotes[1].Category.ID != "cat-sedan" {
		t.Fatalf("unexpected order: %s, %s", quotes[0].Category.ID, quotes[1].Category.ID)
	}
	for _, q := range quotes {
		if q.Fare.Amount <= 0 {
			t.Fatalf("non-positive fare for %s", q.Category.ID)
		}
	}
	if quotes[1].Fare.Amount <= quotes[0].Fare.Amount {
		t.Fatalf("sedan (%d) should cost more than mini (%d)", quotes[1].Fare.Amount, quotes[0].Fare.Amount)
	}
}
