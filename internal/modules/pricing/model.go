// README: Vehicle category and its fare rate card.
package pricing

import (
	"time"

	"gocab/internal/types"
)

// Category is a bookable vehicle class with its rate card. Amounts are in
// paise.
type Category struct {
	ID          types.ID
	Name        string
	Description string
	Capacity    int

	BaseFare int64
	PerKm    int64
	MinFare  int64

	Active    bool
	CreatedAt time.Time
}

// CategoryQuote is a category priced for a concrete trip.
type CategoryQuote struct {
	Category Category
	Fare     types.Money
}
