// README: Rider account model.
package user

import (
	"time"

	"gocab/internal/types"
)

type User struct {
	ID       types.ID
	Name     string
	Phone    string
	Email    string
	Verified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
