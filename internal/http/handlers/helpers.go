// README: Error-to-status mapping shared by all handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gocab/internal/modules/dispatch"
	"gocab/internal/modules/driver"
	"gocab/internal/modules/pricing"
	"gocab/internal/modules/ride"
	"gocab/internal/modules/user"
	"gocab/internal/routing"
)

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest),
		errors.Is(err, dispatch.ErrBadRequest),
		errors.Is(err, driver.ErrBadRequest),
		errors.Is(err, user.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ride.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, pricing.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ride.ErrInvalidState),
		errors.Is(err, ride.ErrConflict),
		errors.Is(err, dispatch.ErrActiveRide),
		errors.Is(err, driver.ErrAlreadyServing),
		errors.Is(err, user.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNoCandidates):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, user.ErrOTPRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, routing.ErrUnavailable),
		errors.Is(err, user.ErrOTPProvider):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
