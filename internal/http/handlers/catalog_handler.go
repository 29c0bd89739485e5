// README: Vehicle catalog endpoint: categories priced for a trip.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gocab/internal/modules/pricing"
	"gocab/internal/types"
)

type CatalogHandler struct {
	pricing *pricing.Service
}

func NewCatalogHandler(p *pricing.Service) *CatalogHandler {
	return &CatalogHandler{pricing: p}
}

// List quotes every active category for the pickup/drop pair given in query
// parameters.
func (h *CatalogHandler) List(c *gin.Context) {
	pickup, ok1 := pointParam(c, "pickup_lat", "pickup_lng")
	drop, ok2 := pointParam(c, "drop_lat", "drop_lng")
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pickup and drop coordinates required"})
		return
	}
	quotes, err := h.pricing.Quotes(c.Request.Context(), pickup, drop)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, len(quotes))
	for i, q := range quotes {
		out[i] = gin.H{
			"category_id": q.Category.ID,
			"name":        q.Category.Name,
			"description": q.Category.Description,
			"capacity":    q.Category.Capacity,
			"fare":        q.Fare,
		}
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func pointParam(c *gin.Context, latKey, lngKey string) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query(latKey), 64)
	lng, err2 := strconv.ParseFloat(c.Query(lngKey), 64)
	if err1 != nil || err2 != nil {
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}
