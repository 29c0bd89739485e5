// README: Rider-facing ride endpoints: request, cancel, get, history.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gocab/internal/http/middleware"
	"gocab/internal/modules/dispatch"
	"gocab/internal/modules/ride"
	"gocab/internal/types"
)

type RideHandler struct {
	dispatch  *dispatch.Service
	lifecycle *ride.Service
}

func NewRideHandler(d *dispatch.Service, l *ride.Service) *RideHandler {
	return &RideHandler{dispatch: d, lifecycle: l}
}

type requestRideReq struct {
	Kind          string  `json:"kind"`
	CategoryID    string  `json:"category_id" binding:"required"`
	PickupLat     float64 `json:"pickup_lat"`
	PickupLng     float64 `json:"pickup_lng"`
	DropLat       float64 `json:"drop_lat"`
	DropLng       float64 `json:"drop_lng"`
	PickupAddress string  `json:"pickup_address"`
	DropAddress   string  `json:"drop_address"`

	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone"`
	GoodsType     string `json:"goods_type"`
}

func (h *RideHandler) Request(c *gin.Context) {
	var req requestRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cmd := dispatch.RequestCommand{
		RiderID:       middleware.CallerID(c),
		Kind:          ride.Kind(req.Kind),
		CategoryID:    types.ID(req.CategoryID),
		Pickup:        types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Drop:          types.Point{Lat: req.DropLat, Lng: req.DropLng},
		PickupAddress: req.PickupAddress,
		DropAddress:   req.DropAddress,
	}
	if req.ReceiverName != "" || req.ReceiverPhone != "" || req.GoodsType != "" {
		cmd.Parcel = &ride.ParcelInfo{
			ReceiverName:  req.ReceiverName,
			ReceiverPhone: req.ReceiverPhone,
			GoodsType:     req.GoodsType,
		}
	}
	id, err := h.dispatch.Request(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ride_id": id, "status": ride.StatusSearching})
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.lifecycle.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	if r.RiderID != middleware.CallerID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": ride.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, rideView(r))
}

func (h *RideHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	err := h.lifecycle.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:  types.ID(c.Param("id")),
		RiderID: middleware.CallerID(c),
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ride.StatusCancelled})
}

func (h *RideHandler) History(c *gin.Context) {
	rides, err := h.lifecycle.History(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	// Abandoned requests are reported separately from real trips.
	trips := make([]gin.H, 0, len(rides))
	abandoned := make([]gin.H, 0)
	for _, r := range rides {
		switch r.Status {
		case ride.StatusCancelled, ride.StatusExpired:
			abandoned = append(abandoned, rideView(r))
		default:
			trips = append(trips, rideView(r))
		}
	}
	c.JSON(http.StatusOK, gin.H{"rides": trips, "cancelled": abandoned})
}

func rideView(r *ride.Ride) gin.H {
	v := gin.H{
		"ride_id":          r.ID,
		"kind":             r.Kind,
		"category_id":      r.CategoryID,
		"status":           r.Status,
		"pickup":           r.Pickup,
		"drop":             r.Drop,
		"pickup_address":   r.PickupAddress,
		"drop_address":     r.DropAddress,
		"trip_distance_km": r.TripDistanceKm,
		"trip_duration_s":  int64(r.TripDuration / time.Second),
		"fare_estimate":    r.FareEstimate,
		"is_searching":     r.IsSearching,
		"can_be_cancelled": r.CanBeCancelled,
		"created_at":       r.CreatedAt,
	}
	if r.DriverID != nil {
		v["driver_id"] = *r.DriverID
	}
	if r.FinalFare != nil {
		v["final_fare"] = *r.FinalFare
	}
	if r.Parcel != nil {
		v["parcel"] = gin.H{
			"receiver_name":  r.Parcel.ReceiverName,
			"receiver_phone": r.Parcel.ReceiverPhone,
			"goods_type":     r.Parcel.GoodsType,
		}
	}
	return v
}
