// README: Driver-facing endpoints: presence, offers and trip progression.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gocab/internal/auth"
	"gocab/internal/http/middleware"
	"gocab/internal/modules/dispatch"
	"gocab/internal/modules/driver"
	"gocab/internal/modules/ride"
	"gocab/internal/types"
)

type DriverHandler struct {
	drivers   *driver.Service
	dispatch  *dispatch.Service
	lifecycle *ride.Service
	tokens    *auth.Tokens
}

func NewDriverHandler(d *driver.Service, disp *dispatch.Service, l *ride.Service, tokens *auth.Tokens) *DriverHandler {
	return &DriverHandler{drivers: d, dispatch: disp, lifecycle: l, tokens: tokens}
}

type registerDriverReq struct {
	Name          string `json:"name" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	CategoryID    string `json:"category_id" binding:"required"`
	VehicleNumber string `json:"vehicle_number"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req registerDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id, err := h.drivers.Register(c.Request.Context(), driver.RegisterCommand{
		Name:          req.Name,
		Phone:         req.Phone,
		CategoryID:    types.ID(req.CategoryID),
		VehicleNumber: req.VehicleNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := h.tokens.Generate(id, auth.RoleDriver)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"driver_id": id, "token": token})
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := h.drivers.UpdateLocation(c.Request.Context(), middleware.CallerID(c), types.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DriverHandler) SetDuty(c *gin.Context) {
	var req struct {
		OnDuty bool `json:"on_duty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.drivers.SetDuty(c.Request.Context(), middleware.CallerID(c), req.OnDuty); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"on_duty": req.OnDuty})
}

func (h *DriverHandler) RegisterDeviceToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.drivers.RegisterDeviceToken(c.Request.Context(), middleware.CallerID(c), req.Token); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DriverHandler) Accept(c *gin.Context) {
	err := h.lifecycle.Accept(c.Request.Context(), ride.AcceptCommand{
		RideID:   types.ID(c.Param("id")),
		DriverID: middleware.CallerID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ride.StatusAccepted})
}

func (h *DriverHandler) Decline(c *gin.Context) {
	err := h.dispatch.Decline(c.Request.Context(), types.ID(c.Param("id")), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ride.StatusSearching})
}

func (h *DriverHandler) Start(c *gin.Context) {
	err := h.lifecycle.Start(c.Request.Context(), ride.StartCommand{
		RideID:   types.ID(c.Param("id")),
		DriverID: middleware.CallerID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ride.StatusOngoingTrip})
}

func (h *DriverHandler) Complete(c *gin.Context) {
	rideID := types.ID(c.Param("id"))
	err := h.lifecycle.Complete(c.Request.Context(), ride.CompleteCommand{
		RideID:   rideID,
		DriverID: middleware.CallerID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	r, err := h.lifecycle.Get(c.Request.Context(), rideID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"status": ride.StatusCompleted}
	if r.FinalFare != nil {
		resp["final_fare"] = *r.FinalFare
	}
	c.JSON(http.StatusOK, resp)
}
