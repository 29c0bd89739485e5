// README: Rider account endpoints: register, login, OTP verify and resend.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gocab/internal/modules/user"
)

type UserHandler struct {
	users *user.Service
}

func NewUserHandler(users *user.Service) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Phone string `json:"phone" binding:"required"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id, orderID, err := h.users.Register(c.Request.Context(), user.RegisterCommand{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": id, "order_id": orderID})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	orderID, err := h.users.Login(c.Request.Context(), req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID})
}

func (h *UserHandler) Verify(c *gin.Context) {
	var req struct {
		Phone   string `json:"phone" binding:"required"`
		OrderID string `json:"order_id" binding:"required"`
		OTP     string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	u, token, err := h.users.Verify(c.Request.Context(), req.Phone, req.OrderID, req.OTP)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"user_id":  u.ID,
			"name":     u.Name,
			"phone":    u.Phone,
			"email":    u.Email,
			"verified": u.Verified,
		},
	})
}

func (h *UserHandler) ResendOTP(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.users.Resend(c.Request.Context(), req.OrderID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
