// README: HTTP route registration and middleware chain.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gocab/internal/auth"
	"gocab/internal/http/handlers"
	"gocab/internal/http/middleware"
	"gocab/internal/modules/dispatch"
	"gocab/internal/modules/driver"
	"gocab/internal/modules/pricing"
	"gocab/internal/modules/ride"
	"gocab/internal/modules/user"
	"gocab/internal/notify"
)

type RouterDeps struct {
	Dispatch  *dispatch.Service
	Lifecycle *ride.Service
	Drivers   *driver.Service
	Pricing   *pricing.Service
	Users     *user.Service
	Hub       *notify.Hub
	Tokens    *auth.Tokens
	Log       *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.Metrics())
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userHandler := handlers.NewUserHandler(deps.Users)
	rideHandler := handlers.NewRideHandler(deps.Dispatch, deps.Lifecycle)
	driverHandler := handlers.NewDriverHandler(deps.Drivers, deps.Dispatch, deps.Lifecycle, deps.Tokens)
	catalogHandler := handlers.NewCatalogHandler(deps.Pricing)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Log)

	api := r.Group("/api")

	api.POST("/users/register", userHandler.Register)
	api.POST("/users/login", userHandler.Login)
	api.POST("/users/verify", userHandler.Verify)
	api.POST("/users/resend-otp", userHandler.ResendOTP)
	api.POST("/drivers/register", driverHandler.Register)

	authed := api.Group("", middleware.Auth(deps.Tokens))

	authed.GET("/categories", catalogHandler.List)

	rider := authed.Group("", middleware.RequireRole(auth.RoleRider))
	rider.POST("/rides", rideHandler.Request)
	rider.GET("/rides", rideHandler.History)
	rider.GET("/rides/:id", rideHandler.Get)
	rider.POST("/rides/:id/cancel", rideHandler.Cancel)

	drv := authed.Group("/drivers", middleware.RequireRole(auth.RoleDriver))
	drv.PUT("/location", driverHandler.UpdateLocation)
	drv.POST("/duty", driverHandler.SetDuty)
	drv.POST("/device-token", driverHandler.RegisterDeviceToken)
	drv.GET("/ws", wsHandler.Connect)
	drv.POST("/rides/:id/accept", driverHandler.Accept)
	drv.POST("/rides/:id/decline", driverHandler.Decline)
	drv.POST("/rides/:id/start", driverHandler.Start)
	drv.POST("/rides/:id/complete", driverHandler.Complete)

	return r
}
