// README: Entry point; loads config, wires modules, serves the API.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gocab/internal/auth"
	"gocab/internal/config"
	"gocab/internal/events"
	httptransport "gocab/internal/http"
	"gocab/internal/infra"
	"gocab/internal/logging"
	"gocab/internal/modules/dispatch"
	"gocab/internal/modules/driver"
	"gocab/internal/modules/matching"
	"gocab/internal/modules/pricing"
	"gocab/internal/modules/ride"
	"gocab/internal/modules/user"
	"gocab/internal/notify"
	"gocab/internal/routing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("auth init: %v", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("postgres init: %v", err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
	defer redisClient.Close()

	var estimator routing.Estimator
	if cfg.Maps.APIKey != "" {
		estimator, err = routing.NewGoogleClient(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
	} else {
		logger.Warn("GOOGLE_API_KEY unset, using haversine estimates")
		estimator = routing.Haversine{}
	}

	hub := notify.NewHub()
	gateway := notify.Multi{hub}

	geoStore := matching.NewGeoStore(redisClient)
	driverSvc := driver.NewService(driver.NewPGStore(dbPool), geoStore, logger)

	if cfg.FCM.ProjectID != "" {
		msgClient, err := infra.NewMessagingClient(ctx, cfg.FCM.ProjectID, cfg.FCM.CredentialsFile)
		if err != nil {
			log.Fatalf("fcm init: %v", err)
		}
		gateway = append(gateway, notify.NewFCMGateway(msgClient, driverSvc))
	}

	var stream events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaPub.Close()
		stream = kafkaPub
	}

	pricingSvc := pricing.NewService(pricing.NewPGStore(dbPool))

	otpClient := user.NewOTPClient(cfg.OTP.BaseURL, cfg.OTP.ClientID, cfg.OTP.ClientSecret)
	userSvc := user.NewService(user.NewPGStore(dbPool), otpClient, tokens, logger)

	rideStore := ride.NewPGStore(dbPool)
	lifecycleSvc := ride.NewService(rideStore, pricingSvc, driverSvc, gateway, stream, logger)

	selector := matching.NewSelector(geoStore, driverSvc, estimator, matching.Config{
		RadiusKm:      cfg.Dispatch.RadiusKm,
		MaxCandidates: cfg.Dispatch.MaxCandidates,
	}, logger)
	dispatchSvc := dispatch.NewService(rideStore, selector, estimator, pricingSvc, gateway, stream, userSvc,
		dispatch.Config{OfferWait: cfg.Dispatch.OfferWait}, logger)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatch:  dispatchSvc,
		Lifecycle: lifecycleSvc,
		Drivers:   driverSvc,
		Pricing:   pricingSvc,
		Users:     userSvc,
		Hub:       hub,
		Tokens:    tokens,
		Log:       logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		<-ctx.Done()
		dispatchSvc.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
