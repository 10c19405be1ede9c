package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"

	"ticketing/app"
	"ticketing/config"
	"ticketing/db"
	"ticketing/gateway"
	"ticketing/payment"
	"ticketing/pubsub"
	"ticketing/tracing"
)

func main() {
	log.Init(logrus.InfoLevel)
	logger := log.FromContext(context.Background())

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.WithError(err).Fatal("Could not load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	traceProvider := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint, cfg.GatewayAddr)

	dbConn, err := db.Open(cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("Could not connect to database")
	}
	defer dbConn.Close()

	redisClient := pubsub.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	providers := []payment.Provider{
		gateway.NewStripeClient(cfg.Stripe.URL, cfg.Stripe.SecretKey, cfg.PaymentLinkTTL),
		gateway.NewMercadoPagoClient(cfg.MercadoPago.URL, cfg.MercadoPago.AccessToken, cfg.PaymentLinkTTL),
	}

	a, err := app.New(
		app.Config{
			HTTPAddr: cfg.HTTPAddr,
			Payment: payment.Config{
				RedirectURLs:   cfg.Redirects.URLs(),
				PaymentLinkTTL: cfg.PaymentLinkTTL,
			},
			TransferTTL:       cfg.TransferTTL,
			ReconcileInterval: cfg.ReconcileInterval,
		},
		dbConn,
		redisClient,
		gateway.NewNotificationsClient(cfg.NotificationsURL),
		providers,
		traceProvider,
	)
	if err != nil {
		logger.WithError(err).Fatal("Could not create app")
	}

	if err := a.Run(ctx); err != nil {
		logger.WithError(err).Fatal("App stopped with error")
	}
}
