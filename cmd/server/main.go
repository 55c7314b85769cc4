package main

import (
	"context"
	"time"

	"github.com/cartpay/cartpay/internal/api"
	v1 "github.com/cartpay/cartpay/internal/api/v1"
	"github.com/cartpay/cartpay/internal/config"
	"github.com/cartpay/cartpay/internal/domain/cartpayment"
	"github.com/cartpay/cartpay/internal/gateway"
	stripegateway "github.com/cartpay/cartpay/internal/gateway/stripe"
	"github.com/cartpay/cartpay/internal/logger"
	"github.com/cartpay/cartpay/internal/postgres"
	"github.com/cartpay/cartpay/internal/repository"
	"github.com/cartpay/cartpay/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// @title CartPay API
// @version 1.0
// @description Marketplace cart payment processing service
// @BasePath /v1
// @schemes http https

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// Load .env for local development; a missing file is fine
	_ = godotenv.Load()

	app := fx.New(
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Postgres
			postgres.NewDB,

			// Repositories
			repository.NewCartPaymentRepository,

			// Gateway
			provideGatewayClient,

			// Service layer
			provideServiceParams,
			service.NewCartPaymentService,

			// API
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(startAPIServer),
	)

	app.Run()
}

func provideGatewayClient(cfg *config.Configuration, log *logger.Logger) (gateway.Client, error) {
	return stripegateway.NewClient(cfg, log)
}

func provideServiceParams(
	cfg *config.Configuration,
	log *logger.Logger,
	repo cartpayment.Repository,
	gatewayClient gateway.Client,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:          log,
		Config:          cfg,
		CartPaymentRepo: repo,
		GatewayClient:   gatewayClient,
	}
}

func provideHandlers(
	cartPaymentService service.CartPaymentService,
	log *logger.Logger,
) api.Handlers {
	return api.Handlers{
		Health:      v1.NewHealthHandler(),
		CartPayment: v1.NewCartPaymentHandler(cartPaymentService, log),
	}
}

func provideRouter(handlers api.Handlers) *gin.Engine {
	return api.NewRouter(handlers)
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}
