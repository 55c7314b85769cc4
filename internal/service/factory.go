package service

import (
	"github.com/cartpay/cartpay/internal/config"
	"github.com/cartpay/cartpay/internal/domain/cartpayment"
	"github.com/cartpay/cartpay/internal/gateway"
	"github.com/cartpay/cartpay/internal/logger"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	CartPaymentRepo cartpayment.Repository

	// Gateway
	GatewayClient gateway.Client
}
