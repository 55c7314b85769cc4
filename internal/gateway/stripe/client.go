package stripe

import (
	"github.com/cartpay/cartpay/internal/config"
	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/gateway"
	"github.com/cartpay/cartpay/internal/logger"
	stripesdk "github.com/stripe/stripe-go/v82"
)

// NewClient creates a Stripe-backed gateway client from the application
// configuration
func NewClient(cfg *config.Configuration, log *logger.Logger) (gateway.Client, error) {
	if cfg.Stripe.SecretKey == "" {
		return nil, ierr.NewError("stripe secret key is not configured").
			WithHint("Stripe is not configured for this environment").
			Mark(ierr.ErrValidation)
	}

	return &provider{
		client:          stripesdk.NewClient(cfg.Stripe.SecretKey, nil),
		maxRetryElapsed: cfg.Stripe.MaxRetryElapsed,
		logger:          log,
	}, nil
}
