package stripe

import (
	"context"
	"time"

	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/gateway"
	"github.com/cartpay/cartpay/internal/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	stripesdk "github.com/stripe/stripe-go/v82"
)

// provider implements gateway.Client on top of the Stripe API. Transient
// failures (429s, 5xxs, connection errors) are retried here with exponential
// backoff; the lifecycle engine above never retries gateway calls itself.
type provider struct {
	client          *stripesdk.Client
	maxRetryElapsed time.Duration
	logger          *logger.Logger
}

func (p *provider) Authorize(ctx context.Context, req *gateway.AuthorizeRequest) (*gateway.ProviderIntent, error) {
	params := &stripesdk.PaymentIntentCreateParams{
		Amount:        stripesdk.Int64(req.Amount.IntPart()),
		Currency:      stripesdk.String(req.Currency),
		PaymentMethod: stripesdk.String(req.PaymentMethod),
		CaptureMethod: stripesdk.String(req.CaptureMethod),
		Confirm:       stripesdk.Bool(true),
		OffSession:    stripesdk.Bool(true),
		Metadata:      req.Metadata,
	}
	params.IdempotencyKey = stripesdk.String(req.IdempotencyKey)
	params.AddExpand("latest_charge")

	if req.StatementDescriptor != "" {
		params.StatementDescriptorSuffix = stripesdk.String(req.StatementDescriptor)
	}
	if req.Customer != nil {
		params.Customer = req.Customer
	}
	if req.PayoutAccountID != nil {
		params.TransferData = &stripesdk.PaymentIntentCreateTransferDataParams{
			Destination: req.PayoutAccountID,
		}
	}
	if req.ApplicationFeeAmount != nil {
		params.ApplicationFeeAmount = stripesdk.Int64(req.ApplicationFeeAmount.IntPart())
	}

	var intent *stripesdk.PaymentIntent
	err := p.withRetry(ctx, "authorize", func() error {
		var callErr error
		intent, callErr = p.client.V1PaymentIntents.Create(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return toProviderIntent(intent), nil
}

func (p *provider) Capture(ctx context.Context, resourceID string) (*gateway.ProviderIntent, error) {
	params := &stripesdk.PaymentIntentCaptureParams{}
	params.AddExpand("latest_charge")

	var intent *stripesdk.PaymentIntent
	err := p.withRetry(ctx, "capture", func() error {
		var callErr error
		intent, callErr = p.client.V1PaymentIntents.Capture(ctx, resourceID, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return toProviderIntent(intent), nil
}

func (p *provider) AdjustAuthorization(ctx context.Context, resourceID string, newAmount decimal.Decimal) (*gateway.ProviderIntent, error) {
	params := &stripesdk.PaymentIntentUpdateParams{
		Amount: stripesdk.Int64(newAmount.IntPart()),
	}
	params.AddExpand("latest_charge")

	var intent *stripesdk.PaymentIntent
	err := p.withRetry(ctx, "adjust_authorization", func() error {
		var callErr error
		intent, callErr = p.client.V1PaymentIntents.Update(ctx, resourceID, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return toProviderIntent(intent), nil
}

func (p *provider) Cancel(ctx context.Context, resourceID string) (*gateway.ProviderIntent, error) {
	params := &stripesdk.PaymentIntentCancelParams{}

	var intent *stripesdk.PaymentIntent
	err := p.withRetry(ctx, "cancel", func() error {
		var callErr error
		intent, callErr = p.client.V1PaymentIntents.Cancel(ctx, resourceID, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return toProviderIntent(intent), nil
}

func (p *provider) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.ProviderRefund, error) {
	params := &stripesdk.RefundCreateParams{
		Charge: stripesdk.String(req.ChargeResourceID),
		Amount: stripesdk.Int64(req.Amount.IntPart()),
	}
	params.IdempotencyKey = stripesdk.String(req.IdempotencyKey)
	if req.Reason != "" {
		params.Reason = stripesdk.String(req.Reason)
	}

	var refund *stripesdk.Refund
	err := p.withRetry(ctx, "refund", func() error {
		var callErr error
		refund, callErr = p.client.V1Refunds.Create(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return &gateway.ProviderRefund{
		ResourceID:       refund.ID,
		ChargeResourceID: req.ChargeResourceID,
		Status:           string(refund.Status),
		Amount:           decimal.NewFromInt(refund.Amount),
		Currency:         string(refund.Currency),
	}, nil
}

func (p *provider) Retrieve(ctx context.Context, resourceID string) (*gateway.ProviderIntent, error) {
	params := &stripesdk.PaymentIntentRetrieveParams{}
	params.AddExpand("latest_charge")

	var intent *stripesdk.PaymentIntent
	err := p.withRetry(ctx, "retrieve", func() error {
		var callErr error
		intent, callErr = p.client.V1PaymentIntents.Retrieve(ctx, resourceID, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return toProviderIntent(intent), nil
}

// withRetry runs a gateway call, retrying transient failures with
// exponential backoff up to the configured elapsed window. Non-transient
// failures (declines, invalid requests) are never retried.
func (p *provider) withRetry(ctx context.Context, op string, call func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = p.maxRetryElapsed

	err := backoff.Retry(func() error {
		callErr := call()
		if callErr == nil {
			return nil
		}
		if isTransient(callErr) {
			p.logger.Warnw("transient stripe failure, retrying",
				"operation", op,
				"error", callErr)
			return callErr
		}
		return backoff.Permanent(callErr)
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		return p.mapError(op, err)
	}
	return nil
}

// isTransient reports whether a Stripe failure is worth retrying: rate
// limits, connection failures, and provider-side 5xxs.
func isTransient(err error) bool {
	stripeErr, ok := err.(*stripesdk.Error)
	if !ok {
		// connection or timeout errors never reached Stripe
		return true
	}
	if stripeErr.Type == stripesdk.ErrorTypeAPI {
		return true
	}
	return stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500
}

// mapError translates Stripe errors into the engine's error taxonomy
func (p *provider) mapError(op string, err error) error {
	stripeErr, ok := err.(*stripesdk.Error)
	if !ok {
		return ierr.WithError(err).
			WithHint("Payment provider is temporarily unavailable").
			WithReportableDetails(map[string]any{
				"operation": op,
			}).
			Mark(ierr.ErrGatewayTransient)
	}

	if isTransient(err) {
		return ierr.WithError(err).
			WithHint("Payment provider is temporarily unavailable").
			WithReportableDetails(map[string]any{
				"operation":   op,
				"stripe_code": stripeErr.Code,
			}).
			Mark(ierr.ErrGatewayTransient)
	}

	switch stripeErr.Type {
	case stripesdk.ErrorTypeCard:
		return ierr.NewError("payment declined").
			WithHint("The payment method was declined by the provider").
			WithReportableDetails(map[string]any{
				"operation":      op,
				"stripe_code":    stripeErr.Code,
				"decline_code":   stripeErr.DeclineCode,
				"stripe_message": stripeErr.Msg,
			}).
			Mark(ierr.ErrGatewayDeclined)
	case stripesdk.ErrorTypeIdempotency:
		return ierr.WithError(err).
			WithHint("Idempotency key was reused with different parameters").
			WithReportableDetails(map[string]any{
				"operation": op,
			}).
			Mark(ierr.ErrIdempotencyConflict)
	default:
		return ierr.WithError(err).
			WithHint("Payment provider rejected the request").
			WithReportableDetails(map[string]any{
				"operation":   op,
				"stripe_code": stripeErr.Code,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
}

func toProviderIntent(intent *stripesdk.PaymentIntent) *gateway.ProviderIntent {
	result := &gateway.ProviderIntent{
		ResourceID:       intent.ID,
		Status:           string(intent.Status),
		Currency:         string(intent.Currency),
		Amount:           decimal.NewFromInt(intent.Amount),
		AmountCapturable: decimal.NewFromInt(intent.AmountCapturable),
		AmountReceived:   decimal.NewFromInt(intent.AmountReceived),
	}
	if intent.PaymentMethod != nil {
		result.PaymentMethod = intent.PaymentMethod.ID
	}
	if intent.Customer != nil {
		result.Customer = intent.Customer.ID
	}
	if intent.LatestCharge != nil {
		result.Charges = append(result.Charges, gateway.ProviderCharge{
			ResourceID:     intent.LatestCharge.ID,
			Status:         string(intent.LatestCharge.Status),
			Currency:       string(intent.LatestCharge.Currency),
			Amount:         decimal.NewFromInt(intent.LatestCharge.Amount),
			AmountRefunded: decimal.NewFromInt(intent.LatestCharge.AmountRefunded),
		})
	}
	return result
}
