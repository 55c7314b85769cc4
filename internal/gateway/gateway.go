package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// AuthorizeRequest asks the provider to place a hold on the payer's funds.
// The idempotency key guarantees at most one authorization per key even if
// the call is retried after a timeout.
type AuthorizeRequest struct {
	Amount               decimal.Decimal
	Currency             string
	Country              string
	PaymentMethod        string
	Customer             *string
	CaptureMethod        string
	StatementDescriptor  string
	PayoutAccountID      *string
	ApplicationFeeAmount *decimal.Decimal
	IdempotencyKey       string
	Metadata             map[string]string
}

// RefundRequest asks the provider to return captured funds to the payer
type RefundRequest struct {
	ChargeResourceID string
	Amount           decimal.Decimal
	Reason           string
	IdempotencyKey   string
}

// ProviderCharge is the provider's view of captured funds under an intent
type ProviderCharge struct {
	ResourceID     string
	Status         string
	Currency       string
	Amount         decimal.Decimal
	AmountRefunded decimal.Decimal
	PaymentMethod  string
}

// ProviderIntent is the provider's representation of a payment intent
type ProviderIntent struct {
	ResourceID       string
	Status           string
	Currency         string
	Amount           decimal.Decimal
	AmountCapturable decimal.Decimal
	AmountReceived   decimal.Decimal
	PaymentMethod    string
	Customer         string
	Charges          []ProviderCharge
}

// ProviderRefund is the provider's representation of a refund
type ProviderRefund struct {
	ResourceID       string
	ChargeResourceID string
	Status           string
	Amount           decimal.Decimal
	Currency         string
}

// Provider intent statuses as reported by the gateway
const (
	ProviderStatusRequiresCapture = "requires_capture"
	ProviderStatusSucceeded       = "succeeded"
	ProviderStatusCanceled        = "canceled"
)

// Client abstracts the payment gateway provider. Implementations own their
// timeout and transient-retry policy; the lifecycle engine never retries a
// gateway call itself, it surfaces transient failures as retryable errors
// and relies on idempotency keys for reconciliation.
type Client interface {
	// Authorize places a hold on funds, capturing immediately when the
	// capture method is automatic
	Authorize(ctx context.Context, req *AuthorizeRequest) (*ProviderIntent, error)

	// Capture converts an authorized amount into collected funds
	Capture(ctx context.Context, resourceID string) (*ProviderIntent, error)

	// AdjustAuthorization changes the authorized-but-uncaptured amount
	AdjustAuthorization(ctx context.Context, resourceID string, newAmount decimal.Decimal) (*ProviderIntent, error)

	// Cancel releases an uncaptured hold
	Cancel(ctx context.Context, resourceID string) (*ProviderIntent, error)

	// Refund returns captured funds at the charge level
	Refund(ctx context.Context, req *RefundRequest) (*ProviderRefund, error)

	// Retrieve fetches the provider's current view of an intent
	Retrieve(ctx context.Context, resourceID string) (*ProviderIntent, error)
}
