package cartpayment

import (
	"context"

	"github.com/cartpay/cartpay/internal/types"
)

// Repository defines the interface for cart payment persistence — the ledger
// store. Uniqueness constraints at the store are the arbiter of concurrency:
// the engine never takes in-process locks, it relies on duplicate-key
// rejections (ErrAlreadyExists) and re-reads the winner's row.
type Repository interface {
	// Cart payment operations
	CreateCartPaymentWithIntent(ctx context.Context, cp *CartPayment, intent *PaymentIntent) error
	GetCartPayment(ctx context.Context, id string) (*CartPayment, error)
	UpdateCartPayment(ctx context.Context, cp *CartPayment) error
	GetCartPaymentByCorrelation(ctx context.Context, referenceID, referenceType string) (*CartPayment, error)
	ListCartPayments(ctx context.Context, filter *types.CartPaymentFilter) ([]*CartPayment, error)
	CountCartPayments(ctx context.Context, filter *types.CartPaymentFilter) (int, error)

	// Payment intent operations. CreateIntent fails with ErrAlreadyExists
	// when the idempotency key is already reserved.
	CreateIntent(ctx context.Context, intent *PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
	GetIntentByIdempotencyKey(ctx context.Context, key string) (*PaymentIntent, error)
	ListIntentsByCartPayment(ctx context.Context, cartPaymentID string) ([]*PaymentIntent, error)
	GetLatestIntent(ctx context.Context, cartPaymentID string) (*PaymentIntent, error)
	UpdateIntent(ctx context.Context, intent *PaymentIntent) error

	// Gateway mirror operations
	CreatePgpIntent(ctx context.Context, pgpIntent *PgpPaymentIntent) error
	GetPgpIntentByIntent(ctx context.Context, paymentIntentID string) (*PgpPaymentIntent, error)
	UpdatePgpIntent(ctx context.Context, pgpIntent *PgpPaymentIntent) error

	// Adjustment history operations: append-only, unique per idempotency key
	CreateAdjustmentHistory(ctx context.Context, history *PaymentIntentAdjustmentHistory) error
	GetAdjustmentHistoryByIdempotencyKey(ctx context.Context, key string) (*PaymentIntentAdjustmentHistory, error)
	ListAdjustmentHistory(ctx context.Context, paymentIntentID string) ([]*PaymentIntentAdjustmentHistory, error)

	// Charge operations
	CreateCharge(ctx context.Context, charge *Charge) error
	UpdateCharge(ctx context.Context, charge *Charge) error
	ListChargesByIntent(ctx context.Context, paymentIntentID string) ([]*Charge, error)
	CreatePgpCharge(ctx context.Context, pgpCharge *PgpPaymentCharge) error

	// Refund operations: append-only writers plus status updates
	CreateRefund(ctx context.Context, refund *Refund) error
	UpdateRefund(ctx context.Context, refund *Refund) error
	GetRefundByIdempotencyKey(ctx context.Context, key string) (*Refund, error)
	ListRefundsByCharge(ctx context.Context, chargeID string) ([]*Refund, error)
	CreatePgpRefund(ctx context.Context, pgpRefund *PgpRefund) error
}
