package cartpayment

import (
	"time"

	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/shopspring/decimal"
)

// CorrelationIDs identify the external business entity a payment is for.
// Together they form the correlation key used by upsert: at most one
// non-deleted cart payment may exist per pair.
type CorrelationIDs struct {
	ReferenceID   string `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
}

// SplitPayment directs a portion of captured funds to a third-party payout
// account via an application fee
type SplitPayment struct {
	// The payout_account_id is the merchant's payout account at the gateway
	PayoutAccountID string `json:"payout_account_id"`
	// The application_fee_amount is the fee charged to the merchant, in minor units
	ApplicationFeeAmount decimal.Decimal `json:"application_fee_amount"`
}

// CartPayment is the aggregate root representing a logical payment request
// from a payer. It owns zero or more payment intents appended across retries
// and adjustments.
type CartPayment struct {
	// Unique identifier for this cart payment
	ID string `json:"id"`
	// The payer_id identifies who is being charged
	PayerID string `json:"payer_id"`
	// The amount field is the current target amount in minor units (cents)
	Amount decimal.Decimal `json:"amount"`
	// The payment_method_id identifies which payment method to charge
	PaymentMethodID string `json:"payment_method_id"`
	// The correlation_ids link this payment to an external entity (e.g. an order)
	CorrelationIDs CorrelationIDs `json:"correlation_ids"`
	// The delay_capture flag holds authorized funds instead of capturing immediately
	DelayCapture bool `json:"delay_capture"`
	// The client_description is free text stored with the payment (optional)
	ClientDescription *string `json:"client_description,omitempty"`
	// The payer_statement_description shows up on the payer's card bill (optional)
	PayerStatementDescription *string `json:"payer_statement_description,omitempty"`
	// The split_payment carries flow-of-funds information (optional)
	SplitPayment *SplitPayment `json:"split_payment,omitempty"`
	// The metadata field contains client specified key-value pairs (optional)
	Metadata types.Metadata `json:"metadata,omitempty"`
	// The cancelled_at timestamp is set when the payment is cancelled (optional)
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	// The deleted_at timestamp marks the soft delete of a cancelled payment (optional)
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	types.BaseModel
}

// PaymentIntent represents one attempt to move money for a cart payment
// against the gateway. The idempotency key is globally unique and acts as
// the concurrency and retry guard.
type PaymentIntent struct {
	ID            string `json:"id"`
	CartPaymentID string `json:"cart_payment_id"`
	// Unique key preventing duplicate gateway side effects across retries
	IdempotencyKey string `json:"idempotency_key"`
	// The amount currently targeted by this intent, in minor units
	Amount decimal.Decimal `json:"amount"`
	// The amount_initiated is the amount the intent was first created with
	AmountInitiated      decimal.Decimal    `json:"amount_initiated"`
	ApplicationFeeAmount decimal.Decimal    `json:"application_fee_amount"`
	CaptureMethod        types.CaptureMethod `json:"capture_method"`
	Country              string             `json:"country"`
	Currency             string             `json:"currency"`
	Status               types.IntentStatus `json:"status"`
	StatementDescriptor  string             `json:"statement_descriptor"`
	PaymentMethodID      string             `json:"payment_method_id"`
	// The capture_after deadline bounds how long a delayed capture may be held (optional)
	CaptureAfter *time.Time `json:"capture_after,omitempty"`
	CapturedAt   *time.Time `json:"captured_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	types.BaseModel
}

// PgpPaymentIntent is the gateway-side mirror of a payment intent. It is
// owned exclusively by its parent intent and never addressable by callers
// outside the engine.
type PgpPaymentIntent struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent_id"`
	IdempotencyKey  string `json:"idempotency_key"`
	// The resource_id is the gateway's identifier for this intent
	ResourceID              string  `json:"resource_id"`
	InvoiceResourceID       *string `json:"invoice_resource_id,omitempty"`
	ChargeResourceID        *string `json:"charge_resource_id,omitempty"`
	PaymentMethodResourceID string  `json:"payment_method_resource_id"`
	CustomerResourceID      *string `json:"customer_resource_id,omitempty"`
	Currency                string  `json:"currency"`
	Amount                  decimal.Decimal `json:"amount"`
	AmountCapturable        decimal.Decimal `json:"amount_capturable"`
	AmountReceived          decimal.Decimal `json:"amount_received"`
	ApplicationFeeAmount    decimal.Decimal `json:"application_fee_amount"`
	PayoutAccountID         *string         `json:"payout_account_id,omitempty"`
	CaptureMethod           types.CaptureMethod `json:"capture_method"`
	Status                  types.IntentStatus  `json:"status"`
	CapturedAt              *time.Time          `json:"captured_at,omitempty"`
	CancelledAt             *time.Time          `json:"cancelled_at,omitempty"`

	types.BaseModel
}

// PaymentIntentAdjustmentHistory is an immutable audit record of an amount
// change. Exactly one row is written per accepted adjustment and rows are
// never mutated or deleted.
type PaymentIntentAdjustmentHistory struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent_id"`
	// The idempotency_key of the adjusting request, unique per accepted change
	IdempotencyKey string          `json:"idempotency_key"`
	AmountOriginal decimal.Decimal `json:"amount_original"`
	AmountDelta    decimal.Decimal `json:"amount_delta"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`

	types.BaseModel
}

// Charge represents captured funds at the charge level
type Charge struct {
	ID              string             `json:"id"`
	PaymentIntentID string             `json:"payment_intent_id"`
	IdempotencyKey  string             `json:"idempotency_key"`
	Status          types.ChargeStatus `json:"status"`
	Currency        string             `json:"currency"`
	Amount          decimal.Decimal    `json:"amount"`
	// The amount_refunded is monotonically non-decreasing and never exceeds amount
	AmountRefunded       decimal.Decimal `json:"amount_refunded"`
	ApplicationFeeAmount decimal.Decimal `json:"application_fee_amount"`
	PayoutAccountID      *string         `json:"payout_account_id,omitempty"`
	CapturedAt           *time.Time      `json:"captured_at,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`

	types.BaseModel
}

// PgpPaymentCharge is the gateway-side mirror of a charge
type PgpPaymentCharge struct {
	ID               string             `json:"id"`
	ChargeID         string             `json:"charge_id"`
	ResourceID       string             `json:"resource_id"`
	IntentResourceID string             `json:"intent_resource_id"`
	Status           types.ChargeStatus `json:"status"`
	Currency         string             `json:"currency"`
	Amount           decimal.Decimal    `json:"amount"`
	AmountRefunded   decimal.Decimal    `json:"amount_refunded"`

	types.BaseModel
}

// Refund represents a refund operation against a charge
type Refund struct {
	ID             string             `json:"id"`
	ChargeID       string             `json:"charge_id"`
	IdempotencyKey string             `json:"idempotency_key"`
	Status         types.RefundStatus `json:"status"`
	Amount         decimal.Decimal    `json:"amount"`
	Currency       string             `json:"currency"`
	Reason         types.RefundReason `json:"reason"`

	types.BaseModel
}

// PgpRefund is the gateway-side mirror of a refund
type PgpRefund struct {
	ID               string             `json:"id"`
	RefundID         string             `json:"refund_id"`
	IdempotencyKey   string             `json:"idempotency_key"`
	ResourceID       string             `json:"resource_id"`
	ChargeResourceID string             `json:"charge_resource_id"`
	Status           types.RefundStatus `json:"status"`
	Amount           decimal.Decimal    `json:"amount"`
	Currency         string             `json:"currency"`

	types.BaseModel
}

// Validate validates the cart payment
func (cp *CartPayment) Validate() error {
	if cp.Amount.IsZero() || cp.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if cp.PayerID == "" {
		return ierr.NewError("invalid payer id").
			WithHint("Payer id is required").
			Mark(ierr.ErrValidation)
	}
	if cp.PaymentMethodID == "" {
		return ierr.NewError("invalid payment method id").
			WithHint("Payment method id is required").
			Mark(ierr.ErrValidation)
	}
	if cp.SplitPayment != nil {
		if cp.SplitPayment.PayoutAccountID == "" {
			return ierr.NewError("invalid payout account id").
				WithHint("Split payment requires a payout account id").
				Mark(ierr.ErrValidation)
		}
		if cp.SplitPayment.ApplicationFeeAmount.IsNegative() {
			return ierr.NewError("invalid application fee amount").
				WithHint("Application fee amount must not be negative").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// IsCancelled reports whether the payment has been cancelled
func (cp *CartPayment) IsCancelled() bool {
	return cp.CancelledAt != nil || cp.DeletedAt != nil
}

// CaptureMethod derives the gateway capture method from the delay flag
func (cp *CartPayment) CaptureMethod() types.CaptureMethod {
	if cp.DelayCapture {
		return types.CaptureMethodManual
	}
	return types.CaptureMethodAutomatic
}

// Validate validates the payment intent
func (pi *PaymentIntent) Validate() error {
	if pi.CartPaymentID == "" {
		return ierr.NewError("invalid cart payment id").
			WithHint("Cart payment id is required").
			Mark(ierr.ErrValidation)
	}
	if pi.IdempotencyKey == "" {
		return ierr.NewError("invalid idempotency key").
			WithHint("Idempotency key is required").
			Mark(ierr.ErrValidation)
	}
	if pi.Amount.IsZero() || pi.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if err := pi.CaptureMethod.Validate(); err != nil {
		return ierr.NewError("invalid capture method").
			WithHint("Capture method is invalid").
			Mark(ierr.ErrValidation)
	}
	if pi.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TransitionTo moves the intent to the target status, rejecting any
// transition not present in the closed transition table.
func (pi *PaymentIntent) TransitionTo(target types.IntentStatus) error {
	if pi.Status == target {
		return nil
	}
	if !pi.Status.CanTransitionTo(target) {
		return ierr.NewError("illegal intent status transition").
			WithHintf("Cannot move intent from %s to %s", pi.Status, target).
			WithReportableDetails(map[string]any{
				"payment_intent_id": pi.ID,
				"from":              pi.Status,
				"to":                target,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	pi.Status = target
	return nil
}

// IsCaptured reports whether funds for this intent have been collected
func (pi *PaymentIntent) IsCaptured() bool {
	return pi.Status == types.IntentStatusCaptured || pi.Status == types.IntentStatusRefunded
}

// RefundableAmount is the captured, not-yet-refunded remainder of the charge
func (c *Charge) RefundableAmount() decimal.Decimal {
	return c.Amount.Sub(c.AmountRefunded)
}

// RecordRefund applies a refund amount to the charge bookkeeping. The amount
// must not exceed the refundable remainder and amount_refunded never decreases.
func (c *Charge) RecordRefund(amount decimal.Decimal) error {
	if amount.IsZero() || amount.IsNegative() {
		return ierr.NewError("invalid refund amount").
			WithHint("Refund amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if amount.GreaterThan(c.RefundableAmount()) {
		return ierr.NewError("refund exceeds refundable amount").
			WithHintf("Refund of %s exceeds refundable remainder %s", amount, c.RefundableAmount()).
			WithReportableDetails(map[string]any{
				"charge_id":       c.ID,
				"amount":          amount,
				"amount_refunded": c.AmountRefunded,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	c.AmountRefunded = c.AmountRefunded.Add(amount)
	if c.AmountRefunded.Equal(c.Amount) {
		c.Status = types.ChargeStatusRefunded
	} else {
		c.Status = types.ChargeStatusPartiallyRefunded
	}
	return nil
}

// TableName returns the table name for the cart payment
func (cp *CartPayment) TableName() string {
	return "cart_payments"
}

// TableName returns the table name for the payment intent
func (pi *PaymentIntent) TableName() string {
	return "payment_intents"
}

// TableName returns the table name for the adjustment history
func (h *PaymentIntentAdjustmentHistory) TableName() string {
	return "payment_intent_adjustment_history"
}
