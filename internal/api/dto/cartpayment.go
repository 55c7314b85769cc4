package dto

import (
	"context"
	"time"

	"github.com/cartpay/cartpay/internal/domain/cartpayment"
	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/shopspring/decimal"
)

// CorrelationIDs links a cart payment to the external entity it pays for
type CorrelationIDs struct {
	ReferenceID   string `json:"reference_id" binding:"required"`
	ReferenceType string `json:"reference_type" binding:"required"`
}

// SplitPaymentRequest carries flow-of-funds information for marketplace payments
type SplitPaymentRequest struct {
	PayoutAccountID      string          `json:"payout_account_id" binding:"required"`
	ApplicationFeeAmount decimal.Decimal `json:"application_fee_amount"`
}

// CreateCartPaymentRequest represents a request to create a cart payment
type CreateCartPaymentRequest struct {
	IdempotencyKey            string               `json:"idempotency_key" binding:"required"`
	PayerID                   string               `json:"payer_id" binding:"required"`
	Amount                    decimal.Decimal      `json:"amount" binding:"required"`
	Currency                  string               `json:"currency" binding:"required"`
	Country                   string               `json:"payment_country" binding:"required"`
	PaymentMethodID           string               `json:"payment_method_id" binding:"required"`
	CorrelationIDs            CorrelationIDs       `json:"correlation_ids" binding:"required"`
	DelayCapture              bool                 `json:"delay_capture"`
	ClientDescription         *string              `json:"client_description,omitempty"`
	PayerStatementDescription *string              `json:"payer_statement_description,omitempty"`
	SplitPayment              *SplitPaymentRequest `json:"split_payment,omitempty"`
	Metadata                  types.Metadata       `json:"metadata,omitempty"`
}

// Validate validates the create cart payment request
func (r *CreateCartPaymentRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return ierr.NewError("idempotency key is required").
			WithHint("Idempotency key is required").
			Mark(ierr.ErrValidation)
	}
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if r.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToCartPayment converts a create cart payment request to a cart payment
func (r *CreateCartPaymentRequest) ToCartPayment(ctx context.Context) *cartpayment.CartPayment {
	cp := &cartpayment.CartPayment{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CART_PAYMENT),
		PayerID:         r.PayerID,
		Amount:          r.Amount,
		PaymentMethodID: r.PaymentMethodID,
		CorrelationIDs: cartpayment.CorrelationIDs{
			ReferenceID:   r.CorrelationIDs.ReferenceID,
			ReferenceType: r.CorrelationIDs.ReferenceType,
		},
		DelayCapture:              r.DelayCapture,
		ClientDescription:         r.ClientDescription,
		PayerStatementDescription: r.PayerStatementDescription,
		Metadata:                  r.Metadata,
		BaseModel:                 types.GetDefaultBaseModel(ctx),
	}

	if r.SplitPayment != nil {
		cp.SplitPayment = &cartpayment.SplitPayment{
			PayoutAccountID:      r.SplitPayment.PayoutAccountID,
			ApplicationFeeAmount: r.SplitPayment.ApplicationFeeAmount,
		}
	}

	return cp
}

// UpdateCartPaymentRequest represents a request to adjust a cart payment's amount
type UpdateCartPaymentRequest struct {
	IdempotencyKey    string               `json:"idempotency_key" binding:"required"`
	Amount            decimal.Decimal      `json:"amount" binding:"required"`
	ClientDescription *string              `json:"client_description,omitempty"`
	SplitPayment      *SplitPaymentRequest `json:"split_payment,omitempty"`
	Metadata          types.Metadata       `json:"metadata,omitempty"`
}

// Validate validates the update cart payment request
func (r *UpdateCartPaymentRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return ierr.NewError("idempotency key is required").
			WithHint("Idempotency key is required").
			Mark(ierr.ErrValidation)
	}
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UpsertCartPaymentRequest creates or adjusts the cart payment correlated to
// an external entity. The correlation pair decides which path is taken.
type UpsertCartPaymentRequest struct {
	CreateCartPaymentRequest
}

// PaymentIntentResponse represents a payment intent in API responses
type PaymentIntentResponse struct {
	ID                  string             `json:"id"`
	CartPaymentID       string             `json:"cart_payment_id"`
	IdempotencyKey      string             `json:"idempotency_key"`
	Amount              decimal.Decimal    `json:"amount"`
	AmountInitiated     decimal.Decimal    `json:"amount_initiated"`
	CaptureMethod       types.CaptureMethod `json:"capture_method"`
	Country             string             `json:"country"`
	Currency            string             `json:"currency"`
	Status              types.IntentStatus `json:"status"`
	StatementDescriptor string             `json:"statement_descriptor"`
	CaptureAfter        *time.Time         `json:"capture_after,omitempty"`
	CapturedAt          *time.Time         `json:"captured_at,omitempty"`
	CancelledAt         *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// NewPaymentIntentResponse creates a payment intent response from an intent
func NewPaymentIntentResponse(pi *cartpayment.PaymentIntent) *PaymentIntentResponse {
	return &PaymentIntentResponse{
		ID:                  pi.ID,
		CartPaymentID:       pi.CartPaymentID,
		IdempotencyKey:      pi.IdempotencyKey,
		Amount:              pi.Amount,
		AmountInitiated:     pi.AmountInitiated,
		CaptureMethod:       pi.CaptureMethod,
		Country:             pi.Country,
		Currency:            pi.Currency,
		Status:              pi.Status,
		StatementDescriptor: pi.StatementDescriptor,
		CaptureAfter:        pi.CaptureAfter,
		CapturedAt:          pi.CapturedAt,
		CancelledAt:         pi.CancelledAt,
		CreatedAt:           pi.CreatedAt,
		UpdatedAt:           pi.UpdatedAt,
	}
}

// SplitPaymentResponse mirrors the split payment details in responses
type SplitPaymentResponse struct {
	PayoutAccountID      string          `json:"payout_account_id"`
	ApplicationFeeAmount decimal.Decimal `json:"application_fee_amount"`
}

// CartPaymentResponse represents a cart payment response
type CartPaymentResponse struct {
	ID                        string                 `json:"id"`
	PayerID                   string                 `json:"payer_id"`
	Amount                    decimal.Decimal        `json:"amount"`
	PaymentMethodID           string                 `json:"payment_method_id"`
	CorrelationIDs            CorrelationIDs         `json:"correlation_ids"`
	DelayCapture              bool                   `json:"delay_capture"`
	ClientDescription         *string                `json:"client_description,omitempty"`
	PayerStatementDescription *string                `json:"payer_statement_description,omitempty"`
	SplitPayment              *SplitPaymentResponse  `json:"split_payment,omitempty"`
	Metadata                  types.Metadata         `json:"metadata,omitempty"`
	CancelledAt               *time.Time             `json:"cancelled_at,omitempty"`
	DeletedAt                 *time.Time             `json:"deleted_at,omitempty"`
	LatestIntent              *PaymentIntentResponse `json:"latest_intent,omitempty"`
	TenantID                  string                 `json:"tenant_id"`
	CreatedAt                 time.Time              `json:"created_at"`
	UpdatedAt                 time.Time              `json:"updated_at"`
}

// NewCartPaymentResponse creates a cart payment response from a cart payment
func NewCartPaymentResponse(cp *cartpayment.CartPayment) *CartPaymentResponse {
	resp := &CartPaymentResponse{
		ID:              cp.ID,
		PayerID:         cp.PayerID,
		Amount:          cp.Amount,
		PaymentMethodID: cp.PaymentMethodID,
		CorrelationIDs: CorrelationIDs{
			ReferenceID:   cp.CorrelationIDs.ReferenceID,
			ReferenceType: cp.CorrelationIDs.ReferenceType,
		},
		DelayCapture:              cp.DelayCapture,
		ClientDescription:         cp.ClientDescription,
		PayerStatementDescription: cp.PayerStatementDescription,
		Metadata:                  cp.Metadata,
		CancelledAt:               cp.CancelledAt,
		DeletedAt:                 cp.DeletedAt,
		TenantID:                  cp.TenantID,
		CreatedAt:                 cp.CreatedAt,
		UpdatedAt:                 cp.UpdatedAt,
	}

	if cp.SplitPayment != nil {
		resp.SplitPayment = &SplitPaymentResponse{
			PayoutAccountID:      cp.SplitPayment.PayoutAccountID,
			ApplicationFeeAmount: cp.SplitPayment.ApplicationFeeAmount,
		}
	}

	return resp
}

// WithLatestIntent attaches the latest intent to the response
func (r *CartPaymentResponse) WithLatestIntent(pi *cartpayment.PaymentIntent) *CartPaymentResponse {
	if pi != nil {
		r.LatestIntent = NewPaymentIntentResponse(pi)
	}
	return r
}

// AdjustmentHistoryResponse represents one amount-change audit record
type AdjustmentHistoryResponse struct {
	ID              string          `json:"id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	AmountOriginal  decimal.Decimal `json:"amount_original"`
	AmountDelta     decimal.Decimal `json:"amount_delta"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewAdjustmentHistoryResponse creates an adjustment history response
func NewAdjustmentHistoryResponse(h *cartpayment.PaymentIntentAdjustmentHistory) *AdjustmentHistoryResponse {
	return &AdjustmentHistoryResponse{
		ID:              h.ID,
		PaymentIntentID: h.PaymentIntentID,
		IdempotencyKey:  h.IdempotencyKey,
		AmountOriginal:  h.AmountOriginal,
		AmountDelta:     h.AmountDelta,
		Amount:          h.Amount,
		Currency:        h.Currency,
		CreatedAt:       h.CreatedAt,
	}
}

// ListCartPaymentsResponse represents a paginated list of cart payments
type ListCartPaymentsResponse struct {
	Items      []*CartPaymentResponse   `json:"items"`
	Pagination types.PaginationResponse `json:"pagination"`
}
