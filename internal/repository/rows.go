package repository

import (
	"time"

	"github.com/cartpay/cartpay/internal/domain/cartpayment"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/shopspring/decimal"
)

// Row types flatten the domain aggregates into relational shape. Uniqueness
// constraints declared here are the concurrency arbiter the engine relies on.

type auditColumns struct {
	TenantID  string       `gorm:"index"`
	Status    types.Status `gorm:"type:varchar(20)"`
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
}

func newAuditColumns(b types.BaseModel) auditColumns {
	return auditColumns{
		TenantID:  b.TenantID,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		CreatedBy: b.CreatedBy,
		UpdatedBy: b.UpdatedBy,
	}
}

func (a auditColumns) baseModel() types.BaseModel {
	return types.BaseModel{
		TenantID:  a.TenantID,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		CreatedBy: a.CreatedBy,
		UpdatedBy: a.UpdatedBy,
	}
}

type cartPaymentRow struct {
	ID                        string `gorm:"primaryKey"`
	PayerID                   string `gorm:"index"`
	Amount                    decimal.Decimal `gorm:"type:numeric"`
	PaymentMethodID           string
	ReferenceID               string `gorm:"uniqueIndex:idx_cart_payments_correlation,where:deleted_at IS NULL"`
	ReferenceType             string `gorm:"uniqueIndex:idx_cart_payments_correlation,where:deleted_at IS NULL"`
	DelayCapture              bool
	ClientDescription         *string
	PayerStatementDescription *string
	PayoutAccountID           *string
	ApplicationFeeAmount      decimal.Decimal `gorm:"type:numeric"`
	Metadata                  types.Metadata  `gorm:"type:jsonb"`
	CancelledAt               *time.Time
	DeletedAt                 *time.Time `gorm:"index"`
	auditColumns              `gorm:"embedded"`
}

func (cartPaymentRow) TableName() string { return "cart_payments" }

func toCartPaymentRow(cp *cartpayment.CartPayment) *cartPaymentRow {
	row := &cartPaymentRow{
		ID:                        cp.ID,
		PayerID:                   cp.PayerID,
		Amount:                    cp.Amount,
		PaymentMethodID:           cp.PaymentMethodID,
		ReferenceID:               cp.CorrelationIDs.ReferenceID,
		ReferenceType:             cp.CorrelationIDs.ReferenceType,
		DelayCapture:              cp.DelayCapture,
		ClientDescription:         cp.ClientDescription,
		PayerStatementDescription: cp.PayerStatementDescription,
		Metadata:                  cp.Metadata,
		CancelledAt:               cp.CancelledAt,
		DeletedAt:                 cp.DeletedAt,
		auditColumns:              newAuditColumns(cp.BaseModel),
	}
	if cp.SplitPayment != nil {
		payoutAccountID := cp.SplitPayment.PayoutAccountID
		row.PayoutAccountID = &payoutAccountID
		row.ApplicationFeeAmount = cp.SplitPayment.ApplicationFeeAmount
	}
	return row
}

func (r *cartPaymentRow) toDomain() *cartpayment.CartPayment {
	cp := &cartpayment.CartPayment{
		ID:              r.ID,
		PayerID:         r.PayerID,
		Amount:          r.Amount,
		PaymentMethodID: r.PaymentMethodID,
		CorrelationIDs: cartpayment.CorrelationIDs{
			ReferenceID:   r.ReferenceID,
			ReferenceType: r.ReferenceType,
		},
		DelayCapture:              r.DelayCapture,
		ClientDescription:         r.ClientDescription,
		PayerStatementDescription: r.PayerStatementDescription,
		Metadata:                  r.Metadata,
		CancelledAt:               r.CancelledAt,
		DeletedAt:                 r.DeletedAt,
		BaseModel:                 r.baseModel(),
	}
	if r.PayoutAccountID != nil {
		cp.SplitPayment = &cartpayment.SplitPayment{
			PayoutAccountID:      *r.PayoutAccountID,
			ApplicationFeeAmount: r.ApplicationFeeAmount,
		}
	}
	return cp
}

type paymentIntentRow struct {
	ID                   string `gorm:"primaryKey"`
	CartPaymentID        string `gorm:"index"`
	IdempotencyKey       string `gorm:"uniqueIndex"`
	Amount               decimal.Decimal `gorm:"type:numeric"`
	AmountInitiated      decimal.Decimal `gorm:"type:numeric"`
	ApplicationFeeAmount decimal.Decimal `gorm:"type:numeric"`
	CaptureMethod        types.CaptureMethod `gorm:"type:varchar(20)"`
	Country              string
	Currency             string
	IntentStatus         types.IntentStatus `gorm:"type:varchar(30)"`
	StatementDescriptor  string
	PaymentMethodID      string
	CaptureAfter         *time.Time
	CapturedAt           *time.Time
	CancelledAt          *time.Time
	auditColumns         `gorm:"embedded"`
}

func (paymentIntentRow) TableName() string { return "payment_intents" }

func toPaymentIntentRow(pi *cartpayment.PaymentIntent) *paymentIntentRow {
	return &paymentIntentRow{
		ID:                   pi.ID,
		CartPaymentID:        pi.CartPaymentID,
		IdempotencyKey:       pi.IdempotencyKey,
		Amount:               pi.Amount,
		AmountInitiated:      pi.AmountInitiated,
		ApplicationFeeAmount: pi.ApplicationFeeAmount,
		CaptureMethod:        pi.CaptureMethod,
		Country:              pi.Country,
		Currency:             pi.Currency,
		IntentStatus:         pi.Status,
		StatementDescriptor:  pi.StatementDescriptor,
		PaymentMethodID:      pi.PaymentMethodID,
		CaptureAfter:         pi.CaptureAfter,
		CapturedAt:           pi.CapturedAt,
		CancelledAt:          pi.CancelledAt,
		auditColumns:         newAuditColumns(pi.BaseModel),
	}
}

func (r *paymentIntentRow) toDomain() *cartpayment.PaymentIntent {
	return &cartpayment.PaymentIntent{
		ID:                   r.ID,
		CartPaymentID:        r.CartPaymentID,
		IdempotencyKey:       r.IdempotencyKey,
		Amount:               r.Amount,
		AmountInitiated:      r.AmountInitiated,
		ApplicationFeeAmount: r.ApplicationFeeAmount,
		CaptureMethod:        r.CaptureMethod,
		Country:              r.Country,
		Currency:             r.Currency,
		Status:               r.IntentStatus,
		StatementDescriptor:  r.StatementDescriptor,
		PaymentMethodID:      r.PaymentMethodID,
		CaptureAfter:         r.CaptureAfter,
		CapturedAt:           r.CapturedAt,
		CancelledAt:          r.CancelledAt,
		BaseModel:            r.baseModel(),
	}
}

type pgpPaymentIntentRow struct {
	ID                      string `gorm:"primaryKey"`
	PaymentIntentID         string `gorm:"index"`
	IdempotencyKey          string
	ResourceID              string `gorm:"index"`
	InvoiceResourceID       *string
	ChargeResourceID        *string
	PaymentMethodResourceID string
	CustomerResourceID      *string
	Currency                string
	Amount                  decimal.Decimal `gorm:"type:numeric"`
	AmountCapturable        decimal.Decimal `gorm:"type:numeric"`
	AmountReceived          decimal.Decimal `gorm:"type:numeric"`
	ApplicationFeeAmount    decimal.Decimal `gorm:"type:numeric"`
	PayoutAccountID         *string
	CaptureMethod           types.CaptureMethod `gorm:"type:varchar(20)"`
	IntentStatus            types.IntentStatus  `gorm:"type:varchar(30)"`
	CapturedAt              *time.Time
	CancelledAt             *time.Time
	auditColumns            `gorm:"embedded"`
}

func (pgpPaymentIntentRow) TableName() string { return "pgp_payment_intents" }

func toPgpPaymentIntentRow(pgp *cartpayment.PgpPaymentIntent) *pgpPaymentIntentRow {
	return &pgpPaymentIntentRow{
		ID:                      pgp.ID,
		PaymentIntentID:         pgp.PaymentIntentID,
		IdempotencyKey:          pgp.IdempotencyKey,
		ResourceID:              pgp.ResourceID,
		InvoiceResourceID:       pgp.InvoiceResourceID,
		ChargeResourceID:        pgp.ChargeResourceID,
		PaymentMethodResourceID: pgp.PaymentMethodResourceID,
		CustomerResourceID:      pgp.CustomerResourceID,
		Currency:                pgp.Currency,
		Amount:                  pgp.Amount,
		AmountCapturable:        pgp.AmountCapturable,
		AmountReceived:          pgp.AmountReceived,
		ApplicationFeeAmount:    pgp.ApplicationFeeAmount,
		PayoutAccountID:         pgp.PayoutAccountID,
		CaptureMethod:           pgp.CaptureMethod,
		IntentStatus:            pgp.Status,
		CapturedAt:              pgp.CapturedAt,
		CancelledAt:             pgp.CancelledAt,
		auditColumns:            newAuditColumns(pgp.BaseModel),
	}
}

func (r *pgpPaymentIntentRow) toDomain() *cartpayment.PgpPaymentIntent {
	return &cartpayment.PgpPaymentIntent{
		ID:                      r.ID,
		PaymentIntentID:         r.PaymentIntentID,
		IdempotencyKey:          r.IdempotencyKey,
		ResourceID:              r.ResourceID,
		InvoiceResourceID:       r.InvoiceResourceID,
		ChargeResourceID:        r.ChargeResourceID,
		PaymentMethodResourceID: r.PaymentMethodResourceID,
		CustomerResourceID:      r.CustomerResourceID,
		Currency:                r.Currency,
		Amount:                  r.Amount,
		AmountCapturable:        r.AmountCapturable,
		AmountReceived:          r.AmountReceived,
		ApplicationFeeAmount:    r.ApplicationFeeAmount,
		PayoutAccountID:         r.PayoutAccountID,
		CaptureMethod:           r.CaptureMethod,
		Status:                  r.IntentStatus,
		CapturedAt:              r.CapturedAt,
		CancelledAt:             r.CancelledAt,
		BaseModel:               r.baseModel(),
	}
}

type adjustmentHistoryRow struct {
	ID              string `gorm:"primaryKey"`
	PaymentIntentID string `gorm:"index"`
	IdempotencyKey  string `gorm:"uniqueIndex"`
	AmountOriginal  decimal.Decimal `gorm:"type:numeric"`
	AmountDelta     decimal.Decimal `gorm:"type:numeric"`
	Amount          decimal.Decimal `gorm:"type:numeric"`
	Currency        string
	auditColumns    `gorm:"embedded"`
}

func (adjustmentHistoryRow) TableName() string { return "payment_intent_adjustment_history" }

func toAdjustmentHistoryRow(h *cartpayment.PaymentIntentAdjustmentHistory) *adjustmentHistoryRow {
	return &adjustmentHistoryRow{
		ID:              h.ID,
		PaymentIntentID: h.PaymentIntentID,
		IdempotencyKey:  h.IdempotencyKey,
		AmountOriginal:  h.AmountOriginal,
		AmountDelta:     h.AmountDelta,
		Amount:          h.Amount,
		Currency:        h.Currency,
		auditColumns:    newAuditColumns(h.BaseModel),
	}
}

func (r *adjustmentHistoryRow) toDomain() *cartpayment.PaymentIntentAdjustmentHistory {
	return &cartpayment.PaymentIntentAdjustmentHistory{
		ID:              r.ID,
		PaymentIntentID: r.PaymentIntentID,
		IdempotencyKey:  r.IdempotencyKey,
		AmountOriginal:  r.AmountOriginal,
		AmountDelta:     r.AmountDelta,
		Amount:          r.Amount,
		Currency:        r.Currency,
		BaseModel:       r.baseModel(),
	}
}

type chargeRow struct {
	ID                   string `gorm:"primaryKey"`
	PaymentIntentID      string `gorm:"index"`
	IdempotencyKey       string
	ChargeStatus         types.ChargeStatus `gorm:"type:varchar(30)"`
	Currency             string
	Amount               decimal.Decimal `gorm:"type:numeric"`
	AmountRefunded       decimal.Decimal `gorm:"type:numeric"`
	ApplicationFeeAmount decimal.Decimal `gorm:"type:numeric"`
	PayoutAccountID      *string
	CapturedAt           *time.Time
	CancelledAt          *time.Time
	auditColumns         `gorm:"embedded"`
}

func (chargeRow) TableName() string { return "payment_charges" }

func toChargeRow(c *cartpayment.Charge) *chargeRow {
	return &chargeRow{
		ID:                   c.ID,
		PaymentIntentID:      c.PaymentIntentID,
		IdempotencyKey:       c.IdempotencyKey,
		ChargeStatus:         c.Status,
		Currency:             c.Currency,
		Amount:               c.Amount,
		AmountRefunded:       c.AmountRefunded,
		ApplicationFeeAmount: c.ApplicationFeeAmount,
		PayoutAccountID:      c.PayoutAccountID,
		CapturedAt:           c.CapturedAt,
		CancelledAt:          c.CancelledAt,
		auditColumns:         newAuditColumns(c.BaseModel),
	}
}

func (r *chargeRow) toDomain() *cartpayment.Charge {
	return &cartpayment.Charge{
		ID:                   r.ID,
		PaymentIntentID:      r.PaymentIntentID,
		IdempotencyKey:       r.IdempotencyKey,
		Status:               r.ChargeStatus,
		Currency:             r.Currency,
		Amount:               r.Amount,
		AmountRefunded:       r.AmountRefunded,
		ApplicationFeeAmount: r.ApplicationFeeAmount,
		PayoutAccountID:      r.PayoutAccountID,
		CapturedAt:           r.CapturedAt,
		CancelledAt:          r.CancelledAt,
		BaseModel:            r.baseModel(),
	}
}

type pgpChargeRow struct {
	ID               string `gorm:"primaryKey"`
	ChargeID         string `gorm:"index"`
	ResourceID       string `gorm:"index"`
	IntentResourceID string
	ChargeStatus     types.ChargeStatus `gorm:"type:varchar(30)"`
	Currency         string
	Amount           decimal.Decimal `gorm:"type:numeric"`
	AmountRefunded   decimal.Decimal `gorm:"type:numeric"`
	auditColumns     `gorm:"embedded"`
}

func (pgpChargeRow) TableName() string { return "pgp_payment_charges" }

func toPgpChargeRow(c *cartpayment.PgpPaymentCharge) *pgpChargeRow {
	return &pgpChargeRow{
		ID:               c.ID,
		ChargeID:         c.ChargeID,
		ResourceID:       c.ResourceID,
		IntentResourceID: c.IntentResourceID,
		ChargeStatus:     c.Status,
		Currency:         c.Currency,
		Amount:           c.Amount,
		AmountRefunded:   c.AmountRefunded,
		auditColumns:     newAuditColumns(c.BaseModel),
	}
}

type refundRow struct {
	ID             string `gorm:"primaryKey"`
	ChargeID       string `gorm:"index"`
	IdempotencyKey string `gorm:"uniqueIndex"`
	RefundStatus   types.RefundStatus `gorm:"type:varchar(20)"`
	Amount         decimal.Decimal    `gorm:"type:numeric"`
	Currency       string
	Reason         types.RefundReason `gorm:"type:varchar(30)"`
	auditColumns   `gorm:"embedded"`
}

func (refundRow) TableName() string { return "refunds" }

func toRefundRow(r *cartpayment.Refund) *refundRow {
	return &refundRow{
		ID:             r.ID,
		ChargeID:       r.ChargeID,
		IdempotencyKey: r.IdempotencyKey,
		RefundStatus:   r.Status,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Reason:         r.Reason,
		auditColumns:   newAuditColumns(r.BaseModel),
	}
}

func (r *refundRow) toDomain() *cartpayment.Refund {
	return &cartpayment.Refund{
		ID:             r.ID,
		ChargeID:       r.ChargeID,
		IdempotencyKey: r.IdempotencyKey,
		Status:         r.RefundStatus,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Reason:         r.Reason,
		BaseModel:      r.baseModel(),
	}
}

type pgpRefundRow struct {
	ID               string `gorm:"primaryKey"`
	RefundID         string `gorm:"index"`
	IdempotencyKey   string
	ResourceID       string
	ChargeResourceID string
	RefundStatus     types.RefundStatus `gorm:"type:varchar(20)"`
	Amount           decimal.Decimal    `gorm:"type:numeric"`
	Currency         string
	auditColumns     `gorm:"embedded"`
}

func (pgpRefundRow) TableName() string { return "pgp_refunds" }

func toPgpRefundRow(r *cartpayment.PgpRefund) *pgpRefundRow {
	return &pgpRefundRow{
		ID:               r.ID,
		RefundID:         r.RefundID,
		IdempotencyKey:   r.IdempotencyKey,
		ResourceID:       r.ResourceID,
		ChargeResourceID: r.ChargeResourceID,
		RefundStatus:     r.Status,
		Amount:           r.Amount,
		Currency:         r.Currency,
		auditColumns:     newAuditColumns(r.BaseModel),
	}
}
