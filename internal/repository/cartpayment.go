package repository

import (
	"context"

	"github.com/cartpay/cartpay/internal/domain/cartpayment"
	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/logger"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
)

type cartPaymentRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewCartPaymentRepository creates the ledger store backed by Postgres. The
// store's unique indexes on idempotency keys and the correlation pair are the
// concurrency arbiter: losing writers observe ErrAlreadyExists and re-read.
func NewCartPaymentRepository(db *gorm.DB, log *logger.Logger) (cartpayment.Repository, error) {
	err := db.AutoMigrate(
		&cartPaymentRow{},
		&paymentIntentRow{},
		&pgpPaymentIntentRow{},
		&adjustmentHistoryRow{},
		&chargeRow{},
		&pgpChargeRow{},
		&refundRow{},
		&pgpRefundRow{},
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to migrate ledger schema").
			Mark(ierr.ErrDatabase)
	}

	return &cartPaymentRepository{db: db, log: log}, nil
}

func translateErr(err error, hint string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ierr.WithError(err).
			WithHint(hint).
			Mark(ierr.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ierr.WithError(err).
			WithHint(hint).
			Mark(ierr.ErrAlreadyExists)
	default:
		return ierr.WithError(err).
			WithHint("A database error occurred").
			Mark(ierr.ErrDatabase)
	}
}

func (r *cartPaymentRepository) CreateCartPaymentWithIntent(ctx context.Context, cp *cartpayment.CartPayment, intent *cartpayment.PaymentIntent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toCartPaymentRow(cp)).Error; err != nil {
			return err
		}
		return tx.Create(toPaymentIntentRow(intent)).Error
	})
	if err != nil {
		return translateErr(err, "A cart payment already exists for this idempotency key or reference")
	}
	return nil
}

func (r *cartPaymentRepository) GetCartPayment(ctx context.Context, id string) (*cartpayment.CartPayment, error) {
	var row cartPaymentRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "Cart payment was not found")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) UpdateCartPayment(ctx context.Context, cp *cartpayment.CartPayment) error {
	result := r.db.WithContext(ctx).
		Model(&cartPaymentRow{}).
		Where("id = ?", cp.ID).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(toCartPaymentRow(cp))
	if result.Error != nil {
		return translateErr(result.Error, "Failed to update cart payment")
	}
	if result.RowsAffected == 0 {
		return ierr.NewError("cart payment not found").
			WithHintf("Cart payment with ID %s was not found", cp.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *cartPaymentRepository) GetCartPaymentByCorrelation(ctx context.Context, referenceID, referenceType string) (*cartpayment.CartPayment, error) {
	var row cartPaymentRow
	err := r.db.WithContext(ctx).
		Where("reference_id = ? AND reference_type = ? AND deleted_at IS NULL", referenceID, referenceType).
		First(&row).Error
	if err != nil {
		return nil, translateErr(err, "No cart payment found for this reference")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) listQuery(ctx context.Context, filter *types.CartPaymentFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&cartPaymentRow{})
	if filter == nil {
		return q
	}

	if len(filter.CartPaymentIDs) > 0 {
		q = q.Where("id IN ?", filter.CartPaymentIDs)
	}
	if filter.PayerID != nil {
		q = q.Where("payer_id = ?", *filter.PayerID)
	}
	if filter.ReferenceID != nil {
		q = q.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.ReferenceType != nil {
		q = q.Where("reference_type = ?", *filter.ReferenceType)
	}
	if filter.TimeRangeFilter != nil {
		if filter.StartTime != nil {
			q = q.Where("created_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			q = q.Where("created_at <= ?", *filter.EndTime)
		}
	}
	return q
}

func (r *cartPaymentRepository) ListCartPayments(ctx context.Context, filter *types.CartPaymentFilter) ([]*cartpayment.CartPayment, error) {
	q := r.listQuery(ctx, filter)

	if filter != nil {
		q = q.Order(string(filter.GetSortBy()) + " " + filter.GetOrder())
		if !filter.IsUnlimited() {
			q = q.Limit(filter.GetLimit()).Offset(filter.GetOffset())
		}
	}

	var rows []*cartPaymentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, translateErr(err, "Failed to list cart payments")
	}

	result := make([]*cartpayment.CartPayment, len(rows))
	for i, row := range rows {
		result[i] = row.toDomain()
	}
	return result, nil
}

func (r *cartPaymentRepository) CountCartPayments(ctx context.Context, filter *types.CartPaymentFilter) (int, error) {
	var count int64
	if err := r.listQuery(ctx, filter).Count(&count).Error; err != nil {
		return 0, translateErr(err, "Failed to count cart payments")
	}
	return int(count), nil
}

func (r *cartPaymentRepository) CreateIntent(ctx context.Context, intent *cartpayment.PaymentIntent) error {
	if err := r.db.WithContext(ctx).Create(toPaymentIntentRow(intent)).Error; err != nil {
		return translateErr(err, "A payment intent already exists for this idempotency key")
	}
	return nil
}

func (r *cartPaymentRepository) GetIntent(ctx context.Context, id string) (*cartpayment.PaymentIntent, error) {
	var row paymentIntentRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "Payment intent was not found")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) GetIntentByIdempotencyKey(ctx context.Context, key string) (*cartpayment.PaymentIntent, error) {
	var row paymentIntentRow
	if err := r.db.WithContext(ctx).First(&row, "idempotency_key = ?", key).Error; err != nil {
		return nil, translateErr(err, "No payment intent found for idempotency key")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) ListIntentsByCartPayment(ctx context.Context, cartPaymentID string) ([]*cartpayment.PaymentIntent, error) {
	var rows []*paymentIntentRow
	err := r.db.WithContext(ctx).
		Where("cart_payment_id = ?", cartPaymentID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, translateErr(err, "Failed to list payment intents")
	}

	result := make([]*cartpayment.PaymentIntent, len(rows))
	for i, row := range rows {
		result[i] = row.toDomain()
	}
	return result, nil
}

func (r *cartPaymentRepository) GetLatestIntent(ctx context.Context, cartPaymentID string) (*cartpayment.PaymentIntent, error) {
	var row paymentIntentRow
	err := r.db.WithContext(ctx).
		Where("cart_payment_id = ?", cartPaymentID).
		Order("created_at desc").
		First(&row).Error
	if err != nil {
		return nil, translateErr(err, "No payment intent found for cart payment")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) UpdateIntent(ctx context.Context, intent *cartpayment.PaymentIntent) error {
	result := r.db.WithContext(ctx).
		Model(&paymentIntentRow{}).
		Where("id = ?", intent.ID).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(toPaymentIntentRow(intent))
	if result.Error != nil {
		return translateErr(result.Error, "Failed to update payment intent")
	}
	if result.RowsAffected == 0 {
		return ierr.NewError("payment intent not found").
			WithHintf("Payment intent with ID %s was not found", intent.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *cartPaymentRepository) CreatePgpIntent(ctx context.Context, pgpIntent *cartpayment.PgpPaymentIntent) error {
	if err := r.db.WithContext(ctx).Create(toPgpPaymentIntentRow(pgpIntent)).Error; err != nil {
		return translateErr(err, "A gateway intent mirror already exists")
	}
	return nil
}

func (r *cartPaymentRepository) GetPgpIntentByIntent(ctx context.Context, paymentIntentID string) (*cartpayment.PgpPaymentIntent, error) {
	var row pgpPaymentIntentRow
	if err := r.db.WithContext(ctx).First(&row, "payment_intent_id = ?", paymentIntentID).Error; err != nil {
		return nil, translateErr(err, "No gateway intent mirror found for payment intent")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) UpdatePgpIntent(ctx context.Context, pgpIntent *cartpayment.PgpPaymentIntent) error {
	result := r.db.WithContext(ctx).
		Model(&pgpPaymentIntentRow{}).
		Where("id = ?", pgpIntent.ID).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(toPgpPaymentIntentRow(pgpIntent))
	if result.Error != nil {
		return translateErr(result.Error, "Failed to update gateway intent mirror")
	}
	if result.RowsAffected == 0 {
		return ierr.NewError("pgp payment intent not found").
			WithHintf("Gateway intent mirror with ID %s was not found", pgpIntent.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *cartPaymentRepository) CreateAdjustmentHistory(ctx context.Context, history *cartpayment.PaymentIntentAdjustmentHistory) error {
	if err := r.db.WithContext(ctx).Create(toAdjustmentHistoryRow(history)).Error; err != nil {
		return translateErr(err, "An adjustment already exists for this idempotency key")
	}
	return nil
}

func (r *cartPaymentRepository) GetAdjustmentHistoryByIdempotencyKey(ctx context.Context, key string) (*cartpayment.PaymentIntentAdjustmentHistory, error) {
	var row adjustmentHistoryRow
	if err := r.db.WithContext(ctx).First(&row, "idempotency_key = ?", key).Error; err != nil {
		return nil, translateErr(err, "No adjustment found for idempotency key")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) ListAdjustmentHistory(ctx context.Context, paymentIntentID string) ([]*cartpayment.PaymentIntentAdjustmentHistory, error) {
	var rows []*adjustmentHistoryRow
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, translateErr(err, "Failed to list adjustment history")
	}

	result := make([]*cartpayment.PaymentIntentAdjustmentHistory, len(rows))
	for i, row := range rows {
		result[i] = row.toDomain()
	}
	return result, nil
}

func (r *cartPaymentRepository) CreateCharge(ctx context.Context, charge *cartpayment.Charge) error {
	if err := r.db.WithContext(ctx).Create(toChargeRow(charge)).Error; err != nil {
		return translateErr(err, "A charge already exists")
	}
	return nil
}

func (r *cartPaymentRepository) UpdateCharge(ctx context.Context, charge *cartpayment.Charge) error {
	result := r.db.WithContext(ctx).
		Model(&chargeRow{}).
		Where("id = ?", charge.ID).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(toChargeRow(charge))
	if result.Error != nil {
		return translateErr(result.Error, "Failed to update charge")
	}
	if result.RowsAffected == 0 {
		return ierr.NewError("charge not found").
			WithHintf("Charge with ID %s was not found", charge.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *cartPaymentRepository) ListChargesByIntent(ctx context.Context, paymentIntentID string) ([]*cartpayment.Charge, error) {
	var rows []*chargeRow
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, translateErr(err, "Failed to list charges")
	}

	result := make([]*cartpayment.Charge, len(rows))
	for i, row := range rows {
		result[i] = row.toDomain()
	}
	return result, nil
}

func (r *cartPaymentRepository) CreatePgpCharge(ctx context.Context, pgpCharge *cartpayment.PgpPaymentCharge) error {
	if err := r.db.WithContext(ctx).Create(toPgpChargeRow(pgpCharge)).Error; err != nil {
		return translateErr(err, "A gateway charge mirror already exists")
	}
	return nil
}

func (r *cartPaymentRepository) CreateRefund(ctx context.Context, refund *cartpayment.Refund) error {
	if err := r.db.WithContext(ctx).Create(toRefundRow(refund)).Error; err != nil {
		return translateErr(err, "A refund already exists for this idempotency key")
	}
	return nil
}

func (r *cartPaymentRepository) UpdateRefund(ctx context.Context, refund *cartpayment.Refund) error {
	result := r.db.WithContext(ctx).
		Model(&refundRow{}).
		Where("id = ?", refund.ID).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(toRefundRow(refund))
	if result.Error != nil {
		return translateErr(result.Error, "Failed to update refund")
	}
	if result.RowsAffected == 0 {
		return ierr.NewError("refund not found").
			WithHintf("Refund with ID %s was not found", refund.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *cartPaymentRepository) GetRefundByIdempotencyKey(ctx context.Context, key string) (*cartpayment.Refund, error) {
	var row refundRow
	if err := r.db.WithContext(ctx).First(&row, "idempotency_key = ?", key).Error; err != nil {
		return nil, translateErr(err, "No refund found for idempotency key")
	}
	return row.toDomain(), nil
}

func (r *cartPaymentRepository) ListRefundsByCharge(ctx context.Context, chargeID string) ([]*cartpayment.Refund, error) {
	var rows []*refundRow
	err := r.db.WithContext(ctx).
		Where("charge_id = ?", chargeID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, translateErr(err, "Failed to list refunds")
	}

	result := make([]*cartpayment.Refund, len(rows))
	for i, row := range rows {
		result[i] = row.toDomain()
	}
	return result, nil
}

func (r *cartPaymentRepository) CreatePgpRefund(ctx context.Context, pgpRefund *cartpayment.PgpRefund) error {
	if err := r.db.WithContext(ctx).Create(toPgpRefundRow(pgpRefund)).Error; err != nil {
		return translateErr(err, "A gateway refund mirror already exists")
	}
	return nil
}
