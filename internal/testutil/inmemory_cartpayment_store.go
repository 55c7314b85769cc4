package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cartpay/cartpay/internal/domain/cartpayment"
	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/samber/lo"
)

// InMemoryCartPaymentStore implements cartpayment.Repository. It enforces the
// same uniqueness constraints the relational store does: one payment intent
// per idempotency key, one non-deleted cart payment per correlation pair, one
// adjustment history row per idempotency key. Violations surface as
// ErrAlreadyExists so the engine's winner re-read path is exercised in tests.
type InMemoryCartPaymentStore struct {
	mu sync.RWMutex

	cartPayments map[string]*cartpayment.CartPayment
	intents      map[string]*cartpayment.PaymentIntent
	pgpIntents   map[string]*cartpayment.PgpPaymentIntent
	adjustments  map[string]*cartpayment.PaymentIntentAdjustmentHistory
	charges      map[string]*cartpayment.Charge
	pgpCharges   map[string]*cartpayment.PgpPaymentCharge
	refunds      map[string]*cartpayment.Refund
	pgpRefunds   map[string]*cartpayment.PgpRefund

	// unique index: intent idempotency key -> intent ID
	intentsByKey map[string]string
	// unique index: adjustment idempotency key -> adjustment ID
	adjustmentsByKey map[string]string
	// unique index: refund idempotency key -> refund ID
	refundsByKey map[string]string
}

// NewInMemoryCartPaymentStore creates a new in-memory cart payment repository
func NewInMemoryCartPaymentStore() *InMemoryCartPaymentStore {
	s := &InMemoryCartPaymentStore{}
	s.reset()
	return s
}

func (s *InMemoryCartPaymentStore) reset() {
	s.cartPayments = make(map[string]*cartpayment.CartPayment)
	s.intents = make(map[string]*cartpayment.PaymentIntent)
	s.pgpIntents = make(map[string]*cartpayment.PgpPaymentIntent)
	s.adjustments = make(map[string]*cartpayment.PaymentIntentAdjustmentHistory)
	s.charges = make(map[string]*cartpayment.Charge)
	s.pgpCharges = make(map[string]*cartpayment.PgpPaymentCharge)
	s.refunds = make(map[string]*cartpayment.Refund)
	s.pgpRefunds = make(map[string]*cartpayment.PgpRefund)
	s.intentsByKey = make(map[string]string)
	s.adjustmentsByKey = make(map[string]string)
	s.refundsByKey = make(map[string]string)
}

// Clear resets all stored data
func (s *InMemoryCartPaymentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// CreateCartPaymentWithIntent stores a cart payment and its initial intent
// atomically. Either both rows land or neither does.
func (s *InMemoryCartPaymentStore) CreateCartPaymentWithIntent(ctx context.Context, cp *cartpayment.CartPayment, intent *cartpayment.PaymentIntent) error {
	if cp == nil || intent == nil {
		return ierr.NewError("cart payment and intent cannot be nil").
			WithHint("Cart payment and intent cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intentsByKey[intent.IdempotencyKey]; exists {
		return ierr.NewError("idempotency key already reserved").
			WithHint("A payment intent already exists for this idempotency key").
			WithReportableDetails(map[string]any{
				"idempotency_key": intent.IdempotencyKey,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	for _, existing := range s.cartPayments {
		if existing.DeletedAt == nil &&
			existing.CorrelationIDs.ReferenceID == cp.CorrelationIDs.ReferenceID &&
			existing.CorrelationIDs.ReferenceType == cp.CorrelationIDs.ReferenceType {
			return ierr.NewError("correlation ids already in use").
				WithHint("A cart payment already exists for this reference").
				WithReportableDetails(map[string]any{
					"reference_id":   cp.CorrelationIDs.ReferenceID,
					"reference_type": cp.CorrelationIDs.ReferenceType,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	s.cartPayments[cp.ID] = cp
	s.intents[intent.ID] = intent
	s.intentsByKey[intent.IdempotencyKey] = intent.ID
	return nil
}

// GetCartPayment retrieves a cart payment by ID
func (s *InMemoryCartPaymentStore) GetCartPayment(ctx context.Context, id string) (*cartpayment.CartPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, exists := s.cartPayments[id]
	if !exists {
		return nil, ierr.NewError("cart payment not found").
			WithHintf("Cart payment with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return cp, nil
}

// UpdateCartPayment updates an existing cart payment
func (s *InMemoryCartPaymentStore) UpdateCartPayment(ctx context.Context, cp *cartpayment.CartPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cartPayments[cp.ID]; !exists {
		return ierr.NewError("cart payment not found").
			WithHintf("Cart payment with ID %s was not found", cp.ID).
			Mark(ierr.ErrNotFound)
	}

	cp.UpdatedAt = time.Now().UTC()
	s.cartPayments[cp.ID] = cp
	return nil
}

// GetCartPaymentByCorrelation retrieves the non-deleted cart payment for a
// correlation pair
func (s *InMemoryCartPaymentStore) GetCartPaymentByCorrelation(ctx context.Context, referenceID, referenceType string) (*cartpayment.CartPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cp := range s.cartPayments {
		if cp.DeletedAt == nil &&
			cp.CorrelationIDs.ReferenceID == referenceID &&
			cp.CorrelationIDs.ReferenceType == referenceType {
			return cp, nil
		}
	}

	return nil, ierr.NewError("cart payment not found").
		WithHintf("No cart payment found for reference %s of type %s", referenceID, referenceType).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryCartPaymentStore) matchesFilter(cp *cartpayment.CartPayment, filter *types.CartPaymentFilter) bool {
	if filter == nil {
		return true
	}

	if len(filter.CartPaymentIDs) > 0 && !lo.Contains(filter.CartPaymentIDs, cp.ID) {
		return false
	}
	if filter.PayerID != nil && cp.PayerID != *filter.PayerID {
		return false
	}
	if filter.ReferenceID != nil && cp.CorrelationIDs.ReferenceID != *filter.ReferenceID {
		return false
	}
	if filter.ReferenceType != nil && cp.CorrelationIDs.ReferenceType != *filter.ReferenceType {
		return false
	}
	if filter.TimeRangeFilter != nil {
		if filter.StartTime != nil && cp.CreatedAt.Before(*filter.StartTime) {
			return false
		}
		if filter.EndTime != nil && cp.CreatedAt.After(*filter.EndTime) {
			return false
		}
	}

	return true
}

func sortCartPayments(items []*cartpayment.CartPayment, filter *types.CartPaymentFilter) {
	asc := filter.GetOrder() == types.OrderAsc
	sortBy := filter.GetSortBy()

	sort.Slice(items, func(i, j int) bool {
		var less bool
		switch sortBy {
		case types.CartPaymentSortKeyUpdatedAt:
			less = items[i].UpdatedAt.Before(items[j].UpdatedAt)
		case types.CartPaymentSortKeyAmount:
			less = items[i].Amount.LessThan(items[j].Amount)
		default:
			less = items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})
}

// ListCartPayments retrieves cart payments matching the filter
func (s *InMemoryCartPaymentStore) ListCartPayments(ctx context.Context, filter *types.CartPaymentFilter) ([]*cartpayment.CartPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*cartpayment.CartPayment
	for _, cp := range s.cartPayments {
		if s.matchesFilter(cp, filter) {
			result = append(result, cp)
		}
	}

	sortCartPayments(result, filter)

	if filter != nil && !filter.IsUnlimited() {
		start := filter.GetOffset()
		if start >= len(result) {
			return []*cartpayment.CartPayment{}, nil
		}
		end := start + filter.GetLimit()
		if end > len(result) {
			end = len(result)
		}
		return result[start:end], nil
	}

	return result, nil
}

// CountCartPayments returns the total number of cart payments matching the filter
func (s *InMemoryCartPaymentStore) CountCartPayments(ctx context.Context, filter *types.CartPaymentFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, cp := range s.cartPayments {
		if s.matchesFilter(cp, filter) {
			count++
		}
	}
	return count, nil
}

// CreateIntent stores a new payment intent, rejecting duplicate idempotency keys
func (s *InMemoryCartPaymentStore) CreateIntent(ctx context.Context, intent *cartpayment.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intentsByKey[intent.IdempotencyKey]; exists {
		return ierr.NewError("idempotency key already reserved").
			WithHint("A payment intent already exists for this idempotency key").
			WithReportableDetails(map[string]any{
				"idempotency_key": intent.IdempotencyKey,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	s.intents[intent.ID] = intent
	s.intentsByKey[intent.IdempotencyKey] = intent.ID
	return nil
}

// GetIntent retrieves a payment intent by ID
func (s *InMemoryCartPaymentStore) GetIntent(ctx context.Context, id string) (*cartpayment.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, exists := s.intents[id]
	if !exists {
		return nil, ierr.NewError("payment intent not found").
			WithHintf("Payment intent with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return intent, nil
}

// GetIntentByIdempotencyKey retrieves a payment intent by its idempotency key
func (s *InMemoryCartPaymentStore) GetIntentByIdempotencyKey(ctx context.Context, key string) (*cartpayment.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.intentsByKey[key]
	if !exists {
		return nil, ierr.NewError("payment intent not found").
			WithHint("No payment intent found for idempotency key").
			Mark(ierr.ErrNotFound)
	}
	return s.intents[id], nil
}

// ListIntentsByCartPayment retrieves all intents for a cart payment, oldest first
func (s *InMemoryCartPaymentStore) ListIntentsByCartPayment(ctx context.Context, cartPaymentID string) ([]*cartpayment.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*cartpayment.PaymentIntent
	for _, intent := range s.intents {
		if intent.CartPaymentID == cartPaymentID {
			result = append(result, intent)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// GetLatestIntent retrieves the most recently created intent for a cart payment
func (s *InMemoryCartPaymentStore) GetLatestIntent(ctx context.Context, cartPaymentID string) (*cartpayment.PaymentIntent, error) {
	intents, err := s.ListIntentsByCartPayment(ctx, cartPaymentID)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, ierr.NewError("payment intent not found").
			WithHintf("No payment intents found for cart payment %s", cartPaymentID).
			Mark(ierr.ErrNotFound)
	}
	return intents[len(intents)-1], nil
}

// UpdateIntent updates an existing payment intent
func (s *InMemoryCartPaymentStore) UpdateIntent(ctx context.Context, intent *cartpayment.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.ID]; !exists {
		return ierr.NewError("payment intent not found").
			WithHintf("Payment intent with ID %s was not found", intent.ID).
			Mark(ierr.ErrNotFound)
	}

	intent.UpdatedAt = time.Now().UTC()
	s.intents[intent.ID] = intent
	return nil
}

// CreatePgpIntent stores a new gateway-side intent mirror
func (s *InMemoryCartPaymentStore) CreatePgpIntent(ctx context.Context, pgpIntent *cartpayment.PgpPaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pgpIntents[pgpIntent.ID]; exists {
		return ierr.NewError("pgp payment intent already exists").
			WithHint("A gateway intent mirror already exists with this ID").
			Mark(ierr.ErrAlreadyExists)
	}

	s.pgpIntents[pgpIntent.ID] = pgpIntent
	return nil
}

// GetPgpIntentByIntent retrieves the gateway mirror for a payment intent
func (s *InMemoryCartPaymentStore) GetPgpIntentByIntent(ctx context.Context, paymentIntentID string) (*cartpayment.PgpPaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pgpIntent := range s.pgpIntents {
		if pgpIntent.PaymentIntentID == paymentIntentID {
			return pgpIntent, nil
		}
	}

	return nil, ierr.NewError("pgp payment intent not found").
		WithHintf("No gateway intent mirror found for payment intent %s", paymentIntentID).
		Mark(ierr.ErrNotFound)
}

// UpdatePgpIntent updates an existing gateway-side intent mirror
func (s *InMemoryCartPaymentStore) UpdatePgpIntent(ctx context.Context, pgpIntent *cartpayment.PgpPaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pgpIntents[pgpIntent.ID]; !exists {
		return ierr.NewError("pgp payment intent not found").
			WithHintf("Gateway intent mirror with ID %s was not found", pgpIntent.ID).
			Mark(ierr.ErrNotFound)
	}

	pgpIntent.UpdatedAt = time.Now().UTC()
	s.pgpIntents[pgpIntent.ID] = pgpIntent
	return nil
}

// CreateAdjustmentHistory appends an adjustment record, rejecting duplicate
// idempotency keys
func (s *InMemoryCartPaymentStore) CreateAdjustmentHistory(ctx context.Context, history *cartpayment.PaymentIntentAdjustmentHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.adjustmentsByKey[history.IdempotencyKey]; exists {
		return ierr.NewError("adjustment already recorded").
			WithHint("An adjustment already exists for this idempotency key").
			WithReportableDetails(map[string]any{
				"idempotency_key": history.IdempotencyKey,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	s.adjustments[history.ID] = history
	s.adjustmentsByKey[history.IdempotencyKey] = history.ID
	return nil
}

// GetAdjustmentHistoryByIdempotencyKey retrieves an adjustment record by key
func (s *InMemoryCartPaymentStore) GetAdjustmentHistoryByIdempotencyKey(ctx context.Context, key string) (*cartpayment.PaymentIntentAdjustmentHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.adjustmentsByKey[key]
	if !exists {
		return nil, ierr.NewError("adjustment not found").
			WithHint("No adjustment found for idempotency key").
			Mark(ierr.ErrNotFound)
	}
	return s.adjustments[id], nil
}

// ListAdjustmentHistory retrieves all adjustment records for an intent, oldest first
func (s *InMemoryCartPaymentStore) ListAdjustmentHistory(ctx context.Context, paymentIntentID string) ([]*cartpayment.PaymentIntentAdjustmentHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*cartpayment.PaymentIntentAdjustmentHistory
	for _, h := range s.adjustments {
		if h.PaymentIntentID == paymentIntentID {
			result = append(result, h)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CreateCharge stores a new charge
func (s *InMemoryCartPaymentStore) CreateCharge(ctx context.Context, charge *cartpayment.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.charges[charge.ID]; exists {
		return ierr.NewError("charge already exists").
			WithHint("A charge already exists with this ID").
			Mark(ierr.ErrAlreadyExists)
	}

	s.charges[charge.ID] = charge
	return nil
}

// UpdateCharge updates an existing charge
func (s *InMemoryCartPaymentStore) UpdateCharge(ctx context.Context, charge *cartpayment.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.charges[charge.ID]; !exists {
		return ierr.NewError("charge not found").
			WithHintf("Charge with ID %s was not found", charge.ID).
			Mark(ierr.ErrNotFound)
	}

	charge.UpdatedAt = time.Now().UTC()
	s.charges[charge.ID] = charge
	return nil
}

// ListChargesByIntent retrieves all charges for a payment intent, oldest first
func (s *InMemoryCartPaymentStore) ListChargesByIntent(ctx context.Context, paymentIntentID string) ([]*cartpayment.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*cartpayment.Charge
	for _, c := range s.charges {
		if c.PaymentIntentID == paymentIntentID {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CreatePgpCharge stores a new gateway-side charge mirror
func (s *InMemoryCartPaymentStore) CreatePgpCharge(ctx context.Context, pgpCharge *cartpayment.PgpPaymentCharge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pgpCharges[pgpCharge.ID]; exists {
		return ierr.NewError("pgp charge already exists").
			WithHint("A gateway charge mirror already exists with this ID").
			Mark(ierr.ErrAlreadyExists)
	}

	s.pgpCharges[pgpCharge.ID] = pgpCharge
	return nil
}

// CreateRefund stores a new refund, rejecting duplicate idempotency keys
func (s *InMemoryCartPaymentStore) CreateRefund(ctx context.Context, refund *cartpayment.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refundsByKey[refund.IdempotencyKey]; exists {
		return ierr.NewError("refund already recorded").
			WithHint("A refund already exists for this idempotency key").
			WithReportableDetails(map[string]any{
				"idempotency_key": refund.IdempotencyKey,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	s.refunds[refund.ID] = refund
	s.refundsByKey[refund.IdempotencyKey] = refund.ID
	return nil
}

// UpdateRefund updates an existing refund
func (s *InMemoryCartPaymentStore) UpdateRefund(ctx context.Context, refund *cartpayment.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refunds[refund.ID]; !exists {
		return ierr.NewError("refund not found").
			WithHintf("Refund with ID %s was not found", refund.ID).
			Mark(ierr.ErrNotFound)
	}

	refund.UpdatedAt = time.Now().UTC()
	s.refunds[refund.ID] = refund
	return nil
}

// GetRefundByIdempotencyKey retrieves a refund by its idempotency key
func (s *InMemoryCartPaymentStore) GetRefundByIdempotencyKey(ctx context.Context, key string) (*cartpayment.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.refundsByKey[key]
	if !exists {
		return nil, ierr.NewError("refund not found").
			WithHint("No refund found for idempotency key").
			Mark(ierr.ErrNotFound)
	}
	return s.refunds[id], nil
}

// ListRefundsByCharge retrieves all refunds for a charge, oldest first
func (s *InMemoryCartPaymentStore) ListRefundsByCharge(ctx context.Context, chargeID string) ([]*cartpayment.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*cartpayment.Refund
	for _, r := range s.refunds {
		if r.ChargeID == chargeID {
			result = append(result, r)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CreatePgpRefund stores a new gateway-side refund mirror
func (s *InMemoryCartPaymentStore) CreatePgpRefund(ctx context.Context, pgpRefund *cartpayment.PgpRefund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pgpRefunds[pgpRefund.ID]; exists {
		return ierr.NewError("pgp refund already exists").
			WithHint("A gateway refund mirror already exists with this ID").
			Mark(ierr.ErrAlreadyExists)
	}

	s.pgpRefunds[pgpRefund.ID] = pgpRefund
	return nil
}
