package types

import (
	"fmt"

	"github.com/samber/lo"
)

// IntentStatus represents the state of a payment intent. Transitions only move
// forward; see IntentStatusTransitions for the allowed edges.
type IntentStatus string

const (
	IntentStatusInit            IntentStatus = "init"
	IntentStatusRequiresCapture IntentStatus = "requires_capture"
	IntentStatusCaptured        IntentStatus = "captured"
	IntentStatusCancelled       IntentStatus = "cancelled"
	IntentStatusFailed          IntentStatus = "failed"
	IntentStatusRefunded        IntentStatus = "refunded"
)

func (s IntentStatus) String() string {
	return string(s)
}

func (s IntentStatus) Validate() error {
	allowed := []IntentStatus{
		IntentStatusInit,
		IntentStatusRequiresCapture,
		IntentStatusCaptured,
		IntentStatusCancelled,
		IntentStatusFailed,
		IntentStatusRefunded,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid intent status: %s", s)
	}
	return nil
}

// IntentStatusTransitions is the closed set of legal state transitions.
// Any transition not listed here must be rejected. In particular nothing
// ever reverts captured back to requires_capture.
var IntentStatusTransitions = map[IntentStatus][]IntentStatus{
	IntentStatusInit:            {IntentStatusRequiresCapture, IntentStatusCaptured, IntentStatusCancelled, IntentStatusFailed},
	IntentStatusRequiresCapture: {IntentStatusCaptured, IntentStatusCancelled},
	IntentStatusCaptured:        {IntentStatusRefunded},
	IntentStatusCancelled:       {},
	IntentStatusFailed:          {},
	IntentStatusRefunded:        {},
}

// CanTransitionTo reports whether the transition s -> target is legal
func (s IntentStatus) CanTransitionTo(target IntentStatus) bool {
	return lo.Contains(IntentStatusTransitions[s], target)
}

// IsTerminal reports whether no further transitions are allowed from s
func (s IntentStatus) IsTerminal() bool {
	return len(IntentStatusTransitions[s]) == 0
}

// ChargeStatus represents the state of captured funds at the charge level
type ChargeStatus string

const (
	ChargeStatusRequiresCapture   ChargeStatus = "requires_capture"
	ChargeStatusSucceeded         ChargeStatus = "succeeded"
	ChargeStatusFailed            ChargeStatus = "failed"
	ChargeStatusCancelled         ChargeStatus = "cancelled"
	ChargeStatusPartiallyRefunded ChargeStatus = "partially_refunded"
	ChargeStatusRefunded          ChargeStatus = "refunded"
)

func (s ChargeStatus) String() string {
	return string(s)
}

func (s ChargeStatus) Validate() error {
	allowed := []ChargeStatus{
		ChargeStatusRequiresCapture,
		ChargeStatusSucceeded,
		ChargeStatusFailed,
		ChargeStatusCancelled,
		ChargeStatusPartiallyRefunded,
		ChargeStatusRefunded,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid charge status: %s", s)
	}
	return nil
}

// RefundStatus represents the state of a refund operation
type RefundStatus string

const (
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSucceeded  RefundStatus = "succeeded"
	RefundStatusFailed     RefundStatus = "failed"
)

func (s RefundStatus) String() string {
	return string(s)
}

func (s RefundStatus) Validate() error {
	allowed := []RefundStatus{
		RefundStatusProcessing,
		RefundStatusSucceeded,
		RefundStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid refund status: %s", s)
	}
	return nil
}

// RefundReason is the reason attached to a gateway refund
type RefundReason string

const (
	RefundReasonRequestedByCustomer RefundReason = "requested_by_customer"
	RefundReasonAmountAdjustment    RefundReason = "amount_adjustment"
	RefundReasonCancellation        RefundReason = "cancellation"
)

// CaptureMethod controls whether authorized funds are collected immediately
// or held for a deferred capture
type CaptureMethod string

const (
	CaptureMethodAutomatic CaptureMethod = "automatic"
	CaptureMethodManual    CaptureMethod = "manual"
)

func (m CaptureMethod) String() string {
	return string(m)
}

func (m CaptureMethod) Validate() error {
	allowed := []CaptureMethod{CaptureMethodAutomatic, CaptureMethodManual}
	if !lo.Contains(allowed, m) {
		return fmt.Errorf("invalid capture method: %s", m)
	}
	return nil
}

// CartPaymentSortKey enumerates the supported sort keys for listing cart payments
type CartPaymentSortKey string

const (
	CartPaymentSortKeyCreatedAt CartPaymentSortKey = "created_at"
	CartPaymentSortKeyUpdatedAt CartPaymentSortKey = "updated_at"
	CartPaymentSortKeyAmount    CartPaymentSortKey = "amount"
)

func (k CartPaymentSortKey) Validate() error {
	allowed := []CartPaymentSortKey{
		CartPaymentSortKeyCreatedAt,
		CartPaymentSortKeyUpdatedAt,
		CartPaymentSortKeyAmount,
	}
	if !lo.Contains(allowed, k) {
		return fmt.Errorf("invalid cart payment sort key: %s", k)
	}
	return nil
}

// CartPaymentFilter represents the filter for listing cart payments
type CartPaymentFilter struct {
	*QueryFilter
	*TimeRangeFilter

	CartPaymentIDs []string            `form:"cart_payment_ids"`
	PayerID        *string             `form:"payer_id"`
	ReferenceID    *string             `form:"reference_id"`
	ReferenceType  *string             `form:"reference_type"`
	SortBy         *CartPaymentSortKey `form:"sort_by"`
}

// NewNoLimitCartPaymentFilter creates a new cart payment filter with no limit
func NewNoLimitCartPaymentFilter() *CartPaymentFilter {
	return &CartPaymentFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the cart payment filter
func (f *CartPaymentFilter) Validate() error {
	if f == nil {
		return nil
	}

	if err := f.QueryFilter.Validate(); err != nil {
		return err
	}

	if err := f.TimeRangeFilter.Validate(); err != nil {
		return err
	}

	if f.SortBy != nil {
		if err := f.SortBy.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// GetSortBy returns the sort key or the default created_at
func (f *CartPaymentFilter) GetSortBy() CartPaymentSortKey {
	if f == nil || f.SortBy == nil {
		return CartPaymentSortKeyCreatedAt
	}
	return *f.SortBy
}

// GetLimit implements BaseFilter interface
func (f *CartPaymentFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *CartPaymentFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetStatus implements BaseFilter interface
func (f *CartPaymentFilter) GetStatus() Status {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetOrder implements BaseFilter interface
func (f *CartPaymentFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// IsUnlimited returns true if the filter has no limit
func (f *CartPaymentFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
