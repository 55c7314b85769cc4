package service

import (
	"context"
	"time"

	"github.com/cartpay/cartpay/internal/api/dto"
	"github.com/cartpay/cartpay/internal/domain/cartpayment"
	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/gateway"
	"github.com/cartpay/cartpay/internal/idempotency"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CartPaymentService defines the interface for cart payment lifecycle operations
type CartPaymentService interface {
	CreateCartPayment(ctx context.Context, req dto.CreateCartPaymentRequest) (*dto.CartPaymentResponse, error)
	UpdateCartPayment(ctx context.Context, id string, req dto.UpdateCartPaymentRequest) (*dto.CartPaymentResponse, error)
	CancelCartPayment(ctx context.Context, id string) (*dto.CartPaymentResponse, error)
	UpsertCartPayment(ctx context.Context, req dto.UpsertCartPaymentRequest) (*dto.CartPaymentResponse, bool, error)
	GetCartPayment(ctx context.Context, id string) (*dto.CartPaymentResponse, error)
	ListCartPayments(ctx context.Context, filter *types.CartPaymentFilter) (*dto.ListCartPaymentsResponse, error)
	GetAdjustmentHistory(ctx context.Context, id string) ([]*dto.AdjustmentHistoryResponse, error)
}

type cartPaymentService struct {
	ServiceParams
	idempGen *idempotency.Generator
}

// NewCartPaymentService creates a new cart payment service
func NewCartPaymentService(params ServiceParams) CartPaymentService {
	return &cartPaymentService{
		ServiceParams: params,
		idempGen:      idempotency.NewGenerator(),
	}
}

// CreateCartPayment creates a cart payment and authorizes funds at the gateway.
// Retried requests with the same idempotency key resolve to the original cart
// payment without issuing a second authorize.
func (s *cartPaymentService) CreateCartPayment(ctx context.Context, req dto.CreateCartPaymentRequest) (*dto.CartPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Retry-safety contract: an existing intent for this key owns the result
	existing, err := s.CartPaymentRepo.GetIntentByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return s.resolveExistingIntent(ctx, req, existing)
	}

	cp := req.ToCartPayment(ctx)
	if err := cp.Validate(); err != nil {
		return nil, err
	}

	intent := s.buildInitialIntent(ctx, cp, req)
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	err = s.CartPaymentRepo.CreateCartPaymentWithIntent(ctx, cp, intent)
	if err != nil {
		if ierr.IsAlreadyExists(err) {
			// Lost the race: re-read the winner's row and return its result
			winner, werr := s.CartPaymentRepo.GetIntentByIdempotencyKey(ctx, req.IdempotencyKey)
			if werr != nil {
				return nil, err
			}
			return s.resolveExistingIntent(ctx, req, winner)
		}
		return nil, err
	}

	s.Logger.Infow("created cart payment",
		"cart_payment_id", cp.ID,
		"payment_intent_id", intent.ID,
		"amount", cp.Amount,
		"delay_capture", cp.DelayCapture)

	if err := s.authorizeIntent(ctx, cp, intent); err != nil {
		return nil, err
	}

	return dto.NewCartPaymentResponse(cp).WithLatestIntent(intent), nil
}

// resolveExistingIntent handles a create request whose idempotency key is
// already reserved. A matching request returns the prior result; a mismatched
// one is a client bug and fails with a conflict.
func (s *cartPaymentService) resolveExistingIntent(ctx context.Context, req dto.CreateCartPaymentRequest, intent *cartpayment.PaymentIntent) (*dto.CartPaymentResponse, error) {
	cp, err := s.CartPaymentRepo.GetCartPayment(ctx, intent.CartPaymentID)
	if err != nil {
		return nil, err
	}

	if !intent.AmountInitiated.Equal(req.Amount) ||
		intent.Currency != req.Currency ||
		intent.Country != req.Country ||
		intent.PaymentMethodID != req.PaymentMethodID ||
		cp.PayerID != req.PayerID ||
		cp.CorrelationIDs.ReferenceID != req.CorrelationIDs.ReferenceID ||
		cp.CorrelationIDs.ReferenceType != req.CorrelationIDs.ReferenceType {
		return nil, ierr.NewError("idempotency key reused with different parameters").
			WithHint("This idempotency key was already used with a different request").
			WithReportableDetails(map[string]any{
				"idempotency_key": req.IdempotencyKey,
			}).
			Mark(ierr.ErrIdempotencyConflict)
	}

	// A prior attempt that never got a definitive gateway answer is resumed
	// here. The gateway dedupes on the idempotency key, so resuming cannot
	// double-authorize.
	if intent.Status == types.IntentStatusInit {
		if _, err := s.CartPaymentRepo.GetPgpIntentByIntent(ctx, intent.ID); ierr.IsNotFound(err) {
			s.Logger.Infow("resuming interrupted authorization",
				"cart_payment_id", cp.ID,
				"payment_intent_id", intent.ID)
			if err := s.authorizeIntent(ctx, cp, intent); err != nil {
				return nil, err
			}
		}
	}

	return dto.NewCartPaymentResponse(cp).WithLatestIntent(intent), nil
}

func (s *cartPaymentService) buildInitialIntent(ctx context.Context, cp *cartpayment.CartPayment, req dto.CreateCartPaymentRequest) *cartpayment.PaymentIntent {
	intent := &cartpayment.PaymentIntent{
		ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_INTENT),
		CartPaymentID:       cp.ID,
		IdempotencyKey:      req.IdempotencyKey,
		Amount:              cp.Amount,
		AmountInitiated:     cp.Amount,
		CaptureMethod:       cp.CaptureMethod(),
		Country:             req.Country,
		Currency:            req.Currency,
		Status:              types.IntentStatusInit,
		StatementDescriptor: s.statementDescriptor(cp),
		PaymentMethodID:     cp.PaymentMethodID,
		BaseModel:           types.GetDefaultBaseModel(ctx),
	}

	if cp.SplitPayment != nil {
		intent.ApplicationFeeAmount = cp.SplitPayment.ApplicationFeeAmount
	}
	if cp.DelayCapture {
		intent.CaptureAfter = lo.ToPtr(time.Now().UTC().Add(s.Config.Payment.CaptureDelay))
	}

	return intent
}

func (s *cartPaymentService) statementDescriptor(cp *cartpayment.CartPayment) string {
	if cp.PayerStatementDescription != nil && *cp.PayerStatementDescription != "" {
		return *cp.PayerStatementDescription
	}
	return s.Config.Payment.StatementDescriptor
}

// authorizeIntent issues the gateway authorize for an init intent, then
// persists the gateway mirror and any resulting charge rows.
func (s *cartPaymentService) authorizeIntent(ctx context.Context, cp *cartpayment.CartPayment, intent *cartpayment.PaymentIntent) error {
	authReq := &gateway.AuthorizeRequest{
		Amount:              intent.Amount,
		Currency:            intent.Currency,
		Country:             intent.Country,
		PaymentMethod:       intent.PaymentMethodID,
		CaptureMethod:       intent.CaptureMethod.String(),
		StatementDescriptor: intent.StatementDescriptor,
		IdempotencyKey:      intent.IdempotencyKey,
		Metadata: map[string]string{
			"cart_payment_id":   cp.ID,
			"payment_intent_id": intent.ID,
		},
	}
	if cp.SplitPayment != nil {
		authReq.PayoutAccountID = lo.ToPtr(cp.SplitPayment.PayoutAccountID)
		authReq.ApplicationFeeAmount = lo.ToPtr(cp.SplitPayment.ApplicationFeeAmount)
	}

	providerIntent, err := s.GatewayClient.Authorize(ctx, authReq)
	if err != nil {
		if ierr.IsGatewayDeclined(err) {
			s.Logger.Warnw("authorization declined",
				"cart_payment_id", cp.ID,
				"payment_intent_id", intent.ID)
			if terr := intent.TransitionTo(types.IntentStatusFailed); terr == nil {
				_ = s.CartPaymentRepo.UpdateIntent(ctx, intent)
			}
		}
		// Transient failures leave the intent in init; a retry with the same
		// idempotency key resumes the authorization.
		return err
	}

	return s.applyProviderIntent(ctx, intent, providerIntent)
}

// applyProviderIntent reconciles the internal intent with the provider's
// definitive response and persists the gateway-side mirrors.
func (s *cartPaymentService) applyProviderIntent(ctx context.Context, intent *cartpayment.PaymentIntent, providerIntent *gateway.ProviderIntent) error {
	now := time.Now().UTC()

	switch providerIntent.Status {
	case gateway.ProviderStatusRequiresCapture:
		if err := intent.TransitionTo(types.IntentStatusRequiresCapture); err != nil {
			return err
		}
	case gateway.ProviderStatusSucceeded:
		if err := intent.TransitionTo(types.IntentStatusCaptured); err != nil {
			return err
		}
		intent.CapturedAt = lo.ToPtr(now)
	case gateway.ProviderStatusCanceled:
		if err := intent.TransitionTo(types.IntentStatusCancelled); err != nil {
			return err
		}
		intent.CancelledAt = lo.ToPtr(now)
	default:
		return ierr.NewError("unexpected provider intent status").
			WithHintf("Provider returned unexpected intent status %s", providerIntent.Status).
			WithReportableDetails(map[string]any{
				"payment_intent_id": intent.ID,
				"provider_status":   providerIntent.Status,
			}).
			Mark(ierr.ErrSystem)
	}

	if err := s.CartPaymentRepo.UpdateIntent(ctx, intent); err != nil {
		return err
	}

	pgpIntent := &cartpayment.PgpPaymentIntent{
		ID:                      types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PGP_PAYMENT_INTENT),
		PaymentIntentID:         intent.ID,
		IdempotencyKey:          intent.IdempotencyKey,
		ResourceID:              providerIntent.ResourceID,
		PaymentMethodResourceID: providerIntent.PaymentMethod,
		Currency:                intent.Currency,
		Amount:                  providerIntent.Amount,
		AmountCapturable:        providerIntent.AmountCapturable,
		AmountReceived:          providerIntent.AmountReceived,
		ApplicationFeeAmount:    intent.ApplicationFeeAmount,
		CaptureMethod:           intent.CaptureMethod,
		Status:                  intent.Status,
		CapturedAt:              intent.CapturedAt,
		CancelledAt:             intent.CancelledAt,
		BaseModel:               types.GetDefaultBaseModel(ctx),
	}
	if providerIntent.Customer != "" {
		pgpIntent.CustomerResourceID = lo.ToPtr(providerIntent.Customer)
	}
	if len(providerIntent.Charges) > 0 {
		pgpIntent.ChargeResourceID = lo.ToPtr(providerIntent.Charges[0].ResourceID)
	}
	if err := s.CartPaymentRepo.CreatePgpIntent(ctx, pgpIntent); err != nil {
		return err
	}

	for _, providerCharge := range providerIntent.Charges {
		if err := s.recordCharge(ctx, intent, providerIntent, providerCharge); err != nil {
			return err
		}
	}

	return nil
}

func (s *cartPaymentService) recordCharge(ctx context.Context, intent *cartpayment.PaymentIntent, providerIntent *gateway.ProviderIntent, providerCharge gateway.ProviderCharge) error {
	charge := &cartpayment.Charge{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CHARGE),
		PaymentIntentID:      intent.ID,
		IdempotencyKey:       intent.IdempotencyKey,
		Status:               types.ChargeStatusSucceeded,
		Currency:             intent.Currency,
		Amount:               providerCharge.Amount,
		AmountRefunded:       providerCharge.AmountRefunded,
		ApplicationFeeAmount: intent.ApplicationFeeAmount,
		CapturedAt:           intent.CapturedAt,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}
	if err := s.CartPaymentRepo.CreateCharge(ctx, charge); err != nil {
		return err
	}

	pgpCharge := &cartpayment.PgpPaymentCharge{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PGP_CHARGE),
		ChargeID:         charge.ID,
		ResourceID:       providerCharge.ResourceID,
		IntentResourceID: providerIntent.ResourceID,
		Status:           charge.Status,
		Currency:         charge.Currency,
		Amount:           charge.Amount,
		AmountRefunded:   charge.AmountRefunded,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	return s.CartPaymentRepo.CreatePgpCharge(ctx, pgpCharge)
}

// UpdateCartPayment adjusts the target amount of a non-cancelled cart payment.
// Uncaptured intents are adjusted in place at the gateway; captured intents
// get a compensating supplemental charge or partial refund. Every accepted
// change appends exactly one adjustment history row.
func (s *cartPaymentService) UpdateCartPayment(ctx context.Context, id string, req dto.UpdateCartPaymentRequest) (*dto.CartPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cp, err := s.CartPaymentRepo.GetCartPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.IsCancelled() {
		return nil, ierr.NewError("cart payment is cancelled").
			WithHint("A cancelled cart payment cannot be adjusted").
			WithReportableDetails(map[string]any{
				"cart_payment_id": cp.ID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	intents, err := s.CartPaymentRepo.ListIntentsByCartPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, ierr.NewError("payment intent not found").
			WithHintf("No payment intents found for cart payment %s", id).
			Mark(ierr.ErrNotFound)
	}

	// The originating intent decides how a delta is reconciled. Supplemental
	// intents appended by earlier upward adjustments never change the branch.
	originating := intents[0]
	latest := intents[len(intents)-1]

	// Adjustment idempotency: a key seen before returns the prior result
	if _, err := s.CartPaymentRepo.GetAdjustmentHistoryByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return dto.NewCartPaymentResponse(cp).WithLatestIntent(latest), nil
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	delta := req.Amount.Sub(cp.Amount)
	if delta.IsZero() {
		return dto.NewCartPaymentResponse(cp).WithLatestIntent(latest), nil
	}

	switch {
	case originating.Status == types.IntentStatusRequiresCapture:
		if err := s.adjustUncaptured(ctx, originating, req.Amount); err != nil {
			return nil, err
		}
	case originating.IsCaptured() && delta.IsPositive():
		if err := s.supplementalCharge(ctx, cp, originating, req.IdempotencyKey, delta); err != nil {
			return nil, err
		}
	case originating.IsCaptured() && delta.IsNegative():
		if err := s.refundForAdjustment(ctx, cp, req.IdempotencyKey, delta.Neg()); err != nil {
			return nil, err
		}
	default:
		return nil, ierr.NewError("cart payment is not adjustable").
			WithHintf("Cart payment cannot be adjusted while the intent is %s", originating.Status).
			WithReportableDetails(map[string]any{
				"cart_payment_id":   cp.ID,
				"payment_intent_id": originating.ID,
				"intent_status":     originating.Status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	history := &cartpayment.PaymentIntentAdjustmentHistory{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ADJUSTMENT_HISTORY),
		PaymentIntentID: originating.ID,
		IdempotencyKey:  req.IdempotencyKey,
		AmountOriginal:  cp.Amount,
		AmountDelta:     delta,
		Amount:          req.Amount,
		Currency:        originating.Currency,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}
	if err := s.CartPaymentRepo.CreateAdjustmentHistory(ctx, history); err != nil {
		if ierr.IsAlreadyExists(err) {
			// Concurrent duplicate adjustment: the winner already recorded it
			return dto.NewCartPaymentResponse(cp).WithLatestIntent(latest), nil
		}
		return nil, err
	}

	cp.Amount = req.Amount
	if req.ClientDescription != nil {
		cp.ClientDescription = req.ClientDescription
	}
	if req.SplitPayment != nil {
		cp.SplitPayment = &cartpayment.SplitPayment{
			PayoutAccountID:      req.SplitPayment.PayoutAccountID,
			ApplicationFeeAmount: req.SplitPayment.ApplicationFeeAmount,
		}
	}
	if req.Metadata != nil {
		cp.Metadata = req.Metadata
	}
	if err := s.CartPaymentRepo.UpdateCartPayment(ctx, cp); err != nil {
		return nil, err
	}

	s.Logger.Infow("adjusted cart payment",
		"cart_payment_id", cp.ID,
		"payment_intent_id", originating.ID,
		"amount_original", history.AmountOriginal,
		"amount_delta", history.AmountDelta,
		"amount", history.Amount)

	// an upward adjustment after capture appends a supplemental intent
	if refreshed, err := s.CartPaymentRepo.GetLatestIntent(ctx, id); err == nil {
		latest = refreshed
	}

	return dto.NewCartPaymentResponse(cp).WithLatestIntent(latest), nil
}

// adjustUncaptured changes an uncaptured authorization in place
func (s *cartPaymentService) adjustUncaptured(ctx context.Context, intent *cartpayment.PaymentIntent, newAmount decimal.Decimal) error {
	pgpIntent, err := s.CartPaymentRepo.GetPgpIntentByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}

	providerIntent, err := s.GatewayClient.AdjustAuthorization(ctx, pgpIntent.ResourceID, newAmount)
	if err != nil {
		return err
	}

	intent.Amount = newAmount
	if err := s.CartPaymentRepo.UpdateIntent(ctx, intent); err != nil {
		return err
	}

	pgpIntent.Amount = providerIntent.Amount
	pgpIntent.AmountCapturable = providerIntent.AmountCapturable
	return s.CartPaymentRepo.UpdatePgpIntent(ctx, pgpIntent)
}

// supplementalCharge collects a positive adjustment delta after capture via a
// fresh authorize-and-capture. The gateway key is derived from the caller's
// adjustment key, so retries reuse the same gateway token — and a retry that
// finds the derived-key intent interrupted mid-authorize resumes it instead
// of wedging the payment.
func (s *cartPaymentService) supplementalCharge(ctx context.Context, cp *cartpayment.CartPayment, originating *cartpayment.PaymentIntent, adjustmentKey string, delta decimal.Decimal) error {
	derivedKey := s.idempGen.GenerateKey(idempotency.ScopeCapture, map[string]interface{}{
		"cart_payment_id": cp.ID,
		"idempotency_key": adjustmentKey,
	})

	existing, err := s.CartPaymentRepo.GetIntentByIdempotencyKey(ctx, derivedKey)
	if err != nil && !ierr.IsNotFound(err) {
		return err
	}
	if existing != nil {
		return s.resumeSupplemental(ctx, cp, existing)
	}

	supplemental := &cartpayment.PaymentIntent{
		ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_INTENT),
		CartPaymentID:       cp.ID,
		IdempotencyKey:      derivedKey,
		Amount:              delta,
		AmountInitiated:     delta,
		CaptureMethod:       types.CaptureMethodAutomatic,
		Country:             originating.Country,
		Currency:            originating.Currency,
		Status:              types.IntentStatusInit,
		StatementDescriptor: originating.StatementDescriptor,
		PaymentMethodID:     originating.PaymentMethodID,
		BaseModel:           types.GetDefaultBaseModel(ctx),
	}
	if err := s.CartPaymentRepo.CreateIntent(ctx, supplemental); err != nil {
		if ierr.IsAlreadyExists(err) {
			// Lost the race: the concurrent retry's intent owns the charge
			winner, werr := s.CartPaymentRepo.GetIntentByIdempotencyKey(ctx, derivedKey)
			if werr != nil {
				return err
			}
			return s.resumeSupplemental(ctx, cp, winner)
		}
		return err
	}

	return s.authorizeIntent(ctx, cp, supplemental)
}

// resumeSupplemental settles a derived-key supplemental intent found by a
// retry. An intent that already got a definitive gateway answer needs nothing;
// one interrupted before the answer is re-authorized under the same key.
func (s *cartPaymentService) resumeSupplemental(ctx context.Context, cp *cartpayment.CartPayment, intent *cartpayment.PaymentIntent) error {
	if intent.Status != types.IntentStatusInit {
		return nil
	}
	if _, err := s.CartPaymentRepo.GetPgpIntentByIntent(ctx, intent.ID); err == nil {
		return nil
	} else if !ierr.IsNotFound(err) {
		return err
	}

	s.Logger.Infow("resuming interrupted supplemental charge",
		"cart_payment_id", cp.ID,
		"payment_intent_id", intent.ID)
	return s.authorizeIntent(ctx, cp, intent)
}

// refundForAdjustment returns a negative adjustment delta by partially
// refunding captured charges across all of the payment's intents, oldest
// first, until the delta is covered
func (s *cartPaymentService) refundForAdjustment(ctx context.Context, cp *cartpayment.CartPayment, adjustmentKey string, amount decimal.Decimal) error {
	keyFn := func(chargeID string) string {
		return s.idempGen.GenerateKey(idempotency.ScopeRefund, map[string]interface{}{
			"charge_id":       chargeID,
			"idempotency_key": adjustmentKey,
		})
	}

	intents, err := s.CartPaymentRepo.ListIntentsByCartPayment(ctx, cp.ID)
	if err != nil {
		return err
	}

	remaining := amount
	for _, pi := range intents {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		if !pi.IsCaptured() {
			continue
		}
		remaining, err = s.refundCharges(ctx, pi, remaining, types.RefundReasonAmountAdjustment, keyFn)
		if err != nil {
			return err
		}
	}

	if remaining.IsPositive() {
		return ierr.NewError("refund exceeds refundable amount").
			WithHintf("Requested refund of %s exceeds the refundable remainder", amount).
			WithReportableDetails(map[string]any{
				"cart_payment_id": cp.ID,
				"amount":          amount,
				"uncovered":       remaining,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	return nil
}

// refundCharges walks one intent's charges and refunds up to the requested
// amount from their refundable remainders, returning the uncovered remainder
func (s *cartPaymentService) refundCharges(ctx context.Context, intent *cartpayment.PaymentIntent, amount decimal.Decimal, reason types.RefundReason, keyFn func(chargeID string) string) (decimal.Decimal, error) {
	charges, err := s.CartPaymentRepo.ListChargesByIntent(ctx, intent.ID)
	if err != nil {
		return amount, err
	}

	remaining := amount
	for _, charge := range charges {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		refundable := charge.RefundableAmount()
		if refundable.IsZero() || refundable.IsNegative() {
			continue
		}

		refundAmount := decimal.Min(remaining, refundable)
		if err := s.refundCharge(ctx, intent, charge, refundAmount, reason, keyFn(charge.ID)); err != nil {
			return remaining, err
		}
		remaining = remaining.Sub(refundAmount)
	}

	return remaining, nil
}

func (s *cartPaymentService) refundCharge(ctx context.Context, intent *cartpayment.PaymentIntent, charge *cartpayment.Charge, amount decimal.Decimal, reason types.RefundReason, idempotencyKey string) error {
	// A refund already recorded under this key means a prior attempt got
	// through; skip the gateway call.
	if _, err := s.CartPaymentRepo.GetRefundByIdempotencyKey(ctx, idempotencyKey); err == nil {
		return nil
	} else if !ierr.IsNotFound(err) {
		return err
	}

	pgpIntent, err := s.CartPaymentRepo.GetPgpIntentByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	if pgpIntent.ChargeResourceID == nil {
		return ierr.NewError("charge has no gateway resource").
			WithHint("No gateway charge is recorded for this payment").
			WithReportableDetails(map[string]any{
				"charge_id": charge.ID,
			}).
			Mark(ierr.ErrSystem)
	}

	providerRefund, err := s.GatewayClient.Refund(ctx, &gateway.RefundRequest{
		ChargeResourceID: *pgpIntent.ChargeResourceID,
		Amount:           amount,
		Reason:           string(reason),
		IdempotencyKey:   idempotencyKey,
	})
	if err != nil {
		return err
	}

	refund := &cartpayment.Refund{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REFUND),
		ChargeID:       charge.ID,
		IdempotencyKey: idempotencyKey,
		Status:         types.RefundStatusSucceeded,
		Amount:         amount,
		Currency:       charge.Currency,
		Reason:         reason,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if err := s.CartPaymentRepo.CreateRefund(ctx, refund); err != nil {
		if ierr.IsAlreadyExists(err) {
			return nil
		}
		return err
	}

	pgpRefund := &cartpayment.PgpRefund{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PGP_REFUND),
		RefundID:         refund.ID,
		IdempotencyKey:   idempotencyKey,
		ResourceID:       providerRefund.ResourceID,
		ChargeResourceID: providerRefund.ChargeResourceID,
		Status:           types.RefundStatusSucceeded,
		Amount:           amount,
		Currency:         charge.Currency,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if err := s.CartPaymentRepo.CreatePgpRefund(ctx, pgpRefund); err != nil {
		return err
	}

	if err := charge.RecordRefund(amount); err != nil {
		return err
	}
	return s.CartPaymentRepo.UpdateCharge(ctx, charge)
}

// CancelCartPayment cancels a cart payment: uncaptured holds are released at
// the gateway, captured funds are fully refunded. Cancelling an already
// cancelled payment is a no-op returning current state.
func (s *cartPaymentService) CancelCartPayment(ctx context.Context, id string) (*dto.CartPaymentResponse, error) {
	cp, err := s.CartPaymentRepo.GetCartPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	intent, err := s.CartPaymentRepo.GetLatestIntent(ctx, id)
	if err != nil {
		return nil, err
	}

	if cp.IsCancelled() {
		return dto.NewCartPaymentResponse(cp).WithLatestIntent(intent), nil
	}

	intents, err := s.CartPaymentRepo.ListIntentsByCartPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, pi := range intents {
		switch {
		case pi.Status == types.IntentStatusRequiresCapture || pi.Status == types.IntentStatusInit:
			if err := s.cancelIntent(ctx, pi, now); err != nil {
				return nil, err
			}
		case pi.Status == types.IntentStatusCaptured:
			if err := s.refundIntentFully(ctx, cp, pi); err != nil {
				return nil, err
			}
		}
	}

	cp.CancelledAt = lo.ToPtr(now)
	cp.DeletedAt = lo.ToPtr(now)
	if err := s.CartPaymentRepo.UpdateCartPayment(ctx, cp); err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled cart payment",
		"cart_payment_id", cp.ID,
		"payment_intent_id", intent.ID)

	return dto.NewCartPaymentResponse(cp).WithLatestIntent(intent), nil
}

// cancelIntent releases an uncaptured hold at the gateway
func (s *cartPaymentService) cancelIntent(ctx context.Context, intent *cartpayment.PaymentIntent, now time.Time) error {
	pgpIntent, err := s.CartPaymentRepo.GetPgpIntentByIntent(ctx, intent.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			// Intent never reached the gateway; nothing to release
			if terr := intent.TransitionTo(types.IntentStatusCancelled); terr != nil {
				return terr
			}
			intent.CancelledAt = lo.ToPtr(now)
			return s.CartPaymentRepo.UpdateIntent(ctx, intent)
		}
		return err
	}

	if _, err := s.GatewayClient.Cancel(ctx, pgpIntent.ResourceID); err != nil {
		return err
	}

	if err := intent.TransitionTo(types.IntentStatusCancelled); err != nil {
		return err
	}
	intent.CancelledAt = lo.ToPtr(now)
	if err := s.CartPaymentRepo.UpdateIntent(ctx, intent); err != nil {
		return err
	}

	pgpIntent.Status = types.IntentStatusCancelled
	pgpIntent.CancelledAt = lo.ToPtr(now)
	pgpIntent.AmountCapturable = decimal.Zero
	return s.CartPaymentRepo.UpdatePgpIntent(ctx, pgpIntent)
}

// refundIntentFully refunds all captured, not-yet-refunded funds of an intent
func (s *cartPaymentService) refundIntentFully(ctx context.Context, cp *cartpayment.CartPayment, intent *cartpayment.PaymentIntent) error {
	charges, err := s.CartPaymentRepo.ListChargesByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}

	var total decimal.Decimal
	for _, charge := range charges {
		total = total.Add(charge.RefundableAmount())
	}
	if total.IsZero() || total.IsNegative() {
		return nil
	}

	keyFn := func(chargeID string) string {
		return s.idempGen.GenerateKey(idempotency.ScopeCancel, map[string]interface{}{
			"cart_payment_id": cp.ID,
			"charge_id":       chargeID,
		})
	}
	// total is the sum of this intent's refundable remainders, so the walk
	// always covers it
	if _, err := s.refundCharges(ctx, intent, total, types.RefundReasonCancellation, keyFn); err != nil {
		return err
	}

	if err := intent.TransitionTo(types.IntentStatusRefunded); err != nil {
		return err
	}
	return s.CartPaymentRepo.UpdateIntent(ctx, intent)
}

// UpsertCartPayment creates or adjusts the cart payment correlated with an
// external entity. The boolean result reports whether a new payment was
// created, which the API layer maps to the response status.
func (s *cartPaymentService) UpsertCartPayment(ctx context.Context, req dto.UpsertCartPaymentRequest) (*dto.CartPaymentResponse, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.CartPaymentRepo.GetCartPaymentByCorrelation(ctx, req.CorrelationIDs.ReferenceID, req.CorrelationIDs.ReferenceType)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, false, err
		}

		resp, cerr := s.CreateCartPayment(ctx, req.CreateCartPaymentRequest)
		if cerr != nil {
			return nil, false, cerr
		}
		return resp, true, nil
	}

	resp, err := s.UpdateCartPayment(ctx, existing.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey:    req.IdempotencyKey,
		Amount:            req.Amount,
		ClientDescription: req.ClientDescription,
		SplitPayment:      req.SplitPayment,
		Metadata:          req.Metadata,
	})
	if err != nil {
		return nil, false, err
	}
	return resp, false, nil
}

// GetCartPayment retrieves a cart payment by ID. Soft-deleted payments are
// reported as not found.
func (s *cartPaymentService) GetCartPayment(ctx context.Context, id string) (*dto.CartPaymentResponse, error) {
	cp, err := s.CartPaymentRepo.GetCartPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.DeletedAt != nil {
		return nil, ierr.NewError("cart payment not found").
			WithHintf("Cart payment with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}

	intent, err := s.CartPaymentRepo.GetLatestIntent(ctx, id)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	return dto.NewCartPaymentResponse(cp).WithLatestIntent(intent), nil
}

// ListCartPayments retrieves cart payments matching the filter
func (s *cartPaymentService) ListCartPayments(ctx context.Context, filter *types.CartPaymentFilter) (*dto.ListCartPaymentsResponse, error) {
	if filter == nil {
		filter = &types.CartPaymentFilter{
			QueryFilter: types.NewDefaultQueryFilter(),
		}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	payments, err := s.CartPaymentRepo.ListCartPayments(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.CartPaymentRepo.CountCartPayments(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.CartPaymentResponse, len(payments))
	for i, cp := range payments {
		items[i] = dto.NewCartPaymentResponse(cp)
	}

	return &dto.ListCartPaymentsResponse{
		Items:      items,
		Pagination: types.NewPaginationResponse(total, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// GetAdjustmentHistory retrieves the amount-change audit trail for a cart
// payment across all of its intents, oldest first
func (s *cartPaymentService) GetAdjustmentHistory(ctx context.Context, id string) ([]*dto.AdjustmentHistoryResponse, error) {
	if _, err := s.CartPaymentRepo.GetCartPayment(ctx, id); err != nil {
		return nil, err
	}

	intents, err := s.CartPaymentRepo.ListIntentsByCartPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	var result []*dto.AdjustmentHistoryResponse
	for _, intent := range intents {
		entries, err := s.CartPaymentRepo.ListAdjustmentHistory(ctx, intent.ID)
		if err != nil {
			return nil, err
		}
		for _, h := range entries {
			result = append(result, dto.NewAdjustmentHistoryResponse(h))
		}
	}

	return result, nil
}
