package service

import (
	"fmt"
	"testing"

	"github.com/cartpay/cartpay/internal/api/dto"
	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/testutil"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type CartPaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service CartPaymentService
}

func TestCartPaymentService(t *testing.T) {
	suite.Run(t, new(CartPaymentServiceSuite))
}

func (s *CartPaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewCartPaymentService(ServiceParams{
		Logger:          s.GetLogger(),
		Config:          s.GetConfig(),
		CartPaymentRepo: s.GetStores().CartPaymentRepo,
		GatewayClient:   s.GetGateway(),
	})
}

func (s *CartPaymentServiceSuite) newCreateRequest(key, referenceID string, amount int64, delayCapture bool) dto.CreateCartPaymentRequest {
	return dto.CreateCartPaymentRequest{
		IdempotencyKey:  key,
		PayerID:         "payer_1",
		Amount:          decimal.NewFromInt(amount),
		Currency:        "usd",
		Country:         "US",
		PaymentMethodID: "pm_card_visa",
		CorrelationIDs: dto.CorrelationIDs{
			ReferenceID:   referenceID,
			ReferenceType: "order",
		},
		DelayCapture: delayCapture,
	}
}

func (s *CartPaymentServiceSuite) TestCreateCartPayment() {
	resp, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)
	s.NotNil(resp)
	s.True(resp.Amount.Equal(decimal.NewFromInt(500)))
	s.NotNil(resp.LatestIntent)
	s.Equal(types.IntentStatusCaptured, resp.LatestIntent.Status)
	s.NotNil(resp.LatestIntent.CapturedAt)
	s.Equal(1, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestCreateCartPaymentWithDelayCapture() {
	resp, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)
	s.Equal(types.IntentStatusRequiresCapture, resp.LatestIntent.Status)
	s.Nil(resp.LatestIntent.CapturedAt)
	s.NotNil(resp.LatestIntent.CaptureAfter)
	s.Equal(0, s.GetGateway().CallCount("capture"))
}

func (s *CartPaymentServiceSuite) TestCreateCartPaymentIdempotency() {
	req := s.newCreateRequest("key-1", "order-1", 500, false)

	first, err := s.service.CreateCartPayment(s.GetContext(), req)
	s.NoError(err)

	second, err := s.service.CreateCartPayment(s.GetContext(), req)
	s.NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal(first.LatestIntent.ID, second.LatestIntent.ID)
	s.Equal(1, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestCreateCartPaymentConflictingKey() {
	_, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	// same key, different amount
	_, err = s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-2", 900, false))
	s.Error(err)
	s.True(ierr.IsIdempotencyConflict(err))
	s.Equal(1, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestCreateCartPaymentConflictingPaymentMethod() {
	_, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	// same key and amount, but a different payment method is still a conflict
	req := s.newCreateRequest("key-1", "order-1", 500, false)
	req.PaymentMethodID = "pm_card_mastercard"
	_, err = s.service.CreateCartPayment(s.GetContext(), req)
	s.Error(err)
	s.True(ierr.IsIdempotencyConflict(err))

	req = s.newCreateRequest("key-1", "order-1", 500, false)
	req.PayerID = "payer_2"
	_, err = s.service.CreateCartPayment(s.GetContext(), req)
	s.Error(err)
	s.True(ierr.IsIdempotencyConflict(err))
	s.Equal(1, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestCreateCartPaymentDeclined() {
	s.GetGateway().DeclineNext()

	_, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.Error(err)
	s.True(ierr.IsGatewayDeclined(err))

	// the intent is recorded as failed and a retry does not re-authorize
	resp, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)
	s.Equal(types.IntentStatusFailed, resp.LatestIntent.Status)
	s.Equal(1, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestCreateCartPaymentTransientRetry() {
	s.GetGateway().FailNextTransient()

	_, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.Error(err)
	s.True(ierr.IsRetryable(err))

	// a retry with the same key resumes the interrupted authorization
	resp, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)
	s.Equal(types.IntentStatusCaptured, resp.LatestIntent.Status)
	s.Equal(2, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestCreateCartPaymentInvalidAmount() {
	req := s.newCreateRequest("key-1", "order-1", 500, false)
	req.Amount = decimal.Zero

	_, err := s.service.CreateCartPayment(s.GetContext(), req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
	s.Equal(0, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestUpdateUncapturedAdjustsAuthorization() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)

	updated, err := s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	})
	s.NoError(err)
	s.True(updated.Amount.Equal(decimal.NewFromInt(700)))
	s.Equal(1, s.GetGateway().CallCount("adjust_authorization"))
	s.Equal(0, s.GetGateway().CallCount("capture"))

	history, err := s.service.GetAdjustmentHistory(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(history, 1)
	s.True(history[0].AmountOriginal.Equal(decimal.NewFromInt(500)))
	s.True(history[0].AmountDelta.Equal(decimal.NewFromInt(200)))
	s.True(history[0].Amount.Equal(decimal.NewFromInt(700)))
}

func (s *CartPaymentServiceSuite) TestUpdateIdempotency() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)

	req := dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	}
	_, err = s.service.UpdateCartPayment(s.GetContext(), created.ID, req)
	s.NoError(err)

	// repeating the adjustment with the same key is a cached no-op
	_, err = s.service.UpdateCartPayment(s.GetContext(), created.ID, req)
	s.NoError(err)
	s.Equal(1, s.GetGateway().CallCount("adjust_authorization"))

	history, err := s.service.GetAdjustmentHistory(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(history, 1)
}

func (s *CartPaymentServiceSuite) TestUpdateCapturedPositiveDelta() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)
	s.Equal(types.IntentStatusCaptured, created.LatestIntent.Status)

	updated, err := s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	})
	s.NoError(err)
	s.True(updated.Amount.Equal(decimal.NewFromInt(700)))

	// the delta is collected with a supplemental charge, not an in-place mutation
	s.Equal(2, s.GetGateway().CallCount("authorize"))
	s.Equal(0, s.GetGateway().CallCount("adjust_authorization"))
}

func (s *CartPaymentServiceSuite) TestUpdateCapturedNegativeDelta() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	updated, err := s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(300),
	})
	s.NoError(err)
	s.True(updated.Amount.Equal(decimal.NewFromInt(300)))
	s.Equal(1, s.GetGateway().CallCount("refund"))

	history, err := s.service.GetAdjustmentHistory(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(history, 1)
	s.True(history[0].AmountDelta.Equal(decimal.NewFromInt(-200)))
}

func (s *CartPaymentServiceSuite) TestUpdateSupplementalTransientRetry() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	s.GetGateway().FailNextTransient()

	req := dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	}
	_, err = s.service.UpdateCartPayment(s.GetContext(), created.ID, req)
	s.Error(err)
	s.True(ierr.IsRetryable(err))

	// the retry finds the interrupted supplemental intent and resumes its
	// authorization instead of rejecting the adjustment
	updated, err := s.service.UpdateCartPayment(s.GetContext(), created.ID, req)
	s.NoError(err)
	s.True(updated.Amount.Equal(decimal.NewFromInt(700)))
	s.Equal(3, s.GetGateway().CallCount("authorize"))
	s.Equal(0, s.GetGateway().CallCount("adjust_authorization"))

	history, err := s.service.GetAdjustmentHistory(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(history, 1)
	s.True(history[0].AmountOriginal.Equal(decimal.NewFromInt(500)))
	s.True(history[0].AmountDelta.Equal(decimal.NewFromInt(200)))
	s.True(history[0].Amount.Equal(decimal.NewFromInt(700)))
}

func (s *CartPaymentServiceSuite) TestUpdateDownAfterSupplemental() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	_, err = s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	})
	s.NoError(err)
	s.Equal(2, s.GetGateway().CallCount("authorize"))

	// the downward delta is drained from captured charges across all intents
	updated, err := s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-2",
		Amount:         decimal.NewFromInt(400),
	})
	s.NoError(err)
	s.True(updated.Amount.Equal(decimal.NewFromInt(400)))
	s.Equal(1, s.GetGateway().CallCount("refund"))

	history, err := s.service.GetAdjustmentHistory(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(history, 2)
	s.True(history[1].AmountOriginal.Equal(decimal.NewFromInt(700)))
	s.True(history[1].AmountDelta.Equal(decimal.NewFromInt(-300)))
	s.True(history[1].Amount.Equal(decimal.NewFromInt(400)))
}

func (s *CartPaymentServiceSuite) TestCancelAfterSupplementalRefundsAllIntents() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	_, err = s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	})
	s.NoError(err)

	// both the original and the supplemental charge are refunded in full
	cancelled, err := s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)
	s.NotNil(cancelled.CancelledAt)
	s.Equal(2, s.GetGateway().CallCount("refund"))
	s.Equal(0, s.GetGateway().CallCount("cancel"))
}

func (s *CartPaymentServiceSuite) TestUpdateCancelledPayment() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)

	_, err = s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)

	_, err = s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *CartPaymentServiceSuite) TestCancelUncaptured() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)

	cancelled, err := s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)
	s.NotNil(cancelled.CancelledAt)
	s.Equal(1, s.GetGateway().CallCount("cancel"))
	s.Equal(0, s.GetGateway().CallCount("refund"))
}

func (s *CartPaymentServiceSuite) TestCancelCapturedRefundsInFull() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	cancelled, err := s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)
	s.NotNil(cancelled.CancelledAt)
	s.Equal(0, s.GetGateway().CallCount("cancel"))
	s.Equal(1, s.GetGateway().CallCount("refund"))
}

func (s *CartPaymentServiceSuite) TestCancelIsIdempotent() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)

	_, err = s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)

	// second cancel is a no-op returning current state
	resp, err := s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)
	s.NotNil(resp.CancelledAt)
	s.Equal(1, s.GetGateway().CallCount("cancel"))
	s.Equal(0, s.GetGateway().CallCount("refund"))
}

func (s *CartPaymentServiceSuite) TestUpsertCreatesWhenAbsent() {
	req := dto.UpsertCartPaymentRequest{
		CreateCartPaymentRequest: s.newCreateRequest("key-1", "order-1", 500, false),
	}

	resp, created, err := s.service.UpsertCartPayment(s.GetContext(), req)
	s.NoError(err)
	s.True(created)
	s.True(resp.Amount.Equal(decimal.NewFromInt(500)))
}

func (s *CartPaymentServiceSuite) TestUpsertUpdatesWhenPresent() {
	_, created, err := s.service.UpsertCartPayment(s.GetContext(), dto.UpsertCartPaymentRequest{
		CreateCartPaymentRequest: s.newCreateRequest("key-1", "order-1", 500, true),
	})
	s.NoError(err)
	s.True(created)

	resp, created, err := s.service.UpsertCartPayment(s.GetContext(), dto.UpsertCartPaymentRequest{
		CreateCartPaymentRequest: s.newCreateRequest("key-2", "order-1", 700, true),
	})
	s.NoError(err)
	s.False(created)
	s.True(resp.Amount.Equal(decimal.NewFromInt(700)))
	s.Equal(1, s.GetGateway().CallCount("authorize"))
}

func (s *CartPaymentServiceSuite) TestGetCartPayment() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, false))
	s.NoError(err)

	resp, err := s.service.GetCartPayment(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(created.ID, resp.ID)

	_, err = s.service.GetCartPayment(s.GetContext(), "cp_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *CartPaymentServiceSuite) TestGetCancelledPaymentIsNotFound() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)

	_, err = s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)

	_, err = s.service.GetCartPayment(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *CartPaymentServiceSuite) TestListCartPayments() {
	for i := 0; i < 3; i++ {
		req := s.newCreateRequest(
			fmt.Sprintf("key-%d", i),
			fmt.Sprintf("order-%d", i),
			500,
			false,
		)
		if i == 2 {
			req.PayerID = "payer_2"
		}
		_, err := s.service.CreateCartPayment(s.GetContext(), req)
		s.NoError(err)
	}

	resp, err := s.service.ListCartPayments(s.GetContext(), &types.CartPaymentFilter{
		QueryFilter: types.NewDefaultQueryFilter(),
		PayerID:     lo.ToPtr("payer_1"),
	})
	s.NoError(err)
	s.Len(resp.Items, 2)
	s.Equal(2, resp.Pagination.Total)
}

// Full lifecycle: delayed create, upward adjustment in place, cancel releasing
// the hold without any capture or refund.
func (s *CartPaymentServiceSuite) TestDelayedCaptureLifecycle() {
	created, err := s.service.CreateCartPayment(s.GetContext(), s.newCreateRequest("key-1", "order-1", 500, true))
	s.NoError(err)
	s.Equal(types.IntentStatusRequiresCapture, created.LatestIntent.Status)

	updated, err := s.service.UpdateCartPayment(s.GetContext(), created.ID, dto.UpdateCartPaymentRequest{
		IdempotencyKey: "adjust-1",
		Amount:         decimal.NewFromInt(700),
	})
	s.NoError(err)
	s.True(updated.Amount.Equal(decimal.NewFromInt(700)))
	s.Equal(0, s.GetGateway().CallCount("capture"))

	history, err := s.service.GetAdjustmentHistory(s.GetContext(), created.ID)
	s.NoError(err)
	s.Len(history, 1)
	s.True(history[0].AmountOriginal.Equal(decimal.NewFromInt(500)))
	s.True(history[0].AmountDelta.Equal(decimal.NewFromInt(200)))
	s.True(history[0].Amount.Equal(decimal.NewFromInt(700)))

	cancelled, err := s.service.CancelCartPayment(s.GetContext(), created.ID)
	s.NoError(err)
	s.NotNil(cancelled.CancelledAt)
	s.Equal(1, s.GetGateway().CallCount("cancel"))
	s.Equal(0, s.GetGateway().CallCount("refund"))
	s.Equal(0, s.GetGateway().CallCount("capture"))
}
