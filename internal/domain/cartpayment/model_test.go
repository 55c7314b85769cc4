package cartpayment

import (
	"testing"

	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaymentIntentTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    types.IntentStatus
		to      types.IntentStatus
		wantErr bool
	}{
		{"init to requires_capture", types.IntentStatusInit, types.IntentStatusRequiresCapture, false},
		{"init to captured", types.IntentStatusInit, types.IntentStatusCaptured, false},
		{"init to failed", types.IntentStatusInit, types.IntentStatusFailed, false},
		{"requires_capture to captured", types.IntentStatusRequiresCapture, types.IntentStatusCaptured, false},
		{"requires_capture to cancelled", types.IntentStatusRequiresCapture, types.IntentStatusCancelled, false},
		{"captured to refunded", types.IntentStatusCaptured, types.IntentStatusRefunded, false},
		{"captured back to requires_capture", types.IntentStatusCaptured, types.IntentStatusRequiresCapture, true},
		{"cancelled to captured", types.IntentStatusCancelled, types.IntentStatusCaptured, true},
		{"refunded to captured", types.IntentStatusRefunded, types.IntentStatusCaptured, true},
		{"failed to init", types.IntentStatusFailed, types.IntentStatusInit, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pi := &PaymentIntent{ID: "pi_test", Status: tt.from}
			err := pi.TransitionTo(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, ierr.IsInvalidOperation(err))
				assert.Equal(t, tt.from, pi.Status)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, pi.Status)
			}
		})
	}
}

func TestPaymentIntentTransitionToSameStatus(t *testing.T) {
	pi := &PaymentIntent{ID: "pi_test", Status: types.IntentStatusCaptured}
	assert.NoError(t, pi.TransitionTo(types.IntentStatusCaptured))
	assert.Equal(t, types.IntentStatusCaptured, pi.Status)
}

func TestChargeRecordRefund(t *testing.T) {
	charge := &Charge{
		ID:     "ch_test",
		Amount: decimal.NewFromInt(500),
		Status: types.ChargeStatusSucceeded,
	}

	err := charge.RecordRefund(decimal.NewFromInt(200))
	assert.NoError(t, err)
	assert.True(t, charge.AmountRefunded.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, types.ChargeStatusPartiallyRefunded, charge.Status)
	assert.True(t, charge.RefundableAmount().Equal(decimal.NewFromInt(300)))

	err = charge.RecordRefund(decimal.NewFromInt(300))
	assert.NoError(t, err)
	assert.True(t, charge.AmountRefunded.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, types.ChargeStatusRefunded, charge.Status)
	assert.True(t, charge.RefundableAmount().IsZero())
}

func TestChargeRecordRefundExceedsRemainder(t *testing.T) {
	charge := &Charge{
		ID:             "ch_test",
		Amount:         decimal.NewFromInt(500),
		AmountRefunded: decimal.NewFromInt(400),
		Status:         types.ChargeStatusPartiallyRefunded,
	}

	err := charge.RecordRefund(decimal.NewFromInt(200))
	assert.Error(t, err)
	assert.True(t, ierr.IsInvalidOperation(err))
	// bookkeeping is untouched on rejection
	assert.True(t, charge.AmountRefunded.Equal(decimal.NewFromInt(400)))
}

func TestChargeRecordRefundInvalidAmount(t *testing.T) {
	charge := &Charge{ID: "ch_test", Amount: decimal.NewFromInt(500)}

	assert.Error(t, charge.RecordRefund(decimal.Zero))
	assert.Error(t, charge.RecordRefund(decimal.NewFromInt(-100)))
}

func TestCartPaymentCaptureMethod(t *testing.T) {
	cp := &CartPayment{DelayCapture: true}
	assert.Equal(t, types.CaptureMethodManual, cp.CaptureMethod())

	cp.DelayCapture = false
	assert.Equal(t, types.CaptureMethodAutomatic, cp.CaptureMethod())
}

func TestCartPaymentValidate(t *testing.T) {
	valid := &CartPayment{
		ID:              "cp_test",
		PayerID:         "payer_1",
		Amount:          decimal.NewFromInt(500),
		PaymentMethodID: "pm_card_visa",
	}
	assert.NoError(t, valid.Validate())

	zeroAmount := &CartPayment{PayerID: "payer_1", PaymentMethodID: "pm_card_visa"}
	assert.True(t, ierr.IsValidation(zeroAmount.Validate()))

	missingPayer := &CartPayment{Amount: decimal.NewFromInt(500), PaymentMethodID: "pm_card_visa"}
	assert.True(t, ierr.IsValidation(missingPayer.Validate()))

	badSplit := &CartPayment{
		PayerID:         "payer_1",
		Amount:          decimal.NewFromInt(500),
		PaymentMethodID: "pm_card_visa",
		SplitPayment:    &SplitPayment{PayoutAccountID: ""},
	}
	assert.True(t, ierr.IsValidation(badSplit.Validate()))
}
