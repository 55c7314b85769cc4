package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyIsDeterministic(t *testing.T) {
	gen := NewGenerator()

	params := map[string]interface{}{
		"cart_payment_id": "cp_123",
		"idempotency_key": "key-1",
	}

	first := gen.GenerateKey(ScopeCapture, params)
	second := gen.GenerateKey(ScopeCapture, params)
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "capture-"))
}

func TestGenerateKeyVariesByScope(t *testing.T) {
	gen := NewGenerator()

	params := map[string]interface{}{
		"charge_id": "ch_123",
	}

	refundKey := gen.GenerateKey(ScopeRefund, params)
	cancelKey := gen.GenerateKey(ScopeCancel, params)
	assert.NotEqual(t, refundKey, cancelKey)
}

func TestGenerateKeyVariesByParams(t *testing.T) {
	gen := NewGenerator()

	first := gen.GenerateKey(ScopeRefund, map[string]interface{}{
		"charge_id": "ch_1",
	})
	second := gen.GenerateKey(ScopeRefund, map[string]interface{}{
		"charge_id": "ch_2",
	})
	assert.NotEqual(t, first, second)
}

func TestValidateKey(t *testing.T) {
	gen := NewGenerator()

	params := map[string]interface{}{
		"cart_payment_id": "cp_123",
		"charge_id":       "ch_456",
	}

	key := gen.GenerateKey(ScopeCancel, params)
	assert.True(t, gen.ValidateKey(ScopeCancel, params, key))
	assert.False(t, gen.ValidateKey(ScopeRefund, params, key))
	assert.False(t, gen.ValidateKey(ScopeCancel, map[string]interface{}{
		"cart_payment_id": "cp_123",
		"charge_id":       "ch_other",
	}, key))
}
