package testutil

import (
	"context"
	"fmt"
	"sync"

	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/gateway"
	"github.com/shopspring/decimal"
)

// FakeGateway implements gateway.Client for tests. It honors idempotency keys
// the way the real provider does (the same authorize key always returns the
// same intent) and counts calls per operation so tests can assert exactly how
// many side effects a flow produced.
type FakeGateway struct {
	mu sync.Mutex

	intents       map[string]*gateway.ProviderIntent
	intentsByKey  map[string]string
	refundsByKey  map[string]*gateway.ProviderRefund
	counts        map[string]int
	nextID        int
	declineNext   bool
	transientNext bool
}

// NewFakeGateway creates a new fake gateway client
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		intents:      make(map[string]*gateway.ProviderIntent),
		intentsByKey: make(map[string]string),
		refundsByKey: make(map[string]*gateway.ProviderRefund),
		counts:       make(map[string]int),
	}
}

// Clear resets all recorded state
func (g *FakeGateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = make(map[string]*gateway.ProviderIntent)
	g.intentsByKey = make(map[string]string)
	g.refundsByKey = make(map[string]*gateway.ProviderRefund)
	g.counts = make(map[string]int)
	g.nextID = 0
	g.declineNext = false
	g.transientNext = false
}

// CallCount returns how many times the named operation was invoked
func (g *FakeGateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[op]
}

// DeclineNext makes the next authorize call fail with a decline
func (g *FakeGateway) DeclineNext() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declineNext = true
}

// FailNextTransient makes the next call fail with a transient error
func (g *FakeGateway) FailNextTransient() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transientNext = true
}

func (g *FakeGateway) newResourceID(prefix string) string {
	g.nextID++
	return fmt.Sprintf("%s_fake_%d", prefix, g.nextID)
}

func (g *FakeGateway) checkFailures() error {
	if g.transientNext {
		g.transientNext = false
		return ierr.NewError("provider unavailable").
			WithHint("Payment provider is temporarily unavailable").
			Mark(ierr.ErrGatewayTransient)
	}
	return nil
}

// Authorize places a fake hold, capturing immediately for automatic capture
func (g *FakeGateway) Authorize(ctx context.Context, req *gateway.AuthorizeRequest) (*gateway.ProviderIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts["authorize"]++

	if err := g.checkFailures(); err != nil {
		return nil, err
	}
	if g.declineNext {
		g.declineNext = false
		return nil, ierr.NewError("payment declined").
			WithHint("The payment method was declined by the provider").
			Mark(ierr.ErrGatewayDeclined)
	}

	// gateway-level idempotency: same key returns the original intent
	if id, exists := g.intentsByKey[req.IdempotencyKey]; exists {
		return g.intents[id], nil
	}

	intent := &gateway.ProviderIntent{
		ResourceID:    g.newResourceID("pi"),
		Currency:      req.Currency,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
	}
	if req.CaptureMethod == "manual" {
		intent.Status = gateway.ProviderStatusRequiresCapture
		intent.AmountCapturable = req.Amount
	} else {
		intent.Status = gateway.ProviderStatusSucceeded
		intent.AmountReceived = req.Amount
		intent.Charges = append(intent.Charges, gateway.ProviderCharge{
			ResourceID: g.newResourceID("ch"),
			Status:     "succeeded",
			Currency:   req.Currency,
			Amount:     req.Amount,
		})
	}

	g.intents[intent.ResourceID] = intent
	g.intentsByKey[req.IdempotencyKey] = intent.ResourceID
	return intent, nil
}

// Capture collects the authorized funds of a fake intent
func (g *FakeGateway) Capture(ctx context.Context, resourceID string) (*gateway.ProviderIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts["capture"]++

	if err := g.checkFailures(); err != nil {
		return nil, err
	}

	intent, exists := g.intents[resourceID]
	if !exists {
		return nil, ierr.NewError("intent not found at provider").
			WithHintf("No provider intent found for resource %s", resourceID).
			Mark(ierr.ErrNotFound)
	}

	intent.Status = gateway.ProviderStatusSucceeded
	intent.AmountReceived = intent.Amount
	intent.AmountCapturable = decimal.Zero
	if len(intent.Charges) == 0 {
		intent.Charges = append(intent.Charges, gateway.ProviderCharge{
			ResourceID: g.newResourceID("ch"),
			Status:     "succeeded",
			Currency:   intent.Currency,
			Amount:     intent.Amount,
		})
	}
	return intent, nil
}

// AdjustAuthorization changes the uncaptured amount of a fake intent
func (g *FakeGateway) AdjustAuthorization(ctx context.Context, resourceID string, newAmount decimal.Decimal) (*gateway.ProviderIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts["adjust_authorization"]++

	if err := g.checkFailures(); err != nil {
		return nil, err
	}

	intent, exists := g.intents[resourceID]
	if !exists {
		return nil, ierr.NewError("intent not found at provider").
			WithHintf("No provider intent found for resource %s", resourceID).
			Mark(ierr.ErrNotFound)
	}
	if intent.Status != gateway.ProviderStatusRequiresCapture {
		return nil, ierr.NewError("intent not adjustable").
			WithHint("Only uncaptured intents can be adjusted").
			Mark(ierr.ErrInvalidOperation)
	}

	intent.Amount = newAmount
	intent.AmountCapturable = newAmount
	return intent, nil
}

// Cancel releases the hold of a fake intent
func (g *FakeGateway) Cancel(ctx context.Context, resourceID string) (*gateway.ProviderIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts["cancel"]++

	if err := g.checkFailures(); err != nil {
		return nil, err
	}

	intent, exists := g.intents[resourceID]
	if !exists {
		return nil, ierr.NewError("intent not found at provider").
			WithHintf("No provider intent found for resource %s", resourceID).
			Mark(ierr.ErrNotFound)
	}

	intent.Status = gateway.ProviderStatusCanceled
	intent.AmountCapturable = decimal.Zero
	return intent, nil
}

// Refund returns captured funds against a fake charge
func (g *FakeGateway) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.ProviderRefund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts["refund"]++

	if err := g.checkFailures(); err != nil {
		return nil, err
	}

	// gateway-level idempotency: same key returns the original refund
	if refund, exists := g.refundsByKey[req.IdempotencyKey]; exists {
		return refund, nil
	}

	refund := &gateway.ProviderRefund{
		ResourceID:       g.newResourceID("re"),
		ChargeResourceID: req.ChargeResourceID,
		Status:           "succeeded",
		Amount:           req.Amount,
	}
	g.refundsByKey[req.IdempotencyKey] = refund
	return refund, nil
}

// Retrieve fetches the current state of a fake intent
func (g *FakeGateway) Retrieve(ctx context.Context, resourceID string) (*gateway.ProviderIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts["retrieve"]++

	intent, exists := g.intents[resourceID]
	if !exists {
		return nil, ierr.NewError("intent not found at provider").
			WithHintf("No provider intent found for resource %s", resourceID).
			Mark(ierr.ErrNotFound)
	}
	return intent, nil
}
