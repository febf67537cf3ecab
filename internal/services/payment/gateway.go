package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-pos/internal/models"
)

// GatewayRequest describes one authorization attempt. The idempotency
// key is the payment's own key so a retried attempt is recognized by
// the processor.
type GatewayRequest struct {
	IdempotencyKey string
	OrderID        string
	TerminalID     string
	Amount         decimal.Decimal
	Method         models.PaymentMethod
}

// GatewayResult is the processor's answer to an authorization.
// Success=false is a decline; transport problems are reported as an
// error from the call instead.
type GatewayResult struct {
	Success           bool
	TransactionID     string
	AuthorizationCode string
	Reason            string
}

// Gateway is the card processor contract. A non-nil error from
// Authorize means the processor could not be reached and nothing can be
// said about the payment's fate; the caller must queue the payment for
// retry rather than decline it.
type Gateway interface {
	Authorize(ctx context.Context, req GatewayRequest) (*GatewayResult, error)
	Capture(ctx context.Context, transactionID string) error
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
}

// AuthorizeFunc lets tests and demos script gateway outcomes
type AuthorizeFunc func(req GatewayRequest) (*GatewayResult, error)

// MockGateway simulates a processor. Results are cached per idempotency
// key so a retried authorization returns the original outcome instead
// of charging twice. Transport errors are not cached; the processor
// never saw those attempts.
type MockGateway struct {
	mu        sync.Mutex
	results   map[string]*GatewayResult
	authorize AuthorizeFunc
	calls     int
}

// NewMockGateway creates a gateway that approves everything by default
func NewMockGateway() *MockGateway {
	return &MockGateway{results: make(map[string]*GatewayResult)}
}

// SetAuthorizeFunc overrides the outcome of future uncached authorizations
func (g *MockGateway) SetAuthorizeFunc(f AuthorizeFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorize = f
}

// Calls reports how many authorizations reached the processor
func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *MockGateway) Authorize(ctx context.Context, req GatewayRequest) (*GatewayResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cached, ok := g.results[req.IdempotencyKey]; ok {
		result := *cached
		return &result, nil
	}

	g.calls++

	var result *GatewayResult
	if g.authorize != nil {
		var err error
		result, err = g.authorize(req)
		if err != nil {
			return nil, err
		}
	} else {
		result = &GatewayResult{
			Success:           true,
			TransactionID:     "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
			AuthorizationCode: "AUTH" + strings.ToUpper(uuid.NewString()[:6]),
		}
	}

	cached := *result
	g.results[req.IdempotencyKey] = &cached
	return result, nil
}

func (g *MockGateway) Capture(ctx context.Context, transactionID string) error {
	return ctx.Err()
}

func (g *MockGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	return ctx.Err()
}
