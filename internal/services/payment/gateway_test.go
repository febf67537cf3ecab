package payment

import (
	"context"
	"errors"
	"testing"

	"restaurant-pos/internal/models"
)

func authRequest(key string) GatewayRequest {
	return GatewayRequest{
		IdempotencyKey: key,
		OrderID:        "order-1",
		TerminalID:     "TERM1",
		Amount:         dec("25.60"),
		Method:         models.MethodCard,
	}
}

func TestMockGatewayIdempotency(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	first, err := g.Authorize(ctx, authRequest("key-1"))
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	second, err := g.Authorize(ctx, authRequest("key-1"))
	if err != nil {
		t.Fatalf("repeat Authorize failed: %v", err)
	}

	if first.TransactionID != second.TransactionID {
		t.Fatalf("expected cached result, got %s and %s", first.TransactionID, second.TransactionID)
	}
	if g.Calls() != 1 {
		t.Fatalf("expected 1 processor call, got %d", g.Calls())
	}

	other, _ := g.Authorize(ctx, authRequest("key-2"))
	if other.TransactionID == first.TransactionID {
		t.Fatal("different keys must get different transactions")
	}
	if g.Calls() != 2 {
		t.Fatalf("expected 2 processor calls, got %d", g.Calls())
	}
}

func TestMockGatewayTransportErrorsNotCached(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	g.SetAuthorizeFunc(func(req GatewayRequest) (*GatewayResult, error) {
		return nil, errors.New("connection refused")
	})
	if _, err := g.Authorize(ctx, authRequest("key-1")); err == nil {
		t.Fatal("expected transport error")
	}

	g.SetAuthorizeFunc(nil)
	result, err := g.Authorize(ctx, authRequest("key-1"))
	if err != nil {
		t.Fatalf("Authorize after recovery failed: %v", err)
	}
	if !result.Success {
		t.Fatal("expected approval after recovery")
	}
}

func TestMockGatewayHonorsContext(t *testing.T) {
	g := NewMockGateway()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Authorize(ctx, authRequest("key-1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if g.Calls() != 0 {
		t.Fatalf("cancelled call must not reach the processor, got %d calls", g.Calls())
	}
}
