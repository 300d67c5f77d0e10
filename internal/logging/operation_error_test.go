package logging

import (
	"errors"
	"testing"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	if err := NewOperationError("op", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorMessage(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("acuant.create_instance", "req-1", base)

	if got := err.Error(); got != "acuant.create_instance (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %s", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to reach the cause")
	}
}

func TestOperationOfReturnsInnermost(t *testing.T) {
	inner := NewOperationError("cache.get.token", "", errors.New("timeout"))
	outer := NewOperationError("session.bootstrap", "req-2", inner)

	if got := OperationOf(outer); got != "cache.get.token" {
		t.Fatalf("expected innermost operation, got %s", got)
	}
	if got := OperationOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty operation, got %s", got)
	}
}
