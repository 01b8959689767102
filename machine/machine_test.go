package machine

import (
	"errors"
	"testing"

	"estateflow/fault"
)

var table = Table{
	"draft":  {"pending_signature", "cancelled"},
	"signed": {"notarized"},
}

func TestCan(t *testing.T) {
	if !table.Can("draft", "cancelled") {
		t.Errorf("expected draft -> cancelled to be legal")
	}
	if table.Can("draft", "notarized") {
		t.Errorf("expected draft -> notarized to be illegal")
	}
	if table.Can("cancelled", "draft") {
		t.Errorf("expected terminal status to allow nothing")
	}
}

func TestCheckReturnsTypedError(t *testing.T) {
	if err := table.Check("contract", "draft", "pending_signature"); err != nil {
		t.Fatalf("expected legal transition, got %v", err)
	}

	err := table.Check("contract", "signed", "cancelled")
	var ite *fault.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %T", err)
	}
	if ite.Entity != "contract" || ite.From != "signed" || ite.To != "cancelled" {
		t.Fatalf("unexpected error detail: %+v", ite)
	}
}

func TestTerminal(t *testing.T) {
	if table.Terminal("draft") {
		t.Errorf("draft has outgoing transitions")
	}
	if !table.Terminal("cancelled") {
		t.Errorf("cancelled is terminal")
	}
}
