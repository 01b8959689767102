package contract

import (
	"testing"
	"time"

	"estateflow/fault"
)

func TestTransitionTable(t *testing.T) {
	legal := [][2]Status{
		{StatusDraft, StatusPendingSignature},
		{StatusDraft, StatusCancelled},
		{StatusPendingSignature, StatusSigned},
		{StatusPendingSignature, StatusCancelled},
		{StatusSigned, StatusNotarized},
		{StatusNotarized, StatusFinalized},
	}
	for _, tc := range legal {
		if !Transitions.Can(string(tc[0]), string(tc[1])) {
			t.Errorf("expected %s -> %s to be legal", tc[0], tc[1])
		}
	}

	illegal := [][2]Status{
		{StatusDraft, StatusSigned},
		{StatusSigned, StatusCancelled},
		{StatusNotarized, StatusCancelled},
		{StatusFinalized, StatusDraft},
		{StatusCancelled, StatusDraft},
	}
	for _, tc := range illegal {
		if Transitions.Can(string(tc[0]), string(tc[1])) {
			t.Errorf("expected %s -> %s to be illegal", tc[0], tc[1])
		}
	}
}

func TestCheckTransitionRequiredFields(t *testing.T) {
	err := CheckTransition(StatusPendingSignature, TransitionParams{NextStatus: StatusSigned})
	if !fault.IsValidation(err) {
		t.Fatalf("signing without signed_date must fail validation, got %v", err)
	}

	now := time.Now()
	if err := CheckTransition(StatusPendingSignature, TransitionParams{NextStatus: StatusSigned, SignedDate: &now}); err != nil {
		t.Fatalf("signing with signed_date must pass, got %v", err)
	}

	err = CheckTransition(StatusDraft, TransitionParams{NextStatus: StatusCancelled})
	if !fault.IsValidation(err) {
		t.Fatalf("cancelling without reason must fail validation, got %v", err)
	}

	if err := CheckTransition(StatusDraft, TransitionParams{NextStatus: StatusCancelled, CancellationReason: "buyer withdrew"}); err != nil {
		t.Fatalf("cancelling with reason must pass, got %v", err)
	}
}

func TestCheckTransitionIllegalBeatsValidation(t *testing.T) {
	// Illegal table entries surface as InvalidTransition even when required
	// fields are also missing.
	err := CheckTransition(StatusSigned, TransitionParams{NextStatus: StatusCancelled})
	if !fault.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}
