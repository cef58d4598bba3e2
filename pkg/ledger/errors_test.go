package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrAccountNotFound, "account_not_found"},
		{fmt.Errorf("get 7: %w", ErrAccountNotFound), "account_not_found"},
		{ErrInvalidAmount, "invalid_amount"},
		{fmt.Errorf("%w: account 1 holds 0", ErrInsufficientFunds), "insufficient_funds"},
		{ErrSameAccount, "same_account"},
		{ErrDuplicateExternalNumber, "duplicate_external_number"},
		{ErrInvalidExternalNumber, "invalid_external_number"},
		{ErrOwnerNotFound, "owner_not_found"},
		{ErrUserExists, "user_exists"},
		{ErrInvalidUsername, "invalid_username"},
		{errors.New("connection refused"), "internal"},
		{context.DeadlineExceeded, "internal"},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsBusinessError(t *testing.T) {
	for _, err := range businessErrors {
		if !IsBusinessError(fmt.Errorf("wrapped: %w", err)) {
			t.Errorf("Expected %v to be a business error", err)
		}
	}

	for _, err := range []error{nil, errors.New("boom"), context.Canceled} {
		if IsBusinessError(err) {
			t.Errorf("Expected %v not to be a business error", err)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("x: %w", ErrAccountNotFound)) || !IsNotFound(ErrOwnerNotFound) {
		t.Error("Expected not-found errors to be detected")
	}
	if IsNotFound(ErrInsufficientFunds) || IsNotFound(nil) {
		t.Error("Expected other errors not to be reported as not found")
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range []Kind{KindDeposit, KindWithdraw, KindTransfer} {
		if !k.Valid() {
			t.Errorf("Expected %s to be valid", k)
		}
	}
	if Kind("REFUND").Valid() {
		t.Error("Expected unknown kind to be invalid")
	}
}

func TestTransaction_Touches(t *testing.T) {
	tx := Transaction{Kind: KindTransfer, From: 1, To: 2}
	if !tx.Touches(1) || !tx.Touches(2) || tx.Touches(3) {
		t.Errorf("Unexpected Touches results for %+v", tx)
	}
}
