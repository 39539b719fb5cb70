package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		amount      decimal.Decimal
		expectError bool
	}{
		{name: "cents", amount: dec("100.25"), expectError: false},
		{name: "whole", amount: dec("1"), expectError: false},
		{name: "maximum", amount: dec(MaxAmount), expectError: false},
		{name: "zero", amount: decimal.Zero, expectError: true},
		{name: "negative", amount: dec("-5"), expectError: true},
		{name: "sub-cent", amount: dec("0.001"), expectError: true},
		{name: "too large", amount: dec(MaxAmount).Add(dec("0.01")), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.amount)
			if tt.expectError && !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if !tt.expectError && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	t.Parallel()

	if err := ValidateWalletID("01HZX3K8Q2V6Y7T1W9ABCDEF12"); err != nil {
		t.Fatalf("expected valid id, got %v", err)
	}
	if err := ValidateOwnerID(strings.Repeat("a", MaxIDLength+1)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := ValidateOwnerID("tab\tseparated"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{"defaults", 0, -10, 20, 0},
		{"negative limit", -1, 3, 20, 3},
		{"capped", 5000, 0, 200, 0},
		{"at max", 200, 40, 200, 40},
		{"in range", 5, 10, 5, 10},
	}

	for _, tt := range tests {
		limit, offset := ValidatePagination(tt.limit, tt.offset, 20, 200)
		if limit != tt.wantLimit || offset != tt.wantOffset {
			t.Fatalf("%s: got limit=%d offset=%d, want %d/%d", tt.name, limit, offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestRoleAllows(t *testing.T) {
	t.Parallel()

	if !RoleAdmin.Allows(RoleOperator) || !RoleOperator.Allows(RoleViewer) {
		t.Fatal("higher roles should allow lower ones")
	}
	if RoleViewer.Allows(RoleOperator) || RoleOperator.Allows(RoleAdmin) {
		t.Fatal("lower roles must not allow higher ones")
	}
	if Role("root").Allows(RoleViewer) {
		t.Fatal("unknown role must not be allowed")
	}
}
