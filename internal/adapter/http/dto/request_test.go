package dto

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/usecase"
)

func TestTransferRequest_ToUseCaseInput(t *testing.T) {
	var req TransferRequest
	if err := json.Unmarshal([]byte(`{"from_wallet_id":"a","to_wallet_id":"b","amount":"12.50"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := req.ToUseCaseInput()
	if got.FromWalletID != "a" || got.ToWalletID != "b" || !got.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestAmountRequest_AcceptsNumbersAndStrings(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"amount":"10.25"}`, "10.25"},
		{"number", `{"amount":10.25}`, "10.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req AmountRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			in := req.ToDepositInput("w1")
			if in.WalletID != "w1" || !in.Amount.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("unexpected deposit input %+v", in)
			}

			out := req.ToWithdrawInput("w1")
			if out != (usecase.WithdrawInput{WalletID: "w1", Amount: in.Amount}) {
				t.Fatalf("unexpected withdraw input %+v", out)
			}
		})
	}
}

func TestCreateWalletRequest_ToUseCaseInput(t *testing.T) {
	req := &CreateWalletRequest{OwnerID: "user-1"}
	if got := req.ToUseCaseInput(); got.OwnerID != "user-1" {
		t.Fatalf("unexpected input %+v", got)
	}
}
