package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxIDLength    = 64
	MaxAmount      = "1000000000000" // 1 trillion
	AmountDecimals = 2
)

var maxAmount = decimal.RequireFromString(MaxAmount)

// ValidateAmount validates a deposit, withdrawal or transfer amount at the
// API boundary. The aggregate itself only rejects non-positive amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if !amount.Equal(amount.Truncate(AmountDecimals)) {
		return fmt.Errorf("%w: at most %d decimal places allowed", ErrInvalidAmount, AmountDecimals)
	}

	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrInvalidAmount, MaxAmount)
	}

	return nil
}

// ValidateWalletID checks that a wallet identifier is well formed.
func ValidateWalletID(id string) error {
	return validateID("wallet id", id)
}

// ValidateOwnerID checks that an owner identifier is well formed.
func ValidateOwnerID(id string) error {
	return validateID("owner id", id)
}

func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}

	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidArgument, field, MaxIDLength)
	}

	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %s contains whitespace or control characters", ErrInvalidArgument, field)
		}
	}

	return nil
}

// ValidatePagination clamps a requested page: a non-positive limit becomes
// defaultLimit, limits above maxLimit are capped, negative offsets become 0.
func ValidatePagination(limit, offset, defaultLimit, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
