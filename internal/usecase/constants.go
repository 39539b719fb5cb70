package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a storage transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultProjectionCacheTTL bounds how long a cached projection may be served
	DefaultProjectionCacheTTL = 30 * time.Second

	// DefaultListLimit and MaxListLimit bound wallet listing pages
	DefaultListLimit = 20
	MaxListLimit     = 200

	// reconciliationPageSize is the page size used when scanning all projections
	reconciliationPageSize = 500
)

// Operation names reported to Metrics.
const (
	OpCreateWallet = "create_wallet"
	OpDeposit      = "deposit"
	OpWithdraw     = "withdraw"
	OpTransfer     = "transfer"
)
