package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/walletledger/internal/domain"
)

const (
	pgErrUniqueViolation = "23505"

	constraintEventVersion    = "events_aggregate_version_key"
	constraintProjectionOwner = "wallet_projections_owner_id_key"
)

// mapError translates driver errors into domain errors. Unique violations on
// the event version and projection owner constraints are conflicts, anything
// else is a storage failure.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEventVersion:
			return fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, pgErr.Detail)
		case constraintProjectionOwner:
			return fmt.Errorf("%w: %s", domain.ErrWalletAlreadyExists, pgErr.Detail)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

// Type conversion helpers.
func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric

	_ = n.Scan(d.String())

	return n
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}

	d, _ := decimal.NewFromString(n.Int.String())
	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
