package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/postgres/generated"
	"github.com/iho/walletledger/internal/usecase"
)

// ProjectionRepository implements usecase.ProjectionRepository.
type ProjectionRepository struct {
	queries *generated.Queries
}

// NewProjectionRepository creates a new ProjectionRepository.
func NewProjectionRepository(pool *pgxpool.Pool) *ProjectionRepository {
	return newProjectionRepository(pool)
}

func newProjectionRepository(db generated.DBTX) *ProjectionRepository {
	return &ProjectionRepository{queries: generated.New(db)}
}

// Upsert writes the projection row within a transaction.
func (r *ProjectionRepository) Upsert(ctx context.Context, tx usecase.Transaction, p *domain.WalletProjection) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}
	queries := generated.New(ptx)

	err = queries.UpsertWalletProjection(ctx, generated.UpsertWalletProjectionParams{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Balance:     decimalToNumeric(p.Balance),
		Version:     p.Version,
		LastUpdated: timeToPgTimestamptz(p.LastUpdated),
	})

	return mapError("upsert projection", err)
}

// GetByID retrieves a projection by wallet ID.
func (r *ProjectionRepository) GetByID(ctx context.Context, id string) (*domain.WalletProjection, error) {
	row, err := r.queries.GetWalletProjection(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, mapError("get projection", err)
	}

	return rowToProjection(row), nil
}

// GetByOwner retrieves the projection of an owner's wallet.
func (r *ProjectionRepository) GetByOwner(ctx context.Context, ownerID string) (*domain.WalletProjection, error) {
	row, err := r.queries.GetWalletProjectionByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, mapError("get projection by owner", err)
	}

	return rowToProjection(row), nil
}

// List lists projections with pagination.
func (r *ProjectionRepository) List(ctx context.Context, limit, offset int) ([]*domain.WalletProjection, error) {
	rows, err := r.queries.ListWalletProjections(ctx, generated.ListWalletProjectionsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return nil, mapError("list projections", err)
	}

	projections := make([]*domain.WalletProjection, 0, len(rows))
	for _, row := range rows {
		projections = append(projections, rowToProjection(row))
	}

	return projections, nil
}

func rowToProjection(row generated.WalletProjection) *domain.WalletProjection {
	return &domain.WalletProjection{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Balance:     numericToDecimal(row.Balance),
		Version:     row.Version,
		LastUpdated: row.LastUpdated.Time.UTC(),
	}
}
