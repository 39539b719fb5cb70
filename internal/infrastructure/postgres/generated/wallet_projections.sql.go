package generated

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const upsertWalletProjection = `-- name: UpsertWalletProjection :exec
INSERT INTO wallet_projections (id, owner_id, balance, version, last_updated)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET owner_id = EXCLUDED.owner_id,
    balance = EXCLUDED.balance,
    version = EXCLUDED.version,
    last_updated = EXCLUDED.last_updated
`

type UpsertWalletProjectionParams struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"owner_id"`
	Balance     pgtype.Numeric     `json:"balance"`
	Version     int64              `json:"version"`
	LastUpdated pgtype.Timestamptz `json:"last_updated"`
}

func (q *Queries) UpsertWalletProjection(ctx context.Context, arg UpsertWalletProjectionParams) error {
	_, err := q.db.Exec(ctx, upsertWalletProjection,
		arg.ID,
		arg.OwnerID,
		arg.Balance,
		arg.Version,
		arg.LastUpdated,
	)
	return err
}

const getWalletProjection = `-- name: GetWalletProjection :one
SELECT id, owner_id, balance, version, last_updated FROM wallet_projections
WHERE id = $1
`

func (q *Queries) GetWalletProjection(ctx context.Context, id string) (WalletProjection, error) {
	row := q.db.QueryRow(ctx, getWalletProjection, id)
	var i WalletProjection
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Balance,
		&i.Version,
		&i.LastUpdated,
	)
	return i, err
}

const getWalletProjectionByOwner = `-- name: GetWalletProjectionByOwner :one
SELECT id, owner_id, balance, version, last_updated FROM wallet_projections
WHERE owner_id = $1
`

func (q *Queries) GetWalletProjectionByOwner(ctx context.Context, ownerID string) (WalletProjection, error) {
	row := q.db.QueryRow(ctx, getWalletProjectionByOwner, ownerID)
	var i WalletProjection
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Balance,
		&i.Version,
		&i.LastUpdated,
	)
	return i, err
}

const listWalletProjections = `-- name: ListWalletProjections :many
SELECT id, owner_id, balance, version, last_updated FROM wallet_projections
ORDER BY id
LIMIT $1 OFFSET $2
`

type ListWalletProjectionsParams struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

func (q *Queries) ListWalletProjections(ctx context.Context, arg ListWalletProjectionsParams) ([]WalletProjection, error) {
	rows, err := q.db.Query(ctx, listWalletProjections, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []WalletProjection{}
	for rows.Next() {
		var i WalletProjection
		if err := rows.Scan(
			&i.ID,
			&i.OwnerID,
			&i.Balance,
			&i.Version,
			&i.LastUpdated,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
