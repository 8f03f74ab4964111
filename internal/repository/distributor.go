package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildkart/buildkart/internal/domain/distributor"
)

const getDistributorByIDSQL = `SELECT id, name, city, state, active
	FROM distributors WHERE id = $1`

var _ distributor.Repository = (*DistributorRepository)(nil)

// DistributorRepository implements distributor.Repository backed by PostgreSQL.
type DistributorRepository struct {
	pool *pgxpool.Pool
}

// NewDistributorRepository returns a DistributorRepository that uses the given pool.
func NewDistributorRepository(pool *pgxpool.Pool) *DistributorRepository {
	return &DistributorRepository{pool: pool}
}

// GetByID returns a single distributor by its identifier.
func (r *DistributorRepository) GetByID(ctx context.Context, id string) (*distributor.Distributor, error) {
	var d distributor.Distributor
	err := r.pool.QueryRow(ctx, getDistributorByIDSQL, id).Scan(
		&d.ID, &d.Name, &d.City, &d.State, &d.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, distributor.ErrNotFound
		}
		return nil, fmt.Errorf("getting distributor %q: %w", id, err)
	}
	return &d, nil
}
