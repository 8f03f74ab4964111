package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item listed by a distributor. Price is per Unit
// (a bag of cement, a length of rebar, a square metre of tile).
type Product struct {
	ID            string
	DistributorID string
	Name          string
	Category      string
	Unit          string
	Price         decimal.Decimal
	Stock         int
	Active        bool
	Image         string
}

// Repository defines read operations for the product catalog. Stock
// mutations happen inside order transactions, not here.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
