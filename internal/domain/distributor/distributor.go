package distributor

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested distributor does not exist.
var ErrNotFound = errors.New("distributor not found")

// Distributor is a seller account. Each order is placed against exactly one
// distributor, who reviews and fulfils it.
type Distributor struct {
	ID     string
	Name   string
	City   string
	State  string
	Active bool
}

// Repository defines read operations for distributor accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Distributor, error)
}
