package property

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetByID returns ErrPropertyNotFound if the property does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Property, error)
}
