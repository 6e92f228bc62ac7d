package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new appointment. Returns ErrSlotConflict if the store rejects an overlap.
	Create(ctx context.Context, a *Appointment) error

	// GetByID returns ErrAppointmentNotFound if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// GetDetails loads the appointment with property, client and agent summaries.
	GetDetails(ctx context.Context, id uuid.UUID) (*Details, error)

	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// Update writes the mutable fields of a, provided the stored row still carries
	// a.UpdatedAt. Returns ErrAppointmentNotUpdated otherwise.
	Update(ctx context.Context, a *Appointment) error

	Delete(ctx context.Context, id uuid.UUID) error

	// FindConflicts returns active appointments on the same property and day whose
	// time range overlaps q.Slot.
	FindConflicts(ctx context.Context, q ConflictQuery) ([]*Appointment, error)

	// WithinSlotLock runs fn in a transaction that holds an exclusive lock on the
	// (property, day) pair. Repository calls made with the ctx passed to fn join it.
	WithinSlotLock(ctx context.Context, propertyID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error
}
