package appointment

import "errors"

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrSlotConflict            = errors.New("appointment time slot is already booked")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrInvalidStatus           = errors.New("invalid appointment status")
	ErrAppointmentClosed       = errors.New("appointment is already completed or cancelled")
	ErrInsufficientLeadTime    = errors.New("appointments must be scheduled at least 12 hours in advance")
	ErrInvalidTimeFormat       = errors.New("invalid time format, use HH:MM")
	ErrSlotCrossesMidnight     = errors.New("appointment must end on the same day it starts")
	ErrDateRequired            = errors.New("appointment date is required")
	ErrAppointmentNotUpdated   = errors.New("appointment was modified concurrently or no longer exists")
)
