package appointment

import (
	"time"

	"github.com/google/uuid"
)

// State transitions:
//
//	pending → confirmed → completed
//	pending → cancelled
//	confirmed → cancelled
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether an appointment in this status occupies its slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ActiveStatuses are the statuses considered by conflict detection.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PropertyID uuid.UUID  `gorm:"column:property_id;type:uuid;not null;index"`
	ClientID   uuid.UUID  `gorm:"column:client_id;type:uuid;not null;index"`
	AgentID    *uuid.UUID `gorm:"column:agent_id;type:uuid;index"`

	Date      time.Time `gorm:"column:date;type:date;not null;index"`
	StartTime string    `gorm:"column:start_time;type:varchar(5);not null"`
	EndTime   string    `gorm:"column:end_time;type:varchar(5);not null"`
	Status    Status    `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`

	Notes       string `gorm:"column:notes;type:text"`
	ClientNotes string `gorm:"column:client_notes;type:text"`
	AgentNotes  string `gorm:"column:agent_notes;type:text"`

	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	CancelledBy *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (Appointment) TableName() string {
	return "booking.appointments"
}

func (a *Appointment) Slot() Slot {
	return Slot{Date: a.Date, Start: a.StartTime, End: a.EndTime}
}

// Reschedule moves the appointment to s. Terminal appointments keep their slot.
func (a *Appointment) Reschedule(s Slot) error {
	if a.Status.IsTerminal() {
		return ErrAppointmentClosed
	}
	a.Date = s.Date
	a.StartTime = s.Start
	a.EndTime = s.End
	return nil
}

func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
		StatusCompleted: {},
		StatusCancelled: {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// Confirm assigns the confirming agent. The agent is fixed from then on.
func (a *Appointment) Confirm(agentID uuid.UUID, at time.Time) error {
	if !a.CanTransitionTo(StatusConfirmed) {
		return ErrInvalidStatusTransition
	}
	a.Status = StatusConfirmed
	a.AgentID = &agentID
	a.ConfirmedAt = &at
	return nil
}

func (a *Appointment) Cancel(cancelledBy uuid.UUID, at time.Time) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	a.Status = StatusCancelled
	a.CancelledAt = &at
	a.CancelledBy = &cancelledBy
	return nil
}

func (a *Appointment) Complete(at time.Time) error {
	if !a.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}
	a.Status = StatusCompleted
	a.CompletedAt = &at
	return nil
}

// FilterConflicts returns the active appointments in candidates whose slot overlaps s on
// the given property, skipping excludeID.
func FilterConflicts(candidates []*Appointment, propertyID uuid.UUID, s Slot, excludeID *uuid.UUID) []*Appointment {
	var conflicts []*Appointment
	for _, c := range candidates {
		if c.PropertyID != propertyID || !c.Status.IsActive() {
			continue
		}
		if excludeID != nil && c.ID == *excludeID {
			continue
		}
		if c.Slot().Overlaps(s) {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

type PropertySummary struct {
	ID       uuid.UUID
	Title    string
	Location string
	ImageURL string
	Price    float64
}

type PartySummary struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
}

// Details is an appointment joined with summaries of the records it references.
// A summary is nil when the referenced record no longer exists.
type Details struct {
	Appointment
	Property *PropertySummary
	Client   *PartySummary
	Agent    *PartySummary
}

type CreateAppointmentCommand struct {
	PropertyID uuid.UUID
	Date       time.Time
	StartTime  string
	Notes      string
}

// UpdateAppointmentCommand is a partial update; nil fields are left unchanged.
type UpdateAppointmentCommand struct {
	Date        *time.Time
	StartTime   *string
	Status      *Status
	Notes       *string
	ClientNotes *string
	AgentNotes  *string
	AgentID     *uuid.UUID
}

// ClientView keeps only the fields a client may change on their own appointment.
func (c UpdateAppointmentCommand) ClientView() UpdateAppointmentCommand {
	return UpdateAppointmentCommand{
		Status:      c.Status,
		ClientNotes: c.ClientNotes,
	}
}

// ConflictQuery selects active appointments overlapping Slot on PropertyID.
type ConflictQuery struct {
	PropertyID uuid.UUID
	Slot       Slot
	ExcludeID  *uuid.UUID
}

type ListAppointmentsQuery struct {
	PropertyID *uuid.UUID
	ClientID   *uuid.UUID
	AgentID    *uuid.UUID
	Status     *Status
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string // "asc" | "desc"
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize applies the pagination defaults and clamps PageSize to MaxPageSize.
func (q *ListAppointmentsQuery) Normalize() {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.SortBy == "" {
		q.SortBy = "date"
	}
	if q.SortOrder != "desc" {
		q.SortOrder = "asc"
	}
}

type PagedAppointments struct {
	Appointments []*Details
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
