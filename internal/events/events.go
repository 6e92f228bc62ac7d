package events

import (
	"context"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/google/uuid"
)

type Type string

const (
	AppointmentCreated   Type = "appointment.created"
	AppointmentUpdated   Type = "appointment.updated"
	AppointmentConfirmed Type = "appointment.confirmed"
	AppointmentCancelled Type = "appointment.cancelled"
	AppointmentCompleted Type = "appointment.completed"
	AppointmentDeleted   Type = "appointment.deleted"
)

// TypeForStatus maps the status an appointment moved into to its event type.
func TypeForStatus(s appointment.Status) Type {
	switch s {
	case appointment.StatusConfirmed:
		return AppointmentConfirmed
	case appointment.StatusCancelled:
		return AppointmentCancelled
	case appointment.StatusCompleted:
		return AppointmentCompleted
	}
	return AppointmentUpdated
}

// AppointmentEvent is the message body published for every appointment write.
type AppointmentEvent struct {
	ID         uuid.UUID `json:"eventId"`
	Type       Type      `json:"eventType"`
	OccurredAt time.Time `json:"occurredAt"`
	ActorID    uuid.UUID `json:"actorId"`
	ActorRole  string    `json:"actorRole"`
	Payload    Snapshot  `json:"appointment"`
}

// Snapshot is the appointment state after the write.
type Snapshot struct {
	ID         uuid.UUID          `json:"id"`
	PropertyID uuid.UUID          `json:"propertyId"`
	ClientID   uuid.UUID          `json:"clientId"`
	AgentID    *uuid.UUID         `json:"agentId,omitempty"`
	Date       string             `json:"date"`
	StartTime  string             `json:"startTime"`
	EndTime    string             `json:"endTime"`
	Status     appointment.Status `json:"status"`
}

func NewAppointmentEvent(t Type, a *appointment.Appointment, actorID uuid.UUID, actorRole string, at time.Time) AppointmentEvent {
	return AppointmentEvent{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: at.UTC(),
		ActorID:    actorID,
		ActorRole:  actorRole,
		Payload: Snapshot{
			ID:         a.ID,
			PropertyID: a.PropertyID,
			ClientID:   a.ClientID,
			AgentID:    a.AgentID,
			Date:       a.Date.Format(time.DateOnly),
			StartTime:  a.StartTime,
			EndTime:    a.EndTime,
			Status:     a.Status,
		},
	}
}

type Publisher interface {
	Publish(ctx context.Context, e AppointmentEvent) error
	Close() error
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, AppointmentEvent) error { return nil }
func (NoopPublisher) Close() error { return nil }
