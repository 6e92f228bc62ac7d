package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/property"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/events"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const resourceAppointment = "appointment"

// UserRepository reads accounts owned by the identity service.
type UserRepository interface {
	// GetByID returns domain.ErrUserNotFound if no account has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID        uuid.UUID
	Role      domain.Role
	IP        string
	RequestID string
}

type AppointmentService struct {
	repo       appointment.Repository
	properties property.Repository
	users      UserRepository
	auditSvc   *AuditService
	publisher  events.Publisher
	metrics    *metrics.Collector
	loc        *time.Location
	log        *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewAppointmentService(
	repo appointment.Repository,
	properties property.Repository,
	users UserRepository,
	auditSvc *AuditService,
	publisher events.Publisher,
	m *metrics.Collector,
	loc *time.Location,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:       repo,
		properties: properties,
		users:      users,
		auditSvc:   auditSvc,
		publisher:  publisher,
		metrics:    m,
		loc:        loc,
		log:        log,
		tracer:     otel.Tracer("propflow/service/appointment"),
		now:        time.Now,
	}
}

// Create books a pending appointment owned by the actor.
func (s *AppointmentService) Create(ctx context.Context, cmd *appointment.CreateAppointmentCommand, actor Actor) (_ *appointment.Details, err error) {
	ctx, span := s.startSpan(ctx, "Create", actor, attribute.String("property.id", cmd.PropertyID.String()))
	defer func() { endSpan(span, err) }()

	if cmd.PropertyID == uuid.Nil {
		return nil, &ValidationError{Fields: []string{"propertyId is required"}}
	}

	if _, err := s.properties.GetByID(ctx, cmd.PropertyID); err != nil {
		return nil, err
	}

	slot, err := appointment.NewSlot(cmd.Date, cmd.StartTime)
	if err != nil {
		return nil, err
	}
	if err := appointment.ValidateLeadTime(slot, s.now(), s.loc); err != nil {
		return nil, err
	}

	a := &appointment.Appointment{
		PropertyID: cmd.PropertyID,
		ClientID:   actor.ID,
		Date:       slot.Date,
		StartTime:  slot.Start,
		EndTime:    slot.End,
		Status:     appointment.StatusPending,
		Notes:      cmd.Notes,
	}

	err = s.repo.WithinSlotLock(ctx, a.PropertyID, a.Date, func(ctx context.Context) error {
		if err := s.ensureSlotFree(ctx, appointment.ConflictQuery{PropertyID: a.PropertyID, Slot: slot}); err != nil {
			return err
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, s.writeFailed("create", err)
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", a.ID.String()),
		zap.String("property_id", a.PropertyID.String()),
		zap.String("slot", slot.String()),
	)
	s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()
	s.record(ctx, actor, domain.ActionCreate, a, events.AppointmentCreated, map[string]any{
		"propertyId": a.PropertyID,
		"date":       a.Date.Format(time.DateOnly),
		"startTime":  a.StartTime,
		"endTime":    a.EndTime,
		"status":     a.Status,
	})

	return s.details(ctx, a), nil
}

// Get returns the appointment with its property and party summaries. Clients only see their own.
func (s *AppointmentService) Get(ctx context.Context, id uuid.UUID, actor Actor) (_ *appointment.Details, err error) {
	ctx, span := s.startSpan(ctx, "Get", actor, attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	d, err := s.repo.GetDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, &d.Appointment) {
		return nil, ErrForbidden
	}

	s.auditSvc.LogAsync(AuditEntry{
		UserID: actor.ID, UserRole: actor.Role, IPAddress: actor.IP, RequestID: actor.RequestID,
		Action: domain.ActionRead, ResourceType: resourceAppointment, ResourceID: id.String(),
	})

	return d, nil
}

// List returns a page of appointments. A client's listing is always restricted to their own.
func (s *AppointmentService) List(ctx context.Context, q *appointment.ListAppointmentsQuery, actor Actor) (_ *appointment.PagedAppointments, err error) {
	ctx, span := s.startSpan(ctx, "List", actor)
	defer func() { endSpan(span, err) }()

	if actor.Role == domain.RoleClient {
		q.ClientID = &actor.ID
	}
	if q.Status != nil && !q.Status.IsValid() {
		return nil, appointment.ErrInvalidStatus
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return nil, &ValidationError{Fields: []string{"dateFrom must not be after dateTo"}}
	}
	q.Normalize()

	return s.repo.List(ctx, q)
}

// ListByProperty lists the appointments of one existing property.
func (s *AppointmentService) ListByProperty(ctx context.Context, propertyID uuid.UUID, q *appointment.ListAppointmentsQuery, actor Actor) (_ *appointment.PagedAppointments, err error) {
	ctx, span := s.startSpan(ctx, "ListByProperty", actor, attribute.String("property.id", propertyID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		return nil, err
	}
	q.PropertyID = &propertyID
	return s.List(ctx, q, actor)
}

// Update applies a partial update. Clients may only cancel and edit their own notes.
func (s *AppointmentService) Update(ctx context.Context, id uuid.UUID, cmd appointment.UpdateAppointmentCommand, actor Actor) (*appointment.Details, error) {
	return s.update(ctx, "Update", id, cmd, actor, updateOptions{})
}

func (s *AppointmentService) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*appointment.Details, error) {
	status := appointment.StatusCancelled
	return s.update(ctx, "Cancel", id, appointment.UpdateAppointmentCommand{Status: &status}, actor, updateOptions{strict: true})
}

// Confirm assigns agentID and confirms. Only agents and administrators may confirm.
func (s *AppointmentService) Confirm(ctx context.Context, id uuid.UUID, agentID *uuid.UUID, actor Actor) (*appointment.Details, error) {
	if !actor.Role.IsStaff() {
		return nil, ErrForbidden
	}
	if agentID == nil || *agentID == uuid.Nil {
		return nil, &ValidationError{Fields: []string{"agentId is required to confirm an appointment"}}
	}
	agent, err := s.resolveAgent(ctx, *agentID)
	if err != nil {
		return nil, err
	}

	status := appointment.StatusConfirmed
	cmd := appointment.UpdateAppointmentCommand{Status: &status, AgentID: agentID}
	return s.update(ctx, "Confirm", id, cmd, actor, updateOptions{strict: true, agent: agent})
}

func (s *AppointmentService) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*appointment.Details, error) {
	if !actor.Role.IsStaff() {
		return nil, ErrForbidden
	}
	status := appointment.StatusCompleted
	return s.update(ctx, "Complete", id, appointment.UpdateAppointmentCommand{Status: &status}, actor, updateOptions{strict: true})
}

// Delete removes an appointment permanently. Administrators only.
func (s *AppointmentService) Delete(ctx context.Context, id uuid.UUID, actor Actor) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", actor, attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	if actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting appointment: %w", err)
	}

	s.log.Info("appointment deleted", zap.String("appointment_id", id.String()), zap.String("actor_id", actor.ID.String()))
	s.record(ctx, actor, domain.ActionDelete, a, events.AppointmentDeleted, map[string]any{"status": a.Status})
	return nil
}

type updateOptions struct {
	// strict rejects a status change to the status the appointment already has.
	strict bool
	// agent was resolved by the caller before the appointment was loaded.
	agent *domain.User
}

func (s *AppointmentService) update(
	ctx context.Context,
	op string,
	id uuid.UUID,
	cmd appointment.UpdateAppointmentCommand,
	actor Actor,
	opts updateOptions,
) (_ *appointment.Details, err error) {
	ctx, span := s.startSpan(ctx, op, actor, attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor.Role == domain.RoleClient {
		if a.ClientID != actor.ID {
			return nil, ErrForbidden
		}
		cmd = cmd.ClientView()
		if a.Status.IsTerminal() {
			return nil, appointment.ErrAppointmentClosed
		}
	} else if !actor.Role.IsStaff() {
		return nil, ErrForbidden
	}

	now := s.now()
	changes := map[string]any{}
	prevStatus := a.Status

	// Reschedule before any status change so a cancelled or completed target cannot move.
	rescheduled, err := s.applyReschedule(a, cmd, now, changes)
	if err != nil {
		return nil, err
	}

	if cmd.Status != nil {
		if err := s.applyStatus(ctx, a, *cmd.Status, cmd.AgentID, actor, now, opts); err != nil {
			return nil, err
		}
	}

	if cmd.Notes != nil && *cmd.Notes != a.Notes {
		a.Notes = *cmd.Notes
		changes["notes"] = a.Notes
	}
	if cmd.ClientNotes != nil && *cmd.ClientNotes != a.ClientNotes {
		a.ClientNotes = *cmd.ClientNotes
		changes["clientNotes"] = a.ClientNotes
	}
	if cmd.AgentNotes != nil && *cmd.AgentNotes != a.AgentNotes {
		a.AgentNotes = *cmd.AgentNotes
		changes["agentNotes"] = a.AgentNotes
	}
	if a.Status != prevStatus {
		changes["status"] = map[string]appointment.Status{"from": prevStatus, "to": a.Status}
		if a.AgentID != nil && a.Status == appointment.StatusConfirmed {
			changes["agentId"] = *a.AgentID
		}
	}

	if len(changes) == 0 {
		return s.details(ctx, a), nil
	}

	// A cancelled target occupies no slot, so only an active one is checked.
	checkSlot := rescheduled && a.Status.IsActive()
	write := func(ctx context.Context) error {
		if checkSlot {
			q := appointment.ConflictQuery{PropertyID: a.PropertyID, Slot: a.Slot(), ExcludeID: &a.ID}
			if err := s.ensureSlotFree(ctx, q); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, a)
	}
	if checkSlot {
		err = s.repo.WithinSlotLock(ctx, a.PropertyID, a.Date, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, s.writeFailed(op, err)
	}

	eventType := events.AppointmentUpdated
	if a.Status != prevStatus {
		eventType = events.TypeForStatus(a.Status)
		s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()
	}
	s.log.Info("appointment updated",
		zap.String("appointment_id", a.ID.String()),
		zap.String("op", op),
		zap.String("status", string(a.Status)),
		zap.Bool("rescheduled", rescheduled),
	)
	s.record(ctx, actor, domain.ActionUpdate, a, eventType, changes)

	return s.details(ctx, a), nil
}

// applyReschedule moves a to the slot described by cmd, if it differs from the current one.
func (s *AppointmentService) applyReschedule(a *appointment.Appointment, cmd appointment.UpdateAppointmentCommand, now time.Time, changes map[string]any) (bool, error) {
	if cmd.Date == nil && cmd.StartTime == nil {
		return false, nil
	}

	date, start := a.Date, a.StartTime
	if cmd.Date != nil {
		date = *cmd.Date
	}
	if cmd.StartTime != nil {
		start = *cmd.StartTime
	}

	slot, err := appointment.NewSlot(date, start)
	if err != nil {
		return false, err
	}
	current := a.Slot()
	if slot.Date.Equal(current.Date) && slot.Start == current.Start {
		return false, nil
	}

	if err := a.Reschedule(slot); err != nil {
		return false, err
	}
	if err := appointment.ValidateLeadTime(slot, now, s.loc); err != nil {
		return false, err
	}

	changes["date"] = slot.Date.Format(time.DateOnly)
	changes["startTime"] = slot.Start
	changes["endTime"] = slot.End
	return true, nil
}

func (s *AppointmentService) applyStatus(
	ctx context.Context,
	a *appointment.Appointment,
	target appointment.Status,
	agentID *uuid.UUID,
	actor Actor,
	now time.Time,
	opts updateOptions,
) error {
	if !target.IsValid() {
		return appointment.ErrInvalidStatus
	}
	if actor.Role == domain.RoleClient && target != appointment.StatusCancelled {
		return fmt.Errorf("%w: clients can only cancel appointments", ErrForbidden)
	}
	if target == a.Status {
		if opts.strict {
			return appointment.ErrInvalidStatusTransition
		}
		return nil
	}
	if !a.CanTransitionTo(target) {
		return appointment.ErrInvalidStatusTransition
	}

	switch target {
	case appointment.StatusConfirmed:
		agent := opts.agent
		if agent == nil {
			if agentID == nil || *agentID == uuid.Nil {
				return &ValidationError{Fields: []string{"agentId is required to confirm an appointment"}}
			}
			var err error
			if agent, err = s.resolveAgent(ctx, *agentID); err != nil {
				return err
			}
		}
		return a.Confirm(agent.ID, now)
	case appointment.StatusCancelled:
		return a.Cancel(actor.ID, now)
	case appointment.StatusCompleted:
		return a.Complete(now)
	}
	return appointment.ErrInvalidStatusTransition
}

// resolveAgent returns the active agent account with the given id.
func (s *AppointmentService) resolveAgent(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("loading agent: %w", err)
	}
	if !u.IsActive {
		return nil, ErrAgentNotFound
	}
	if u.Role != domain.RoleAgent {
		return nil, ErrInvalidAgentRole
	}
	return u, nil
}

func (s *AppointmentService) ensureSlotFree(ctx context.Context, q appointment.ConflictQuery) error {
	conflicts, err := s.repo.FindConflicts(ctx, q)
	if err != nil {
		return fmt.Errorf("checking conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		s.log.Debug("slot already booked",
			zap.String("property_id", q.PropertyID.String()),
			zap.String("slot", q.Slot.String()),
			zap.String("conflicting_id", conflicts[0].ID.String()),
		)
		return appointment.ErrSlotConflict
	}
	return nil
}

// writeFailed counts slot conflicts and wraps anything unexpected.
func (s *AppointmentService) writeFailed(op string, err error) error {
	switch {
	case errors.Is(err, appointment.ErrSlotConflict):
		s.metrics.SlotConflictsTotal.Inc()
		return err
	case errors.Is(err, appointment.ErrAppointmentNotUpdated):
		return err
	}
	s.log.Error("appointment write failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s appointment: %w", op, err)
}

// record writes the audit entry and publishes the event for a committed write.
func (s *AppointmentService) record(ctx context.Context, actor Actor, action domain.AuditAction, a *appointment.Appointment, t events.Type, changes map[string]any) {
	body, err := json.Marshal(changes)
	if err != nil {
		body = []byte("{}")
	}
	s.auditSvc.LogAsync(AuditEntry{
		UserID:       actor.ID,
		UserRole:     actor.Role,
		Action:       action,
		ResourceType: resourceAppointment,
		ResourceID:   a.ID.String(),
		IPAddress:    actor.IP,
		RequestID:    actor.RequestID,
		Changes:      string(body),
	})

	e := events.NewAppointmentEvent(t, a, actor.ID, string(actor.Role), s.now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.metrics.EventPublishFailure.Inc()
		s.log.Warn("failed to publish appointment event",
			zap.String("event_type", string(t)),
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.metrics.EventsPublished.WithLabelValues(string(t)).Inc()
}

// details reloads a with its summaries, falling back to the bare record after a committed write.
func (s *AppointmentService) details(ctx context.Context, a *appointment.Appointment) *appointment.Details {
	d, err := s.repo.GetDetails(ctx, a.ID)
	if err != nil {
		s.log.Warn("loading appointment details", zap.String("appointment_id", a.ID.String()), zap.Error(err))
		return &appointment.Details{Appointment: *a}
	}
	return d
}

func canView(actor Actor, a *appointment.Appointment) bool {
	if actor.Role.IsStaff() {
		return true
	}
	return actor.Role == domain.RoleClient && a.ClientID == actor.ID
}

func (s *AppointmentService) startSpan(ctx context.Context, op string, actor Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("actor.id", actor.ID.String()),
		attribute.String("actor.role", string(actor.Role)),
	)
	return s.tracer.Start(ctx, "AppointmentService."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
