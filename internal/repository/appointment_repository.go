package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/property"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sqlStateExclusionViolation = "23P01"

// Sortable columns by their API name.
var appointmentSortColumns = map[string]string{
	"date":      "date",
	"startTime": "start_time",
	"status":    "status",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

type AppointmentRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewAppointmentRepository(db *gorm.DB, log *zap.Logger) *AppointmentRepository {
	return &AppointmentRepository{db: db, log: log}
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

func (r *AppointmentRepository) getDB(ctx context.Context) *gorm.DB {
	return conn(ctx, r.db)
}

func (r *AppointmentRepository) Create(ctx context.Context, a *appointment.Appointment) error {
	now := dbNow()
	a.CreatedAt, a.UpdatedAt = now, now

	if err := r.getDB(ctx).Create(a).Error; err != nil {
		if isExclusionViolation(err) {
			return appointment.ErrSlotConflict
		}
		return fmt.Errorf("inserting appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := r.getDB(ctx).First(&a, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("loading appointment %s: %w", id, err)
	}
	return &a, nil
}

func (r *AppointmentRepository) GetDetails(ctx context.Context, id uuid.UUID) (*appointment.Details, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	details, err := r.hydrate(ctx, []appointment.Appointment{*a})
	if err != nil {
		return nil, err
	}
	return details[0], nil
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	q.Normalize()
	page, pageSize := q.Page, q.PageSize

	query := r.getDB(ctx).Model(&appointment.Appointment{})
	if q.PropertyID != nil {
		query = query.Where("property_id = ?", *q.PropertyID)
	}
	if q.ClientID != nil {
		query = query.Where("client_id = ?", *q.ClientID)
	}
	if q.AgentID != nil {
		query = query.Where("agent_id = ?", *q.AgentID)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if q.DateFrom != nil {
		query = query.Where("date >= ?", appointment.DayStart(*q.DateFrom))
	}
	if q.DateTo != nil {
		query = query.Where("date <= ?", appointment.DayStart(*q.DateTo))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	result := &appointment.PagedAppointments{
		Appointments: []*appointment.Details{},
		TotalCount:   total,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   int(math.Ceil(float64(total) / float64(pageSize))),
	}
	if total == 0 {
		return result, nil
	}

	order := q.SortOrder
	column, ok := appointmentSortColumns[q.SortBy]
	if !ok {
		if q.SortBy != "" {
			r.log.Debug("unknown appointment sort field, using date", zap.String("sort_by", q.SortBy))
		}
		column = "date"
	}
	query = query.Order(column + " " + order)
	if column == "date" {
		query = query.Order("start_time " + order)
	}

	var rows []appointment.Appointment
	err := query.Limit(pageSize).Offset((page - 1) * pageSize).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}

	details, err := r.hydrate(ctx, rows)
	if err != nil {
		return nil, err
	}
	result.Appointments = details
	return result, nil
}

// Update writes the mutable columns of a, conditioned on the stored updated_at still
// matching a.UpdatedAt. On success a.UpdatedAt carries the new value.
func (r *AppointmentRepository) Update(ctx context.Context, a *appointment.Appointment) error {
	now := dbNow()

	res := r.getDB(ctx).Model(&appointment.Appointment{}).
		Where("id = ? AND updated_at = ?", a.ID, a.UpdatedAt).
		Updates(map[string]any{
			"agent_id":     a.AgentID,
			"date":         a.Date,
			"start_time":   a.StartTime,
			"end_time":     a.EndTime,
			"status":       a.Status,
			"notes":        a.Notes,
			"client_notes": a.ClientNotes,
			"agent_notes":  a.AgentNotes,
			"confirmed_at": a.ConfirmedAt,
			"cancelled_at": a.CancelledAt,
			"cancelled_by": a.CancelledBy,
			"completed_at": a.CompletedAt,
			"updated_at":   now,
		})
	if res.Error != nil {
		if isExclusionViolation(res.Error) {
			return appointment.ErrSlotConflict
		}
		return fmt.Errorf("updating appointment %s: %w", a.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return appointment.ErrAppointmentNotUpdated
	}

	a.UpdatedAt = now
	return nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.getDB(ctx).Delete(&appointment.Appointment{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting appointment %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

// FindConflicts relies on start_time and end_time being zero-padded "HH:MM", which
// makes lexical comparison equal to time comparison.
func (r *AppointmentRepository) FindConflicts(ctx context.Context, q appointment.ConflictQuery) ([]*appointment.Appointment, error) {
	query := r.getDB(ctx).
		Where("property_id = ? AND date = ?", q.PropertyID, q.Slot.Date).
		Where("status IN ?", appointment.ActiveStatuses).
		Where("start_time < ? AND end_time > ?", q.Slot.End, q.Slot.Start)
	if q.ExcludeID != nil {
		query = query.Where("id <> ?", *q.ExcludeID)
	}

	var conflicts []*appointment.Appointment
	if err := query.Order("start_time").Find(&conflicts).Error; err != nil {
		return nil, fmt.Errorf("finding conflicting appointments: %w", err)
	}
	return conflicts, nil
}

// WithinSlotLock serializes bookings per property and day with a transaction-scoped
// advisory lock. The lock is released when the transaction ends.
func (r *AppointmentRepository) WithinSlotLock(ctx context.Context, propertyID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("appointment:%s:%s", propertyID, appointment.DayStart(date).Format(time.DateOnly))

	return r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return fmt.Errorf("acquiring slot lock: %w", err)
		}
		return fn(withTx(ctx, tx))
	})
}

// hydrate attaches property and party summaries with one query per referenced table.
func (r *AppointmentRepository) hydrate(ctx context.Context, rows []appointment.Appointment) ([]*appointment.Details, error) {
	propertyIDs := make([]uuid.UUID, 0, len(rows))
	userIDs := make([]uuid.UUID, 0, len(rows)*2)
	for _, a := range rows {
		propertyIDs = append(propertyIDs, a.PropertyID)
		userIDs = append(userIDs, a.ClientID)
		if a.AgentID != nil {
			userIDs = append(userIDs, *a.AgentID)
		}
	}

	var properties []property.Property
	err := r.getDB(ctx).
		Select("id", "title", "location", "image_url", "price").
		Where("id IN ?", propertyIDs).
		Find(&properties).Error
	if err != nil {
		return nil, fmt.Errorf("loading appointment properties: %w", err)
	}

	var users []domain.User
	err = r.getDB(ctx).
		Select("id", "name", "email", "phone").
		Where("id IN ?", userIDs).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("loading appointment parties: %w", err)
	}

	propertyByID := make(map[uuid.UUID]*appointment.PropertySummary, len(properties))
	for _, p := range properties {
		propertyByID[p.ID] = &appointment.PropertySummary{
			ID:       p.ID,
			Title:    p.Title,
			Location: p.Location,
			ImageURL: p.ImageURL,
			Price:    p.Price,
		}
	}
	userByID := make(map[uuid.UUID]*appointment.PartySummary, len(users))
	for _, u := range users {
		userByID[u.ID] = &appointment.PartySummary{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
	}

	details := make([]*appointment.Details, 0, len(rows))
	for _, a := range rows {
		d := &appointment.Details{
			Appointment: a,
			Property:    propertyByID[a.PropertyID],
			Client:      userByID[a.ClientID],
		}
		if a.AgentID != nil {
			d.Agent = userByID[*a.AgentID]
		}
		details = append(details, d)
	}
	return details, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateExclusionViolation
}

// dbNow is the current time at PostgreSQL timestamp precision, so values written
// compare equal when read back.
func dbNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
