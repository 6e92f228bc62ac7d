package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/property"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/events"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap/zaptest"
)

// memAppointments is an in-memory appointment.Repository. Stored values are copied on
// the way in and out, so callers never share memory with the store.
type memAppointments struct {
	mu        sync.Mutex
	slotLocks sync.Mutex
	byID      map[uuid.UUID]appointment.Appointment
	clock     time.Time

	properties *memProperties
	users      *memUsers
	lastList   *appointment.ListAppointmentsQuery
}

func newMemAppointments(properties *memProperties, users *memUsers) *memAppointments {
	return &memAppointments{
		byID:       map[uuid.UUID]appointment.Appointment{},
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		properties: properties,
		users:      users,
	}
}

// tick returns a strictly increasing timestamp for updated_at.
func (m *memAppointments) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *memAppointments) Create(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = m.tick()
	a.UpdatedAt = a.CreatedAt
	m.byID[a.ID] = *a
	return nil
}

func (m *memAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memAppointments) GetDetails(ctx context.Context, id uuid.UUID) (*appointment.Details, error) {
	a, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.detailsOf(*a), nil
}

func (m *memAppointments) detailsOf(a appointment.Appointment) *appointment.Details {
	d := &appointment.Details{Appointment: a}
	if p, ok := m.properties.byID[a.PropertyID]; ok {
		d.Property = &appointment.PropertySummary{ID: p.ID, Title: p.Title, Location: p.Location, ImageURL: p.ImageURL, Price: p.Price}
	}
	if u, ok := m.users.byID[a.ClientID]; ok {
		d.Client = &appointment.PartySummary{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
	}
	if a.AgentID != nil {
		if u, ok := m.users.byID[*a.AgentID]; ok {
			d.Agent = &appointment.PartySummary{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
		}
	}
	return d
}

func (m *memAppointments) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *q
	m.lastList = &copied

	var matched []appointment.Appointment
	for _, a := range m.byID {
		if q.PropertyID != nil && a.PropertyID != *q.PropertyID {
			continue
		}
		if q.ClientID != nil && a.ClientID != *q.ClientID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].StartTime < matched[j].StartTime
	})

	out := &appointment.PagedAppointments{TotalCount: int64(len(matched)), Page: q.Page, PageSize: q.PageSize}
	for _, a := range matched {
		out.Appointments = append(out.Appointments, m.detailsOf(a))
	}
	return out, nil
}

func (m *memAppointments) Update(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[a.ID]
	if !ok || !stored.UpdatedAt.Equal(a.UpdatedAt) {
		return appointment.ErrAppointmentNotUpdated
	}
	a.UpdatedAt = m.tick()
	m.byID[a.ID] = *a
	return nil
}

func (m *memAppointments) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memAppointments) FindConflicts(_ context.Context, q appointment.ConflictQuery) ([]*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*appointment.Appointment, 0, len(m.byID))
	for _, a := range m.byID {
		all = append(all, &a)
	}
	return appointment.FilterConflicts(all, q.PropertyID, q.Slot, q.ExcludeID), nil
}

// WithinSlotLock uses one lock for every slot, which is stricter than the real store.
func (m *memAppointments) WithinSlotLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	m.slotLocks.Lock()
	defer m.slotLocks.Unlock()
	return fn(ctx)
}

type memProperties struct {
	byID map[uuid.UUID]property.Property
}

func (m *memProperties) GetByID(_ context.Context, id uuid.UUID) (*property.Property, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, property.ErrPropertyNotFound
	}
	return &p, nil
}

type memUsers struct {
	byID map[uuid.UUID]domain.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) add(role domain.Role, active bool) domain.User {
	u := domain.User{ID: uuid.New(), Name: string(role) + " user", Email: uuid.NewString() + "@example.com", Role: role, IsActive: active}
	m.byID[u.ID] = u
	return u
}

type memAudit struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (m *memAudit) Create(_ context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) snapshot() []*domain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditLog(nil), m.entries...)
}

type memPublisher struct {
	mu     sync.Mutex
	events []events.AppointmentEvent
	err    error
}

func (p *memPublisher) Publish(_ context.Context, e events.AppointmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) Close() error { return nil }

func (p *memPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errBrokerDown = errors.New("broker down")

// fixture wires an AppointmentService to in-memory collaborators with a fixed clock.
type fixture struct {
	svc        *AppointmentService
	repo       *memAppointments
	users      *memUsers
	audit      *memAudit
	auditSvc   *AuditService
	publisher  *memPublisher
	metrics    *metrics.Collector
	propertyID uuid.UUID
	now        time.Time

	admin  Actor
	agent  Actor
	client Actor
	other  Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	propertyID := uuid.New()
	properties := &memProperties{byID: map[uuid.UUID]property.Property{
		propertyID: {ID: propertyID, Title: "Loft in Centro", Location: "Centro", ImageURL: "https://img/1.jpg", Price: 250000, IsActive: true},
	}}
	users := &memUsers{byID: map[uuid.UUID]domain.User{}}
	repo := newMemAppointments(properties, users)
	audit := &memAudit{}
	publisher := &memPublisher{}
	m := metrics.NewCollector("propflow_test", prometheus.NewRegistry())
	log := zaptest.NewLogger(t)

	auditSvc := NewAuditService(audit, m, log)
	t.Cleanup(auditSvc.Shutdown)

	svc := NewAppointmentService(repo, properties, users, auditSvc, publisher, m, time.UTC, log)
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	actor := func(role domain.Role) Actor {
		u := users.add(role, true)
		return Actor{ID: u.ID, Role: role, IP: "10.0.0.1", RequestID: uuid.NewString()}
	}

	return &fixture{
		svc:        svc,
		repo:       repo,
		users:      users,
		audit:      audit,
		auditSvc:   auditSvc,
		publisher:  publisher,
		metrics:    m,
		propertyID: propertyID,
		now:        now,
		admin:      actor(domain.RoleAdmin),
		agent:      actor(domain.RoleAgent),
		client:     actor(domain.RoleClient),
		other:      actor(domain.RoleClient),
	}
}

// day returns the calendar day n days after the fixture's clock.
func (f *fixture) day(n int) time.Time {
	return appointment.DayStart(f.now).AddDate(0, 0, n)
}

func (f *fixture) book(t *testing.T, actor Actor, date time.Time, start string) *appointment.Details {
	t.Helper()
	d, err := f.svc.Create(context.Background(), &appointment.CreateAppointmentCommand{
		PropertyID: f.propertyID,
		Date:       date,
		StartTime:  start,
	}, actor)
	if err != nil {
		t.Fatalf("Create(%s %s): %v", date.Format(time.DateOnly), start, err)
	}
	return d
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
