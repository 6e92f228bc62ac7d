package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/config"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/service"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubService records the last call and answers with err or a canned appointment.
type stubService struct {
	err       error
	details   *appointment.Details
	page      *appointment.PagedAppointments
	lastActor service.Actor
	lastQuery *appointment.ListAppointmentsQuery
	lastCmd   any
	lastAgent *uuid.UUID
}

func (s *stubService) result(actor service.Actor) (*appointment.Details, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return s.details, nil
}

func (s *stubService) Create(_ context.Context, cmd *appointment.CreateAppointmentCommand, actor service.Actor) (*appointment.Details, error) {
	s.lastCmd = *cmd
	return s.result(actor)
}

func (s *stubService) Get(_ context.Context, _ uuid.UUID, actor service.Actor) (*appointment.Details, error) {
	return s.result(actor)
}

func (s *stubService) List(_ context.Context, q *appointment.ListAppointmentsQuery, actor service.Actor) (*appointment.PagedAppointments, error) {
	s.lastActor = actor
	s.lastQuery = q
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *stubService) ListByProperty(ctx context.Context, propertyID uuid.UUID, q *appointment.ListAppointmentsQuery, actor service.Actor) (*appointment.PagedAppointments, error) {
	q.PropertyID = &propertyID
	return s.List(ctx, q, actor)
}

func (s *stubService) Update(_ context.Context, _ uuid.UUID, cmd appointment.UpdateAppointmentCommand, actor service.Actor) (*appointment.Details, error) {
	s.lastCmd = cmd
	return s.result(actor)
}

func (s *stubService) Cancel(_ context.Context, _ uuid.UUID, actor service.Actor) (*appointment.Details, error) {
	return s.result(actor)
}

func (s *stubService) Confirm(_ context.Context, _ uuid.UUID, agentID *uuid.UUID, actor service.Actor) (*appointment.Details, error) {
	s.lastAgent = agentID
	return s.result(actor)
}

func (s *stubService) Complete(_ context.Context, _ uuid.UUID, actor service.Actor) (*appointment.Details, error) {
	return s.result(actor)
}

func (s *stubService) Delete(_ context.Context, _ uuid.UUID, actor service.Actor) error {
	s.lastActor = actor
	return s.err
}

// stubTokens accepts "<role>-token" bearer values.
type stubTokens struct {
	users map[string]*domain.Claims
}

func (s stubTokens) ValidateAccessToken(token string) (*domain.Claims, error) {
	if token == "expired" {
		return nil, auth.ErrTokenExpired
	}
	c, ok := s.users[token]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	return c, nil
}

type testServer struct {
	router *gin.Engine
	svc    *stubService
	claims map[domain.Role]*domain.Claims
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	claims := map[domain.Role]*domain.Claims{}
	tokens := stubTokens{users: map[string]*domain.Claims{}}
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleAgent, domain.RoleClient} {
		c := &domain.Claims{UserID: uuid.New(), Email: string(role) + "@example.com", Role: role}
		claims[role] = c
		tokens.users[string(role)+"-token"] = c
	}

	svc := &stubService{details: sampleDetails()}
	router := NewRouter(RouterConfig{
		Appointments: svc,
		Tokens:       tokens,
		Metrics:      metrics.NewCollector("propflow_test", prometheus.NewRegistry()),
		Log:          zaptest.NewLogger(t),
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"https://app.propflow.test"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         time.Hour,
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000, VisitorTTL: time.Minute},
	})
	return &testServer{router: router, svc: svc, claims: claims}
}

func (s *testServer) do(t *testing.T, role domain.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+string(role)+"-token")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func sampleDetails() *appointment.Details {
	propertyID := uuid.New()
	clientID := uuid.New()
	return &appointment.Details{
		Appointment: appointment.Appointment{
			ID:         uuid.New(),
			PropertyID: propertyID,
			ClientID:   clientID,
			Date:       time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
			StartTime:  "10:00",
			EndTime:    "11:00",
			Status:     appointment.StatusPending,
		},
		Property: &appointment.PropertySummary{ID: propertyID, Title: "Loft in Centro"},
		Client:   &appointment.PartySummary{ID: clientID, Name: "Ana", Email: "ana@example.com"},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateAppointment(t *testing.T) {
	s := newTestServer(t)
	propertyID := uuid.New()

	rec := s.do(t, domain.RoleClient, http.MethodPost, "/api/v1/appointments", map[string]string{
		"propertyId": propertyID.String(),
		"date":       "2026-03-20",
		"startTime":  "9:00",
		"notes":      "first visit",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	cmd := s.svc.lastCmd.(appointment.CreateAppointmentCommand)
	if cmd.PropertyID != propertyID || cmd.StartTime != "9:00" || cmd.Notes != "first visit" {
		t.Errorf("command = %+v", cmd)
	}
	if got := cmd.Date.Format(time.DateOnly); got != "2026-03-20" {
		t.Errorf("date = %s", got)
	}
	if s.svc.lastActor.ID != s.claims[domain.RoleClient].UserID || s.svc.lastActor.Role != domain.RoleClient {
		t.Errorf("actor = %+v", s.svc.lastActor)
	}

	resp := decode[APIResponse[appointmentResponse]](t, rec)
	if resp.Data.Date != "2026-03-20" || resp.Data.EndTime != "11:00" || resp.Data.Property == nil {
		t.Errorf("response = %+v", resp.Data)
	}
}

func TestCreateAppointmentRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing property", map[string]string{"date": "2026-03-20", "startTime": "10:00"}},
		{"property not uuid", map[string]string{"propertyId": "abc", "date": "2026-03-20", "startTime": "10:00"}},
		{"bad clock", map[string]string{"propertyId": uuid.NewString(), "date": "2026-03-20", "startTime": "25:00"}},
		{"clock with seconds", map[string]string{"propertyId": uuid.NewString(), "date": "2026-03-20", "startTime": "10:00:00"}},
		{"bad date", map[string]string{"propertyId": uuid.NewString(), "date": "20/03/2026", "startTime": "10:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.svc.lastCmd = nil
			rec := s.do(t, domain.RoleClient, http.MethodPost, "/api/v1/appointments", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if s.svc.lastCmd != nil {
				t.Error("service was called")
			}
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
		tag  string
	}{
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, ""},
		{fmt.Errorf("resolving agent: %w", service.ErrAgentNotFound), http.StatusNotFound, ""},
		{appointment.ErrSlotConflict, http.StatusConflict, "SLOT_CONFLICT"},
		{appointment.ErrAppointmentNotUpdated, http.StatusConflict, "CONCURRENT_UPDATE"},
		{appointment.ErrInsufficientLeadTime, http.StatusBadRequest, "INSUFFICIENT_LEAD_TIME"},
		{appointment.ErrSlotCrossesMidnight, http.StatusBadRequest, "INVALID_TIME"},
		{appointment.ErrInvalidStatusTransition, http.StatusBadRequest, "INVALID_STATUS"},
		{service.ErrInvalidAgentRole, http.StatusBadRequest, "INVALID_STATUS"},
		{fmt.Errorf("set status: %w", service.ErrForbidden), http.StatusForbidden, ""},
		{&service.ValidationError{Fields: []string{"agentId is required"}}, http.StatusBadRequest, ""},
		{errors.New("connection reset"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := newTestServer(t)
			s.svc.err = tt.err

			rec := s.do(t, domain.RoleClient, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != tt.tag {
				t.Errorf("code = %q, want %q", resp.Code, tt.tag)
			}
			if tt.code == http.StatusInternalServerError && resp.Error != "internal server error" {
				t.Errorf("internal error leaked: %q", resp.Error)
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "authorization required"},
		{"wrong scheme", "Basic abc", "authorization required"},
		{"unknown token", "Bearer nope", "invalid token"},
		{"expired token", "Bearer expired", "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := decode[ErrorResponse](t, rec).Error; got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoleGuards(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		role   domain.Role
		method string
		path   string
		want   int
	}{
		{domain.RoleClient, http.MethodDelete, "/api/v1/appointments/" + id, http.StatusForbidden},
		{domain.RoleAgent, http.MethodDelete, "/api/v1/appointments/" + id, http.StatusForbidden},
		{domain.RoleAdmin, http.MethodDelete, "/api/v1/appointments/" + id, http.StatusNoContent},
		{domain.RoleClient, http.MethodPatch, "/api/v1/appointments/" + id + "/confirm", http.StatusForbidden},
		{domain.RoleClient, http.MethodPatch, "/api/v1/appointments/" + id + "/complete", http.StatusForbidden},
		{domain.RoleAgent, http.MethodPatch, "/api/v1/appointments/" + id + "/complete", http.StatusOK},
		{domain.RoleClient, http.MethodPatch, "/api/v1/appointments/" + id + "/cancel", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+" "+tt.method+" "+tt.path, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, tt.role, tt.method, tt.path, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestConfirmAppointment(t *testing.T) {
	t.Run("without body", func(t *testing.T) {
		s := newTestServer(t)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/appointments/"+uuid.NewString()+"/confirm", nil)
		req.Header.Set("Authorization", "Bearer "+string(domain.RoleAgent)+"-token")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if s.svc.lastAgent != nil {
			t.Errorf("agent = %v, want nil", s.svc.lastAgent)
		}
	})

	t.Run("with agent", func(t *testing.T) {
		s := newTestServer(t)
		agentID := uuid.New()
		rec := s.do(t, domain.RoleAdmin, http.MethodPatch, "/api/v1/appointments/"+uuid.NewString()+"/confirm",
			map[string]string{"agentId": agentID.String()})

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if s.svc.lastAgent == nil || *s.svc.lastAgent != agentID {
			t.Errorf("agent = %v, want %s", s.svc.lastAgent, agentID)
		}
		if msg := decode[APIResponse[appointmentResponse]](t, rec).Message; msg != "appointment confirmed" {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("malformed agent", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, domain.RoleAdmin, http.MethodPatch, "/api/v1/appointments/"+uuid.NewString()+"/confirm",
			map[string]string{"agentId": "agent-7"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestUpdateAppointment(t *testing.T) {
	s := newTestServer(t)
	agentID := uuid.New()

	rec := s.do(t, domain.RoleAgent, http.MethodPut, "/api/v1/appointments/"+uuid.NewString(), map[string]string{
		"date":       "2026-03-21T00:00:00Z",
		"startTime":  "14:00",
		"status":     "confirmed",
		"agentNotes": "bring keys",
		"agentId":    agentID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	cmd := s.svc.lastCmd.(appointment.UpdateAppointmentCommand)
	if cmd.Date == nil || cmd.Date.Format(time.DateOnly) != "2026-03-21" {
		t.Errorf("date = %v", cmd.Date)
	}
	if cmd.StartTime == nil || *cmd.StartTime != "14:00" {
		t.Errorf("startTime = %v", cmd.StartTime)
	}
	if cmd.Status == nil || *cmd.Status != appointment.StatusConfirmed {
		t.Errorf("status = %v", cmd.Status)
	}
	if cmd.AgentID == nil || *cmd.AgentID != agentID {
		t.Errorf("agentId = %v", cmd.AgentID)
	}
	if cmd.Notes != nil || cmd.ClientNotes != nil {
		t.Errorf("unset fields populated: %+v", cmd)
	}

	rec = s.do(t, domain.RoleAgent, http.MethodPut, "/api/v1/appointments/"+uuid.NewString(), map[string]string{"date": "tomorrow"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rec.Code)
	}
}

func TestListAppointments(t *testing.T) {
	s := newTestServer(t)
	d := sampleDetails()
	s.svc.page = &appointment.PagedAppointments{
		Appointments: []*appointment.Details{d},
		TotalCount:   21,
		Page:         2,
		PageSize:     10,
		TotalPages:   3,
	}
	propertyID := uuid.New()

	rec := s.do(t, domain.RoleAdmin, http.MethodGet,
		"/api/v1/appointments?page=2&limit=10&sortBy=startTime&sortOrder=DESC&status=pending&dateFrom=2026-03-01&propertyId="+propertyID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	q := s.svc.lastQuery
	if q.Page != 2 || q.PageSize != 10 || q.SortBy != "startTime" || q.SortOrder != "desc" {
		t.Errorf("paging = %+v", q)
	}
	if q.Status == nil || *q.Status != appointment.StatusPending {
		t.Errorf("status = %v", q.Status)
	}
	if q.PropertyID == nil || *q.PropertyID != propertyID {
		t.Errorf("propertyId = %v", q.PropertyID)
	}
	if q.DateFrom == nil || q.DateTo != nil {
		t.Errorf("date range = %v..%v", q.DateFrom, q.DateTo)
	}

	resp := decode[PagedResponse[appointmentResponse]](t, rec)
	if len(resp.Data) != 1 || resp.Data[0].ID != d.ID {
		t.Errorf("data = %+v", resp.Data)
	}
	if resp.Pagination != (Pagination{Page: 2, Limit: 10, Total: 21, Pages: 3}) {
		t.Errorf("pagination = %+v", resp.Pagination)
	}

	rec = s.do(t, domain.RoleAdmin, http.MethodGet, "/api/v1/appointments?clientId=nope", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed clientId status = %d", rec.Code)
	}
}

func TestListByProperty(t *testing.T) {
	s := newTestServer(t)
	s.svc.page = &appointment.PagedAppointments{Page: 1, PageSize: 10}
	propertyID := uuid.New()

	rec := s.do(t, domain.RoleClient, http.MethodGet, "/api/v1/appointments/property/"+propertyID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if s.svc.lastQuery.PropertyID == nil || *s.svc.lastQuery.PropertyID != propertyID {
		t.Errorf("propertyId = %v", s.svc.lastQuery.PropertyID)
	}
	if resp := decode[PagedResponse[appointmentResponse]](t, rec); resp.Data == nil {
		t.Error("empty page must encode data as []")
	}
}

func TestProbes(t *testing.T) {
	ready := errors.New("database unreachable")
	router := NewRouter(RouterConfig{
		Appointments: &stubService{},
		Tokens:       stubTokens{},
		Metrics:      metrics.NewCollector("propflow_test", prometheus.NewRegistry()),
		Log:          zaptest.NewLogger(t),
		RateLimit:    config.RateLimitConfig{RequestsPerSecond: 10, BurstSize: 10},
		Ready:        func(context.Context) error { return ready },
	})

	for path, want := range map[string]int{"/healthz": http.StatusOK, "/readyz": http.StatusServiceUnavailable} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s status = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if got := rec.Header().Get(headerRequestID); got != "req-123" {
		t.Errorf("echoed id = %q", got)
	}

	rec = s.do(t, domain.RoleClient, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil)
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatal("no request id assigned")
	}
	if s.svc.lastActor.RequestID != rec.Header().Get(headerRequestID) {
		t.Errorf("actor request id = %q", s.svc.lastActor.RequestID)
	}
}
