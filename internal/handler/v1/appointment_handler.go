package v1

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AppointmentService is the booking use-case surface the handlers depend on.
type AppointmentService interface {
	Create(ctx context.Context, cmd *appointment.CreateAppointmentCommand, actor service.Actor) (*appointment.Details, error)
	Get(ctx context.Context, id uuid.UUID, actor service.Actor) (*appointment.Details, error)
	List(ctx context.Context, q *appointment.ListAppointmentsQuery, actor service.Actor) (*appointment.PagedAppointments, error)
	ListByProperty(ctx context.Context, propertyID uuid.UUID, q *appointment.ListAppointmentsQuery, actor service.Actor) (*appointment.PagedAppointments, error)
	Update(ctx context.Context, id uuid.UUID, cmd appointment.UpdateAppointmentCommand, actor service.Actor) (*appointment.Details, error)
	Cancel(ctx context.Context, id uuid.UUID, actor service.Actor) (*appointment.Details, error)
	Confirm(ctx context.Context, id uuid.UUID, agentID *uuid.UUID, actor service.Actor) (*appointment.Details, error)
	Complete(ctx context.Context, id uuid.UUID, actor service.Actor) (*appointment.Details, error)
	Delete(ctx context.Context, id uuid.UUID, actor service.Actor) error
}

type AppointmentHandler struct {
	svc AppointmentService
	log *zap.Logger
}

func NewAppointmentHandler(svc AppointmentService, log *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, log: log}
}

func (h *AppointmentHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	propertyID, err := uuid.Parse(req.PropertyID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid propertyId: must be a valid UUID")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid date: use YYYY-MM-DD")
		return
	}

	d, err := h.svc.Create(c.Request.Context(), &appointment.CreateAppointmentCommand{
		PropertyID: propertyID,
		Date:       date,
		StartTime:  req.StartTime,
		Notes:      req.Notes,
	}, actor)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondCreated(c, toAppointmentResponse(d), "appointment created")
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	d, err := h.svc.Get(c.Request.Context(), id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, toAppointmentResponse(d), "")
}

func (h *AppointmentHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	q, ok := listQuery(c)
	if !ok {
		return
	}

	page, err := h.svc.List(c.Request.Context(), q, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPagedResponse(page))
}

func (h *AppointmentHandler) ListByProperty(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	propertyID, ok := parseUUID(c, "propertyId")
	if !ok {
		return
	}
	q, ok := listQuery(c)
	if !ok {
		return
	}

	page, err := h.svc.ListByProperty(c.Request.Context(), propertyID, q, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPagedResponse(page))
}

func (h *AppointmentHandler) Update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updateAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	cmd, badField := req.toCommand()
	if badField != "" {
		respondError(c, http.StatusBadRequest, "invalid "+badField)
		return
	}

	d, err := h.svc.Update(c.Request.Context(), id, cmd, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, toAppointmentResponse(d), "appointment updated")
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	h.transition(c, "appointment cancelled", h.svc.Cancel)
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	h.transition(c, "appointment completed", h.svc.Complete)
}

func (h *AppointmentHandler) Confirm(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	// The body is optional so that a missing agentId is reported by the service.
	var req confirmAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	var agentID *uuid.UUID
	if req.AgentID != nil {
		parsed, err := uuid.Parse(*req.AgentID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid agentId")
			return
		}
		agentID = &parsed
	}

	d, err := h.svc.Confirm(c.Request.Context(), id, agentID, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, toAppointmentResponse(d), "appointment confirmed")
}

func (h *AppointmentHandler) Delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id, actor); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AppointmentHandler) transition(
	c *gin.Context,
	message string,
	fn func(context.Context, uuid.UUID, service.Actor) (*appointment.Details, error),
) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	d, err := fn(c.Request.Context(), id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, toAppointmentResponse(d), message)
}

func (h *AppointmentHandler) actor(c *gin.Context) (service.Actor, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authorization required")
	}
	return actor, ok
}

// fail logs unexpected errors before mapping them to a response.
func (h *AppointmentHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	respondServiceError(c, err)
	if c.Writer.Status() >= http.StatusInternalServerError {
		h.log.Error("appointment request failed",
			zap.String("request_id", c.GetString(ctxKeyRequestID)),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
}

func listQuery(c *gin.Context) (*appointment.ListAppointmentsQuery, bool) {
	q := &appointment.ListAppointmentsQuery{
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "limit", appointment.DefaultPageSize),
		SortBy:    c.Query("sortBy"),
		SortOrder: strings.ToLower(c.Query("sortOrder")),
	}

	var ok bool
	if q.PropertyID, ok = parseQueryUUID(c, "propertyId"); !ok {
		return nil, false
	}
	if q.ClientID, ok = parseQueryUUID(c, "clientId"); !ok {
		return nil, false
	}
	if q.AgentID, ok = parseQueryUUID(c, "agentId"); !ok {
		return nil, false
	}
	if q.DateFrom, ok = parseQueryDate(c, "dateFrom"); !ok {
		return nil, false
	}
	if q.DateTo, ok = parseQueryDate(c, "dateTo"); !ok {
		return nil, false
	}
	if raw := c.Query("status"); raw != "" {
		s := appointment.Status(raw)
		q.Status = &s
	}
	return q, true
}
