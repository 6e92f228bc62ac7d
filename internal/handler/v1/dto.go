package v1

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/google/uuid"
)

type createAppointmentRequest struct {
	PropertyID string `json:"propertyId" binding:"required,uuid"`
	Date       string `json:"date" binding:"required"`
	StartTime  string `json:"startTime" binding:"required,hhmm"`
	Notes      string `json:"notes" binding:"max=2000"`
}

type updateAppointmentRequest struct {
	Date        *string `json:"date"`
	StartTime   *string `json:"startTime" binding:"omitempty,hhmm"`
	Status      *string `json:"status"`
	Notes       *string `json:"notes" binding:"omitempty,max=2000"`
	ClientNotes *string `json:"clientNotes" binding:"omitempty,max=2000"`
	AgentNotes  *string `json:"agentNotes" binding:"omitempty,max=2000"`
	AgentID     *string `json:"agentId" binding:"omitempty,uuid"`
}

type confirmAppointmentRequest struct {
	AgentID *string `json:"agentId" binding:"omitempty,uuid"`
}

// toCommand converts the request; an unparsable date is reported as the field name.
func (r updateAppointmentRequest) toCommand() (appointment.UpdateAppointmentCommand, string) {
	var cmd appointment.UpdateAppointmentCommand
	if r.Date != nil {
		d, err := parseDate(*r.Date)
		if err != nil {
			return cmd, "date"
		}
		cmd.Date = &d
	}
	if r.Status != nil {
		s := appointment.Status(*r.Status)
		cmd.Status = &s
	}
	if r.AgentID != nil {
		id, err := uuid.Parse(*r.AgentID)
		if err != nil {
			return cmd, "agentId"
		}
		cmd.AgentID = &id
	}
	cmd.StartTime = r.StartTime
	cmd.Notes = r.Notes
	cmd.ClientNotes = r.ClientNotes
	cmd.AgentNotes = r.AgentNotes
	return cmd, ""
}

type propertySummaryResponse struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Location string    `json:"location"`
	ImageURL string    `json:"imageUrl"`
	Price    float64   `json:"price"`
}

type partySummaryResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
}

type appointmentResponse struct {
	ID          uuid.UUID          `json:"id"`
	PropertyID  uuid.UUID          `json:"propertyId"`
	ClientID    uuid.UUID          `json:"clientId"`
	AgentID     *uuid.UUID         `json:"agentId,omitempty"`
	Date        string             `json:"date"`
	StartTime   string             `json:"startTime"`
	EndTime     string             `json:"endTime"`
	Status      appointment.Status `json:"status"`
	Notes       string             `json:"notes,omitempty"`
	ClientNotes string             `json:"clientNotes,omitempty"`
	AgentNotes  string             `json:"agentNotes,omitempty"`
	ConfirmedAt *time.Time         `json:"confirmedAt,omitempty"`
	CancelledAt *time.Time         `json:"cancelledAt,omitempty"`
	CancelledBy *uuid.UUID         `json:"cancelledBy,omitempty"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`

	Property *propertySummaryResponse `json:"property,omitempty"`
	Client   *partySummaryResponse    `json:"client,omitempty"`
	Agent    *partySummaryResponse    `json:"agent,omitempty"`
}

func toAppointmentResponse(d *appointment.Details) appointmentResponse {
	resp := appointmentResponse{
		ID:          d.ID,
		PropertyID:  d.PropertyID,
		ClientID:    d.ClientID,
		AgentID:     d.AgentID,
		Date:        d.Date.Format(time.DateOnly),
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Status:      d.Status,
		Notes:       d.Notes,
		ClientNotes: d.ClientNotes,
		AgentNotes:  d.AgentNotes,
		ConfirmedAt: d.ConfirmedAt,
		CancelledAt: d.CancelledAt,
		CancelledBy: d.CancelledBy,
		CompletedAt: d.CompletedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if p := d.Property; p != nil {
		resp.Property = &propertySummaryResponse{ID: p.ID, Title: p.Title, Location: p.Location, ImageURL: p.ImageURL, Price: p.Price}
	}
	resp.Client = toPartyResponse(d.Client)
	resp.Agent = toPartyResponse(d.Agent)
	return resp
}

func toPartyResponse(p *appointment.PartySummary) *partySummaryResponse {
	if p == nil {
		return nil
	}
	return &partySummaryResponse{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone}
}

func toPagedResponse(p *appointment.PagedAppointments) PagedResponse[appointmentResponse] {
	data := make([]appointmentResponse, 0, len(p.Appointments))
	for _, d := range p.Appointments {
		data = append(data, toAppointmentResponse(d))
	}
	return PagedResponse[appointmentResponse]{
		Data: data,
		Pagination: Pagination{
			Page:  p.Page,
			Limit: p.PageSize,
			Total: p.TotalCount,
			Pages: p.TotalPages,
		},
	}
}
