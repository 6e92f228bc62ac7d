package service

import (
	"errors"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrForbidden        = errors.New("forbidden: insufficient permissions")
	ErrAgentNotFound    = errors.New("agent not found or inactive")
	ErrInvalidAgentRole = errors.New("assigned user does not have the agent role")
)

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     domain.Role
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	Changes      string
}
