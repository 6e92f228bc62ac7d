package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role values are stored and exchanged with the identity store verbatim.
type Role string

const (
	RoleAdmin  Role = "Administrador"
	RoleAgent  Role = "Agente"
	RoleClient Role = "Cliente"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleClient:
		return true
	}
	return false
}

// IsStaff reports whether the role may act on appointments it does not own.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleAgent
}

var ErrUserNotFound = errors.New("user not found")

// User is the read-only projection of an account owned by the identity service.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Name     string `gorm:"column:name;type:varchar(150);not null"`
	Email    string `gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	Phone    string `gorm:"column:phone;type:varchar(30)"`
	Role     Role   `gorm:"column:role;type:varchar(30);not null;index"`
	IsActive bool   `gorm:"column:is_active;default:true;index"`
}

func (User) TableName() string {
	return "identity.users"
}

type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionRead   AuditAction = "read"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
)

// MaxRequestIDLength bounds caller-supplied request ids so they fit AuditLog.RequestID.
const MaxRequestIDLength = 64

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(30);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID string `gorm:"column:request_id;type:varchar(64);index"`
	Changes   string `gorm:"column:changes;type:jsonb"`
}

func (AuditLog) TableName() string {
	return "audit.logs"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID uuid.UUID `json:"sub"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}
