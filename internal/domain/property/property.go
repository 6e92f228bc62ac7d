package property

import (
	"time"

	"github.com/google/uuid"
)

// Property is the read-only projection of a listing owned by the catalogue service.
type Property struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Title        string   `gorm:"column:title;type:varchar(200);not null"`
	ImageURL     string   `gorm:"column:image_url;type:text;not null"`
	Location     string   `gorm:"column:location;type:varchar(255);not null;index"`
	Price        float64  `gorm:"column:price;not null"`
	Area         float64  `gorm:"column:area;not null"`
	Bedrooms     int      `gorm:"column:bedrooms;not null"`
	Bathrooms    int      `gorm:"column:bathrooms;not null"`
	Parking      int      `gorm:"column:parking;not null"`
	PropertyType string   `gorm:"column:property_type;type:varchar(50)"`
	Description  string   `gorm:"column:description;type:text"`
	Amenities    []string `gorm:"column:amenities;serializer:json"`

	IsActive bool       `gorm:"column:is_active;default:true;index"`
	AgentID  *uuid.UUID `gorm:"column:agent_id;type:uuid;index"`
}

func (Property) TableName() string {
	return "listing.properties"
}
