package models

import "time"

// RegistrationStatus is the state of a user's claim on an event
type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "REGISTERED"
	RegistrationStatusAttended   RegistrationStatus = "ATTENDED"
	RegistrationStatusCancelled  RegistrationStatus = "CANCELLED"
)

// EventRegistration records a user's registration for an event
type EventRegistration struct {
	ID           uint               `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	EventID      uint               `gorm:"not null;uniqueIndex:idx_event_user" json:"event_id"`
	UserID       uint               `gorm:"not null;uniqueIndex:idx_event_user;index" json:"user_id"`
	RegisteredAt time.Time          `gorm:"not null" json:"registered_at"`
	Status       RegistrationStatus `gorm:"type:varchar(20);not null;default:'REGISTERED'" json:"status"`
	Notes        string             `gorm:"size:500" json:"notes"`

	// Relationships
	Event Event `gorm:"foreignKey:EventID" json:"-"`
	User  User  `gorm:"foreignKey:UserID" json:"-"`
}
