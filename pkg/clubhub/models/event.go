package models

import (
	"time"

	"gorm.io/gorm"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "UPCOMING"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusCompleted EventStatus = "COMPLETED"
)

// Event is a club-run event with optional capacity
type Event struct {
	ID                   uint        `gorm:"primarykey" json:"id"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	ClubID               uint        `gorm:"not null;index" json:"club_id"`
	Name                 string      `gorm:"size:100;not null" json:"name"`
	Description          string      `gorm:"size:2000" json:"description"`
	EventDate            time.Time   `gorm:"not null;index" json:"event_date"`
	Venue                string      `gorm:"not null" json:"venue"`
	MaxParticipants      *int        `json:"max_participants"`
	RemainingSpots       *int        `json:"remaining_spots"`
	Active               bool        `gorm:"not null;default:true" json:"active"`
	Status               EventStatus `gorm:"type:varchar(20);not null;default:'UPCOMING'" json:"status"`
	RegistrationDeadline *time.Time  `json:"registration_deadline"`
	ImageURL             string      `json:"image_url"`

	// Relationships
	Club          Club                `gorm:"foreignKey:ClubID" json:"-"`
	Registrations []EventRegistration `gorm:"foreignKey:EventID" json:"-"`
}

// HasCapacity reports whether the event limits participants
func (e *Event) HasCapacity() bool {
	return e.MaxParticipants != nil
}

// IsOpen reports whether the event currently accepts registrations
func (e *Event) IsOpen() bool {
	return e.Active && e.Status == EventStatusUpcoming
}

// ReleaseSpot mirrors a freed spot on the in-memory counter
func (e *Event) ReleaseSpot() {
	if e.RemainingSpots != nil && e.MaxParticipants != nil && *e.RemainingSpots < *e.MaxParticipants {
		left := *e.RemainingSpots + 1
		e.RemainingSpots = &left
	}
}

// BeforeCreate starts the remaining-spots counter at full capacity
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.MaxParticipants != nil && e.RemainingSpots == nil {
		spots := *e.MaxParticipants
		e.RemainingSpots = &spots
	}
	return nil
}
