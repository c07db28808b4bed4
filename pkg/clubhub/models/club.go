package models

import "time"

// Club is a student organisation with an optional head
type Club struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Name         string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description  string    `gorm:"size:1000" json:"description"`
	HeadID       *uint     `gorm:"index" json:"head_id"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	LogoURL      string    `json:"logo_url"`
	ContactEmail string    `json:"contact_email"`

	// Relationships
	Head    *User        `gorm:"foreignKey:HeadID" json:"head,omitempty"`
	Members []ClubMember `gorm:"foreignKey:ClubID" json:"-"`
	Events  []Event      `gorm:"foreignKey:ClubID" json:"-"`
}

// IsHead reports whether userID is the club's head
func (c *Club) IsHead(userID uint) bool {
	return c != nil && c.HeadID != nil && *c.HeadID == userID
}
