package models

import "time"

// Role is a user's global role
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleClubHead Role = "CLUB_HEAD"
	RoleStudent  Role = "STUDENT"
)

// Roles lists every global role
var Roles = []Role{RoleAdmin, RoleClubHead, RoleStudent}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClubHead, RoleStudent:
		return true
	}
	return false
}

// User is an account that can join clubs and register for events
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null;default:'STUDENT'" json:"role"`
	Department   string    `gorm:"size:100" json:"department"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
}

// IsAdmin reports whether the user is an active administrator
func (u *User) IsAdmin() bool {
	return u != nil && u.Active && u.Role == RoleAdmin
}
