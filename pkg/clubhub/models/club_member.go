package models

import "time"

// MemberRole is a user's tier within a single club
type MemberRole string

const (
	MemberRoleMember    MemberRole = "MEMBER"
	MemberRoleModerator MemberRole = "MODERATOR"
	MemberRoleViceHead  MemberRole = "VICE_HEAD"
)

// Valid reports whether r is a known member role
func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleMember, MemberRoleModerator, MemberRoleViceHead:
		return true
	}
	return false
}

// Elevated reports whether the role may manage the club
func (r MemberRole) Elevated() bool {
	return r == MemberRoleModerator || r == MemberRoleViceHead
}

// ClubMember links a user to a club. There is one row per (club, user);
// leaving clears Active and re-joining sets it again.
type ClubMember struct {
	ID        uint       `gorm:"primarykey" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClubID    uint       `gorm:"not null;uniqueIndex:idx_club_user" json:"club_id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_club_user;index" json:"user_id"`
	JoinedAt  time.Time  `gorm:"not null" json:"joined_at"`
	Active    bool       `gorm:"not null;default:true" json:"active"`
	Role      MemberRole `gorm:"type:varchar(20);not null;default:'MEMBER'" json:"role"`

	// Relationships
	Club Club `gorm:"foreignKey:ClubID" json:"-"`
	User User `gorm:"foreignKey:UserID" json:"-"`
}
