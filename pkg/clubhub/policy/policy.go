// Package policy decides what a user may do to clubs, events and other users.
// Every function is side-effect free; callers load the facts first.
package policy

import (
	"context"
	"slices"

	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

// Capability is a permission granted by a global role
type Capability string

const (
	ManageAnyClub Capability = "manage_any_club"
	CreateClub    Capability = "create_club"
	DeleteClub    Capability = "delete_club"
	CreateEvent   Capability = "create_event"
	EditOwnEvent  Capability = "edit_own_event"
	EditAnyEvent  Capability = "edit_any_event"
	DeleteEvent   Capability = "delete_event"
	ManageUsers   Capability = "manage_users"
	ViewAnalytics Capability = "view_any_analytics"
)

var roleCapabilities = map[models.Role]map[Capability]bool{
	models.RoleAdmin: {
		ManageAnyClub: true,
		CreateClub:    true,
		DeleteClub:    true,
		CreateEvent:   true,
		EditOwnEvent:  true,
		EditAnyEvent:  true,
		DeleteEvent:   true,
		ManageUsers:   true,
		ViewAnalytics: true,
	},
	models.RoleClubHead: {
		CreateClub:   true,
		CreateEvent:  true,
		EditOwnEvent: true,
	},
	models.RoleStudent: {},
}

// Has reports whether the user's role grants c. Inactive users hold nothing.
func Has(user *models.User, c Capability) bool {
	if user == nil || !user.Active {
		return false
	}
	return roleCapabilities[user.Role][c]
}

// CapabilitiesOf lists the capabilities held by user in sorted order
func CapabilitiesOf(user *models.User) []Capability {
	caps := []Capability{}
	if user == nil || !user.Active {
		return caps
	}
	for c, ok := range roleCapabilities[user.Role] {
		if ok {
			caps = append(caps, c)
		}
	}
	slices.Sort(caps)
	return caps
}

// elevatedIn reports whether membership is the user's active elevated row in club
func elevatedIn(user *models.User, club *models.Club, membership *models.ClubMember) bool {
	if membership == nil || !membership.Active {
		return false
	}
	return membership.UserID == user.ID && membership.ClubID == club.ID && membership.Role.Elevated()
}

// CanManageClub is true for admins, the club's head, and active members
// holding MODERATOR or VICE_HEAD in that club.
func CanManageClub(user *models.User, club *models.Club, membership *models.ClubMember) bool {
	if user == nil || !user.Active || club == nil {
		return false
	}
	if Has(user, ManageAnyClub) {
		return true
	}
	return club.IsHead(user.ID) || elevatedIn(user, club, membership)
}

// CanEditEvent is true for admins and for club heads who can manage the
// event's club. Students never edit events.
func CanEditEvent(user *models.User, club *models.Club, membership *models.ClubMember) bool {
	if Has(user, EditAnyEvent) {
		return true
	}
	return Has(user, EditOwnEvent) && CanManageClub(user, club, membership)
}

// CanDeleteEvent is admin only
func CanDeleteEvent(user *models.User) bool {
	return Has(user, DeleteEvent)
}

// CanCreateEvent is true for admins and club heads
func CanCreateEvent(user *models.User) bool {
	return Has(user, CreateEvent)
}

// CanCreateClub is true for admins and club heads
func CanCreateClub(user *models.User) bool {
	return Has(user, CreateClub)
}

// CanDeleteClub is admin only
func CanDeleteClub(user *models.User) bool {
	return Has(user, DeleteClub)
}

// CanManageUsers is admin only
func CanManageUsers(user *models.User) bool {
	return Has(user, ManageUsers)
}

// CanDeleteUser denies everyone but admins, and denies admins deleting themselves
func CanDeleteUser(actor *models.User, targetID uint) bool {
	return Has(actor, ManageUsers) && actor.ID != targetID
}

// CanChangeUserStatus follows the same rule as deletion
func CanChangeUserStatus(actor *models.User, targetID uint) bool {
	return CanDeleteUser(actor, targetID)
}

// CanViewAnalytics is true for admins and the club's head
func CanViewAnalytics(user *models.User, club *models.Club) bool {
	if Has(user, ViewAnalytics) {
		return true
	}
	return user != nil && user.Active && club.IsHead(user.ID)
}

// MembershipLookup resolves the membership fact for a (club, user) pair.
// It returns nil with no error when the user holds no active row.
type MembershipLookup interface {
	ActiveMembership(ctx context.Context, clubID, userID uint) (*models.ClubMember, error)
}

// Facts bundles what the decision functions need about one club
type Facts struct {
	User       *models.User
	Club       *models.Club
	Membership *models.ClubMember
}

// LoadFacts fetches the user's membership in club through lookup
func LoadFacts(ctx context.Context, lookup MembershipLookup, user *models.User, club *models.Club) (Facts, error) {
	facts := Facts{User: user, Club: club}
	if user == nil || club == nil {
		return facts, nil
	}
	membership, err := lookup.ActiveMembership(ctx, club.ID, user.ID)
	if err != nil {
		return facts, err
	}
	facts.Membership = membership
	return facts, nil
}

// CanManageClub applies CanManageClub to the loaded facts
func (f Facts) CanManageClub() bool {
	return CanManageClub(f.User, f.Club, f.Membership)
}

// CanEditEvent applies CanEditEvent to the loaded facts
func (f Facts) CanEditEvent() bool {
	return CanEditEvent(f.User, f.Club, f.Membership)
}
