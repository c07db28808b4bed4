// Package membership manages which users belong to which clubs and in what role.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/notifications"
	"github.com/mikepea/clubhub/pkg/clubhub/policy"
)

var (
	ErrClubNotFound     = apperr.New(apperr.NotFound, "Club not found")
	ErrUserNotFound     = apperr.New(apperr.NotFound, "User not found")
	ErrAlreadyMember    = apperr.New(apperr.Conflict, "User is already a member of this club")
	ErrNotMember        = apperr.New(apperr.NotFound, "User is not a member of this club")
	ErrClubInactive     = apperr.New(apperr.Conflict, "Club is not active")
	ErrInvalidRole      = apperr.New(apperr.ValidationFailed, "Invalid member role")
	ErrCannotRemoveHead = apperr.New(apperr.Conflict, "The club head cannot be removed")
	ErrForbidden        = apperr.New(apperr.Forbidden, "You don't have permission to manage this club")
)

// Manager runs membership operations. Check-then-act sequences run inside
// a single transaction and rely on the unique (club_id, user_id) index.
type Manager struct {
	db       *gorm.DB
	notifier notifications.Sender
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a membership manager. A nil notifier discards notifications.
func NewManager(db *gorm.DB, notifier notifications.Sender, logger *zap.Logger) *Manager {
	if notifier == nil {
		notifier = notifications.Discard
	}
	return &Manager{db: db, notifier: notifier, logger: logger, now: time.Now}
}

// WithClock replaces the manager's time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) fail(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	m.logger.Error("Membership operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Wrap(apperr.Internal, "Failed to "+op, err)
}

// Club loads a club by id
func (m *Manager) Club(ctx context.Context, id uint) (*models.Club, error) {
	var club models.Club
	if err := m.db.WithContext(ctx).First(&club, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClubNotFound
		}
		return nil, m.fail("load club", err)
	}
	return &club, nil
}

// User loads a user by id
func (m *Manager) User(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, m.fail("load user", err)
	}
	return &user, nil
}

// ActiveMembership returns the user's active row in the club, or nil
func (m *Manager) ActiveMembership(ctx context.Context, clubID, userID uint) (*models.ClubMember, error) {
	var member models.ClubMember
	err := m.db.WithContext(ctx).
		Where("club_id = ? AND user_id = ? AND active = ?", clubID, userID, true).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, m.fail("load membership", err)
	}
	return &member, nil
}

// Facts loads the policy facts for the user acting on club
func (m *Manager) Facts(ctx context.Context, user *models.User, club *models.Club) (policy.Facts, error) {
	facts, err := policy.LoadFacts(ctx, m, user, club)
	if err != nil {
		return facts, m.fail("load membership", err)
	}
	return facts, nil
}

// Join adds user to club as a MEMBER, reactivating a former membership
func (m *Manager) Join(ctx context.Context, club *models.Club, user *models.User) (*models.ClubMember, error) {
	if !club.Active {
		return nil, ErrClubInactive
	}

	now := m.now().UTC()
	var member models.ClubMember
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("club_id = ? AND user_id = ?", club.ID, user.ID).First(&member).Error
		switch {
		case err == nil && member.Active:
			return ErrAlreadyMember
		case err == nil:
			member.Active = true
			member.Role = models.MemberRoleMember
			member.JoinedAt = now
			return tx.Model(&member).Updates(map[string]interface{}{
				"active":    true,
				"role":      models.MemberRoleMember,
				"joined_at": now,
			}).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		member = models.ClubMember{
			ClubID:   club.ID,
			UserID:   user.ID,
			JoinedAt: now,
			Active:   true,
			Role:     models.MemberRoleMember,
		}
		if err := tx.Create(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyMember
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, m.fail("join club", err)
	}

	m.logger.Info("User joined club", zap.Uint("club_id", club.ID), zap.Uint("user_id", user.ID))
	m.notifier.Notify(ctx, user.ID, models.NotificationClubJoined,
		"Welcome to "+club.Name,
		fmt.Sprintf("You have joined %s.", club.Name),
		&club.ID)
	return &member, nil
}

// deactivate clears the active flag on the user's row inside tx
func deactivate(tx *gorm.DB, clubID, userID uint) error {
	result := tx.Model(&models.ClubMember{}).
		Where("club_id = ? AND user_id = ? AND active = ?", clubID, userID, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotMember
	}
	return nil
}

// Leave deactivates the user's membership in club
func (m *Manager) Leave(ctx context.Context, club *models.Club, user *models.User) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deactivate(tx, club.ID, user.ID)
	})
	if err != nil {
		return m.fail("leave club", err)
	}
	m.logger.Info("User left club", zap.Uint("club_id", club.ID), zap.Uint("user_id", user.ID))
	return nil
}

// Remove deactivates target's membership on behalf of actor
func (m *Manager) Remove(ctx context.Context, actor *models.User, club *models.Club, targetID uint) error {
	facts, err := m.Facts(ctx, actor, club)
	if err != nil {
		return err
	}
	if !facts.CanManageClub() {
		return ErrForbidden
	}
	if club.IsHead(targetID) {
		return ErrCannotRemoveHead
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deactivate(tx, club.ID, targetID)
	})
	if err != nil {
		return m.fail("remove member", err)
	}

	m.logger.Info("Member removed",
		zap.Uint("club_id", club.ID),
		zap.Uint("user_id", targetID),
		zap.Uint("actor_id", actor.ID),
	)
	m.notifier.Notify(ctx, targetID, models.NotificationMemberRemoved,
		"Removed from "+club.Name,
		fmt.Sprintf("You have been removed from %s.", club.Name),
		&club.ID)
	return nil
}

// UpdateRole changes target's member role on behalf of actor
func (m *Manager) UpdateRole(ctx context.Context, actor *models.User, club *models.Club, targetID uint, role models.MemberRole) (*models.ClubMember, error) {
	facts, err := m.Facts(ctx, actor, club)
	if err != nil {
		return nil, err
	}
	if !facts.CanManageClub() {
		return nil, ErrForbidden
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var member models.ClubMember
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("club_id = ? AND user_id = ? AND active = ?", club.ID, targetID, true).First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotMember
		}
		if err != nil {
			return err
		}
		member.Role = role
		return tx.Model(&member).Update("role", role).Error
	})
	if err != nil {
		return nil, m.fail("update member role", err)
	}

	m.notifier.Notify(ctx, targetID, models.NotificationMemberRoleChanged,
		"Role updated in "+club.Name,
		fmt.Sprintf("Your role in %s is now %s.", club.Name, role),
		&club.ID)
	return &member, nil
}

// IsMember reports whether the user holds an active row in the club
func (m *Manager) IsMember(ctx context.Context, clubID, userID uint) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.ClubMember{}).
		Where("club_id = ? AND user_id = ? AND active = ?", clubID, userID, true).
		Count(&count).Error
	if err != nil {
		return false, m.fail("check membership", err)
	}
	return count > 0, nil
}

// ActiveMemberCount counts the active members of a club
func (m *Manager) ActiveMemberCount(ctx context.Context, clubID uint) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.ClubMember{}).
		Where("club_id = ? AND active = ?", clubID, true).
		Count(&count).Error
	if err != nil {
		return 0, m.fail("count members", err)
	}
	return count, nil
}

// MembersWithRole returns the active members holding role, users preloaded
func (m *Manager) MembersWithRole(ctx context.Context, clubID uint, role models.MemberRole) ([]models.ClubMember, error) {
	var members []models.ClubMember
	err := m.db.WithContext(ctx).Preload("User").
		Where("club_id = ? AND active = ? AND role = ?", clubID, true, role).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, m.fail("list members", err)
	}
	return members, nil
}

// ActiveMembers returns every active member of a club, users preloaded
func (m *Manager) ActiveMembers(ctx context.Context, clubID uint) ([]models.ClubMember, error) {
	var members []models.ClubMember
	err := m.db.WithContext(ctx).Preload("User").
		Where("club_id = ? AND active = ?", clubID, true).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, m.fail("list members", err)
	}
	return members, nil
}

// ClubsForUser returns the active clubs in which the user is an active member
func (m *Manager) ClubsForUser(ctx context.Context, userID uint) ([]models.Club, error) {
	var clubs []models.Club
	err := m.db.WithContext(ctx).
		Joins("JOIN club_members ON club_members.club_id = clubs.id").
		Where("club_members.user_id = ? AND club_members.active = ? AND clubs.active = ?", userID, true, true).
		Order("clubs.name ASC").
		Find(&clubs).Error
	if err != nil {
		return nil, m.fail("list clubs", err)
	}
	return clubs, nil
}

// ActiveMemberIDs returns the user ids of the active members of a club
func (m *Manager) ActiveMemberIDs(ctx context.Context, clubID uint) ([]uint, error) {
	var ids []uint
	err := m.db.WithContext(ctx).Model(&models.ClubMember{}).
		Where("club_id = ? AND active = ?", clubID, true).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, m.fail("list members", err)
	}
	return ids, nil
}
