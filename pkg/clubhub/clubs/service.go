// Package clubs manages club records, their settings and their analytics.
package clubs

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/policy"
)

var (
	ErrClubNotFound       = membership.ErrClubNotFound
	ErrDuplicateName      = apperr.New(apperr.Conflict, "A club with this name already exists")
	ErrCreateForbidden    = apperr.New(apperr.Forbidden, "Only administrators and club heads can create clubs")
	ErrForbidden          = apperr.New(apperr.Forbidden, "You don't have permission to manage this club")
	ErrDeleteForbidden    = apperr.New(apperr.Forbidden, "Only administrators can delete clubs")
	ErrAnalyticsForbidden = apperr.New(apperr.Forbidden, "Only administrators and the club head can view analytics")
	ErrInvalidHead        = apperr.New(apperr.ValidationFailed, "Club head must be an active administrator or club head")
)

// Input holds the fields of a new club. HeadID is honoured for admins only;
// everyone else becomes the head of the club they create.
type Input struct {
	Name         string
	Description  string
	LogoURL      string
	ContactEmail string
	HeadID       *uint
}

// Changes holds the club settings to change. Nil fields are left alone and
// HeadID may only be changed by admins.
type Changes struct {
	Name         *string
	Description  *string
	LogoURL      *string
	ContactEmail *string
	HeadID       *uint
}

// Analytics summarises a club's activity
type Analytics struct {
	ClubID                uint   `json:"club_id"`
	ClubName              string `json:"club_name"`
	ActiveMembers         int64  `json:"active_members"`
	TotalEvents           int64  `json:"total_events"`
	UpcomingEvents        int64  `json:"upcoming_events"`
	TotalRegistrations    int64  `json:"total_registrations"`
	AttendedRegistrations int64  `json:"attended_registrations"`
}

// Service runs club operations
type Service struct {
	db      *gorm.DB
	members *membership.Manager
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a club service
func NewService(db *gorm.DB, members *membership.Manager, logger *zap.Logger) *Service {
	return &Service{db: db, members: members, logger: logger, now: time.Now}
}

// WithClock replaces the service's time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) fail(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Error("Club operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Wrap(apperr.Internal, "Failed to "+op, err)
}

func validate(c *models.Club) error {
	name := strings.TrimSpace(c.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return apperr.Validation("Club name must be between 2 and 100 characters")
	}
	c.Name = name
	if utf8.RuneCountInString(c.Description) > 1000 {
		return apperr.Validation("Description cannot exceed 1000 characters")
	}
	return nil
}

// nameTaken reports whether another club already uses name, ignoring case
func nameTaken(tx *gorm.DB, name string, excludeID uint) (bool, error) {
	var count int64
	query := tx.Model(&models.Club{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

func (s *Service) checkHead(ctx context.Context, headID uint) error {
	head, err := s.members.User(ctx, headID)
	if err != nil {
		return err
	}
	if !head.Active || (head.Role != models.RoleClubHead && head.Role != models.RoleAdmin) {
		return ErrInvalidHead
	}
	return nil
}

// Create adds a club with actor as its head unless an admin names another head
func (s *Service) Create(ctx context.Context, actor *models.User, in Input) (*models.Club, error) {
	if !policy.CanCreateClub(actor) {
		return nil, ErrCreateForbidden
	}

	headID := actor.ID
	if in.HeadID != nil && actor.IsAdmin() {
		if err := s.checkHead(ctx, *in.HeadID); err != nil {
			return nil, err
		}
		headID = *in.HeadID
	}

	club := models.Club{
		Name:         in.Name,
		Description:  in.Description,
		HeadID:       &headID,
		Active:       true,
		LogoURL:      in.LogoURL,
		ContactEmail: in.ContactEmail,
	}
	if err := validate(&club); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, club.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateName
		}
		if err := tx.Omit(clause.Associations).Create(&club).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateName
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("create club", err)
	}

	s.logger.Info("Club created", zap.Uint("club_id", club.ID), zap.Uint("head_id", headID))
	return &club, nil
}

// Get loads a club with its head
func (s *Service) Get(ctx context.Context, id uint) (*models.Club, error) {
	var club models.Club
	if err := s.db.WithContext(ctx).Preload("Head").First(&club, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClubNotFound
		}
		return nil, s.fail("load club", err)
	}
	return &club, nil
}

// List returns clubs ordered by name. Inactive clubs are included only on request.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]models.Club, error) {
	query := s.db.WithContext(ctx).Preload("Head").Order("name ASC")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}
	var clubs []models.Club
	if err := query.Find(&clubs).Error; err != nil {
		return nil, s.fail("list clubs", err)
	}
	return clubs, nil
}

// Search matches active clubs by name, case-insensitively
func (s *Service) Search(ctx context.Context, query string) ([]models.Club, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var clubs []models.Club
	err := s.db.WithContext(ctx).Preload("Head").
		Where("active = ? AND LOWER(name) LIKE ?", true, pattern).
		Order("name ASC").
		Find(&clubs).Error
	if err != nil {
		return nil, s.fail("search clubs", err)
	}
	return clubs, nil
}

// ClubsByHead returns the clubs headed by the user
func (s *Service) ClubsByHead(ctx context.Context, headID uint) ([]models.Club, error) {
	var clubs []models.Club
	err := s.db.WithContext(ctx).
		Where("head_id = ?", headID).
		Order("name ASC").
		Find(&clubs).Error
	if err != nil {
		return nil, s.fail("list clubs", err)
	}
	return clubs, nil
}

func (s *Service) manageable(ctx context.Context, actor *models.User, id uint) (*models.Club, error) {
	club, err := s.members.Club(ctx, id)
	if err != nil {
		return nil, err
	}
	facts, err := s.members.Facts(ctx, actor, club)
	if err != nil {
		return nil, err
	}
	if !facts.CanManageClub() {
		return nil, ErrForbidden
	}
	return club, nil
}

// Update changes club settings on behalf of actor
func (s *Service) Update(ctx context.Context, actor *models.User, id uint, ch Changes) (*models.Club, error) {
	club, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if ch.Name != nil {
		club.Name = *ch.Name
	}
	if ch.Description != nil {
		club.Description = *ch.Description
	}
	if ch.LogoURL != nil {
		club.LogoURL = *ch.LogoURL
	}
	if ch.ContactEmail != nil {
		club.ContactEmail = *ch.ContactEmail
	}
	if ch.HeadID != nil {
		if !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		if err := s.checkHead(ctx, *ch.HeadID); err != nil {
			return nil, err
		}
		headID := *ch.HeadID
		club.HeadID = &headID
	}
	if err := validate(club); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ch.Name != nil {
			taken, err := nameTaken(tx, club.Name, club.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateName
			}
		}
		if err := tx.Omit(clause.Associations).Save(club).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateName
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("update club", err)
	}

	s.logger.Info("Club updated", zap.Uint("club_id", club.ID), zap.Uint("actor_id", actor.ID))
	return club, nil
}

// Deactivate hides a club from listings and closes it to new members
func (s *Service) Deactivate(ctx context.Context, actor *models.User, id uint) (*models.Club, error) {
	club, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(club).Update("active", false).Error; err != nil {
		return nil, s.fail("deactivate club", err)
	}
	club.Active = false

	s.logger.Info("Club deactivated", zap.Uint("club_id", club.ID), zap.Uint("actor_id", actor.ID))
	return club, nil
}

// Delete removes a club with its memberships, events and registrations. Admin only.
func (s *Service) Delete(ctx context.Context, actor *models.User, id uint) error {
	if !policy.CanDeleteClub(actor) {
		return ErrDeleteForbidden
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events := tx.Model(&models.Event{}).Select("id").Where("club_id = ?", id)
		if err := tx.Where("event_id IN (?)", events).Delete(&models.EventRegistration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("club_id = ?", id).Delete(&models.Event{}).Error; err != nil {
			return err
		}
		if err := tx.Where("club_id = ?", id).Delete(&models.ClubMember{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Club{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrClubNotFound
		}
		return nil
	})
	if err != nil {
		return s.fail("delete club", err)
	}

	s.logger.Info("Club deleted", zap.Uint("club_id", id), zap.Uint("actor_id", actor.ID))
	return nil
}

// Analytics counts a club's members, events and registrations
func (s *Service) Analytics(ctx context.Context, actor *models.User, id uint) (*Analytics, error) {
	club, err := s.members.Club(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanViewAnalytics(actor, club) {
		return nil, ErrAnalyticsForbidden
	}

	out := Analytics{ClubID: club.ID, ClubName: club.Name}
	db := s.db.WithContext(ctx)

	if out.ActiveMembers, err = s.members.ActiveMemberCount(ctx, club.ID); err != nil {
		return nil, err
	}
	if err := db.Model(&models.Event{}).Where("club_id = ?", club.ID).Count(&out.TotalEvents).Error; err != nil {
		return nil, s.fail("count events", err)
	}
	if err := db.Model(&models.Event{}).
		Where("club_id = ? AND event_date > ? AND status = ?", club.ID, s.now().UTC(), models.EventStatusUpcoming).
		Count(&out.UpcomingEvents).Error; err != nil {
		return nil, s.fail("count events", err)
	}

	registrations := db.Model(&models.EventRegistration{}).
		Joins("JOIN events ON events.id = event_registrations.event_id").
		Where("events.club_id = ?", club.ID).
		Session(&gorm.Session{})
	if err := registrations.
		Where("event_registrations.status IN ?", []models.RegistrationStatus{models.RegistrationStatusRegistered, models.RegistrationStatusAttended}).
		Count(&out.TotalRegistrations).Error; err != nil {
		return nil, s.fail("count registrations", err)
	}
	if err := registrations.
		Where("event_registrations.status = ?", models.RegistrationStatusAttended).
		Count(&out.AttendedRegistrations).Error; err != nil {
		return nil, s.fail("count registrations", err)
	}
	return &out, nil
}
