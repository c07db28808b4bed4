// Package events creates, edits and cancels club events.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/notifications"
	"github.com/mikepea/clubhub/pkg/clubhub/policy"
	"github.com/mikepea/clubhub/pkg/clubhub/registration"
)

var (
	ErrEventNotFound           = registration.ErrEventNotFound
	ErrForbidden               = apperr.New(apperr.Forbidden, "You don't have permission to manage events for this club")
	ErrDeleteForbidden         = apperr.New(apperr.Forbidden, "Only administrators can delete events")
	ErrDateInPast              = apperr.New(apperr.InvalidTiming, "Event date must be in the future")
	ErrDeadlineAfterEvent      = apperr.New(apperr.InvalidTiming, "Registration deadline must be before the event date")
	ErrCapacityBelowRegistered = apperr.New(apperr.ValidationFailed, "Max participants cannot be below the number of registered users")
	ErrAlreadyCancelled        = apperr.New(apperr.Conflict, "Event is already cancelled")
)

// Input holds the fields of a new event
type Input struct {
	Name                 string
	Description          string
	EventDate            time.Time
	Venue                string
	MaxParticipants      *int
	RegistrationDeadline *time.Time
	ImageURL             string
}

// Changes holds the fields to change on an event. Nil fields are left alone
// and a MaxParticipants of 0 removes the capacity limit.
type Changes struct {
	Name                 *string
	Description          *string
	EventDate            *time.Time
	Venue                *string
	MaxParticipants      *int
	RegistrationDeadline *time.Time
	ImageURL             *string
}

// Details is an event with its live registration figures
type Details struct {
	Event           models.Event
	RegisteredCount int64
	RemainingSpots  int
}

// Service runs event operations
type Service struct {
	db            *gorm.DB
	members       *membership.Manager
	registrations *registration.Manager
	notifier      notifications.Sender
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates an event service. A nil notifier discards notifications.
func NewService(db *gorm.DB, members *membership.Manager, registrations *registration.Manager, notifier notifications.Sender, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notifications.Discard
	}
	return &Service{
		db:            db,
		members:       members,
		registrations: registrations,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
	}
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
	s.logger.Error("Event operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Wrap(apperr.Internal, "Failed to "+op, err)
}

func validate(e *models.Event) error {
	name := strings.TrimSpace(e.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return apperr.Validation("Event name must be between 2 and 100 characters")
	}
	e.Name = name
	if utf8.RuneCountInString(e.Description) > 2000 {
		return apperr.Validation("Description cannot exceed 2000 characters")
	}
	e.Venue = strings.TrimSpace(e.Venue)
	if e.Venue == "" {
		return apperr.Validation("Venue is required")
	}
	if e.MaxParticipants != nil && *e.MaxParticipants < 1 {
		return apperr.Validation("Max participants must be at least 1")
	}
	if e.RegistrationDeadline != nil && e.RegistrationDeadline.After(e.EventDate) {
		return ErrDeadlineAfterEvent
	}
	return nil
}

// Create adds an event to a club on behalf of actor
func (s *Service) Create(ctx context.Context, actor *models.User, clubID uint, in Input) (*models.Event, error) {
	club, err := s.members.Club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if !club.Active {
		return nil, membership.ErrClubInactive
	}
	facts, err := s.members.Facts(ctx, actor, club)
	if err != nil {
		return nil, err
	}
	if !policy.CanCreateEvent(actor) || !facts.CanManageClub() {
		return nil, ErrForbidden
	}

	event := models.Event{
		ClubID:               club.ID,
		Name:                 in.Name,
		Description:          in.Description,
		EventDate:            in.EventDate.UTC(),
		Venue:                in.Venue,
		MaxParticipants:      in.MaxParticipants,
		Active:               true,
		Status:               models.EventStatusUpcoming,
		RegistrationDeadline: utc(in.RegistrationDeadline),
		ImageURL:             in.ImageURL,
	}
	if err := validate(&event); err != nil {
		return nil, err
	}
	if !event.EventDate.After(s.now()) {
		return nil, ErrDateInPast
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&event).Error; err != nil {
		return nil, s.fail("create event", err)
	}
	event.Club = *club

	s.logger.Info("Event created",
		zap.Uint("event_id", event.ID),
		zap.Uint("club_id", club.ID),
		zap.Uint("actor_id", actor.ID),
	)
	return &event, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Get loads an event with its registered count and remaining spots
func (s *Service) Get(ctx context.Context, id uint) (*Details, error) {
	event, err := s.registrations.Event(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.registrations.RegisteredCount(ctx, id)
	if err != nil {
		return nil, err
	}
	spots, err := s.registrations.RemainingSpots(ctx, event)
	if err != nil {
		return nil, err
	}
	return &Details{Event: *event, RegisteredCount: count, RemainingSpots: spots}, nil
}

// ListUpcoming returns active UPCOMING events after now, soonest first
func (s *Service) ListUpcoming(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).Preload("Club").
		Where("event_date > ? AND status = ? AND active = ?", s.now().UTC(), models.EventStatusUpcoming, true).
		Order("event_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, s.fail("list events", err)
	}
	return events, nil
}

// ListByClub returns a club's events, latest first
func (s *Service) ListByClub(ctx context.Context, clubID uint) ([]models.Event, error) {
	if _, err := s.members.Club(ctx, clubID); err != nil {
		return nil, err
	}
	var events []models.Event
	err := s.db.WithContext(ctx).Preload("Club").
		Where("club_id = ?", clubID).
		Order("event_date DESC").
		Find(&events).Error
	if err != nil {
		return nil, s.fail("list events", err)
	}
	return events, nil
}

// Search matches active events by name or description, case-insensitively
func (s *Service) Search(ctx context.Context, query string) ([]models.Event, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var events []models.Event
	err := s.db.WithContext(ctx).Preload("Club").
		Where("active = ? AND (LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", true, pattern, pattern).
		Order("event_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, s.fail("search events", err)
	}
	return events, nil
}

func (s *Service) editable(ctx context.Context, actor *models.User, id uint) (*models.Event, error) {
	event, err := s.registrations.Event(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed, err := s.registrations.CanEdit(ctx, actor, event)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}
	return event, nil
}

func registeredUserIDs(tx *gorm.DB, eventID uint) ([]uint, error) {
	var ids []uint
	err := tx.Model(&models.EventRegistration{}).
		Where("event_id = ? AND status = ?", eventID, models.RegistrationStatusRegistered).
		Pluck("user_id", &ids).Error
	return ids, err
}

// Update applies changes to an event on behalf of actor. A capacity change
// recomputes the remaining spots from the registered count.
func (s *Service) Update(ctx context.Context, actor *models.User, id uint, ch Changes) (*models.Event, error) {
	event, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if ch.Name != nil {
		event.Name = *ch.Name
	}
	if ch.Description != nil {
		event.Description = *ch.Description
	}
	if ch.Venue != nil {
		event.Venue = *ch.Venue
	}
	if ch.ImageURL != nil {
		event.ImageURL = *ch.ImageURL
	}
	if ch.EventDate != nil {
		if !ch.EventDate.After(s.now()) {
			return nil, ErrDateInPast
		}
		event.EventDate = ch.EventDate.UTC()
	}
	if ch.RegistrationDeadline != nil {
		event.RegistrationDeadline = utc(ch.RegistrationDeadline)
	}
	capacityChanged := ch.MaxParticipants != nil
	if capacityChanged {
		if *ch.MaxParticipants == 0 {
			event.MaxParticipants = nil
		} else {
			limit := *ch.MaxParticipants
			event.MaxParticipants = &limit
		}
	}
	if err := validate(event); err != nil {
		return nil, err
	}

	var notify []uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// registrations decrement the counter under this row lock
		var current models.Event
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "remaining_spots").First(&current, event.ID).Error; err != nil {
			return err
		}
		event.RemainingSpots = current.RemainingSpots

		ids, err := registeredUserIDs(tx, event.ID)
		if err != nil {
			return err
		}
		notify = ids

		if !capacityChanged {
			return tx.Omit(clause.Associations, "remaining_spots").Save(event).Error
		}
		if event.MaxParticipants == nil {
			event.RemainingSpots = nil
		} else {
			if *event.MaxParticipants < len(ids) {
				return ErrCapacityBelowRegistered
			}
			left := *event.MaxParticipants - len(ids)
			event.RemainingSpots = &left
		}
		return tx.Omit(clause.Associations).Save(event).Error
	})
	if err != nil {
		return nil, s.fail("update event", err)
	}

	s.logger.Info("Event updated", zap.Uint("event_id", event.ID), zap.Uint("actor_id", actor.ID))
	notifications.NotifyAll(ctx, s.notifier, notify, models.NotificationEventUpdated,
		event.Name+" was updated",
		fmt.Sprintf("%s is now on %s at %s.", event.Name, event.EventDate.Format("Jan 2, 2006 15:04"), event.Venue),
		&event.ID)
	return event, nil
}

// Cancel marks the event CANCELLED, cancels its registrations and tells the
// registered users
func (s *Service) Cancel(ctx context.Context, actor *models.User, id uint) (*models.Event, error) {
	event, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	var notify []uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := registration.CancelRegistrations(tx, event.ID)
		if err != nil {
			return err
		}
		notify = ids

		updates := map[string]interface{}{"status": models.EventStatusCancelled}
		if event.HasCapacity() {
			updates["remaining_spots"] = *event.MaxParticipants
		}
		return tx.Model(&models.Event{}).Where("id = ?", event.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, s.fail("cancel event", err)
	}

	event.Status = models.EventStatusCancelled
	if event.HasCapacity() {
		spots := *event.MaxParticipants
		event.RemainingSpots = &spots
	}

	s.logger.Info("Event cancelled",
		zap.Uint("event_id", event.ID),
		zap.Uint("actor_id", actor.ID),
		zap.Int("registrations_cancelled", len(notify)),
	)
	notifications.NotifyAll(ctx, s.notifier, notify, models.NotificationEventCancelled,
		event.Name+" was cancelled",
		fmt.Sprintf("%s scheduled for %s has been cancelled.", event.Name, event.EventDate.Format("Jan 2, 2006 15:04")),
		&event.ID)
	return event, nil
}

// Delete removes an event and its registrations. Admin only.
func (s *Service) Delete(ctx context.Context, actor *models.User, id uint) error {
	if !policy.CanDeleteEvent(actor) {
		return ErrDeleteForbidden
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&models.EventRegistration{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Event{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEventNotFound
		}
		return nil
	})
	if err != nil {
		return s.fail("delete event", err)
	}

	s.logger.Info("Event deleted", zap.Uint("event_id", id), zap.Uint("actor_id", actor.ID))
	return nil
}
