// Package registration manages users' claims on event capacity.
//
// A (event, user) pair moves from unregistered to REGISTERED, and from there
// either back to unregistered or on to ATTENDED. Cancelling an event marks its
// REGISTERED rows CANCELLED.
package registration

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

// UnregisterCutoff is how long before the event start unregistering closes
const UnregisterCutoff = 2 * time.Hour

// Unlimited is returned by RemainingSpots for events without a capacity
const Unlimited = -1

var (
	ErrEventNotFound       = apperr.New(apperr.NotFound, "Event not found")
	ErrAlreadyRegistered   = apperr.New(apperr.Conflict, "User is already registered for this event")
	ErrEventFull           = apperr.New(apperr.CapacityExceeded, "Event is full. No more registrations allowed.")
	ErrEventInPast         = apperr.New(apperr.InvalidTiming, "Cannot register for past events")
	ErrRegistrationClosed  = apperr.New(apperr.InvalidTiming, "Registration deadline has passed")
	ErrEventNotOpen        = apperr.New(apperr.Conflict, "Event is not open for registration")
	ErrNotRegistered       = apperr.New(apperr.NotFound, "User is not registered for this event")
	ErrAlreadyAttended     = apperr.New(apperr.Conflict, "Attendance has already been recorded")
	ErrTooLateToUnregister = apperr.New(apperr.InvalidTiming, "Cannot unregister within 2 hours of event start time")
	ErrForbidden           = apperr.New(apperr.Forbidden, "You don't have permission to manage this event")
)

// claimed statuses block another registration by the same user
var claimed = []models.RegistrationStatus{
	models.RegistrationStatusRegistered,
	models.RegistrationStatusAttended,
}

// Manager runs registration operations
type Manager struct {
	db       *gorm.DB
	lookup   policy.MembershipLookup
	notifier notifications.Sender
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a registration manager. lookup resolves club
// memberships for the attendance policy; a nil notifier discards notifications.
func NewManager(db *gorm.DB, lookup policy.MembershipLookup, notifier notifications.Sender, logger *zap.Logger) *Manager {
	if notifier == nil {
		notifier = notifications.Discard
	}
	return &Manager{db: db, lookup: lookup, notifier: notifier, logger: logger, now: time.Now}
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
	m.logger.Error("Registration operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Wrap(apperr.Internal, "Failed to "+op, err)
}

// Event loads an event with its club
func (m *Manager) Event(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	if err := m.db.WithContext(ctx).Preload("Club").First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, m.fail("load event", err)
	}
	return &event, nil
}

func registeredCount(tx *gorm.DB, eventID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.EventRegistration{}).
		Where("event_id = ? AND status = ?", eventID, models.RegistrationStatusRegistered).
		Count(&count).Error
	return count, err
}

// Register claims a spot on event for user. Checks run in order: existing
// claim, capacity, event date, deadline, event state.
func (m *Manager) Register(ctx context.Context, user *models.User, event *models.Event, notes string) (*models.EventRegistration, error) {
	now := m.now().UTC()

	var reg models.EventRegistration
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.EventRegistration{}).
			Where("event_id = ? AND user_id = ? AND status IN ?", event.ID, user.ID, claimed).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyRegistered
		}

		if event.HasCapacity() {
			count, err := registeredCount(tx, event.ID)
			if err != nil {
				return err
			}
			if count >= int64(*event.MaxParticipants) {
				return ErrEventFull
			}
		}

		if event.EventDate.Before(now) {
			return ErrEventInPast
		}
		if event.RegistrationDeadline != nil && now.After(*event.RegistrationDeadline) {
			return ErrRegistrationClosed
		}
		if !event.IsOpen() {
			return ErrEventNotOpen
		}

		if event.HasCapacity() {
			result := tx.Model(&models.Event{}).
				Where("id = ? AND remaining_spots > 0", event.ID).
				UpdateColumn("remaining_spots", gorm.Expr("remaining_spots - 1"))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrEventFull
			}
		}

		// a row left CANCELLED by an earlier cancellation would block the unique index
		if err := tx.Where("event_id = ? AND user_id = ? AND status = ?", event.ID, user.ID, models.RegistrationStatusCancelled).
			Delete(&models.EventRegistration{}).Error; err != nil {
			return err
		}

		reg = models.EventRegistration{
			EventID:      event.ID,
			UserID:       user.ID,
			RegisteredAt: now,
			Status:       models.RegistrationStatusRegistered,
			Notes:        notes,
		}
		if err := tx.Create(&reg).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, m.fail("register for event", err)
	}

	if event.RemainingSpots != nil && *event.RemainingSpots > 0 {
		left := *event.RemainingSpots - 1
		event.RemainingSpots = &left
	}

	m.logger.Info("User registered for event", zap.Uint("event_id", event.ID), zap.Uint("user_id", user.ID))
	m.notifier.Notify(ctx, user.ID, models.NotificationEventRegistered,
		"Registered for "+event.Name,
		fmt.Sprintf("You are registered for %s on %s at %s.", event.Name, event.EventDate.Format("Jan 2, 2006 15:04"), event.Venue),
		&event.ID)
	return &reg, nil
}

// Unregister releases user's spot on event. Attendance records are kept and
// unregistering closes UnregisterCutoff before the event starts.
func (m *Manager) Unregister(ctx context.Context, user *models.User, event *models.Event) error {
	now := m.now().UTC()

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg models.EventRegistration
		err := tx.Where("event_id = ? AND user_id = ?", event.ID, user.ID).First(&reg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotRegistered
		}
		if err != nil {
			return err
		}
		switch reg.Status {
		case models.RegistrationStatusAttended:
			return ErrAlreadyAttended
		case models.RegistrationStatusCancelled:
			return ErrNotRegistered
		}

		if event.EventDate.Before(now.Add(UnregisterCutoff)) {
			return ErrTooLateToUnregister
		}

		if err := tx.Delete(&reg).Error; err != nil {
			return err
		}

		return releaseSpot(tx, event)
	})
	if err != nil {
		return m.fail("unregister from event", err)
	}
	event.ReleaseSpot()

	m.logger.Info("User unregistered from event", zap.Uint("event_id", event.ID), zap.Uint("user_id", user.ID))
	m.notifier.Notify(ctx, user.ID, models.NotificationEventUnregistered,
		"Unregistered from "+event.Name,
		fmt.Sprintf("Your registration for %s has been cancelled.", event.Name),
		&event.ID)
	return nil
}

func (m *Manager) club(ctx context.Context, event *models.Event) (*models.Club, error) {
	if event.Club.ID == event.ClubID && event.ClubID != 0 {
		return &event.Club, nil
	}
	var club models.Club
	if err := m.db.WithContext(ctx).First(&club, event.ClubID).Error; err != nil {
		return nil, m.fail("load club", err)
	}
	event.Club = club
	return &event.Club, nil
}

// CanEdit reports whether actor may edit event
func (m *Manager) CanEdit(ctx context.Context, actor *models.User, event *models.Event) (bool, error) {
	club, err := m.club(ctx, event)
	if err != nil {
		return false, err
	}
	facts, err := policy.LoadFacts(ctx, m.lookup, actor, club)
	if err != nil {
		return false, m.fail("load membership", err)
	}
	return facts.CanEditEvent(), nil
}

// MarkAttended moves target's registration from REGISTERED to ATTENDED
func (m *Manager) MarkAttended(ctx context.Context, actor *models.User, event *models.Event, targetID uint) (*models.EventRegistration, error) {
	allowed, err := m.CanEdit(ctx, actor, event)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	var reg models.EventRegistration
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("event_id = ? AND user_id = ?", event.ID, targetID).First(&reg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotRegistered
		}
		if err != nil {
			return err
		}
		switch reg.Status {
		case models.RegistrationStatusAttended:
			return ErrAlreadyAttended
		case models.RegistrationStatusCancelled:
			return ErrNotRegistered
		}
		reg.Status = models.RegistrationStatusAttended
		if err := tx.Model(&reg).Update("status", models.RegistrationStatusAttended).Error; err != nil {
			return err
		}
		// attended rows no longer hold a spot
		return releaseSpot(tx, event)
	})
	if err != nil {
		return nil, m.fail("mark attendance", err)
	}
	event.ReleaseSpot()
	return &reg, nil
}

// releaseSpot gives one spot back to event inside tx
func releaseSpot(tx *gorm.DB, event *models.Event) error {
	if !event.HasCapacity() {
		return nil
	}
	return tx.Model(&models.Event{}).
		Where("id = ? AND remaining_spots < max_participants", event.ID).
		UpdateColumn("remaining_spots", gorm.Expr("remaining_spots + 1")).Error
}

// CancelRegistrations marks every REGISTERED row of the event CANCELLED
// inside tx and returns the affected user ids
func CancelRegistrations(tx *gorm.DB, eventID uint) ([]uint, error) {
	var userIDs []uint
	if err := tx.Model(&models.EventRegistration{}).
		Where("event_id = ? AND status = ?", eventID, models.RegistrationStatusRegistered).
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}
	err := tx.Model(&models.EventRegistration{}).
		Where("event_id = ? AND status = ?", eventID, models.RegistrationStatusRegistered).
		Update("status", models.RegistrationStatusCancelled).Error
	return userIDs, err
}

// RegisteredCount counts REGISTERED rows for the event
func (m *Manager) RegisteredCount(ctx context.Context, eventID uint) (int64, error) {
	count, err := registeredCount(m.db.WithContext(ctx), eventID)
	if err != nil {
		return 0, m.fail("count registrations", err)
	}
	return count, nil
}

// RemainingSpots returns capacity minus the registered count, floored at
// zero, or Unlimited when the event has no capacity
func (m *Manager) RemainingSpots(ctx context.Context, event *models.Event) (int, error) {
	if !event.HasCapacity() {
		return Unlimited, nil
	}
	count, err := m.RegisteredCount(ctx, event.ID)
	if err != nil {
		return 0, err
	}
	left := *event.MaxParticipants - int(count)
	if left < 0 {
		left = 0
	}
	return left, nil
}

// IsRegistered reports whether the user holds a REGISTERED row for the event
func (m *Manager) IsRegistered(ctx context.Context, eventID, userID uint) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.EventRegistration{}).
		Where("event_id = ? AND user_id = ? AND status = ?", eventID, userID, models.RegistrationStatusRegistered).
		Count(&count).Error
	if err != nil {
		return false, m.fail("check registration", err)
	}
	return count > 0, nil
}

// RegistrationsForEvent lists the event's registrations with users preloaded
func (m *Manager) RegistrationsForEvent(ctx context.Context, eventID uint) ([]models.EventRegistration, error) {
	var regs []models.EventRegistration
	err := m.db.WithContext(ctx).Preload("User").
		Where("event_id = ?", eventID).
		Order("registered_at ASC").
		Find(&regs).Error
	if err != nil {
		return nil, m.fail("list registrations", err)
	}
	return regs, nil
}

// RegistrationsForUser lists the user's registrations, newest first, with events preloaded
func (m *Manager) RegistrationsForUser(ctx context.Context, userID uint) ([]models.EventRegistration, error) {
	var regs []models.EventRegistration
	err := m.db.WithContext(ctx).Preload("Event").Preload("Event.Club").
		Where("user_id = ?", userID).
		Order("registered_at DESC").
		Find(&regs).Error
	if err != nil {
		return nil, m.fail("list registrations", err)
	}
	return regs, nil
}

// AttendedCount counts the events the user attended
func (m *Manager) AttendedCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.EventRegistration{}).
		Where("user_id = ? AND status = ?", userID, models.RegistrationStatusAttended).
		Count(&count).Error
	if err != nil {
		return 0, m.fail("count attendance", err)
	}
	return count, nil
}
