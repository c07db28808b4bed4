// Package dashboard assembles the role-specific landing summary.
package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/clubs"
	"github.com/mikepea/clubhub/pkg/clubhub/events"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/registration"
)

// UpcomingLimit caps the event lists shown on the dashboard
const UpcomingLimit = 5

// Stats are the figures every role sees
type Stats struct {
	TotalEvents    int64 `json:"total_events"`
	UpcomingEvents int64 `json:"upcoming_events"`
	ActiveClubs    int64 `json:"active_clubs"`
	ActiveUsers    int64 `json:"active_users"`
}

// AdminSection holds global counts for administrators
type AdminSection struct {
	TotalStudents   int64 `json:"total_students"`
	TotalClubHeads  int64 `json:"total_club_heads"`
	CancelledEvents int64 `json:"cancelled_events"`
	Registrations   int64 `json:"registrations"`
}

// HeadSection covers the clubs a club head runs
type HeadSection struct {
	Clubs       []clubs.ClubResponse   `json:"clubs"`
	Events      []events.EventResponse `json:"events"`
	MemberTotal int64                  `json:"member_total"`
}

// StudentSection covers a student's own activity
type StudentSection struct {
	Registrations []registration.RegistrationResponse `json:"registrations"`
	Clubs         []clubs.ClubResponse                `json:"clubs"`
	Recommended   []events.EventResponse              `json:"recommended_events"`
}

// Dashboard is the summary returned to the current user
type Dashboard struct {
	Role     string                 `json:"role"`
	Stats    Stats                  `json:"stats"`
	Upcoming []events.EventResponse `json:"upcoming_events"`
	Admin    *AdminSection          `json:"admin,omitempty"`
	ClubHead *HeadSection           `json:"club_head,omitempty"`
	Student  *StudentSection        `json:"student,omitempty"`
}

type builder func(s *Service, ctx context.Context, user *models.User, d *Dashboard) error

// builders fills the role-specific section of a dashboard
var builders = map[models.Role]builder{
	models.RoleAdmin:    (*Service).buildAdmin,
	models.RoleClubHead: (*Service).buildClubHead,
	models.RoleStudent:  (*Service).buildStudent,
}

// Service builds dashboards
type Service struct {
	db            *gorm.DB
	clubs         *clubs.Service
	events        *events.Service
	members       *membership.Manager
	registrations *registration.Manager
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a dashboard service
func NewService(db *gorm.DB, clubs *clubs.Service, events *events.Service, members *membership.Manager, registrations *registration.Manager, logger *zap.Logger) *Service {
	return &Service{
		db:            db,
		clubs:         clubs,
		events:        events,
		members:       members,
		registrations: registrations,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock replaces the service's time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) count(ctx context.Context, model interface{}, query string, args ...interface{}) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		s.logger.Error("Failed to build dashboard", zap.Error(err))
		return 0, apperr.Wrap(apperr.Internal, "Failed to build dashboard", err)
	}
	return n, nil
}

func eventResponses(list []models.Event, limit int) []events.EventResponse {
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]events.EventResponse, len(list))
	for i, e := range list {
		out[i] = events.NewEventResponse(e)
	}
	return out
}

func clubResponses(list []models.Club) []clubs.ClubResponse {
	out := make([]clubs.ClubResponse, len(list))
	for i, c := range list {
		out[i] = clubs.NewClubResponse(c)
	}
	return out
}

// Build returns the dashboard for user. Roles without a builder get only
// the shared stats.
func (s *Service) Build(ctx context.Context, user *models.User) (*Dashboard, error) {
	d := &Dashboard{Role: string(user.Role)}
	now := s.now().UTC()

	var err error
	if d.Stats.TotalEvents, err = s.count(ctx, &models.Event{}, ""); err != nil {
		return nil, err
	}
	if d.Stats.UpcomingEvents, err = s.count(ctx, &models.Event{},
		"event_date > ? AND status = ? AND active = ?", now, models.EventStatusUpcoming, true); err != nil {
		return nil, err
	}
	if d.Stats.ActiveClubs, err = s.count(ctx, &models.Club{}, "active = ?", true); err != nil {
		return nil, err
	}
	if d.Stats.ActiveUsers, err = s.count(ctx, &models.User{}, "active = ?", true); err != nil {
		return nil, err
	}

	upcoming, err := s.events.ListUpcoming(ctx)
	if err != nil {
		return nil, err
	}
	d.Upcoming = eventResponses(upcoming, UpcomingLimit)

	if build, ok := builders[user.Role]; ok {
		if err := build(s, ctx, user, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *Service) buildAdmin(ctx context.Context, _ *models.User, d *Dashboard) error {
	section := &AdminSection{}
	var err error
	if section.TotalStudents, err = s.count(ctx, &models.User{}, "role = ?", models.RoleStudent); err != nil {
		return err
	}
	if section.TotalClubHeads, err = s.count(ctx, &models.User{}, "role = ?", models.RoleClubHead); err != nil {
		return err
	}
	if section.CancelledEvents, err = s.count(ctx, &models.Event{}, "status = ?", models.EventStatusCancelled); err != nil {
		return err
	}
	if section.Registrations, err = s.count(ctx, &models.EventRegistration{}, "status IN ?",
		[]models.RegistrationStatus{models.RegistrationStatusRegistered, models.RegistrationStatusAttended}); err != nil {
		return err
	}
	d.Admin = section
	return nil
}

func (s *Service) buildClubHead(ctx context.Context, user *models.User, d *Dashboard) error {
	headed, err := s.clubs.ClubsByHead(ctx, user.ID)
	if err != nil {
		return err
	}
	section := &HeadSection{Clubs: clubResponses(headed), Events: []events.EventResponse{}}

	for _, club := range headed {
		n, err := s.members.ActiveMemberCount(ctx, club.ID)
		if err != nil {
			return err
		}
		section.MemberTotal += n

		list, err := s.events.ListByClub(ctx, club.ID)
		if err != nil {
			return err
		}
		section.Events = append(section.Events, eventResponses(list, 0)...)
	}
	d.ClubHead = section
	return nil
}

func (s *Service) buildStudent(ctx context.Context, user *models.User, d *Dashboard) error {
	regs, err := s.registrations.RegistrationsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	joined, err := s.members.ClubsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	upcoming, err := s.events.ListUpcoming(ctx)
	if err != nil {
		return err
	}

	section := &StudentSection{
		Registrations: make([]registration.RegistrationResponse, len(regs)),
		Clubs:         clubResponses(joined),
	}
	registered := make(map[uint]bool, len(regs))
	for i, r := range regs {
		section.Registrations[i] = registration.NewRegistrationResponse(r)
		if r.Status != models.RegistrationStatusCancelled {
			registered[r.EventID] = true
		}
	}
	member := make(map[uint]bool, len(joined))
	for _, c := range joined {
		member[c.ID] = true
	}

	// Events of the student's own clubs come first, each group soonest first.
	var own, other []models.Event
	for _, e := range upcoming {
		switch {
		case registered[e.ID]:
		case member[e.ClubID]:
			own = append(own, e)
		default:
			other = append(other, e)
		}
	}
	section.Recommended = eventResponses(append(own, other...), UpcomingLimit)

	d.Student = section
	return nil
}
