package clubs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.Role) *models.User {
	user := models.User{Email: email, PasswordHash: "hash", Name: "Test User", Role: role, Active: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return &user
}

func strPtr(s string) *string { return &s }

func newTestService(db *gorm.DB) (*Service, *membership.Manager) {
	members := membership.NewManager(db, nil, zap.NewNop())
	return NewService(db, members, zap.NewNop()), members
}

func TestCreate(t *testing.T) {
	db := setupTestDB(t)
	s, _ := newTestService(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	student := createTestUser(t, db, "s@example.com", models.RoleStudent)

	club, err := s.Create(ctx, head, Input{Name: "  Robotics  ", Description: "We build robots"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if club.Name != "Robotics" || !club.Active || !club.IsHead(head.ID) {
		t.Errorf("Expected active Robotics headed by creator, got %+v", club)
	}

	if _, err := s.Create(ctx, student, Input{Name: "Chess"}); !errors.Is(err, ErrCreateForbidden) {
		t.Errorf("Expected ErrCreateForbidden for student, got %v", err)
	}

	_, err = s.Create(ctx, head, Input{Name: "robotics"})
	if !errors.Is(err, ErrDuplicateName) || apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("Expected Conflict on duplicate name, got %v", err)
	}

	if _, err := s.Create(ctx, head, Input{Name: "R"}); apperr.KindOf(err) != apperr.ValidationFailed {
		t.Errorf("Expected ValidationFailed on short name, got %v", err)
	}
}

func TestCreateNameLengthCountsCharacters(t *testing.T) {
	db := setupTestDB(t)
	s, _ := newTestService(db)
	ctx := context.Background()
	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)

	cyrillic := strings.Repeat("Ж", 60)
	club, err := s.Create(ctx, head, Input{Name: cyrillic})
	if err != nil {
		t.Fatalf("Expected a 60 character Cyrillic name to be accepted, got %v", err)
	}
	if club.Name != cyrillic {
		t.Errorf("Expected name %q, got %q", cyrillic, club.Name)
	}

	if _, err := s.Create(ctx, head, Input{Name: strings.Repeat("Ж", 101)}); apperr.KindOf(err) != apperr.ValidationFailed {
		t.Errorf("Expected ValidationFailed on 101 characters, got %v", err)
	}
}

func TestCreateWithHeadByAdmin(t *testing.T) {
	db := setupTestDB(t)
	s, _ := newTestService(db)
	ctx := context.Background()

	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	student := createTestUser(t, db, "s@example.com", models.RoleStudent)

	club, err := s.Create(ctx, admin, Input{Name: "Robotics", HeadID: &head.ID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !club.IsHead(head.ID) {
		t.Errorf("Expected named head, got %v", club.HeadID)
	}

	if _, err := s.Create(ctx, admin, Input{Name: "Chess", HeadID: &student.ID}); !errors.Is(err, ErrInvalidHead) {
		t.Errorf("Expected ErrInvalidHead for a student, got %v", err)
	}

	// non-admins cannot pick someone else as head
	other, err := s.Create(ctx, head, Input{Name: "Drama", HeadID: &admin.ID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !other.IsHead(head.ID) {
		t.Errorf("Expected creator as head, got %v", other.HeadID)
	}
}

func TestListAndSearch(t *testing.T) {
	db := setupTestDB(t)
	s, _ := newTestService(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	s.Create(ctx, head, Input{Name: "Robotics"})
	s.Create(ctx, head, Input{Name: "Chess"})
	closed, _ := s.Create(ctx, head, Input{Name: "Robot Wars"})
	db.Model(closed).Update("active", false)

	active, _ := s.List(ctx, false)
	if len(active) != 2 || active[0].Name != "Chess" || active[1].Name != "Robotics" {
		t.Errorf("Expected Chess and Robotics, got %+v", active)
	}
	if active[0].Head == nil || active[0].Head.Email != "head@example.com" {
		t.Error("Expected head to be preloaded")
	}

	all, _ := s.List(ctx, true)
	if len(all) != 3 {
		t.Errorf("Expected 3 clubs, got %d", len(all))
	}

	found, _ := s.Search(ctx, "ROBOT")
	if len(found) != 1 || found[0].Name != "Robotics" {
		t.Errorf("Expected only the active robot club, got %+v", found)
	}

	headed, _ := s.ClubsByHead(ctx, head.ID)
	if len(headed) != 3 {
		t.Errorf("Expected 3 headed clubs, got %d", len(headed))
	}
}

func TestUpdate(t *testing.T) {
	db := setupTestDB(t)
	s, members := newTestService(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	mod := createTestUser(t, db, "mod@example.com", models.RoleStudent)
	student := createTestUser(t, db, "s@example.com", models.RoleStudent)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)

	club, _ := s.Create(ctx, head, Input{Name: "Robotics"})
	s.Create(ctx, head, Input{Name: "Chess"})
	members.Join(ctx, club, mod)
	members.Join(ctx, club, student)
	members.UpdateRole(ctx, head, club, mod.ID, models.MemberRoleModerator)

	if _, err := s.Update(ctx, student, club.ID, Changes{Description: strPtr("x")}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for plain member, got %v", err)
	}

	updated, err := s.Update(ctx, mod, club.ID, Changes{Description: strPtr("Robots and more"), ContactEmail: strPtr("robots@example.com")})
	if err != nil {
		t.Fatalf("Expected moderator to update settings, got %v", err)
	}
	if updated.Description != "Robots and more" || updated.ContactEmail != "robots@example.com" {
		t.Errorf("Unexpected update result: %+v", updated)
	}

	if _, err := s.Update(ctx, head, club.ID, Changes{Name: strPtr("CHESS")}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName on rename, got %v", err)
	}
	if _, err := s.Update(ctx, head, club.ID, Changes{Name: strPtr("Robotics")}); err != nil {
		t.Errorf("Expected keeping the same name to succeed, got %v", err)
	}

	if _, err := s.Update(ctx, head, club.ID, Changes{HeadID: &admin.ID}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected only admins to change the head, got %v", err)
	}
	other := createTestUser(t, db, "other@example.com", models.RoleClubHead)
	updated, err = s.Update(ctx, admin, club.ID, Changes{HeadID: &other.ID})
	if err != nil {
		t.Fatalf("Expected admin to change the head, got %v", err)
	}
	if !updated.IsHead(other.ID) {
		t.Errorf("Expected new head %d, got %v", other.ID, updated.HeadID)
	}
}

func TestDeactivate(t *testing.T) {
	db := setupTestDB(t)
	s, members := newTestService(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	student := createTestUser(t, db, "s@example.com", models.RoleStudent)
	club, _ := s.Create(ctx, head, Input{Name: "Robotics"})

	if _, err := s.Deactivate(ctx, student, club.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if _, err := s.Deactivate(ctx, head, club.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	stored, _ := s.Get(ctx, club.ID)
	if stored.Active {
		t.Error("Expected club to be inactive")
	}
	if _, err := members.Join(ctx, stored, student); !errors.Is(err, membership.ErrClubInactive) {
		t.Errorf("Expected joining an inactive club to fail, got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	s, members := newTestService(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	student := createTestUser(t, db, "s@example.com", models.RoleStudent)
	club, _ := s.Create(ctx, head, Input{Name: "Robotics"})
	keep, _ := s.Create(ctx, head, Input{Name: "Chess"})

	members.Join(ctx, club, student)
	members.Join(ctx, keep, student)
	event := models.Event{ClubID: club.ID, Name: "Workshop", EventDate: time.Now().Add(time.Hour).UTC(), Venue: "Hall A", Active: true}
	db.Create(&event)
	db.Create(&models.EventRegistration{EventID: event.ID, UserID: student.ID, RegisteredAt: time.Now().UTC(), Status: models.RegistrationStatusRegistered})

	if err := s.Delete(ctx, head, club.ID); !errors.Is(err, ErrDeleteForbidden) {
		t.Errorf("Expected ErrDeleteForbidden for head, got %v", err)
	}
	if err := s.Delete(ctx, admin, club.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var clubs, memberships, events, registrations int64
	db.Model(&models.Club{}).Count(&clubs)
	db.Model(&models.ClubMember{}).Count(&memberships)
	db.Model(&models.Event{}).Count(&events)
	db.Model(&models.EventRegistration{}).Count(&registrations)
	if clubs != 1 || memberships != 1 || events != 0 || registrations != 0 {
		t.Errorf("Expected only the other club and its member left, got %d clubs %d members %d events %d registrations",
			clubs, memberships, events, registrations)
	}

	if err := s.Delete(ctx, admin, club.ID); !errors.Is(err, ErrClubNotFound) {
		t.Errorf("Expected ErrClubNotFound, got %v", err)
	}
}

func TestAnalytics(t *testing.T) {
	db := setupTestDB(t)
	s, members := newTestService(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	a := createTestUser(t, db, "a@example.com", models.RoleStudent)
	b := createTestUser(t, db, "b@example.com", models.RoleStudent)
	club, _ := s.Create(ctx, head, Input{Name: "Robotics"})
	members.Join(ctx, club, a)
	members.Join(ctx, club, b)

	now := time.Now().UTC()
	upcoming := models.Event{ClubID: club.ID, Name: "Demo Day", EventDate: now.Add(48 * time.Hour), Venue: "Hall A", Active: true, Status: models.EventStatusUpcoming}
	past := models.Event{ClubID: club.ID, Name: "Kickoff", EventDate: now.Add(-48 * time.Hour), Venue: "Hall A", Active: true, Status: models.EventStatusCompleted}
	db.Create(&upcoming)
	db.Create(&past)
	db.Create(&models.EventRegistration{EventID: upcoming.ID, UserID: a.ID, RegisteredAt: now, Status: models.RegistrationStatusRegistered})
	db.Create(&models.EventRegistration{EventID: past.ID, UserID: a.ID, RegisteredAt: now, Status: models.RegistrationStatusAttended})
	db.Create(&models.EventRegistration{EventID: past.ID, UserID: b.ID, RegisteredAt: now, Status: models.RegistrationStatusCancelled})

	if _, err := s.Analytics(ctx, a, club.ID); !errors.Is(err, ErrAnalyticsForbidden) {
		t.Errorf("Expected ErrAnalyticsForbidden, got %v", err)
	}

	stats, err := s.Analytics(ctx, head, club.ID)
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	want := Analytics{
		ClubID:                club.ID,
		ClubName:              "Robotics",
		ActiveMembers:         2,
		TotalEvents:           2,
		UpcomingEvents:        1,
		TotalRegistrations:    2,
		AttendedRegistrations: 1,
	}
	if *stats != want {
		t.Errorf("Expected %+v, got %+v", want, *stats)
	}
}
