package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
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

func createTestClub(t *testing.T, db *gorm.DB, name string, head *models.User) *models.Club {
	club := models.Club{Name: name, Active: true}
	if head != nil {
		club.HeadID = &head.ID
	}
	if err := db.Create(&club).Error; err != nil {
		t.Fatalf("Failed to create test club: %v", err)
	}
	return &club
}

type sent struct {
	userID uint
	typ    models.NotificationType
}

type recordingSender struct {
	sent []sent
}

func (r *recordingSender) Notify(_ context.Context, userID uint, typ models.NotificationType, _, _ string, _ *uint) {
	r.sent = append(r.sent, sent{userID, typ})
}

func newTestManager(db *gorm.DB) (*Manager, *recordingSender) {
	rec := &recordingSender{}
	return NewManager(db, rec, zap.NewNop()), rec
}

func TestJoin(t *testing.T) {
	db := setupTestDB(t)
	m, rec := newTestManager(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com", models.RoleStudent)
	club := createTestClub(t, db, "Robotics", nil)

	member, err := m.Join(ctx, club, alice)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if member.Role != models.MemberRoleMember || !member.Active {
		t.Errorf("Expected active MEMBER, got %+v", member)
	}

	ok, _ := m.IsMember(ctx, club.ID, alice.ID)
	if !ok {
		t.Error("Expected alice to be a member")
	}
	count, _ := m.ActiveMemberCount(ctx, club.ID)
	if count != 1 {
		t.Errorf("Expected 1 active member, got %d", count)
	}
	if len(rec.sent) != 1 || rec.sent[0].typ != models.NotificationClubJoined {
		t.Errorf("Expected CLUB_JOINED notification, got %+v", rec.sent)
	}

	_, err = m.Join(ctx, club, alice)
	if !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("Expected ErrAlreadyMember, got %v", err)
	}
	if apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("Expected Conflict kind, got %s", apperr.KindOf(err))
	}
}

func TestJoinInactiveClub(t *testing.T) {
	db := setupTestDB(t)
	m, _ := newTestManager(db)

	alice := createTestUser(t, db, "alice@example.com", models.RoleStudent)
	club := createTestClub(t, db, "Robotics", nil)
	club.Active = false

	if _, err := m.Join(context.Background(), club, alice); !errors.Is(err, ErrClubInactive) {
		t.Errorf("Expected ErrClubInactive, got %v", err)
	}
}

func TestLeaveAndRejoinReactivates(t *testing.T) {
	db := setupTestDB(t)
	m, _ := newTestManager(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com", models.RoleStudent)
	club := createTestClub(t, db, "Robotics", nil)

	first, _ := m.Join(ctx, club, alice)

	if err := m.Leave(ctx, club, alice); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if ok, _ := m.IsMember(ctx, club.ID, alice.ID); ok {
		t.Error("Expected alice not to be a member after leaving")
	}
	if err := m.Leave(ctx, club, alice); !errors.Is(err, ErrNotMember) {
		t.Errorf("Expected ErrNotMember on second leave, got %v", err)
	}

	m.WithClock(func() time.Time { return time.Now().Add(time.Hour) })
	again, err := m.Join(ctx, club, alice)
	if err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("Expected rejoin to reactivate row %d, got %d", first.ID, again.ID)
	}
	if !again.JoinedAt.After(first.JoinedAt) {
		t.Error("Expected joined timestamp to be refreshed on rejoin")
	}

	var rows int64
	db.Model(&models.ClubMember{}).Where("club_id = ? AND user_id = ?", club.ID, alice.ID).Count(&rows)
	if rows != 1 {
		t.Errorf("Expected exactly one row per club and user, got %d", rows)
	}
}

func TestUpdateRole(t *testing.T) {
	db := setupTestDB(t)
	m, rec := newTestManager(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	alice := createTestUser(t, db, "alice@example.com", models.RoleStudent)
	bob := createTestUser(t, db, "bob@example.com", models.RoleStudent)
	club := createTestClub(t, db, "Robotics", head)

	m.Join(ctx, club, alice)
	m.Join(ctx, club, bob)

	if _, err := m.UpdateRole(ctx, bob, club, alice.ID, models.MemberRoleModerator); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for plain member, got %v", err)
	}

	member, err := m.UpdateRole(ctx, head, club, alice.ID, models.MemberRoleViceHead)
	if err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}
	if member.Role != models.MemberRoleViceHead {
		t.Errorf("Expected VICE_HEAD, got %s", member.Role)
	}
	if last := rec.sent[len(rec.sent)-1]; last.typ != models.NotificationMemberRoleChanged || last.userID != alice.ID {
		t.Errorf("Expected MEMBER_ROLE_CHANGED to alice, got %+v", last)
	}

	// alice is now elevated and may manage the club herself
	if _, err := m.UpdateRole(ctx, alice, club, bob.ID, models.MemberRoleModerator); err != nil {
		t.Errorf("Expected vice head to update roles, got %v", err)
	}

	vices, _ := m.MembersWithRole(ctx, club.ID, models.MemberRoleViceHead)
	if len(vices) != 1 || vices[0].User.Email != "alice@example.com" {
		t.Errorf("Expected alice as the only vice head, got %+v", vices)
	}

	if _, err := m.UpdateRole(ctx, head, club, alice.ID, models.MemberRole("OWNER")); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Expected ErrInvalidRole, got %v", err)
	}

	outsider := createTestUser(t, db, "out@example.com", models.RoleStudent)
	if _, err := m.UpdateRole(ctx, head, club, outsider.ID, models.MemberRoleModerator); !errors.Is(err, ErrNotMember) {
		t.Errorf("Expected ErrNotMember, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	db := setupTestDB(t)
	m, rec := newTestManager(db)
	ctx := context.Background()

	head := createTestUser(t, db, "head@example.com", models.RoleClubHead)
	alice := createTestUser(t, db, "alice@example.com", models.RoleStudent)
	bob := createTestUser(t, db, "bob@example.com", models.RoleStudent)
	club := createTestClub(t, db, "Robotics", head)

	m.Join(ctx, club, head)
	m.Join(ctx, club, alice)
	m.Join(ctx, club, bob)

	if err := m.Remove(ctx, bob, club, alice.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if err := m.Remove(ctx, head, club, head.ID); !errors.Is(err, ErrCannotRemoveHead) {
		t.Errorf("Expected ErrCannotRemoveHead, got %v", err)
	}
	if err := m.Remove(ctx, head, club, alice.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if ok, _ := m.IsMember(ctx, club.ID, alice.ID); ok {
		t.Error("Expected alice to be removed")
	}
	if last := rec.sent[len(rec.sent)-1]; last.typ != models.NotificationMemberRemoved {
		t.Errorf("Expected MEMBER_REMOVED notification, got %+v", last)
	}

	admin := createTestUser(t, db, "admin@example.com", models.RoleAdmin)
	if err := m.Remove(ctx, admin, club, bob.ID); err != nil {
		t.Errorf("Expected admin to remove members, got %v", err)
	}
	if err := m.Remove(ctx, admin, club, bob.ID); !errors.Is(err, ErrNotMember) {
		t.Errorf("Expected ErrNotMember on second removal, got %v", err)
	}
}

func TestReads(t *testing.T) {
	db := setupTestDB(t)
	m, _ := newTestManager(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com", models.RoleStudent)
	bob := createTestUser(t, db, "bob@example.com", models.RoleStudent)
	robotics := createTestClub(t, db, "Robotics", nil)
	chess := createTestClub(t, db, "Chess", nil)
	closed := createTestClub(t, db, "Closed", nil)

	m.Join(ctx, robotics, alice)
	m.Join(ctx, chess, alice)
	m.Join(ctx, closed, alice)
	m.Join(ctx, robotics, bob)
	m.Leave(ctx, robotics, bob)
	db.Model(closed).Update("active", false)

	clubs, err := m.ClubsForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ClubsForUser failed: %v", err)
	}
	if len(clubs) != 2 || clubs[0].Name != "Chess" || clubs[1].Name != "Robotics" {
		t.Errorf("Expected Chess and Robotics, got %+v", clubs)
	}

	members, _ := m.ActiveMembers(ctx, robotics.ID)
	if len(members) != 1 || members[0].UserID != alice.ID {
		t.Errorf("Expected only alice in Robotics, got %+v", members)
	}
	ids, _ := m.ActiveMemberIDs(ctx, robotics.ID)
	if len(ids) != 1 || ids[0] != alice.ID {
		t.Errorf("Expected [alice], got %v", ids)
	}

	if got, _ := m.ActiveMembership(ctx, robotics.ID, bob.ID); got != nil {
		t.Error("Expected no active membership for bob")
	}

	if _, err := m.Club(ctx, 9999); !errors.Is(err, ErrClubNotFound) {
		t.Errorf("Expected ErrClubNotFound, got %v", err)
	}
}
