package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/config"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

func setupTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:  "clubhub-test-secret-0123456789",
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		RateLimit: config.RateLimitConfig{Enabled: false},
	}

	gin.SetMode(gin.TestMode)
	return NewRouter(Deps{DB: db, Config: cfg, Logger: zap.NewNop()}), db
}

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func (c *client) expect(method, path string, body interface{}, status int, out interface{}) {
	c.t.Helper()
	w := c.do(method, path, body)
	if w.Code != status {
		c.t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, status, w.Code, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			c.t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
}

// login returns a client acting with the token issued for email
func login(t *testing.T, r *gin.Engine, email, password string) *client {
	anon := &client{t: t, router: r}
	var resp struct {
		Token string `json:"token"`
	}
	anon.expect("POST", "/api/auth/login", map[string]string{"email": email, "password": password}, http.StatusOK, &resp)
	return &client{t: t, router: r, token: resp.Token}
}

func TestHealth(t *testing.T) {
	r, _ := setupTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
		if w.Header().Get(HeaderRequestID) == "" {
			t.Errorf("%s: expected a generated request id", path)
		}
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(HeaderRequestID, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(HeaderRequestID); got != "trace-123" {
		t.Errorf("Expected request id to be echoed, got %q", got)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, _ := setupTestServer(t)
	anon := &client{t: t, router: r}

	for _, path := range []string{"/api/clubs", "/api/events", "/api/me/registrations", "/api/notifications", "/api/dashboard", "/api/admin/stats"} {
		if w := anon.do("GET", path, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", path, w.Code)
		}
	}
}

func TestFullFlow(t *testing.T) {
	r, db := setupTestServer(t)

	hash, _ := auth.HashPassword("adminpass", bcrypt.MinCost)
	db.Create(&models.User{Email: "admin@example.com", Name: "Admin", PasswordHash: hash, Role: models.RoleAdmin, Active: true})
	admin := login(t, r, "admin@example.com", "adminpass")

	// The admin creates a club head; students sign themselves up.
	admin.expect("POST", "/api/admin/users", map[string]string{
		"email": "head@example.com", "password": "headpass", "name": "Hannah Head", "role": "CLUB_HEAD",
	}, http.StatusCreated, nil)
	head := login(t, r, "head@example.com", "headpass")

	anon := &client{t: t, router: r}
	for _, email := range []string{"sam@example.com", "kim@example.com"} {
		anon.expect("POST", "/api/auth/register", map[string]string{
			"email": email, "password": "studentpass", "name": "Student",
		}, http.StatusCreated, nil)
	}
	sam := login(t, r, "sam@example.com", "studentpass")
	kim := login(t, r, "kim@example.com", "studentpass")

	sam.expect("GET", "/api/admin/stats", nil, http.StatusForbidden, nil)
	sam.expect("GET", "/api/me/headed-clubs", nil, http.StatusForbidden, nil)

	var me struct {
		Capabilities []string `json:"capabilities"`
	}
	head.expect("GET", "/api/auth/me", nil, http.StatusOK, &me)
	if len(me.Capabilities) != 3 || me.Capabilities[1] != "create_event" {
		t.Errorf("Expected club head capabilities, got %v", me.Capabilities)
	}

	var club struct {
		ID uint `json:"id"`
	}
	head.expect("POST", "/api/clubs", map[string]string{"name": "Robotics"}, http.StatusCreated, &club)
	clubPath := fmt.Sprintf("/api/clubs/%d", club.ID)

	var headed []map[string]interface{}
	head.expect("GET", "/api/me/headed-clubs", nil, http.StatusOK, &headed)
	if len(headed) != 1 {
		t.Errorf("Expected 1 headed club, got %d", len(headed))
	}

	sam.expect("POST", clubPath+"/join", nil, http.StatusCreated, nil)
	sam.expect("POST", clubPath+"/join", nil, http.StatusConflict, nil)

	var event struct {
		ID             uint `json:"id"`
		RemainingSpots int  `json:"remaining_spots"`
	}
	head.expect("POST", "/api/events", map[string]interface{}{
		"club_id":          club.ID,
		"name":             "Demo Day",
		"event_date":       time.Now().Add(7 * 24 * time.Hour).UTC(),
		"venue":            "Hall A",
		"max_participants": 1,
	}, http.StatusCreated, &event)
	if event.RemainingSpots != 1 {
		t.Errorf("Expected 1 remaining spot, got %d", event.RemainingSpots)
	}
	eventPath := fmt.Sprintf("/api/events/%d", event.ID)

	sam.expect("POST", eventPath+"/register", nil, http.StatusCreated, nil)

	var failure struct {
		Kind string `json:"kind"`
	}
	kim.expect("POST", eventPath+"/register", nil, http.StatusConflict, &failure)
	if failure.Kind != "capacity_exceeded" {
		t.Errorf("Expected capacity_exceeded, got %q", failure.Kind)
	}

	kim.expect("GET", eventPath, nil, http.StatusOK, &event)
	if event.RemainingSpots != 0 {
		t.Errorf("Expected 0 remaining spots, got %d", event.RemainingSpots)
	}

	var regs []map[string]interface{}
	sam.expect("GET", "/api/me/registrations", nil, http.StatusOK, &regs)
	if len(regs) != 1 {
		t.Errorf("Expected 1 registration, got %d", len(regs))
	}

	var unread struct {
		Count int64 `json:"count"`
	}
	sam.expect("GET", "/api/notifications/unread-count", nil, http.StatusOK, &unread)
	if unread.Count != 2 {
		t.Errorf("Expected join and registration notifications, got %d", unread.Count)
	}

	w := head.do("GET", eventPath+"/export/attendees", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Disposition") == "" {
		t.Errorf("Expected attendee workbook, got %d", w.Code)
	}
	sam.expect("GET", clubPath+"/export/members", nil, http.StatusForbidden, nil)

	var dash struct {
		Role     string          `json:"role"`
		ClubHead json.RawMessage `json:"club_head"`
	}
	head.expect("GET", "/api/dashboard", nil, http.StatusOK, &dash)
	if dash.Role != "CLUB_HEAD" || len(dash.ClubHead) == 0 {
		t.Errorf("Expected club head dashboard, got %+v", dash)
	}

	head.expect("POST", eventPath+"/cancel", nil, http.StatusOK, nil)
	kim.expect("POST", eventPath+"/register", nil, http.StatusConflict, nil)

	var stats struct {
		TotalUsers  int64 `json:"total_users"`
		ActiveClubs int64 `json:"active_clubs"`
	}
	admin.expect("GET", "/api/admin/stats", nil, http.StatusOK, &stats)
	if stats.TotalUsers != 4 || stats.ActiveClubs != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	admin.expect("DELETE", clubPath, nil, http.StatusNoContent, nil)
	sam.expect("GET", clubPath, nil, http.StatusNotFound, nil)
}
