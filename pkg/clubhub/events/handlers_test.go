package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

var testTokens = auth.NewTokens("clubhub-test-secret-0123456789", time.Hour)

func setupTestRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(f.events)

	authMW := auth.Middleware(testTokens, f.db)
	handler.RegisterRoutes(r.Group("/events", authMW))
	handler.RegisterClubRoutes(r.Group("/clubs", authMW))
	return r
}

func getAuthHeader(user *models.User) string {
	token, _ := testTokens.Generate(user.ID, user.Email, string(user.Role))
	return "Bearer " + token
}

func doRequest(router *gin.Engine, method, path string, body interface{}, user *models.User) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestEventEndpoints(t *testing.T) {
	f := newFixture(t)
	router := setupTestRouter(f)

	head := createTestUser(t, f.db, "head@example.com", models.RoleClubHead)
	student := createTestUser(t, f.db, "s@example.com", models.RoleStudent)
	admin := createTestUser(t, f.db, "admin@example.com", models.RoleAdmin)
	club := createTestClub(t, f.db, "Robotics", head)

	req := CreateEventRequest{
		ClubID:          club.ID,
		Name:            "Demo Day",
		EventDate:       time.Now().Add(72 * time.Hour),
		Venue:           "Hall A",
		MaxParticipants: intPtr(20),
	}

	resp := doRequest(router, "POST", "/events", req, student)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for student, got %d", resp.Code)
	}

	resp = doRequest(router, "POST", "/events", req, head)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created EventResponse
	json.Unmarshal(resp.Body.Bytes(), &created)
	if created.Name != "Demo Day" || created.ClubName != "Robotics" || created.RemainingSpots != 20 {
		t.Errorf("Unexpected event response: %+v", created)
	}

	past := req
	past.EventDate = time.Now().Add(-time.Hour)
	resp = doRequest(router, "POST", "/events", past, head)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 for past date, got %d", resp.Code)
	}

	resp = doRequest(router, "POST", "/events", map[string]interface{}{"club_id": club.ID, "name": "X"}, head)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid body, got %d", resp.Code)
	}

	path := fmt.Sprintf("/events/%d", created.ID)

	resp = doRequest(router, "GET", path, nil, student)
	var got EventResponse
	json.Unmarshal(resp.Body.Bytes(), &got)
	if resp.Code != http.StatusOK || got.RegisteredCount == nil || *got.RegisteredCount != 0 {
		t.Errorf("Expected event with a registered count, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "GET", "/events", nil, student)
	var list []EventResponse
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("Expected the demo day in upcoming events, got %+v", list)
	}

	resp = doRequest(router, "GET", "/events?q=nothing", nil, student)
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 0 {
		t.Errorf("Expected no search results, got %+v", list)
	}

	resp = doRequest(router, "GET", fmt.Sprintf("/clubs/%d/events", club.ID), nil, student)
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("Expected one club event, got %+v", list)
	}

	resp = doRequest(router, "PUT", path, UpdateEventRequest{Venue: strPtr("Hall B")}, head)
	var updated EventResponse
	json.Unmarshal(resp.Body.Bytes(), &updated)
	if resp.Code != http.StatusOK || updated.Venue != "Hall B" {
		t.Errorf("Expected venue update, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "POST", path+"/cancel", nil, head)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 on cancel, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doRequest(router, "POST", path+"/cancel", nil, head)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 on second cancel, got %d", resp.Code)
	}

	resp = doRequest(router, "DELETE", path, nil, head)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-admin delete, got %d", resp.Code)
	}
	resp = doRequest(router, "DELETE", path, nil, admin)
	if resp.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.Code)
	}
	resp = doRequest(router, "GET", path, nil, admin)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", resp.Code)
	}
}
