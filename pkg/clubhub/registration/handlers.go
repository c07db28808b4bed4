package registration

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

// Handler exposes registration operations over HTTP
type Handler struct {
	registrations *Manager
}

// NewHandler creates a new registration handler
func NewHandler(registrations *Manager) *Handler {
	return &Handler{registrations: registrations}
}

// RegisterRequest carries optional notes for the organisers
type RegisterRequest struct {
	Notes string `json:"notes" binding:"max=500"`
}

// RegistrationResponse represents a registration in API responses
type RegistrationResponse struct {
	ID           uint      `json:"id"`
	EventID      uint      `json:"event_id"`
	UserID       uint      `json:"user_id"`
	UserName     string    `json:"user_name,omitempty"`
	UserEmail    string    `json:"user_email,omitempty"`
	EventName    string    `json:"event_name,omitempty"`
	EventDate    time.Time `json:"event_date,omitempty"`
	ClubName     string    `json:"club_name,omitempty"`
	Status       string    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NewRegistrationResponse converts a registration, using preloaded relations when present
func NewRegistrationResponse(r models.EventRegistration) RegistrationResponse {
	return RegistrationResponse{
		ID:           r.ID,
		EventID:      r.EventID,
		UserID:       r.UserID,
		UserName:     r.User.Name,
		UserEmail:    r.User.Email,
		EventName:    r.Event.Name,
		EventDate:    r.Event.EventDate,
		ClubName:     r.Event.Club.Name,
		Status:       string(r.Status),
		Notes:        r.Notes,
		RegisteredAt: r.RegisteredAt,
	}
}

func (h *Handler) event(c *gin.Context) (*models.Event, bool) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return nil, false
	}
	event, err := h.registrations.Event(c.Request.Context(), uint(eventID))
	if err != nil {
		apperr.JSON(c, err)
		return nil, false
	}
	return event, true
}

// Register registers the current user for an event
// @Summary Register for event
// @Tags registrations
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param request body RegisterRequest false "Notes"
// @Success 201 {object} RegistrationResponse
// @Failure 409 {object} map[string]string "Already registered or event full"
// @Failure 422 {object} map[string]string "Event in the past or registration closed"
// @Security BearerAuth
// @Router /events/{id}/register [post]
func (h *Handler) Register(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	event, ok := h.event(c)
	if !ok {
		return
	}

	var req RegisterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	reg, err := h.registrations.Register(c.Request.Context(), user, event, req.Notes)
	if err != nil {
		apperr.JSON(c, err)
		return
	}

	resp := NewRegistrationResponse(*reg)
	resp.EventName = event.Name
	resp.EventDate = event.EventDate
	resp.ClubName = event.Club.Name
	c.JSON(http.StatusCreated, resp)
}

// Unregister cancels the current user's registration
// @Summary Unregister from event
// @Tags registrations
// @Param id path int true "Event ID"
// @Success 204
// @Failure 404 {object} map[string]string "Not registered"
// @Failure 422 {object} map[string]string "Too close to the event"
// @Security BearerAuth
// @Router /events/{id}/register [delete]
func (h *Handler) Unregister(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	event, ok := h.event(c)
	if !ok {
		return
	}

	if err := h.registrations.Unregister(c.Request.Context(), user, event); err != nil {
		apperr.JSON(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListForEvent returns the event's registrations to its organisers
// @Summary List event registrations
// @Tags registrations
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {array} RegistrationResponse
// @Failure 403 {object} map[string]string "Not an organiser"
// @Security BearerAuth
// @Router /events/{id}/registrations [get]
func (h *Handler) ListForEvent(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	event, ok := h.event(c)
	if !ok {
		return
	}

	allowed, err := h.registrations.CanEdit(c.Request.Context(), user, event)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	if !allowed {
		apperr.JSON(c, ErrForbidden)
		return
	}

	regs, err := h.registrations.RegistrationsForEvent(c.Request.Context(), event.ID)
	if err != nil {
		apperr.JSON(c, err)
		return
	}

	out := make([]RegistrationResponse, len(regs))
	for i, r := range regs {
		out[i] = NewRegistrationResponse(r)
		out[i].EventName = event.Name
		out[i].EventDate = event.EventDate
		out[i].ClubName = event.Club.Name
	}
	c.JSON(http.StatusOK, out)
}

// MarkAttended records that a registered user attended
// @Summary Mark attendance
// @Tags registrations
// @Param id path int true "Event ID"
// @Param userId path int true "User ID"
// @Success 200 {object} RegistrationResponse
// @Security BearerAuth
// @Router /events/{id}/registrations/{userId}/attend [post]
func (h *Handler) MarkAttended(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	event, ok := h.event(c)
	if !ok {
		return
	}
	targetID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	reg, err := h.registrations.MarkAttended(c.Request.Context(), user, event, uint(targetID))
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRegistrationResponse(*reg))
}

// MyRegistrations lists the current user's registrations
// @Summary My registrations
// @Tags registrations
// @Produce json
// @Success 200 {array} RegistrationResponse
// @Security BearerAuth
// @Router /me/registrations [get]
func (h *Handler) MyRegistrations(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	regs, err := h.registrations.RegistrationsForUser(c.Request.Context(), userID)
	if err != nil {
		apperr.JSON(c, err)
		return
	}

	out := make([]RegistrationResponse, len(regs))
	for i, r := range regs {
		out[i] = NewRegistrationResponse(r)
	}
	c.JSON(http.StatusOK, out)
}

// RegisterRoutes registers registration routes on the events router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/register", h.Register)
	rg.DELETE("/:id/register", h.Unregister)
	rg.GET("/:id/registrations", h.ListForEvent)
	rg.POST("/:id/registrations/:userId/attend", h.MarkAttended)
}

// RegisterUserRoutes registers routes under /me
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/registrations", h.MyRegistrations)
}
