package events

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/registration"
)

// Handler handles event requests
type Handler struct {
	events *Service
}

// NewHandler creates a new events handler
func NewHandler(events *Service) *Handler {
	return &Handler{events: events}
}

// CreateEventRequest represents the request to create an event
type CreateEventRequest struct {
	ClubID               uint       `json:"club_id" binding:"required"`
	Name                 string     `json:"name" binding:"required,min=2,max=100"`
	Description          string     `json:"description" binding:"max=2000"`
	EventDate            time.Time  `json:"event_date" binding:"required"`
	Venue                string     `json:"venue" binding:"required"`
	MaxParticipants      *int       `json:"max_participants" binding:"omitempty,min=1"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	ImageURL             string     `json:"image_url" binding:"omitempty,url"`
}

// UpdateEventRequest represents the request to update an event. A
// max_participants of 0 removes the limit.
type UpdateEventRequest struct {
	Name                 *string    `json:"name" binding:"omitempty,min=2,max=100"`
	Description          *string    `json:"description" binding:"omitempty,max=2000"`
	EventDate            *time.Time `json:"event_date"`
	Venue                *string    `json:"venue" binding:"omitempty,min=1"`
	MaxParticipants      *int       `json:"max_participants" binding:"omitempty,min=0"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	ImageURL             *string    `json:"image_url"`
}

// EventResponse represents an event in API responses. RemainingSpots is -1
// when the event has no capacity limit.
type EventResponse struct {
	ID                   uint       `json:"id"`
	ClubID               uint       `json:"club_id"`
	ClubName             string     `json:"club_name"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	EventDate            time.Time  `json:"event_date"`
	Venue                string     `json:"venue"`
	MaxParticipants      *int       `json:"max_participants"`
	RemainingSpots       int        `json:"remaining_spots"`
	RegisteredCount      *int64     `json:"registered_count,omitempty"`
	Status               string     `json:"status"`
	Active               bool       `json:"active"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	ImageURL             string     `json:"image_url,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// NewEventResponse converts an event using its stored spot counter
func NewEventResponse(e models.Event) EventResponse {
	remaining := registration.Unlimited
	if e.RemainingSpots != nil {
		remaining = *e.RemainingSpots
	}
	return EventResponse{
		ID:                   e.ID,
		ClubID:               e.ClubID,
		ClubName:             e.Club.Name,
		Name:                 e.Name,
		Description:          e.Description,
		EventDate:            e.EventDate,
		Venue:                e.Venue,
		MaxParticipants:      e.MaxParticipants,
		RemainingSpots:       remaining,
		Status:               string(e.Status),
		Active:               e.Active,
		RegistrationDeadline: e.RegistrationDeadline,
		ImageURL:             e.ImageURL,
		CreatedAt:            e.CreatedAt,
	}
}

func toResponses(events []models.Event) []EventResponse {
	out := make([]EventResponse, len(events))
	for i, e := range events {
		out[i] = NewEventResponse(e)
	}
	return out
}

func eventID(c *gin.Context) (uint, bool) {
	id, ok := membership.ParseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
	}
	return id, ok
}

// List returns upcoming events, or matching events when q is given
// @Summary List events
// @Tags events
// @Produce json
// @Param q query string false "Search name and description"
// @Success 200 {array} EventResponse
// @Security BearerAuth
// @Router /events [get]
func (h *Handler) List(c *gin.Context) {
	var (
		events []models.Event
		err    error
	)
	if q := c.Query("q"); q != "" {
		events, err = h.events.Search(c.Request.Context(), q)
	} else {
		events, err = h.events.ListUpcoming(c.Request.Context())
	}
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(events))
}

// ListByClub returns a club's events
// @Summary List club events
// @Tags events
// @Produce json
// @Param id path int true "Club ID"
// @Success 200 {array} EventResponse
// @Security BearerAuth
// @Router /clubs/{id}/events [get]
func (h *Handler) ListByClub(c *gin.Context) {
	clubID, ok := membership.ParseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid club ID"})
		return
	}
	events, err := h.events.ListByClub(c.Request.Context(), clubID)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(events))
}

// Create creates a new event
// @Summary Create event
// @Tags events
// @Accept json
// @Produce json
// @Param request body CreateEventRequest true "Event details"
// @Success 201 {object} EventResponse
// @Failure 403 {object} map[string]string "Cannot create events for this club"
// @Failure 422 {object} map[string]string "Event date in the past"
// @Security BearerAuth
// @Router /events [post]
func (h *Handler) Create(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.events.Create(c.Request.Context(), actor, req.ClubID, Input{
		Name:                 req.Name,
		Description:          req.Description,
		EventDate:            req.EventDate,
		Venue:                req.Venue,
		MaxParticipants:      req.MaxParticipants,
		RegistrationDeadline: req.RegistrationDeadline,
		ImageURL:             req.ImageURL,
	})
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewEventResponse(*event))
}

// Get returns an event with live registration figures
// @Summary Get event
// @Tags events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} map[string]string "Event not found"
// @Security BearerAuth
// @Router /events/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	details, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		apperr.JSON(c, err)
		return
	}

	resp := NewEventResponse(details.Event)
	resp.RemainingSpots = details.RemainingSpots
	resp.RegisteredCount = &details.RegisteredCount
	c.JSON(http.StatusOK, resp)
}

// Update updates an event
// @Summary Update event
// @Tags events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param request body UpdateEventRequest true "Fields to update"
// @Success 200 {object} EventResponse
// @Failure 400 {object} map[string]string "Capacity below registered count"
// @Security BearerAuth
// @Router /events/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := eventID(c)
	if !ok {
		return
	}

	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.events.Update(c.Request.Context(), actor, id, Changes{
		Name:                 req.Name,
		Description:          req.Description,
		EventDate:            req.EventDate,
		Venue:                req.Venue,
		MaxParticipants:      req.MaxParticipants,
		RegistrationDeadline: req.RegistrationDeadline,
		ImageURL:             req.ImageURL,
	})
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, NewEventResponse(*event))
}

// Cancel cancels an event
// @Summary Cancel event
// @Tags events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} EventResponse
// @Failure 409 {object} map[string]string "Already cancelled"
// @Security BearerAuth
// @Router /events/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := eventID(c)
	if !ok {
		return
	}
	event, err := h.events.Cancel(c.Request.Context(), actor, id)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, NewEventResponse(*event))
}

// Delete deletes an event
// @Summary Delete event
// @Tags events
// @Param id path int true "Event ID"
// @Success 204
// @Failure 403 {object} map[string]string "Admin only"
// @Security BearerAuth
// @Router /events/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.events.Delete(c.Request.Context(), actor, id); err != nil {
		apperr.JSON(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers event routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/cancel", h.Cancel)
}

// RegisterClubRoutes registers event routes nested under clubs
func (h *Handler) RegisterClubRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/events", h.ListByClub)
}
