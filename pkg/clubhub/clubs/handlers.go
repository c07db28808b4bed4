package clubs

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

// Handler handles club requests
type Handler struct {
	clubs   *Service
	members *membership.Manager
}

// NewHandler creates a new clubs handler
func NewHandler(clubs *Service, members *membership.Manager) *Handler {
	return &Handler{clubs: clubs, members: members}
}

// CreateClubRequest represents the request to create a club
type CreateClubRequest struct {
	Name         string `json:"name" binding:"required,min=2,max=100"`
	Description  string `json:"description" binding:"max=1000"`
	LogoURL      string `json:"logo_url" binding:"omitempty,url"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email"`
	HeadID       *uint  `json:"head_id"`
}

// UpdateClubRequest represents the request to update club settings
type UpdateClubRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=2,max=100"`
	Description  *string `json:"description" binding:"omitempty,max=1000"`
	LogoURL      *string `json:"logo_url" binding:"omitempty,url"`
	ContactEmail *string `json:"contact_email" binding:"omitempty,email"`
	HeadID       *uint   `json:"head_id"`
}

// ClubResponse represents a club in API responses
type ClubResponse struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	HeadID       *uint     `json:"head_id"`
	HeadName     string    `json:"head_name,omitempty"`
	Active       bool      `json:"active"`
	LogoURL      string    `json:"logo_url,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	MemberCount  *int64    `json:"member_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewClubResponse converts a club, using the preloaded head when present
func NewClubResponse(c models.Club) ClubResponse {
	resp := ClubResponse{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		HeadID:       c.HeadID,
		Active:       c.Active,
		LogoURL:      c.LogoURL,
		ContactEmail: c.ContactEmail,
		CreatedAt:    c.CreatedAt,
	}
	if c.Head != nil {
		resp.HeadName = c.Head.Name
	}
	return resp
}

func toResponses(clubs []models.Club) []ClubResponse {
	out := make([]ClubResponse, len(clubs))
	for i, c := range clubs {
		out[i] = NewClubResponse(c)
	}
	return out
}

func clubID(c *gin.Context) (uint, bool) {
	id, ok := membership.ParseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid club ID"})
	}
	return id, ok
}

// List returns active clubs, matching clubs when q is given, or every club
// for admins passing all=true
// @Summary List clubs
// @Tags clubs
// @Produce json
// @Param q query string false "Search by name"
// @Param all query bool false "Include inactive clubs (admin only)"
// @Success 200 {array} ClubResponse
// @Security BearerAuth
// @Router /clubs [get]
func (h *Handler) List(c *gin.Context) {
	user, _ := auth.CurrentUser(c)

	var (
		clubs []models.Club
		err   error
	)
	if q := c.Query("q"); q != "" {
		clubs, err = h.clubs.Search(c.Request.Context(), q)
	} else {
		all := c.Query("all") == "true" && user.IsAdmin()
		clubs, err = h.clubs.List(c.Request.Context(), all)
	}
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(clubs))
}

// Create creates a new club
// @Summary Create club
// @Tags clubs
// @Accept json
// @Produce json
// @Param request body CreateClubRequest true "Club details"
// @Success 201 {object} ClubResponse
// @Failure 409 {object} map[string]string "Name already taken"
// @Security BearerAuth
// @Router /clubs [post]
func (h *Handler) Create(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)

	var req CreateClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	club, err := h.clubs.Create(c.Request.Context(), actor, Input{
		Name:         req.Name,
		Description:  req.Description,
		LogoURL:      req.LogoURL,
		ContactEmail: req.ContactEmail,
		HeadID:       req.HeadID,
	})
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewClubResponse(*club))
}

// Get returns a club with its member count
// @Summary Get club
// @Tags clubs
// @Produce json
// @Param id path int true "Club ID"
// @Success 200 {object} ClubResponse
// @Failure 404 {object} map[string]string "Club not found"
// @Security BearerAuth
// @Router /clubs/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := clubID(c)
	if !ok {
		return
	}
	club, err := h.clubs.Get(c.Request.Context(), id)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	count, err := h.members.ActiveMemberCount(c.Request.Context(), club.ID)
	if err != nil {
		apperr.JSON(c, err)
		return
	}

	resp := NewClubResponse(*club)
	resp.MemberCount = &count
	c.JSON(http.StatusOK, resp)
}

// Update updates club settings
// @Summary Update club
// @Tags clubs
// @Accept json
// @Produce json
// @Param id path int true "Club ID"
// @Param request body UpdateClubRequest true "Fields to update"
// @Success 200 {object} ClubResponse
// @Security BearerAuth
// @Router /clubs/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := clubID(c)
	if !ok {
		return
	}

	var req UpdateClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	club, err := h.clubs.Update(c.Request.Context(), actor, id, Changes{
		Name:         req.Name,
		Description:  req.Description,
		LogoURL:      req.LogoURL,
		ContactEmail: req.ContactEmail,
		HeadID:       req.HeadID,
	})
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, NewClubResponse(*club))
}

// Deactivate deactivates a club
// @Summary Deactivate club
// @Tags clubs
// @Produce json
// @Param id path int true "Club ID"
// @Success 200 {object} ClubResponse
// @Security BearerAuth
// @Router /clubs/{id}/deactivate [post]
func (h *Handler) Deactivate(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := clubID(c)
	if !ok {
		return
	}
	club, err := h.clubs.Deactivate(c.Request.Context(), actor, id)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, NewClubResponse(*club))
}

// Delete deletes a club and everything it owns
// @Summary Delete club
// @Tags clubs
// @Param id path int true "Club ID"
// @Success 204
// @Failure 403 {object} map[string]string "Admin only"
// @Security BearerAuth
// @Router /clubs/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := clubID(c)
	if !ok {
		return
	}
	if err := h.clubs.Delete(c.Request.Context(), actor, id); err != nil {
		apperr.JSON(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Analytics returns activity figures for a club
// @Summary Club analytics
// @Tags clubs
// @Produce json
// @Param id path int true "Club ID"
// @Success 200 {object} Analytics
// @Security BearerAuth
// @Router /clubs/{id}/analytics [get]
func (h *Handler) Analytics(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := clubID(c)
	if !ok {
		return
	}
	stats, err := h.clubs.Analytics(c.Request.Context(), actor, id)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HeadedClubs lists the clubs the current user heads
// @Summary My headed clubs
// @Tags clubs
// @Produce json
// @Success 200 {array} ClubResponse
// @Security BearerAuth
// @Router /me/headed-clubs [get]
func (h *Handler) HeadedClubs(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	clubs, err := h.clubs.ClubsByHead(c.Request.Context(), userID)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(clubs))
}

// RegisterRoutes registers club routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/deactivate", h.Deactivate)
	rg.GET("/:id/analytics", h.Analytics)
}

// RegisterUserRoutes registers routes under /me
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/headed-clubs", h.HeadedClubs)
}
