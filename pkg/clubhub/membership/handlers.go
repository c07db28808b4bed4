package membership

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

// Handler exposes membership operations over HTTP
type Handler struct {
	members *Manager
}

// NewHandler creates a new membership handler
func NewHandler(members *Manager) *Handler {
	return &Handler{members: members}
}

// MemberResponse represents a club member in API responses
type MemberResponse struct {
	UserID     uint      `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Role       string    `json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
}

// NewMemberResponse converts a membership row with its user preloaded
func NewMemberResponse(m models.ClubMember) MemberResponse {
	return MemberResponse{
		UserID:     m.UserID,
		Email:      m.User.Email,
		Name:       m.User.Name,
		Department: m.User.Department,
		Role:       string(m.Role),
		JoinedAt:   m.JoinedAt,
	}
}

// UpdateMemberRequest represents a request to change a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,oneof=MEMBER MODERATOR VICE_HEAD"`
}

// ParseID reads a uint path parameter
func ParseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) club(c *gin.Context) (*models.Club, bool) {
	clubID, ok := ParseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid club ID"})
		return nil, false
	}
	club, err := h.members.Club(c.Request.Context(), clubID)
	if err != nil {
		apperr.JSON(c, err)
		return nil, false
	}
	return club, true
}

// ListMembers returns the active members of a club
// @Summary List club members
// @Tags members
// @Produce json
// @Param id path int true "Club ID"
// @Param role query string false "Filter by member role"
// @Success 200 {array} MemberResponse
// @Security BearerAuth
// @Router /clubs/{id}/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
	club, ok := h.club(c)
	if !ok {
		return
	}

	var (
		rows []models.ClubMember
		err  error
	)
	if role := c.Query("role"); role != "" {
		if !models.MemberRole(role).Valid() {
			apperr.JSON(c, ErrInvalidRole)
			return
		}
		rows, err = h.members.MembersWithRole(c.Request.Context(), club.ID, models.MemberRole(role))
	} else {
		rows, err = h.members.ActiveMembers(c.Request.Context(), club.ID)
	}
	if err != nil {
		apperr.JSON(c, err)
		return
	}

	members := make([]MemberResponse, len(rows))
	for i, m := range rows {
		members[i] = NewMemberResponse(m)
	}
	c.JSON(http.StatusOK, members)
}

// Join adds the current user to a club
// @Summary Join club
// @Tags members
// @Param id path int true "Club ID"
// @Success 201 {object} models.ClubMember
// @Failure 409 {object} map[string]string "Already a member"
// @Security BearerAuth
// @Router /clubs/{id}/join [post]
func (h *Handler) Join(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	club, ok := h.club(c)
	if !ok {
		return
	}

	member, err := h.members.Join(c.Request.Context(), club, user)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

// Leave removes the current user from a club
// @Summary Leave club
// @Tags members
// @Param id path int true "Club ID"
// @Success 204
// @Failure 404 {object} map[string]string "Not a member"
// @Security BearerAuth
// @Router /clubs/{id}/leave [post]
func (h *Handler) Leave(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	club, ok := h.club(c)
	if !ok {
		return
	}

	if err := h.members.Leave(c.Request.Context(), club, user); err != nil {
		apperr.JSON(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateMember changes a member's role
// @Summary Update member role
// @Tags members
// @Accept json
// @Param id path int true "Club ID"
// @Param userId path int true "User ID"
// @Param request body UpdateMemberRequest true "New role"
// @Success 200 {object} models.ClubMember
// @Security BearerAuth
// @Router /clubs/{id}/members/{userId} [put]
func (h *Handler) UpdateMember(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	club, ok := h.club(c)
	if !ok {
		return
	}
	targetID, ok := ParseID(c, "userId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.members.UpdateRole(c.Request.Context(), actor, club, targetID, models.MemberRole(req.Role))
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// RemoveMember removes another user from a club
// @Summary Remove club member
// @Tags members
// @Param id path int true "Club ID"
// @Param userId path int true "User ID"
// @Success 204
// @Security BearerAuth
// @Router /clubs/{id}/members/{userId} [delete]
func (h *Handler) RemoveMember(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	club, ok := h.club(c)
	if !ok {
		return
	}
	targetID, ok := ParseID(c, "userId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if err := h.members.Remove(c.Request.Context(), actor, club, targetID); err != nil {
		apperr.JSON(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MyClubs lists the clubs the current user belongs to
// @Summary My clubs
// @Tags members
// @Produce json
// @Success 200 {array} models.Club
// @Security BearerAuth
// @Router /me/clubs [get]
func (h *Handler) MyClubs(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	clubs, err := h.members.ClubsForUser(c.Request.Context(), userID)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, clubs)
}

// RegisterRoutes registers member routes on the clubs router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/members", h.ListMembers)
	rg.POST("/:id/join", h.Join)
	rg.POST("/:id/leave", h.Leave)
	rg.PUT("/:id/members/:userId", h.UpdateMember)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
}

// RegisterUserRoutes registers routes under /me
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/clubs", h.MyClubs)
}
