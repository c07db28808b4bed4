// Package admin serves user management and system statistics to administrators.
package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/policy"
)

var (
	ErrUserNotFound     = membership.ErrUserNotFound
	ErrEmailTaken       = apperr.New(apperr.Conflict, "Email is already registered")
	ErrInvalidRole      = apperr.New(apperr.ValidationFailed, "Invalid role")
	ErrDemoteSelf       = apperr.New(apperr.Forbidden, "Cannot demote yourself")
	ErrDeactivateSelf   = apperr.New(apperr.Forbidden, "Cannot deactivate yourself")
	ErrDeleteSelf       = apperr.New(apperr.Forbidden, "Cannot delete yourself")
	ErrAdminOnly        = apperr.New(apperr.Forbidden, "Admin access required")
	errFailedToFetch    = apperr.New(apperr.Internal, "Failed to fetch users")
	errFailedToSaveUser = apperr.New(apperr.Internal, "Failed to save user")
)

// Handler handles admin requests
type Handler struct {
	db         *gorm.DB
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, logger *zap.Logger, bcryptCost int) *Handler {
	return &Handler{db: db, logger: logger, bcryptCost: bcryptCost, now: time.Now}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID                uint      `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	Department        string    `json:"department"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	ClubCount         int64     `json:"club_count"`
	RegistrationCount int64     `json:"registration_count"`
}

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Name       string `json:"name" binding:"required,min=2,max=100"`
	Role       string `json:"role" binding:"required"`
	Department string `json:"department"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name" binding:"omitempty,min=2,max=100"`
	Role       *string `json:"role"`
	Department *string `json:"department"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers         int64            `json:"total_users"`
	ActiveUsers        int64            `json:"active_users"`
	UsersByRole        map[string]int64 `json:"users_by_role"`
	TotalClubs         int64            `json:"total_clubs"`
	ActiveClubs        int64            `json:"active_clubs"`
	TotalEvents        int64            `json:"total_events"`
	UpcomingEvents     int64            `json:"upcoming_events"`
	TotalRegistrations int64            `json:"total_registrations"`
}

func (h *Handler) toResponse(user models.User) UserResponse {
	resp := UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       string(user.Role),
		Department: user.Department,
		Active:     user.Active,
		CreatedAt:  user.CreatedAt,
	}
	h.db.Model(&models.ClubMember{}).Where("user_id = ? AND active = ?", user.ID, true).Count(&resp.ClubCount)
	h.db.Model(&models.EventRegistration{}).Where("user_id = ?", user.ID).Count(&resp.RegistrationCount)
	return resp
}

func (h *Handler) loadUser(c *gin.Context) (*models.User, bool) {
	id, ok := membership.ParseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return nil, false
	}
	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.JSON(c, ErrUserNotFound)
		} else {
			h.logger.Error("Failed to load user", zap.Uint("user_id", id), zap.Error(err))
			apperr.JSON(c, errFailedToFetch)
		}
		return nil, false
	}
	return &user, true
}

// ListUsers returns users, newest first
// @Summary List users
// @Tags admin
// @Produce json
// @Param q query string false "Search email or name"
// @Param role query string false "Filter by role"
// @Param active query bool false "Filter by active flag"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")

	if search := strings.ToLower(c.Query("q")); search != "" {
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if role := c.Query("role"); role != "" {
		if !models.Role(role).Valid() {
			apperr.JSON(c, ErrInvalidRole)
			return
		}
		query = query.Where("role = ?", role)
	}
	if active := c.Query("active"); active != "" {
		query = query.Where("active = ?", active == "true")
	}

	if err := query.Find(&users).Error; err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		apperr.JSON(c, errFailedToFetch)
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.toResponse(user)
	}
	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID
// @Summary Get user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.toResponse(*user))
}

// CreateUser creates a user with any role
// @Summary Create user
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "User details"
// @Success 201 {object} UserResponse
// @Failure 409 {object} map[string]string "Email already registered"
// @Security BearerAuth
// @Router /admin/users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := models.Role(req.Role)
	if !role.Valid() {
		apperr.JSON(c, ErrInvalidRole)
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		h.logger.Error("Failed to hash password", zap.Error(err))
		apperr.JSON(c, errFailedToSaveUser)
		return
	}

	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         role,
		Department:   req.Department,
		Active:       true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			apperr.JSON(c, ErrEmailTaken)
			return
		}
		h.logger.Error("Failed to create user", zap.Error(err))
		apperr.JSON(c, errFailedToSaveUser)
		return
	}

	actorID, _ := auth.GetUserID(c)
	h.logger.Info("User created by admin",
		zap.Uint("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Uint("actor_id", actorID),
	)
	c.JSON(http.StatusCreated, h.toResponse(user))
}

// UpdateUser updates a user's profile and role
// @Summary Update user
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to update"
// @Success 200 {object} UserResponse
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actorID, _ := auth.GetUserID(c)
	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Department != nil {
		updates["department"] = *req.Department
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		if !role.Valid() {
			apperr.JSON(c, ErrInvalidRole)
			return
		}
		if user.ID == actorID && role != models.RoleAdmin {
			apperr.JSON(c, ErrDemoteSelf)
			return
		}
		updates["role"] = role
	}

	if len(updates) > 0 {
		if err := h.db.Model(user).Updates(updates).Error; err != nil {
			h.logger.Error("Failed to update user", zap.Uint("user_id", user.ID), zap.Error(err))
			apperr.JSON(c, errFailedToSaveUser)
			return
		}
	}

	h.db.First(user, user.ID)
	c.JSON(http.StatusOK, h.toResponse(*user))
}

// ToggleStatus flips a user's active flag
// @Summary Toggle user status
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 403 {object} map[string]string "Cannot deactivate yourself"
// @Security BearerAuth
// @Router /admin/users/{id}/toggle-status [post]
func (h *Handler) ToggleStatus(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if !policy.CanChangeUserStatus(actor, user.ID) {
		if policy.CanManageUsers(actor) {
			apperr.JSON(c, ErrDeactivateSelf)
		} else {
			apperr.JSON(c, ErrAdminOnly)
		}
		return
	}

	active := !user.Active
	if err := h.db.Model(user).Update("active", active).Error; err != nil {
		h.logger.Error("Failed to change user status", zap.Uint("user_id", user.ID), zap.Error(err))
		apperr.JSON(c, errFailedToSaveUser)
		return
	}
	user.Active = active

	h.logger.Info("User status changed",
		zap.Uint("user_id", user.ID),
		zap.Bool("active", active),
		zap.Uint("actor_id", actor.ID),
	)
	c.JSON(http.StatusOK, h.toResponse(*user))
}

// DeleteUser hard-deletes a user with their memberships, registrations and
// notifications. Clubs they head are left without a head.
// @Summary Delete user
// @Tags admin
// @Param id path int true "User ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string "Cannot delete yourself"
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if !policy.CanDeleteUser(actor, user.ID) {
		if policy.CanManageUsers(actor) {
			apperr.JSON(c, ErrDeleteSelf)
		} else {
			apperr.JSON(c, ErrAdminOnly)
		}
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.EventRegistration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.ClubMember{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Club{}).Where("head_id = ?", user.ID).Update("head_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		h.logger.Error("Failed to delete user", zap.Uint("user_id", user.ID), zap.Error(err))
		apperr.JSON(c, apperr.Wrap(apperr.Internal, "Failed to delete user", err))
		return
	}

	h.logger.Info("User deleted", zap.Uint("user_id", user.ID), zap.Uint("actor_id", actor.ID))
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns system-wide statistics
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats := StatsResponse{UsersByRole: make(map[string]int64, len(models.Roles))}

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.User{}).Where("active = ?", true).Count(&stats.ActiveUsers)
	for _, role := range models.Roles {
		var n int64
		h.db.Model(&models.User{}).Where("role = ?", role).Count(&n)
		stats.UsersByRole[string(role)] = n
	}

	h.db.Model(&models.Club{}).Count(&stats.TotalClubs)
	h.db.Model(&models.Club{}).Where("active = ?", true).Count(&stats.ActiveClubs)
	h.db.Model(&models.Event{}).Count(&stats.TotalEvents)
	h.db.Model(&models.Event{}).
		Where("event_date > ? AND status = ?", h.now().UTC(), models.EventStatusUpcoming).
		Count(&stats.UpcomingEvents)
	h.db.Model(&models.EventRegistration{}).
		Where("status IN ?", []models.RegistrationStatus{models.RegistrationStatusRegistered, models.RegistrationStatusAttended}).
		Count(&stats.TotalRegistrations)

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.POST("/users", h.CreateUser)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.POST("/users/:id/toggle-status", h.ToggleStatus)
	rg.DELETE("/users/:id", h.DeleteUser)
}
