package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
)

// Handler handles dashboard requests
type Handler struct {
	dashboards *Service
}

// NewHandler creates a new dashboard handler
func NewHandler(dashboards *Service) *Handler {
	return &Handler{dashboards: dashboards}
}

// Get returns the current user's dashboard
// @Summary Dashboard
// @Tags dashboard
// @Produce json
// @Success 200 {object} Dashboard
// @Security BearerAuth
// @Router /dashboard [get]
func (h *Handler) Get(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	d, err := h.dashboards.Build(c.Request.Context(), user)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// RegisterRoutes registers the dashboard route
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Get)
}
