package export

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
)

// ContentType is the MIME type of xlsx workbooks
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler handles export requests
type Handler struct {
	exporter *Exporter
}

// NewHandler creates a new export handler
func NewHandler(exporter *Exporter) *Handler {
	return &Handler{exporter: exporter}
}

func send(c *gin.Context, wb *Workbook) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", `attachment; filename="`+wb.Filename+`"`)
	c.Data(http.StatusOK, ContentType, wb.Data.Bytes())
}

// Attendees downloads an event's attendee list
// @Summary Export attendees
// @Tags export
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Event ID"
// @Success 200 {file} file
// @Failure 403 {object} map[string]string "Not allowed"
// @Security BearerAuth
// @Router /events/{id}/export/attendees [get]
func (h *Handler) Attendees(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := membership.ParseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}
	wb, err := h.exporter.Attendees(c.Request.Context(), actor, id)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	send(c, wb)
}

// Members downloads a club's member roster
// @Summary Export members
// @Tags export
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Club ID"
// @Success 200 {file} file
// @Failure 403 {object} map[string]string "Not allowed"
// @Security BearerAuth
// @Router /clubs/{id}/export/members [get]
func (h *Handler) Members(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := membership.ParseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid club ID"})
		return
	}
	wb, err := h.exporter.Members(c.Request.Context(), actor, id)
	if err != nil {
		apperr.JSON(c, err)
		return
	}
	send(c, wb)
}

// RegisterEventRoutes registers export routes under /events
func (h *Handler) RegisterEventRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/export/attendees", h.Attendees)
}

// RegisterClubRoutes registers export routes under /clubs
func (h *Handler) RegisterClubRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/export/members", h.Members)
}
