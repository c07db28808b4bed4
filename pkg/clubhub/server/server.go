// Package server wires every handler into the HTTP router.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/admin"
	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/clubs"
	"github.com/mikepea/clubhub/pkg/clubhub/config"
	"github.com/mikepea/clubhub/pkg/clubhub/dashboard"
	"github.com/mikepea/clubhub/pkg/clubhub/events"
	"github.com/mikepea/clubhub/pkg/clubhub/export"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/notifications"
	"github.com/mikepea/clubhub/pkg/clubhub/ratelimit"
	"github.com/mikepea/clubhub/pkg/clubhub/registration"
)

// Deps are the long-lived resources the router needs. Publisher and Redis
// may be nil.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Logger    *zap.Logger
	Publisher notifications.Publisher
	Redis     *redis.Client
}

// NewRouter builds the gin engine serving /health and the JSON API under /api
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	db := d.DB
	log := d.Logger

	tokens := auth.NewTokensFromConfig(cfg.Auth)
	notifier := notifications.NewNotifier(db, d.Publisher, log)
	members := membership.NewManager(db, notifier, log)
	registrations := registration.NewManager(db, members, notifier, log)
	clubService := clubs.NewService(db, members, log)
	eventService := events.NewService(db, members, registrations, notifier, log)
	dashboards := dashboard.NewService(db, clubService, eventService, members, registrations, log)
	exporter := export.NewExporter(members, registrations, log)
	limiter := ratelimit.New(cfg.RateLimit, d.Redis, log)

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(log))

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "clubhub"})
	}
	r.GET("/health", health)

	api := r.Group("/api")
	api.GET("/health", health)

	authMW := auth.Middleware(tokens, db)
	limit := limiter.Middleware()

	auth.NewHandler(db, tokens, log, cfg.Auth.BcryptCost).RegisterRoutes(api.Group("/auth", limit))

	clubsHandler := clubs.NewHandler(clubService, members)
	membershipHandler := membership.NewHandler(members)
	eventsHandler := events.NewHandler(eventService)
	registrationHandler := registration.NewHandler(registrations)
	exportHandler := export.NewHandler(exporter)

	clubsGroup := api.Group("/clubs", authMW, limit)
	clubsHandler.RegisterRoutes(clubsGroup)
	membershipHandler.RegisterRoutes(clubsGroup)
	eventsHandler.RegisterClubRoutes(clubsGroup)
	exportHandler.RegisterClubRoutes(clubsGroup)

	eventsGroup := api.Group("/events", authMW, limit)
	eventsHandler.RegisterRoutes(eventsGroup)
	registrationHandler.RegisterRoutes(eventsGroup)
	exportHandler.RegisterEventRoutes(eventsGroup)

	meGroup := api.Group("/me", authMW)
	registrationHandler.RegisterUserRoutes(meGroup)
	membershipHandler.RegisterUserRoutes(meGroup)
	clubsHandler.RegisterUserRoutes(meGroup.Group("", auth.RequireRole(models.RoleAdmin, models.RoleClubHead)))

	notifications.NewHandler(db, log).RegisterRoutes(api.Group("/notifications", authMW))
	dashboard.NewHandler(dashboards).RegisterRoutes(api.Group("/dashboard", authMW))

	adminGroup := api.Group("/admin", authMW, auth.RequireAdmin(), limit)
	admin.NewHandler(db, log, cfg.Auth.BcryptCost).RegisterRoutes(adminGroup)

	return r
}
