package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/auth"
	"github.com/mikepea/clubhub/pkg/clubhub/config"
	"github.com/mikepea/clubhub/pkg/clubhub/database"
	"github.com/mikepea/clubhub/pkg/clubhub/logger"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/notifications"
	"github.com/mikepea/clubhub/pkg/clubhub/ratelimit"
	"github.com/mikepea/clubhub/pkg/clubhub/server"
)

// @title Clubhub API
// @version 1.0
// @description College club and event management.

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	app := &cli.App{
		Name:  "clubhub-server",
		Usage: "college club and event management API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"CLUBHUB_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema",
				Action: migrate,
			},
			{
				Name:  "create-admin",
				Usage: "create an administrator account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "name", Value: "Admin"},
				},
				Action: createAdmin,
			},
			{
				Name:      "hash-password",
				Usage:     "print the bcrypt hash of a password",
				ArgsUsage: "<password>",
				Action:    hashPassword,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

// setup loads config, builds the logger and connects the database
func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(cfg.Database, zl)
	if err != nil {
		zl.Sync()
		return nil, err
	}
	return &env{cfg: cfg, logger: zl, db: db}, nil
}

func migrate(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	return database.Migrate(e.db, e.logger)
}

func serve(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	if err := database.Migrate(e.db, e.logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{DB: e.db, Config: e.cfg, Logger: e.logger}

	if e.cfg.Broker.URL != "" {
		publisher := notifications.NewAMQPPublisher(e.cfg.Broker.URL, e.cfg.Broker.Queue, e.logger)
		defer publisher.Close()
		deps.Publisher = publisher
		e.logger.Info("Publishing notifications", zap.String("queue", e.cfg.Broker.Queue))
	}

	rdb, err := ratelimit.Connect(ctx, e.cfg.Redis, e.logger)
	if err != nil {
		// The limiter fails open, so the server still starts without redis.
		e.logger.Warn("Rate limiting disabled", zap.Error(err))
	} else if rdb != nil {
		defer rdb.Close()
		deps.Redis = rdb
	}

	gin.SetMode(e.cfg.Server.Mode)
	srv := &http.Server{
		Addr:              e.cfg.Server.Addr(),
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("Starting clubhub server", zap.String("addr", srv.Addr), zap.String("base_url", e.cfg.Server.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	e.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func createAdmin(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	if err := database.Migrate(e.db, e.logger); err != nil {
		return err
	}

	password := c.String("password")
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	hash, err := auth.HashPassword(password, e.cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(c.String("email"))),
		Name:         c.String("name"),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := e.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("a user with email %s already exists", user.Email)
		}
		return err
	}

	e.logger.Info("Created admin user", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
	return nil
}

func hashPassword(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: clubhub-server hash-password <password>", 2)
	}
	hash, err := auth.HashPassword(c.Args().First(), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hash)
	return nil
}
