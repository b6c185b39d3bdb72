package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/domain/identity"
	"github.com/carebridge/carebridge/internal/domain/messaging"
	"github.com/carebridge/carebridge/internal/domain/records"
	"github.com/carebridge/carebridge/internal/domain/reminders"
	"github.com/carebridge/carebridge/internal/domain/scheduling"
	"github.com/carebridge/carebridge/internal/platform/auth"
	"github.com/carebridge/carebridge/internal/platform/db"
	"github.com/carebridge/carebridge/internal/platform/middleware"
	"github.com/carebridge/carebridge/internal/platform/ws"
)

// userProviderAdapter adapts the identity service to the messaging core's
// UserProvider interface, avoiding a dependency between the two domains.
type userProviderAdapter struct {
	svc *identity.Service
}

func (a *userProviderAdapter) ResolveUserInfo(ctx context.Context, id uuid.UUID) (*messaging.UserInfo, error) {
	u, err := a.svc.ResolveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &messaging.UserInfo{ID: u.ID, Name: u.Name}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "carebridge-server",
		Short: "CareBridge clinical messaging API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token issuer
	issuer := auth.NewTokenIssuer(
		[]byte(cfg.AuthSigningKey),
		cfg.AuthIssuer,
		time.Duration(cfg.TokenTTLHours)*time.Hour,
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// API groups
	public := e.Group("/api/v1")
	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.Middleware(issuer))

	// -- Register Domain Handlers --

	// Identity domain
	userRepo := identity.NewUserRepoPG(pool)
	identitySvc := identity.NewService(userRepo, issuer)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterPublicRoutes(public)
	identityHandler.RegisterRoutes(apiV1)

	// Scheduling domain, which also hosts the relationship oracle
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	schedSvc := scheduling.NewService(apptRepo)
	schedHandler := scheduling.NewHandler(schedSvc)
	schedHandler.RegisterRoutes(apiV1)

	// Messaging core
	users := &userProviderAdapter{svc: identitySvc}
	gate := messaging.NewGate(schedSvc, logger)
	msgRepo := messaging.NewMessageRepoPG(pool)
	msgSvc := messaging.NewService(msgRepo, gate, users)
	msgHandler := messaging.NewHandler(msgSvc)
	msgHandler.RegisterRoutes(apiV1)

	// Live delivery router
	hub := ws.NewHub(msgSvc, logger)
	msgSvc.SetBroadcaster(hub)
	wsHandler := ws.NewHandler(hub, msgSvc, issuer, users, logger)
	wsHandler.RegisterRoutes(e)

	// Records domain
	recRepo := records.NewRecordRepoPG(pool)
	recSvc := records.NewService(recRepo, schedSvc)
	recHandler := records.NewHandler(recSvc)
	recHandler.RegisterRoutes(apiV1)

	// Reminders domain with its background scheduler
	remRepo := reminders.NewReminderRepoPG(pool)
	remSvc := reminders.NewService(remRepo)
	remHandler := reminders.NewHandler(remSvc)
	remHandler.RegisterRoutes(apiV1)

	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	go reminders.NewScheduler(remRepo, hub, logger).Run(schedCtx)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
