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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medbook/medbook/internal/config"
	"github.com/medbook/medbook/internal/domain/booking"
	"github.com/medbook/medbook/internal/domain/directory"
	"github.com/medbook/medbook/internal/domain/schedule"
	"github.com/medbook/medbook/internal/platform/auth"
	"github.com/medbook/medbook/internal/platform/db"
	"github.com/medbook/medbook/internal/platform/middleware"
	"github.com/medbook/medbook/internal/platform/notification"
	"github.com/medbook/medbook/internal/platform/telemetry"
)

// poolTxRunner adapts db.RunInTx to the TxRunner interfaces of the booking
// and schedule packages, avoiding a domain import of the platform pool.
type poolTxRunner struct {
	pool *pgxpool.Pool
}

func (r poolTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, r.pool, fn)
}

// apptCheckerAdapter exposes the booking store to the schedule edit guards
// as a schedule.AppointmentChecker.
type apptCheckerAdapter struct {
	appts booking.AppointmentRepository
}

func (a apptCheckerAdapter) ListBlockingInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.BookedInterval, error) {
	booked, err := a.appts.ListBlockingInRange(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]schedule.BookedInterval, len(booked))
	for i, b := range booked {
		out[i] = schedule.BookedInterval{ID: b.ID, Start: b.StartTime, End: b.EndTime}
	}
	return out, nil
}

// templateNotifier delivers appointment lifecycle messages through the
// notification manager, resolving the patient's contact details from the
// directory. Failures are logged and swallowed; booking outcomes never
// depend on message delivery.
type templateNotifier struct {
	manager   *notification.NotificationManager
	directory *directory.Service
	logger    zerolog.Logger
}

func (n *templateNotifier) AppointmentBooked(ctx context.Context, a *booking.Appointment) {
	n.send(ctx, "appointment-booked", a)
}

func (n *templateNotifier) AppointmentRescheduled(ctx context.Context, a *booking.Appointment) {
	n.send(ctx, "appointment-rescheduled", a)
}

func (n *templateNotifier) AppointmentCancelled(ctx context.Context, a *booking.Appointment) {
	n.send(ctx, "appointment-cancelled", a)
}

func (n *templateNotifier) send(ctx context.Context, templateID string, a *booking.Appointment) {
	patient, err := n.directory.GetPatient(ctx, a.PatientID)
	if err != nil || patient.Email == nil {
		n.logger.Debug().
			Str("template", templateID).
			Str("appointment_id", a.ID.String()).
			Msg("skipping notification: no patient email")
		return
	}
	doctor, err := n.directory.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		n.logger.Warn().Err(err).Str("template", templateID).Msg("notification doctor lookup failed")
		return
	}

	loc := time.UTC
	if l, err := time.LoadLocation(doctor.TimeZone); err == nil {
		loc = l
	}
	local := a.StartTime.In(loc)

	data := map[string]string{
		"patient_name": patient.Name,
		"doctor":       doctor.Name,
		"date":         local.Format("2006-01-02"),
		"time":         local.Format("15:04"),
	}
	if _, err := n.manager.SendFromTemplate(ctx, templateID, data, *patient.Email); err != nil {
		n.logger.Warn().Err(err).
			Str("template", templateID).
			Str("appointment_id", a.ID.String()).
			Msg("notification delivery failed")
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "medbook-server",
		Short: "Medical appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(practiceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
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
			schema, _ := cmd.Flags().GetString("schema")
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
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "practice_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
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
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
	statusCmd.Flags().String("schema", "practice_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Manage practices",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new practice schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

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

			fmt.Printf("Creating practice schema: practice_%s\n", name)
			if err := db.CreatePracticeSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Practice created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Practice identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
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
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Telemetry
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "medbook-server",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Env,
	})
	defer tp.Shutdown(ctx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeoutDuration()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.ScheduleLimit))
	e.Use(tp.MetricsMiddleware())
	e.Use(tp.TracingMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Practice-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	// Practice (schema) routing
	e.Use(db.PracticeMiddleware(pool, cfg.DefaultPractice))

	// Access audit
	e.Use(middleware.Audit(logger))

	// API group with rate limiting
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tp.PrometheusHandler())

	// Directory: doctors, patients, service types
	directorySvc := directory.NewService(
		directory.NewDoctorRepoPG(pool),
		directory.NewPatientRepoPG(pool),
		directory.NewServiceTypeRepoPG(pool),
	)
	directory.NewHandler(directorySvc).RegisterRoutes(apiV1)

	// Notifications
	tplEngine := notification.NewTemplateEngine()
	notifyMgr := notification.NewNotificationManager(
		&notification.MockEmailSender{},
		&notification.MockSMSSender{},
		tplEngine,
	)
	notification.NewNotificationHandler(notifyMgr).RegisterRoutes(apiV1)

	// Booking engine
	txRunner := poolTxRunner{pool: pool}
	apptRepo := booking.NewAppointmentRepoPG(pool)
	weeklyRepo := schedule.NewWeeklyRepoPG(pool)
	exceptionRepo := schedule.NewExceptionRepoPG(pool)

	bookingSvc := booking.NewService(apptRepo, weeklyRepo, exceptionRepo, directorySvc, txRunner, logger).
		WithNotifier(&templateNotifier{manager: notifyMgr, directory: directorySvc, logger: logger}).
		WithMetrics(tp)
	resolver := booking.NewResolver(weeklyRepo, exceptionRepo, apptRepo, directorySvc)
	booking.NewHandler(bookingSvc, resolver).RegisterRoutes(apiV1)

	// Schedule management
	scheduleSvc := schedule.NewService(weeklyRepo, exceptionRepo, apptCheckerAdapter{appts: apptRepo}, directorySvc, txRunner)
	schedule.NewHandler(scheduleSvc).RegisterRoutes(apiV1)

	// Start server
	addr := ":" + cfg.Port
	go func() {
		var err error
		if cfg.TLSEnabled {
			logger.Info().Str("addr", addr).Msg("starting HTTPS server")
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logger.Info().Str("addr", addr).Msg("starting HTTP server")
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
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
