package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/config"
	"github.com/beaconhq/beacon-api/internal/handlers"
	"github.com/beaconhq/beacon-api/internal/middleware"
	"github.com/beaconhq/beacon-api/internal/migration"
	"github.com/beaconhq/beacon-api/internal/notification"
	"github.com/beaconhq/beacon-api/internal/repository"
	"github.com/beaconhq/beacon-api/internal/routes"
	"github.com/beaconhq/beacon-api/internal/scheduler"
	"github.com/beaconhq/beacon-api/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config        *config.Config
	db            *sql.DB
	logger        zerolog.Logger
	notifications notification.Service
	intentRepo    repository.IntentRepository
	deliveryRepo  repository.DeliveryRepository
	userRepo      repository.UserRepository
	groupRepo     repository.GroupRepository
	emailJobRepo  repository.EmailJobRepository
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	app := &application{
		config:       cfg,
		db:           db,
		logger:       logger,
		intentRepo:   repository.NewIntentRepository(db),
		deliveryRepo: repository.NewDeliveryRepository(db),
		userRepo:     repository.NewUserRepository(db),
		groupRepo:    repository.NewGroupRepository(db),
		emailJobRepo: repository.NewEmailJobRepository(db),
	}

	// Notification service: audience resolution, fan-out, email handoff.
	resolver := notification.NewAudienceResolver(app.userRepo)
	var emailer notification.Emailer
	if cfg.Email.Enabled {
		emailer = notification.NewQueueEmailer(app.emailJobRepo, app.userRepo, cfg.BaseURL, cfg.Email.RatePerSec, logger)
	}
	app.notifications = notification.NewService(app.intentRepo, app.deliveryRepo, resolver, emailer, logger)

	// Background work: due-intent poller and the outbound mail worker.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	poller := scheduler.NewPoller(app.intentRepo, app.notifications, logger)
	sched := scheduler.New(poller, logger)
	if err := sched.Start(workCtx, cfg.Scheduler.PollSpec); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	if cfg.Email.Enabled {
		mailer, err := notification.NewSMTPMailer(cfg.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure mailer")
		}
		mailWorker := worker.NewMailWorker(app.emailJobRepo, mailer, cfg.Email.DispatchInterval, logger)
		go func() {
			if err := mailWorker.Start(workCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("Mail worker exited")
			}
		}()
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, sched, cancelWork, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	authHandler := handlers.NewAuthHandler(app.userRepo, app.config.JWTSecret, logger)
	notifHandler := handlers.NewNotificationHandler(app.notifications, logger)
	inboxHandler := handlers.NewInboxHandler(app.deliveryRepo, logger)
	groupHandler := handlers.NewGroupHandler(app.groupRepo, app.userRepo, logger)
	trackHandler := handlers.NewTrackHandler(app.deliveryRepo, app.config.FallbackURL, logger)

	return routes.NewRouter(authHandler, notifHandler, inboxHandler, groupHandler, trackHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, sched *scheduler.Scheduler, cancelWork context.CancelFunc, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop background workers: the scheduler waits for an in-flight poll
	// cycle; the mail worker stops on context cancellation.
	sched.Stop()
	cancelWork()
}
