package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/config"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/events"
	v1 "github.com/dmehra2102/prod-golang-projects/propflow/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/service"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/tracer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "propflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		return fmt.Errorf("initialising tracer: %w", err)
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Migrate(db, log); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		return fmt.Errorf("loading booking time zone %q: %w", cfg.Booking.TimeZone, err)
	}

	m := metrics.NewCollector("propflow", prometheus.DefaultRegisterer)

	appointmentRepo := repository.NewAppointmentRepository(db, log)
	propertyRepo := repository.NewPropertyRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), m, log)

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka, log)
		log.Info("publishing appointment events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.AppointmentsTopic),
		)
	} else {
		log.Warn("KAFKA_BROKERS not set, appointment events are discarded")
	}

	appointmentSvc := service.NewAppointmentService(
		appointmentRepo, propertyRepo, userRepo, auditSvc, publisher, m, loc, log,
	)

	jwtManager := auth.NewJWTManager(cfg.JWT)

	router := v1.NewRouter(v1.RouterConfig{
		Appointments:   appointmentSvc,
		Sessions:       service.NewAuthService(userRepo, jwtManager, log),
		Tokens:         jwtManager,
		Metrics:        m,
		MetricsHandler: metrics.MetricsHandler(),
		Log:            log,
		CORS:           cfg.CORS,
		RateLimit:      cfg.RateLimit,
		Ready: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      otelhttp.NewHandler(router, cfg.Tracing.ServiceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("booking_tz", loc.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error("http server failed", zap.Error(runErr))
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	auditSvc.Shutdown()
	if err := publisher.Close(); err != nil {
		log.Error("closing event publisher", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("flushing traces", zap.Error(err))
	}
	closeDB(db, log)

	log.Info("shutdown complete")
	return runErr
}

func closeDB(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("retrieving sql.DB", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("closing database", zap.Error(err))
	}
}
