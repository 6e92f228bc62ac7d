package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/config"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain/property"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: cfg.DSN(),
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"booking", "listing", "identity", "audit"}
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&property.Property{},
		&appointment.Appointment{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	createIndexes(db, log)

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// slotExclusion makes two active appointments on the same property and day with
// overlapping [start, end) minute ranges impossible at the storage level.
const slotExclusion = `
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'appointments_no_overlap') THEN
		ALTER TABLE booking.appointments ADD CONSTRAINT appointments_no_overlap
		EXCLUDE USING gist (
			property_id WITH =,
			date WITH =,
			int4range(
				split_part(start_time, ':', 1)::int * 60 + split_part(start_time, ':', 2)::int,
				split_part(end_time, ':', 1)::int * 60 + split_part(end_time, ':', 2)::int
			) WITH &&
		) WHERE (status IN ('pending', 'confirmed'));
	END IF;
END
$$`

// createIndexes is best effort. A missing extension degrades performance or leaves
// the advisory lock as the only overlap guard; it does not stop the service.
func createIndexes(db *gorm.DB, log *zap.Logger) {
	statements := []struct {
		name  string
		query string
	}{
		{
			name:  "ext_btree_gist",
			query: `CREATE EXTENSION IF NOT EXISTS btree_gist`,
		},
		{
			name:  "idx_appointments_property_day",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_property_day ON booking.appointments (property_id, date, start_time) WHERE status IN ('pending', 'confirmed')`,
		},
		{
			name:  "idx_appointments_client_date",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_client_date ON booking.appointments (client_id, date)`,
		},
		{
			name:  "idx_appointments_agent_date",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_agent_date ON booking.appointments (agent_id, date) WHERE agent_id IS NOT NULL`,
		},
		{
			name:  "appointments_no_overlap",
			query: slotExclusion,
		},
	}

	for _, s := range statements {
		if err := db.Exec(s.query).Error; err != nil {
			log.Warn("migration statement failed", zap.String("name", s.name), zap.Error(err))
		}
	}
}

// Ping is used by the readiness probe.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
