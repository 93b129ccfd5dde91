package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attendance-backend/config"
	"attendance-backend/internal/model"
)

// Init initializes the SQL database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("driver %q is not a SQL driver", cfg.Driver)
	}

	logLevel := logger.Warn
	if cfg.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate creates the schema and the constraints AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.PresenceHeartbeat{},
		&model.LeaveRequest{},
		&model.LeaveBalance{},
		&model.LeaveHistoryEntry{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return applyConstraintDDL(db)
}

// applyConstraintDDL adds the partial unique index that allows at most one open session per
// user. Both PostgreSQL and SQLite support partial indexes with this syntax.
func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open_per_user ON sessions (user_id) WHERE end_time IS NULL;",
		"CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions (start_time) WHERE end_time IS NULL;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
