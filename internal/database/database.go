package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/decks"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
	"github.com/Iam-samyog/EduCircle/internal/users"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the store. Path is used by sqlite, DSN by postgres.
type Config struct {
	Driver string
	Path   string
	DSN    string
	Logger *zap.Logger
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&users.Profile{},
		&rooms.Room{},
		&rooms.Participant{},
		&rooms.JoinRequest{},
		&notes.Note{},
		&decks.Deck{},
		&chat.Message{},
		&goals.Goal{},
		&migrationRecord{},
	}
}

// Open connects to the configured store and brings the schema up to date.
func Open(cfg Config) (*gorm.DB, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dialector, target, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if normalizedDriver(cfg.Driver) == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	if err := applyMigrations(db, log); err != nil {
		return nil, err
	}

	log.Info("database initialized", zap.String("driver", normalizedDriver(cfg.Driver)), zap.String("target", target))
	return db, nil
}

func normalizedDriver(driver string) string {
	trimmed := strings.ToLower(strings.TrimSpace(driver))
	if trimmed == "" {
		return DriverSQLite
	}
	return trimmed
}

// dialectorFor returns the gorm dialector and a log-safe description of the
// target.
func dialectorFor(cfg Config) (gorm.Dialector, string, error) {
	switch normalizedDriver(cfg.Driver) {
	case DriverSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, "", fmt.Errorf("database path is required")
		}
		return sqlite.Open(path), path, nil
	case DriverPostgres:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, "", fmt.Errorf("database dsn is required")
		}
		return postgres.Open(dsn), "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
