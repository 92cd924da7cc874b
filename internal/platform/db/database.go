package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Database wraps DB connectivity for either backend. Both are opened with
// TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type Database struct {
	DB     *gorm.DB
	Driver string
}

func Connect(driver string, dsn string) (*Database, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = DriverPostgres
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		if isMemoryDSN(dsn) {
			return nil, errors.New("sqlite in-memory databases are not supported; use a file path")
		}
		dialector = sqlite.Open(sqliteDSN(dsn))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve %s sql db handle: %w", driver, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Database{DB: db, Driver: driver}, nil
}

// Migrate runs the given migration against the connection and logs the result.
func (d *Database) Migrate(migrate func(*gorm.DB) error, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if err := migrate(d.DB); err != nil {
		log.Error("database migration failed",
			"event", "db_migration_failed",
			"module", "internal/platform/db",
			"layer", "platform",
			"driver", d.Driver,
			"error", err.Error(),
		)
		return fmt.Errorf("migrate %s: %w", d.Driver, err)
	}
	log.Info("database migration completed",
		"event", "db_migration_completed",
		"module", "internal/platform/db",
		"layer", "platform",
		"driver", d.Driver,
	)
	return nil
}

func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Membership reads run on a second connection while a write transaction is
// open, so the pool cannot be capped at one and each connection must wait on
// the file lock instead of failing.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
