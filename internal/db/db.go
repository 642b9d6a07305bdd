package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options - настройки пула соединений.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// Dialector выбирает драйвер GORM по префиксу DATABASE_URL.
// Поддерживаются postgres://, postgresql://, sqlite:// и mysql://.
func Dialector(dbURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return postgres.Open(dbURL), nil
	case strings.HasPrefix(dbURL, "sqlite://"):
		dsn := strings.TrimPrefix(dbURL, "sqlite://")
		if dsn == "" {
			return nil, fmt.Errorf("empty sqlite path in %q", dbURL)
		}
		return sqlite.Open(dsn), nil
	case strings.HasPrefix(dbURL, "mysql://"):
		// Драйвер MySQL ждет DSN вида user:pass@tcp(host:port)/db без схемы
		dsn := strings.TrimPrefix(dbURL, "mysql://")
		if !strings.Contains(dsn, "parseTime=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true"
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("invalid DATABASE_URL prefix: must start with postgres://, sqlite:// or mysql://")
	}
}

// Open открывает соединение GORM и настраивает пул.
func Open(dbURL string, opts Options) (*gorm.DB, error) {
	dialector, err := Dialector(dbURL)
	if err != nil {
		return nil, err
	}

	logMode := logger.Silent
	if opts.Debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	log.Info().Str("dialect", dialector.Name()).Msg("database connection established")
	return db, nil
}
