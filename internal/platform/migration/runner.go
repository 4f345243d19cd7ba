// Package migration applies SQL schema migrations with golang-migrate.
package migration

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunUp applies all pending up migrations found in dir.
func RunUp(dsn, dir string, logger *slog.Logger) error {
	m, err := migrate.New("file://"+dir, Pgx5URL(dsn))
	if err != nil {
		return fmt.Errorf("platform/migration: init: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("migration source close", slog.Any("error", srcErr))
		}
		if dbErr != nil {
			logger.Warn("migration db close", slog.Any("error", dbErr))
		}
	}()
	m.Log = migrateLogger{logger: logger}

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("platform/migration: version: %w", err)
	}
	if dirty {
		return fmt.Errorf("platform/migration: database dirty at version %d", from)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migrations up to date", slog.Uint64("version", uint64(from)))
			return nil
		}
		return fmt.Errorf("platform/migration: up: %w", err)
	}
	to, _, _ := m.Version()
	logger.Info("migrations applied", slog.Uint64("from", uint64(from)), slog.Uint64("to", uint64(to)))
	return nil
}

// Pgx5URL rewrites a postgres:// DSN to the pgx5:// scheme the pgx/v5 driver registers.
func Pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return false }
