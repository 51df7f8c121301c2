package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/poolup/carpool/pkg/config"
	"github.com/poolup/carpool/pkg/logger"
	"go.uber.org/zap"
)

// RunMigrations applies all pending schema migrations from the configured
// directory. A no-op when the schema is already current.
func RunMigrations(cfg *config.DatabaseConfig) error {
	sourceURL := fmt.Sprintf("file://%s", cfg.MigrationsDir)

	m, err := migrate.New(sourceURL, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("unable to initialize migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Get().Warn("closing migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Get().Warn("closing migration database", zap.Error(dbErr))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Get().Info("database schema already up to date")
			return nil
		}
		return fmt.Errorf("unable to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("unable to read migration version: %w", err)
	}
	logger.Get().Info("database migrations applied",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}
