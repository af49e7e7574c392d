package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

// MaybeRunDev brings a dev postgres schema up to date on boot when
// SHOPFLOW_AUTO_MIGRATE is set. Every other environment migrates through
// cmd/migrate. The migrations are postgres SQL, so sqlite runs are skipped.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	if cfg.DB.Driver == db.DriverSQLite {
		logg.Warn(ctx, "migrate.autorun_skipped: sqlite schema is not managed by goose")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(ctx, "migrate.autorun_started")
	if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	logg.Info(ctx, "migrate.autorun_completed")
	return nil
}
