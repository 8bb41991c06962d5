package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to the embedded schema on boot when
// STOREFRONT_AUTO_MIGRATE is set. Other environments migrate through
// cmd/migrate and this is a no-op there.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	versions, err := EmbeddedVersions()
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"source":     "embedded",
		"migrations": len(versions),
	})
	logg.Info(ctx, "applying migrations")
	summary, err := Run(ctx, sqlDB, Embedded(), "up")
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", summary), "migrations applied")
	return nil
}
