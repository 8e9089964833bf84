package maintenance

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"clickguard/internal/config"
	"clickguard/internal/geolite"
	"clickguard/internal/support"
)

const geoLiteUpdateLockKey = "clickguard:leader:geolite_update"

type GeoLiteUpdater interface {
	Update(ctx context.Context) (bool, error)
}

// StartGeoLiteUpdateRoutine refreshes the GeoLite databases on the configured
// interval. Followers receive the files through the Redis distribution.
func StartGeoLiteUpdateRoutine(ctx context.Context, updater GeoLiteUpdater) {
	if ctx == nil {
		ctx = context.Background()
	}

	intervalValue, updateSignal := followInterval(ctx, config.GetGeoLiteUpdateInterval(), config.GeoLiteUpdateIntervalUpdates())

	err := support.RunWithLeader(ctx, geoLiteUpdateLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runIntervalLoop(leaderCtx, "geolite_update", intervalValue, updateSignal, func(runCtx context.Context) {
			runGeoLiteUpdate(runCtx, updater, config.GetConfig().Geo.GeoLite)
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("GeoLite update routine stopped", "error", err)
	}
}

func runGeoLiteUpdate(ctx context.Context, updater GeoLiteUpdater, cfg config.GeoLiteConfig) bool {
	if !cfg.AutoUpdate {
		log.Debug("GeoLite update skipped: auto update disabled")
		return false
	}

	updated, err := updater.Update(ctx)
	switch {
	case errors.Is(err, geolite.ErrNoLicenseKey):
		log.Debug("GeoLite update skipped: license key missing")
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			log.Error("GeoLite update failed", "error", err)
		}
	case updated:
		log.Info("GeoLite databases updated")
	}
	return updated
}
