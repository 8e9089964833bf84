package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"clickguard/internal/config"
	"clickguard/internal/geo"
	"clickguard/internal/geolite"
)

type geoSetup struct {
	client *geo.Client
	close  func()
	// updater is set only for the geolite provider.
	updater *geolite.Updater
}

// buildGeoClient wires the configured provider behind the shared lookup
// budget. Changing the provider requires a restart.
func buildGeoClient(ctx context.Context, cfg config.GeoConfig, redisClient *redis.Client) (geoSetup, error) {
	setup := geoSetup{close: func() {}}

	var provider geo.Provider
	switch cfg.Provider {
	case config.GeoProviderGeoLite:
		p, updater, err := openGeoLite(ctx, cfg, redisClient)
		if err != nil {
			return setup, err
		}
		provider = p
		setup.updater = updater
		setup.close = func() {
			if err := p.Close(); err != nil {
				log.Warn("error closing GeoLite databases", "error", err)
			}
		}
	default:
		provider = geo.NewIPAPIProvider(cfg.IPAPIBaseURL, nil)
	}

	opts := []geo.ClientOption{geo.WithTimeout(cfg.Timeout())}
	if redisClient != nil {
		opts = append(opts, geo.WithCache(geo.NewRedisCache(redisClient, cfg.GeoCacheTTL())))
	}

	limiter := geo.NewWindowLimiter(cfg.Budget, cfg.Window())
	log.Debug("Geo enrichment configured", "provider", provider.Name(), "budget", cfg.Budget, "window", cfg.Window())

	setup.client = geo.NewClient(provider, limiter, opts...)
	return setup, nil
}

// openGeoLite downloads missing databases when a license key is configured,
// opens them and registers the provider for later refreshes.
func openGeoLite(ctx context.Context, cfg config.GeoConfig, redisClient *redis.Client) (*geo.GeoLiteProvider, *geolite.Updater, error) {
	targets := geolite.Targets(cfg)
	updater := geolite.NewUpdater(targets)

	if updater.Missing() {
		err := updater.Download(ctx)
		switch {
		case errors.Is(err, geolite.ErrNoLicenseKey):
			log.Warn("GeoLite databases missing and no license key configured", "city_path", cfg.GeoLiteCityPath)
		case err != nil:
			log.Warn("Initial GeoLite download failed", "error", err)
		default:
			log.Info("GeoLite databases downloaded")
		}
	}

	provider, err := geo.NewGeoLiteProvider(cfg.GeoLiteCityPath, cfg.GeoLiteASNPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open GeoLite databases: %w", err)
	}
	updater.Register(provider)

	if redisClient != nil {
		distribution := geolite.NewDistribution(redisClient, targets, provider)
		updater.PublishTo(distribution)
		distribution.Start(ctx)
	}

	return provider, updater, nil
}

func watchGeoLimits(ctx context.Context, limiter *geo.WindowLimiter) {
	updates := config.ConfigUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			limiter.SetLimits(cfg.Geo.Budget, cfg.Geo.Window())
			log.Debug("Geo lookup budget updated", "budget", cfg.Geo.Budget, "window", cfg.Geo.Window())
		}
	}
}
