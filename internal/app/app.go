package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"clickguard/internal/analytics"
	"clickguard/internal/app/server"
	"clickguard/internal/app/version"
	"clickguard/internal/auth"
	"clickguard/internal/config"
	"clickguard/internal/database"
	"clickguard/internal/jobs/maintenance"
	"clickguard/internal/scoring"
	"clickguard/internal/support"
	"clickguard/internal/tracking"
	"clickguard/internal/verification"
)

const defaultPort = 8080

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	portFlag := flag.Int("port", defaultPort, "Port for the API server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	settingsFlag := flag.String("settings", support.GetEnv("SETTINGS_FILE", config.DefaultSettingsFile), "Path to the settings file")
	flag.Parse()

	configureLogging(*productionFlag)
	config.SetProductionMode(*productionFlag)
	if err := auth.LoadSecret(*productionFlag); err != nil {
		return err
	}
	port := resolvePort("PORT", "CLICKGUARD_PORT", *portFlag)

	config.SetSettingsPath(*settingsFlag)
	if err := config.ReadSettings(); err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	if _, err := database.SetupDB(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := support.GetRedisClient()
	switch {
	case errors.Is(err, support.ErrRedisNotConfigured):
		log.Info("REDIS_URL not set, running without shared cache and settings sync")
	case err != nil:
		log.Warn("Redis unavailable, running without shared cache and settings sync", "error", err)
		redisClient = nil
	default:
		config.EnableRedisSynchronization(ctx, redisClient)
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
	}

	cfg := config.GetConfig()

	geo, err := buildGeoClient(ctx, cfg.Geo, redisClient)
	if err != nil {
		return err
	}
	defer geo.close()
	geoClient := geo.client
	go watchGeoLimits(ctx, geoClient.Limiter())
	if geo.updater != nil {
		go maintenance.StartGeoLiteUpdateRoutine(ctx, geo.updater)
	}

	tracker := tracking.New(
		tracking.DBStore{},
		geoClient,
		tracking.WithPolicy(func() scoring.Policy { return config.GetConfig().Scoring }),
		tracking.WithThrottle(tracking.NewThrottle(cfg.Tracking.PerIPRate, cfg.Tracking.PerIPBurst)),
	)

	go maintenance.StartRetentionRoutine(ctx)

	log.Info("ClickGuard starting", "version", version.BuildVersion(), "production", config.InProductionMode, "geo_provider", cfg.Geo.Provider)

	srv := server.New(tracker, verification.New(), analytics.NewAggregator())
	return server.OpenRoutes(ctx, port, srv.Router())
}

func configureLogging(production bool) {
	level := log.DebugLevel
	if production {
		level = log.InfoLevel
	}
	if raw := support.GetEnv("LOG_LEVEL", ""); raw != "" {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			log.Warn("invalid LOG_LEVEL, keeping default", "value", raw)
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
