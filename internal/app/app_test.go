package app

import (
	"context"
	"path/filepath"
	"testing"

	"clickguard/internal/config"
)

func TestReadPort(t *testing.T) {
	t.Setenv("CLICKGUARD_PORT_VALID", "12345")
	if got := readPort("CLICKGUARD_PORT_VALID"); got != 12345 {
		t.Fatalf("readPort returned %d, want 12345", got)
	}

	t.Setenv("CLICKGUARD_PORT_INVALID", "not-a-number")
	if got := readPort("CLICKGUARD_PORT_INVALID"); got != 0 {
		t.Fatalf("readPort with invalid value returned %d, want 0", got)
	}

	t.Setenv("CLICKGUARD_PORT_ZERO", "0")
	if got := readPort("CLICKGUARD_PORT_ZERO"); got != 0 {
		t.Fatalf("readPort with zero value returned %d, want 0", got)
	}

	t.Setenv("CLICKGUARD_PORT_RANGE", "70000")
	if got := readPort("CLICKGUARD_PORT_RANGE"); got != 0 {
		t.Fatalf("readPort with out of range value returned %d, want 0", got)
	}
}

func TestResolvePort(t *testing.T) {
	t.Run("primary env overrides fallback", func(t *testing.T) {
		t.Setenv("PRIMARY_PORT", "5050")
		if got := resolvePort("PRIMARY_PORT", "LEGACY_PORT", 8080); got != 5050 {
			t.Fatalf("resolvePort returned %d, want 5050", got)
		}
	})

	t.Run("legacy env used when primary missing", func(t *testing.T) {
		t.Setenv("LEGACY_PORT", "6060")
		if got := resolvePort("PRIMARY_MISSING", "LEGACY_PORT", 8080); got != 6060 {
			t.Fatalf("resolvePort returned %d, want 6060", got)
		}
	})

	t.Run("fallback used when env unset", func(t *testing.T) {
		if got := resolvePort("UNSET_PRIMARY", "UNSET_LEGACY", 9090); got != 9090 {
			t.Fatalf("resolvePort returned %d, want 9090", got)
		}
	})
}

func TestBuildGeoClient(t *testing.T) {
	cfg := config.DefaultConfig().Geo

	setup, err := buildGeoClient(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("buildGeoClient(ip-api): %v", err)
	}
	defer setup.close()
	if setup.updater != nil {
		t.Fatal("ip-api provider must not start the GeoLite updater")
	}
	if got := setup.client.Limiter().Remaining(); got != cfg.Budget {
		t.Fatalf("limiter budget = %d, want %d", got, cfg.Budget)
	}

	cfg.Provider = config.GeoProviderGeoLite
	cfg.GeoLiteCityPath = filepath.Join(t.TempDir(), "missing.mmdb")
	cfg.GeoLiteASNPath = ""
	cfg.GeoLite.LicenseKey = ""
	if _, err := buildGeoClient(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error for missing GeoLite databases")
	}
}
