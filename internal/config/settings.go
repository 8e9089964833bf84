package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"clickguard/internal/scoring"
)

type Config struct {
	SnippetBaseURL string             `yaml:"snippet_base_url" json:"snippet_base_url"`
	Scoring        scoring.Policy     `yaml:"scoring" json:"scoring"`
	Geo            GeoConfig          `yaml:"geo" json:"geo"`
	Tracking       TrackingConfig     `yaml:"tracking" json:"tracking"`
	Verification   VerificationConfig `yaml:"verification" json:"verification"`
	Retention      RetentionConfig    `yaml:"retention" json:"retention"`
}

type GeoConfig struct {
	Provider        string        `yaml:"provider" json:"provider"`
	IPAPIBaseURL    string        `yaml:"ip_api_base_url" json:"ip_api_base_url"`
	Budget          int           `yaml:"budget" json:"budget"`
	WindowSeconds   int           `yaml:"window_seconds" json:"window_seconds"`
	TimeoutSeconds  int           `yaml:"timeout_seconds" json:"timeout_seconds"`
	CacheTTL        Timer         `yaml:"cache_ttl" json:"cache_ttl"`
	GeoLiteCityPath string        `yaml:"geolite_city_path" json:"geolite_city_path"`
	GeoLiteASNPath  string        `yaml:"geolite_asn_path" json:"geolite_asn_path"`
	GeoLite         GeoLiteConfig `yaml:"geolite" json:"geolite"`
}

// GeoLiteConfig controls the MaxMind download job that refreshes the files
// read by the geolite provider.
type GeoLiteConfig struct {
	LicenseKey     string `yaml:"license_key" json:"license_key"`
	AutoUpdate     bool   `yaml:"auto_update" json:"auto_update"`
	UpdateInterval Timer  `yaml:"update_interval" json:"update_interval"`
}

type TrackingConfig struct {
	// PerIPRate is beacons per second per source IP; 0 disables throttling.
	PerIPRate    float64 `yaml:"per_ip_rate" json:"per_ip_rate"`
	PerIPBurst   int     `yaml:"per_ip_burst" json:"per_ip_burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" json:"max_body_bytes"`
}

type VerificationConfig struct {
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxRedirects   int      `yaml:"max_redirects" json:"max_redirects"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" json:"max_body_bytes"`
	DeniedHosts    []string `yaml:"denied_hosts" json:"denied_hosts"`
}

type RetentionConfig struct {
	// VisitorDays of 0 keeps visitor events forever.
	VisitorDays int   `yaml:"visitor_days" json:"visitor_days"`
	Interval    Timer `yaml:"interval" json:"interval"`
}

type Timer struct {
	Days    uint32 `yaml:"days" json:"days"`
	Hours   uint32 `yaml:"hours" json:"hours"`
	Minutes uint32 `yaml:"minutes" json:"minutes"`
	Seconds uint32 `yaml:"seconds" json:"seconds"`
}

const (
	DefaultSettingsFile = "data/settings.yaml"
	GeoProviderIPAPI    = "ip-api"
	GeoProviderGeoLite  = "geolite"
)

var (
	ErrInvalidGeoProvider = errors.New("config: geo.provider must be ip-api or geolite")
	ErrInvalidGeoBudget   = errors.New("config: geo.budget and geo.window_seconds must be positive")
	ErrNegativeRetention  = errors.New("config: retention.visitor_days must not be negative")
	ErrInvalidTracking    = errors.New("config: tracking limits must not be negative")
)

var (
	//go:embed default_settings.yaml
	defaultConfig []byte

	configValue      atomic.Value
	configMu         sync.Mutex
	settingsFilePath = DefaultSettingsFile

	InProductionMode bool
)

func init() {
	cfg, err := parseConfig(defaultConfig)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	configValue.Store(cfg)
	updateWebsiteBlocklist(cfg.Verification.DeniedHosts)
	SetBetweenTime()
}

// DefaultConfig returns the embedded default settings.
func DefaultConfig() Config {
	cfg, _ := parseConfig(defaultConfig)
	return cfg
}

func SetSettingsPath(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	if strings.TrimSpace(path) == "" {
		path = DefaultSettingsFile
	}
	settingsFilePath = path
}

// ReadSettings loads the settings file, creating it from the embedded
// defaults when it does not exist. Fields missing from the file keep their
// default values.
func ReadSettings() error {
	configMu.Lock()
	path := settingsFilePath
	configMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("config: read settings file: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("config: create settings directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return fmt.Errorf("config: write default settings: %w", err)
		}
		data = defaultConfig
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := applyConfigUpdate(cfg, configUpdateOptions{source: "file"}); err != nil {
		return err
	}

	log.Debug("Settings file loaded successfully", "path", path)
	return nil
}

func parseConfig(data []byte) (Config, error) {
	var cfg Config
	if len(defaultConfig) > 0 {
		// Start from defaults so partial files stay valid.
		if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse default settings: %w", err)
		}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse settings: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	switch c.Geo.Provider {
	case GeoProviderIPAPI, GeoProviderGeoLite:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidGeoProvider, c.Geo.Provider)
	}
	if c.Geo.Budget <= 0 || c.Geo.WindowSeconds <= 0 {
		return ErrInvalidGeoBudget
	}
	if c.Tracking.PerIPRate < 0 || c.Tracking.PerIPBurst < 0 || c.Tracking.MaxBodyBytes < 0 {
		return ErrInvalidTracking
	}
	if c.Retention.VisitorDays < 0 {
		return ErrNegativeRetention
	}
	return nil
}

// SetConfig validates, applies, persists and broadcasts a new configuration.
func SetConfig(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}
	newConfig.Verification.DeniedHosts = NormalizeWebsiteBlacklist(newConfig.Verification.DeniedHosts)

	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update", "error", err)
		return err
	}

	log.Debug("Configuration updated and written to file successfully")
	return nil
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	updateWebsiteBlocklist(newConfig.Verification.DeniedHosts)
	SetBetweenTime()
	notifyConfigListeners(newConfig)

	var errs []error

	if opts.persistToFile {
		data, err := yaml.Marshal(newConfig)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: marshal settings: %w", err))
		} else if err := os.WriteFile(settingsFilePath, data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("config: write settings file: %w", err))
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: serialize for broadcast: %w", err))
		} else if err := broadcastConfigUpdate(payload); err != nil {
			errs = append(errs, fmt.Errorf("config: broadcast update: %w", err))
		}
	}

	log.Debug("Configuration applied", "source", opts.source)

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

var (
	configListenersMu sync.Mutex
	configListeners   []chan Config
)

// ConfigUpdates delivers the latest configuration after every change. Slow
// receivers only ever see the newest value.
func ConfigUpdates() <-chan Config {
	ch := make(chan Config, 1)
	configListenersMu.Lock()
	configListeners = append(configListeners, ch)
	configListenersMu.Unlock()
	return ch
}

func notifyConfigListeners(cfg Config) {
	configListenersMu.Lock()
	defer configListenersMu.Unlock()
	for _, ch := range configListeners {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
		}
	}
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}
