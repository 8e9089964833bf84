// Package geolite keeps the MaxMind GeoLite2 databases read by the geolite
// provider up to date.
package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"clickguard/internal/config"
)

const (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	userAgent          = "clickguard-geolite-updater/1.0"

	EditionCity = "GeoLite2-City"
	EditionASN  = "GeoLite2-ASN"
)

// ErrNoLicenseKey indicates that no MaxMind license key has been configured.
var ErrNoLicenseKey = errors.New("geolite: license key is not configured")

// Reloader reopens the databases after new files were written.
type Reloader interface {
	Reload() error
}

// Publisher hands freshly downloaded files to other instances.
type Publisher interface {
	Publish(ctx context.Context) error
}

// Target maps a MaxMind edition to the file the provider reads it from.
type Target struct {
	Edition string
	Path    string
}

// Targets lists the editions to maintain for the configured paths. The ASN
// edition is skipped when no ASN path is set.
func Targets(cfg config.GeoConfig) []Target {
	targets := []Target{{Edition: EditionCity, Path: cfg.GeoLiteCityPath}}
	if cfg.GeoLiteASNPath != "" {
		targets = append(targets, Target{Edition: EditionASN, Path: cfg.GeoLiteASNPath})
	}
	return targets
}

type Updater struct {
	targets     []Target
	httpClient  *http.Client
	downloadURL string
	licenseKey  func() string
	group       singleflight.Group

	mu        sync.RWMutex
	reloaders []Reloader
	publisher Publisher
}

type Option func(*Updater)

func WithHTTPClient(client *http.Client) Option {
	return func(u *Updater) {
		if client != nil {
			u.httpClient = client
		}
	}
}

func WithDownloadURL(raw string) Option {
	return func(u *Updater) {
		if raw != "" {
			u.downloadURL = raw
		}
	}
}

// WithLicenseKey overrides where the license key is read from. By default it
// comes from the live settings on every download.
func WithLicenseKey(key func() string) Option {
	return func(u *Updater) {
		if key != nil {
			u.licenseKey = key
		}
	}
}

func NewUpdater(targets []Target, opts ...Option) *Updater {
	u := &Updater{
		targets:     targets,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		downloadURL: maxMindDownloadURL,
		licenseKey: func() string {
			return config.GetConfig().Geo.GeoLite.LicenseKey
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Register adds a reader set that is reloaded after every successful update.
func (u *Updater) Register(r Reloader) {
	u.mu.Lock()
	u.reloaders = append(u.reloaders, r)
	u.mu.Unlock()
}

func (u *Updater) PublishTo(p Publisher) {
	u.mu.Lock()
	u.publisher = p
	u.mu.Unlock()
}

func (u *Updater) Targets() []Target {
	return append([]Target(nil), u.targets...)
}

// Missing reports whether any target file is absent on disk.
func (u *Updater) Missing() bool {
	for _, target := range u.targets {
		if _, err := os.Stat(target.Path); err != nil {
			return true
		}
	}
	return false
}

// Download fetches every edition into place without reloading anything.
func (u *Updater) Download(ctx context.Context) error {
	apiKey := strings.TrimSpace(u.licenseKey())
	if apiKey == "" {
		return ErrNoLicenseKey
	}

	for _, target := range u.targets {
		if err := u.downloadEdition(ctx, apiKey, target); err != nil {
			return err
		}
	}
	return nil
}

// Update downloads all editions, reloads the registered readers and publishes
// the files. Concurrent calls share one download.
func (u *Updater) Update(ctx context.Context) (bool, error) {
	result, err, _ := u.group.Do("update", func() (any, error) {
		if err := u.Download(ctx); err != nil {
			return false, err
		}

		u.mu.RLock()
		reloaders := append([]Reloader(nil), u.reloaders...)
		publisher := u.publisher
		u.mu.RUnlock()

		for _, r := range reloaders {
			if err := r.Reload(); err != nil {
				return false, fmt.Errorf("geolite: reload databases: %w", err)
			}
		}

		if publisher != nil {
			if err := publisher.Publish(ctx); err != nil {
				log.Warn("Failed to publish GeoLite databases to redis", "error", err)
			}
		}

		return true, nil
	})
	if err != nil {
		return false, err
	}

	updated, _ := result.(bool)
	return updated, nil
}

func (u *Updater) downloadEdition(ctx context.Context, apiKey string, target Target) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.buildDownloadURL(apiKey, target.Edition), nil)
	if err != nil {
		return fmt.Errorf("geolite: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("geolite: download %s: %w", target.Edition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("geolite: download %s: unexpected status %d: %s", target.Edition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("geolite: %s: open gzip: %w", target.Edition, err)
	}
	defer gzipReader.Close()

	wantName := target.Edition + ".mmdb"
	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("geolite: %s: read tar: %w", target.Edition, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != wantName {
			continue
		}

		if err := writeToFile(target.Path, tarReader); err != nil {
			return fmt.Errorf("geolite: %s: write file: %w", target.Edition, err)
		}
		return nil
	}

	return fmt.Errorf("geolite: %s: mmdb file not found in archive", target.Edition)
}

func (u *Updater) buildDownloadURL(apiKey, edition string) string {
	query := url.Values{}
	query.Set("edition_id", edition)
	query.Set("license_key", apiKey)
	query.Set("suffix", "tar.gz")
	return u.downloadURL + "?" + query.Encode()
}

// writeToFile replaces destPath atomically so readers never see a partial
// database.
func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}
