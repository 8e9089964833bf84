package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// GeoLiteProvider resolves locations from local MaxMind GeoLite2 databases.
// The ASN database is optional. Reload swaps in freshly downloaded files
// without interrupting lookups.
type GeoLiteProvider struct {
	cityPath string
	asnPath  string

	mu   sync.RWMutex
	city *geoip2.Reader
	asn  *geoip2.Reader
}

func NewGeoLiteProvider(cityPath, asnPath string) (*GeoLiteProvider, error) {
	if cityPath == "" {
		return nil, errors.New("geo: geolite city database path is required")
	}

	provider := &GeoLiteProvider{cityPath: cityPath, asnPath: asnPath}
	if err := provider.Reload(); err != nil {
		return nil, err
	}
	return provider, nil
}

// Reload reopens both databases from disk. On error the previous readers stay
// in service.
func (p *GeoLiteProvider) Reload() error {
	city, asn, err := openGeoLiteReaders(p.cityPath, p.asnPath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	oldCity, oldASN := p.city, p.asn
	p.city, p.asn = city, asn
	p.mu.Unlock()

	if oldCity != nil {
		_ = oldCity.Close()
	}
	if oldASN != nil {
		_ = oldASN.Close()
	}
	return nil
}

func openGeoLiteReaders(cityPath, asnPath string) (*geoip2.Reader, *geoip2.Reader, error) {
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, nil, fmt.Errorf("geo: open geolite city database: %w", err)
	}
	if asnPath == "" {
		return city, nil, nil
	}

	asn, err := geoip2.Open(asnPath)
	if err != nil {
		_ = city.Close()
		return nil, nil, fmt.Errorf("geo: open geolite asn database: %w", err)
	}
	return city, asn, nil
}

func (p *GeoLiteProvider) Name() string {
	return "geolite"
}

func (p *GeoLiteProvider) Lookup(_ context.Context, ip net.IP) (*Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.city == nil {
		return nil, fmt.Errorf("%w: geolite databases not loaded", ErrLookupFailed)
	}

	record, err := p.city.City(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	res := &Result{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Timezone:    record.Location.TimeZone,
		Proxy:       boolPtr(record.Traits.IsAnonymousProxy),
	}
	if len(record.Subdivisions) > 0 {
		res.Region = record.Subdivisions[0].Names["en"]
	}

	if p.asn != nil {
		if asn, err := p.asn.ASN(ip); err == nil && asn.AutonomousSystemNumber != 0 {
			res.Org = asn.AutonomousSystemOrganization
			res.ASNumber = fmt.Sprintf("AS%d %s", asn.AutonomousSystemNumber, asn.AutonomousSystemOrganization)
		}
	}

	return res, nil
}

func (p *GeoLiteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.city != nil {
		errs = append(errs, p.city.Close())
		p.city = nil
	}
	if p.asn != nil {
		errs = append(errs, p.asn.Close())
		p.asn = nil
	}
	return errors.Join(errs...)
}
