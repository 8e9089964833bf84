// Package geo enriches visitor IPs with network and location metadata.
// Enrichment is best-effort: every failure mode resolves to a nil *Result.
package geo

import (
	"context"
	"net"
)

// Result is the metadata returned by a provider. Empty strings mean the
// provider had no value for that field; nil flags mean "not reported".
type Result struct {
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	ISP         string `json:"isp,omitempty"`
	Org         string `json:"org,omitempty"`
	ASNumber    string `json:"as_number,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Proxy       *bool  `json:"proxy,omitempty"`
	VPN         *bool  `json:"vpn,omitempty"`
	Tor         *bool  `json:"tor,omitempty"`
}

// Provider performs a single lookup. Implementations return an error for any
// failure; Client turns errors into a nil result.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip net.IP) (*Result, error)
}

// Enricher is what the ingestion pipeline depends on.
type Enricher interface {
	Enrich(ctx context.Context, ip string) *Result
}

// IsPublicIP reports whether ip is worth sending to a lookup service.
func IsPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast())
}

func boolPtr(v bool) *bool {
	return &v
}
