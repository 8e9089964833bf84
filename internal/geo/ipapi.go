package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

const (
	DefaultIPAPIBaseURL = "http://ip-api.com"
	ipAPIFields         = "status,message,country,countryCode,regionName,city,timezone,isp,org,as,proxy,hosting"
	maxIPAPIBodyBytes   = 64 << 10
)

var ErrLookupFailed = errors.New("geo: lookup failed")

// IPAPIProvider queries the ip-api.com JSON endpoint.
type IPAPIProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewIPAPIProvider(baseURL string, httpClient *http.Client) *IPAPIProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultIPAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultLookupTimeout}
	}
	return &IPAPIProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (p *IPAPIProvider) Name() string {
	return "ip-api"
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	RegionName  string `json:"regionName"`
	City        string `json:"city"`
	Timezone    string `json:"timezone"`
	ISP         string `json:"isp"`
	Org         string `json:"org"`
	AS          string `json:"as"`
	Proxy       *bool  `json:"proxy"`
	Hosting     *bool  `json:"hosting"`
}

func (p *IPAPIProvider) Lookup(ctx context.Context, ip net.IP) (*Result, error) {
	url := fmt.Sprintf("%s/json/%s?fields=%s", p.baseURL, ip.String(), ipAPIFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}

	var data ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIPAPIBodyBytes)).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}

	if data.Status != "success" {
		return nil, fmt.Errorf("%w: provider status %q %s", ErrLookupFailed, data.Status, data.Message)
	}

	return &Result{
		Country:     data.Country,
		CountryCode: data.CountryCode,
		City:        data.City,
		Region:      data.RegionName,
		ISP:         data.ISP,
		Org:         data.Org,
		ASNumber:    data.AS,
		Timezone:    data.Timezone,
		Proxy:       data.Proxy,
		// ip-api has no VPN flag; hosting ranges are the closest signal it offers.
		VPN: data.Hosting,
	}, nil
}
