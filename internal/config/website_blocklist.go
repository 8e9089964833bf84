package config

import (
	"net/url"
	"strings"
	"sync/atomic"
)

// deniedHostSet holds normalized hostnames the verifier must never contact,
// in addition to the built-in private and metadata ranges.
var deniedHostSet atomic.Value

// NormalizeWebsiteBlacklist trims, lowercases, and deduplicates host entries.
func NormalizeWebsiteBlacklist(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		host := NormalizeHostname(raw)
		if host == "" {
			continue
		}
		if _, exists := unique[host]; exists {
			continue
		}
		unique[host] = struct{}{}
		normalized = append(normalized, host)
	}

	return normalized
}

func updateWebsiteBlocklist(entries []string) {
	normalized := NormalizeWebsiteBlacklist(entries)
	set := make(map[string]struct{}, len(normalized))
	for _, host := range normalized {
		set[host] = struct{}{}
	}
	deniedHostSet.Store(set)
}

// IsWebsiteBlocked reports whether the URL or hostname matches an operator
// configured entry, either exactly or as a subdomain.
func IsWebsiteBlocked(rawURL string) bool {
	set, _ := deniedHostSet.Load().(map[string]struct{})
	if len(set) == 0 {
		return false
	}

	host := NormalizeHostname(rawURL)
	if host == "" {
		return false
	}

	if _, ok := set[host]; ok {
		return true
	}
	for blocked := range set {
		if strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// NormalizeHostname extracts the lowercase host from a URL or bare hostname.
func NormalizeHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	return strings.Trim(host, ".")
}
