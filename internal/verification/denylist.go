package verification

import (
	"net"
	"strings"

	"clickguard/internal/config"
)

var (
	deniedIPv4Prefixes = []string{"127.", "10.", "192.168.", "169.254.", "0."}
	deniedIPv6Prefixes = []string{"fc", "fd", "fe80"}

	// Carrier-grade NAT range; some cloud metadata services answer here.
	sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}
)

// IsDeniedHost reports whether a hostname or IP literal must never be fetched.
// Matching is textual; resolved addresses are checked with IsDeniedIP.
func IsDeniedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return true
	}

	switch host {
	case "localhost", "::1", "::":
		return true
	}
	if strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	if strings.Contains(host, "metadata") || strings.Contains(host, "internal") {
		return true
	}
	for _, prefix := range deniedIPv4Prefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	if strings.Contains(host, ":") {
		for _, prefix := range deniedIPv6Prefixes {
			if strings.HasPrefix(host, prefix) {
				return true
			}
		}
	}
	if isPrivate172(host) {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && IsDeniedIP(ip) {
		return true
	}

	return config.IsWebsiteBlocked(host)
}

// IsDeniedIP reports whether a resolved address points somewhere internal.
func IsDeniedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		sharedAddressSpace.Contains(ip)
}

// 172.16.0.0 - 172.31.255.255
func isPrivate172(host string) bool {
	if !strings.HasPrefix(host, "172.") {
		return false
	}
	rest := strings.TrimPrefix(host, "172.")
	octet, _, _ := strings.Cut(rest, ".")
	if len(octet) != 2 {
		return false
	}
	return octet >= "16" && octet <= "31"
}
