package support

import (
	"net/http"
	"strings"
)

const (
	UnknownClientIP = "unknown"

	// MaxClientIPLength matches the ip columns of visitor events and blocked IPs.
	MaxClientIPLength = 64
)

// ClientIP returns the first hop of X-Forwarded-For, then X-Real-IP, then
// "unknown". The socket address is deliberately not consulted: the service
// always runs behind a proxy that sets one of the headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return TruncateString(ip, MaxClientIPLength)
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return TruncateString(realIP, MaxClientIPLength)
	}

	return UnknownClientIP
}
