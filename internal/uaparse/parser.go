// Package uaparse maps raw user-agent strings onto coarse device, browser and
// OS families. It never fails: anything it cannot classify is reported as a
// desktop running an Unknown browser on an Unknown OS.
package uaparse

import (
	"regexp"
	"strings"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"

	Unknown = "Unknown"
)

type Result struct {
	DeviceType     string `json:"device_type"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
}

type browserRule struct {
	name    string
	pattern *regexp.Regexp
}

type osRule struct {
	name    string
	pattern *regexp.Regexp
	version func(match []string) string
}

var (
	tabletPattern = regexp.MustCompile(`(?i)ipad|tablet|playbook|silk|kindle`)
	mobilePattern = regexp.MustCompile(`(?i)mobi|iphone|ipod|android|blackberry|iemobile|opera mini|windows phone`)

	// Order matters: Edge and Opera embed a Chrome token, Chrome embeds a Safari token.
	browserRules = []browserRule{
		{"Edge", regexp.MustCompile(`(?:Edg|Edge|EdgA|EdgiOS)/([\d.]+)`)},
		{"Opera", regexp.MustCompile(`(?:OPR|Opera)[/ ]([\d.]+)`)},
		{"Samsung Internet", regexp.MustCompile(`SamsungBrowser/([\d.]+)`)},
		{"Firefox", regexp.MustCompile(`(?:Firefox|FxiOS)/([\d.]+)`)},
		{"Chrome", regexp.MustCompile(`(?:HeadlessChrome|CriOS|Chrome)/([\d.]+)`)},
		{"Safari", regexp.MustCompile(`Version/([\d.]+).*Safari/`)},
		{"Internet Explorer", regexp.MustCompile(`(?:MSIE |Trident/.*rv:)([\d.]+)`)},
	}

	windowsVersions = map[string]string{
		"10.0": "10",
		"6.3":  "8.1",
		"6.2":  "8",
		"6.1":  "7",
		"6.0":  "Vista",
		"5.1":  "XP",
	}

	osRules = []osRule{
		{"Windows Phone", regexp.MustCompile(`Windows Phone(?: OS)? ([\d.]+)`), firstGroup},
		{"Windows", regexp.MustCompile(`Windows NT ([\d.]+)`), func(m []string) string {
			if v, ok := windowsVersions[m[1]]; ok {
				return v
			}
			return m[1]
		}},
		{"iOS", regexp.MustCompile(`(?:iPhone|iPad|iPod).*? OS ([\d_]+)`), underscoreGroup},
		{"Android", regexp.MustCompile(`Android ?([\d.]*)`), firstGroup},
		{"Chrome OS", regexp.MustCompile(`CrOS \S+ ([\d.]+)`), firstGroup},
		{"macOS", regexp.MustCompile(`Mac OS X ?([\d_.]*)`), underscoreGroup},
		{"Linux", regexp.MustCompile(`Linux`), nil},
	}
)

func firstGroup(m []string) string {
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func underscoreGroup(m []string) string {
	return strings.ReplaceAll(firstGroup(m), "_", ".")
}

// Parse classifies a raw user-agent string.
func Parse(userAgent string) Result {
	res := Result{
		DeviceType: DeviceDesktop,
		Browser:    Unknown,
		OS:         Unknown,
	}

	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return res
	}

	res.DeviceType = deviceType(ua)

	for _, rule := range browserRules {
		if m := rule.pattern.FindStringSubmatch(ua); m != nil {
			res.Browser = rule.name
			res.BrowserVersion = firstGroup(m)
			break
		}
	}

	for _, rule := range osRules {
		m := rule.pattern.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		res.OS = rule.name
		if rule.version != nil {
			res.OSVersion = rule.version(m)
		}
		break
	}

	return res
}

func deviceType(ua string) string {
	// Tablets must be checked first; most tablet UAs also match the mobile pattern.
	if isTablet(ua) {
		return DeviceTablet
	}
	if mobilePattern.MatchString(ua) {
		return DeviceMobile
	}
	return DeviceDesktop
}

func isTablet(ua string) bool {
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "android") {
		return !strings.Contains(lower, "mobile")
	}
	return tabletPattern.MatchString(ua)
}
