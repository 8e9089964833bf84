package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clickguard/internal/api/dto"
	"clickguard/internal/auth"
	"clickguard/internal/config"
	"clickguard/internal/database"
	"clickguard/internal/domain"
	"clickguard/internal/tracking"
	"clickguard/internal/verification"
)

type refusingTransport struct{}

func (refusingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

type fixedResolver map[string]string

func (r fixedResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ip, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return []net.IPAddr{{IP: net.ParseIP(ip)}}, nil
}

func setupServer(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	prev := database.DB
	if _, err := database.SetupDB(database.WithExistingDB(db)); err != nil {
		t.Fatalf("setup database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		database.DB = prev
	})

	auth.SetSecret("test-secret")

	verifier := verification.New(
		verification.WithTransport(refusingTransport{}),
		verification.WithResolver(fixedResolver{"shop.example.com": "203.0.113.20", "loopback.example.com": "127.0.0.1"}),
	)
	srv := New(tracking.New(tracking.DBStore{}, nil), verifier, nil)
	return srv.Router(), db
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func register(t *testing.T, h http.Handler, email string) dto.TokenResponse {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/register", "", dto.Credentials{Email: email, Password: "correct-horse"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	return decode[dto.TokenResponse](t, rec)
}

func createDomain(t *testing.T, h http.Handler, token, domainName string) dto.SiteResponse {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/domains", token, dto.CreateSiteRequest{Domain: domainName})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create domain %s: status %d body %s", domainName, rec.Code, rec.Body.String())
	}
	return decode[dto.SiteResponse](t, rec)
}

func TestHealthAndVersion(t *testing.T) {
	h, _ := setupServer(t)

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || decode[map[string]string](t, rec)["status"] != "ok" {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/version", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"version"`) {
		t.Fatalf("version: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterAndLogin(t *testing.T) {
	h, _ := setupServer(t)

	first := register(t, h, "Owner@Example.com")
	if first.Role != domain.RoleAdmin || first.Token == "" {
		t.Fatalf("first user should be admin with a token, got %+v", first)
	}
	second := register(t, h, "member@example.com")
	if second.Role != domain.RoleUser {
		t.Fatalf("second user role = %q, want user", second.Role)
	}

	rec := doRequest(t, h, http.MethodPost, "/register", "", dto.Credentials{Email: "owner@example.com", Password: "another-pass"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/register", "", dto.Credentials{Email: "short@example.com", Password: "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/register", "", dto.Credentials{Email: "not-an-email", Password: "long-enough"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/login", "", dto.Credentials{Email: "owner@example.com", Password: "correct-horse"})
	if rec.Code != http.StatusOK || decode[dto.TokenResponse](t, rec).Token == "" {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodPost, "/login", "", dto.Credentials{Email: "owner@example.com", Password: "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/login", "", dto.Credentials{Email: "nobody@example.com", Password: "whatever1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d, want 401", rec.Code)
	}
}

func TestDomainsRequireAuth(t *testing.T) {
	h, _ := setupServer(t)

	if rec := doRequest(t, h, http.MethodGet, "/domains", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/domains", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d, want 401", rec.Code)
	}
}

func TestDomainLifecycle(t *testing.T) {
	h, _ := setupServer(t)
	owner := register(t, h, "owner@example.com")

	site := createDomain(t, h, owner.Token, "https://Shop.Example.com/landing")
	if site.Domain != "shop.example.com" || site.Verified {
		t.Fatalf("unexpected site: %+v", site)
	}
	wantSnippet := `<script src="https://cdn.clickguard.io/cg.js" data-site-id="` + site.SiteID + `" async></script>`
	if site.Snippet != wantSnippet {
		t.Fatalf("snippet = %q, want %q", site.Snippet, wantSnippet)
	}

	if rec := doRequest(t, h, http.MethodPost, "/domains", owner.Token, dto.CreateSiteRequest{Domain: "shop.example.com"}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate domain status = %d, want 409", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/domains", owner.Token, dto.CreateSiteRequest{Domain: "not a domain"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid domain status = %d, want 400", rec.Code)
	}

	rec := doRequest(t, h, http.MethodGet, "/domains", owner.Token, nil)
	if sites := decode[[]dto.SiteResponse](t, rec); rec.Code != http.StatusOK || len(sites) != 1 {
		t.Fatalf("list domains: %d %s", rec.Code, rec.Body.String())
	}

	path := fmt.Sprintf("/domains/%d", site.ID)
	if rec := doRequest(t, h, http.MethodDelete, path, owner.Token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodDelete, path, owner.Token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestNonOwnerGetsNotFound(t *testing.T) {
	h, _ := setupServer(t)
	owner := register(t, h, "owner@example.com")
	other := register(t, h, "other@example.com")
	site := createDomain(t, h, owner.Token, "shop.example.com")

	base := fmt.Sprintf("/domains/%d", site.ID)
	requests := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, base + "/visitors", nil},
		{http.MethodGet, base + "/fraud-events", nil},
		{http.MethodGet, base + "/analytics", nil},
		{http.MethodGet, base + "/blocked-ips", nil},
		{http.MethodPost, base + "/blocked-ips", dto.BlockIPRequest{IP: "203.0.113.1"}},
		{http.MethodPost, base + "/verify", nil},
		{http.MethodDelete, base, nil},
	}
	for _, req := range requests {
		if rec := doRequest(t, h, req.method, req.path, other.Token, req.body); rec.Code != http.StatusNotFound {
			t.Errorf("%s %s by non-owner = %d, want 404", req.method, req.path, rec.Code)
		}
	}
}

func TestTrackEndpoint(t *testing.T) {
	h, db := setupServer(t)
	owner := register(t, h, "owner@example.com")
	site := createDomain(t, h, owner.Token, "shop.example.com")

	t.Run("unknown site", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/track", "", `{"sid":"does-not-exist","mm":3}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		var count int64
		db.Model(&domain.VisitorEvent{}).Count(&count)
		if count != 0 {
			t.Fatalf("visitor events = %d, want 0", count)
		}
	})

	t.Run("missing site id", func(t *testing.T) {
		if rec := doRequest(t, h, http.MethodPost, "/track", "", `{"mm":3}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if rec := doRequest(t, h, http.MethodPost, "/track", "", `{"sid":`); rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		body := `{"sid":"` + site.SiteID + `","ref":"` + strings.Repeat("a", 70<<10) + `"}`
		if rec := doRequest(t, h, http.MethodPost, "/track", "", body); rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("headless bot is blocked", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`{"sid":"`+site.SiteID+`","hb":true,"mm":0,"top":1}`))
		req.Header.Set("User-Agent", "Mozilla/5.0 HeadlessChrome/100")
		req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
		resp := decode[dto.TrackResponse](t, rec)
		if !resp.Success || !resp.Blocked {
			t.Fatalf("response = %+v, want success and blocked", resp)
		}

		var blocked domain.BlockedIP
		if err := db.Where("site_id = ? AND ip = ?", site.ID, "203.0.113.5").First(&blocked).Error; err != nil {
			t.Fatalf("blocked ip missing: %v", err)
		}

		var reloaded domain.TrackedSite
		if err := db.First(&reloaded, site.ID).Error; err != nil {
			t.Fatalf("reload site: %v", err)
		}
		if !reloaded.Verified {
			t.Fatal("first beacon should verify the site")
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/track", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("preflight Access-Control-Allow-Origin = %q, want *, status %d", got, rec.Code)
		}
	})

	t.Run("cross-origin beacon", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`{"sid":"`+site.SiteID+`","mm":12,"top":30}`))
		req.Header.Set("Origin", "https://shop.example.com")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "198.51.100.30")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
		}
	})

	t.Run("oversized fingerprint is stored capped", func(t *testing.T) {
		fp := strings.Repeat("f", 1000)
		req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`{"sid":"`+site.SiteID+`","fp":"`+fp+`","mm":5,"top":12}`))
		req.Header.Set("X-Forwarded-For", "198.51.100.31")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
		var visitor domain.VisitorEvent
		if err := db.Where("ip = ?", "198.51.100.31").First(&visitor).Error; err != nil {
			t.Fatalf("visitor missing: %v", err)
		}
		if len(visitor.Fingerprint) != 128 {
			t.Fatalf("stored fingerprint length = %d, want 128", len(visitor.Fingerprint))
		}
	})
}

func TestVisitorsAndBlockedIPs(t *testing.T) {
	h, _ := setupServer(t)
	owner := register(t, h, "owner@example.com")
	site := createDomain(t, h, owner.Token, "shop.example.com")

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"siteId":"%s","mouseMovements":%d,"timeOnPage":12}`, site.SiteID, i+1)
		if rec := doRequest(t, h, http.MethodPost, "/track", "", body); rec.Code != http.StatusOK {
			t.Fatalf("track %d: %d %s", i, rec.Code, rec.Body.String())
		}
	}

	base := fmt.Sprintf("/domains/%d", site.ID)
	rec := doRequest(t, h, http.MethodGet, base+"/visitors?limit=2", owner.Token, nil)
	page := decode[dto.VisitorsPage](t, rec)
	if rec.Code != http.StatusOK || page.Total != 3 || len(page.Visitors) != 2 || page.Limit != 2 {
		t.Fatalf("visitors page: %d %+v", rec.Code, page)
	}
	if page.Visitors[0].MouseMovements != 3 {
		t.Fatalf("visitors should be newest first, got %+v", page.Visitors[0])
	}

	rec = doRequest(t, h, http.MethodPost, base+"/blocked-ips", owner.Token, dto.BlockIPRequest{IP: "198.51.100.4", Reason: "chargeback"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("block ip: %d %s", rec.Code, rec.Body.String())
	}
	blocked := decode[domain.BlockedIP](t, rec)

	if rec := doRequest(t, h, http.MethodPost, base+"/blocked-ips", owner.Token, dto.BlockIPRequest{IP: "198.51.100.4"}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate block status = %d, want 409", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, base+"/blocked-ips", owner.Token, dto.BlockIPRequest{IP: "999.1.1.1"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid ip status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, base+"/blocked-ips", owner.Token, nil)
	if list := decode[[]domain.BlockedIP](t, rec); len(list) != 1 || list[0].IP != "198.51.100.4" {
		t.Fatalf("blocked list = %s", rec.Body.String())
	}

	unblock := fmt.Sprintf("%s/blocked-ips/%d", base, blocked.ID)
	if rec := doRequest(t, h, http.MethodDelete, unblock, owner.Token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("unblock status = %d, want 204", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodDelete, unblock, owner.Token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second unblock status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, base+"/analytics", owner.Token, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"last_24h":{"visitors":3`) {
		t.Fatalf("analytics: %d %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyEndpointReportsOutcome(t *testing.T) {
	h, _ := setupServer(t)
	owner := register(t, h, "owner@example.com")

	reachable := createDomain(t, h, owner.Token, "shop.example.com")
	rec := doRequest(t, h, http.MethodPost, fmt.Sprintf("/domains/%d/verify", reachable.ID), owner.Token, nil)
	resp := decode[dto.VerificationResponse](t, rec)
	if rec.Code != http.StatusOK || resp.Verified || !strings.Contains(resp.Message, "Could not connect") {
		t.Fatalf("verify unreachable: %d %+v", rec.Code, resp)
	}

	internal := createDomain(t, h, owner.Token, "loopback.example.com")
	rec = doRequest(t, h, http.MethodPost, fmt.Sprintf("/domains/%d/verify", internal.ID), owner.Token, nil)
	resp = decode[dto.VerificationResponse](t, rec)
	if rec.Code != http.StatusOK || resp.Verified || !strings.Contains(resp.Message, "restricted") {
		t.Fatalf("verify loopback: %d %+v", rec.Code, resp)
	}
}

func TestSettingsAdminOnly(t *testing.T) {
	h, _ := setupServer(t)
	admin := register(t, h, "admin@example.com")
	member := register(t, h, "member@example.com")

	if rec := doRequest(t, h, http.MethodGet, "/settings", member.Token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("member settings status = %d, want 403", rec.Code)
	}
	rec := doRequest(t, h, http.MethodGet, "/settings", admin.Token, nil)
	if rec.Code != http.StatusOK || decode[config.Config](t, rec).Geo.Budget != 45 {
		t.Fatalf("admin settings: %d %s", rec.Code, rec.Body.String())
	}

	bad := `{"scoring":{"thresholds":{"critical":10,"high":50,"medium":30}}}`
	if rec := doRequest(t, h, http.MethodPost, "/settings", admin.Token, bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid settings status = %d, want 400", rec.Code)
	}
	if config.GetConfig().Scoring.Thresholds.Critical != 70 {
		t.Fatal("rejected settings must not be applied")
	}
}

func TestSaveSettingsMergesPartialUpdate(t *testing.T) {
	h, _ := setupServer(t)
	admin := register(t, h, "admin@example.com")

	original := config.GetConfig()
	config.SetSettingsPath(filepath.Join(t.TempDir(), "settings.yaml"))
	t.Cleanup(func() {
		_ = config.SetConfig(original)
		config.SetSettingsPath("")
	})

	rec := doRequest(t, h, http.MethodPost, "/settings", admin.Token, `{"geo":{"budget":30}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save settings: %d %s", rec.Code, rec.Body.String())
	}

	cfg := config.GetConfig()
	if cfg.Geo.Budget != 30 || cfg.Geo.WindowSeconds != 60 || cfg.Scoring.Thresholds.Critical != 70 {
		t.Fatalf("partial update not merged: %+v", cfg.Geo)
	}
}
