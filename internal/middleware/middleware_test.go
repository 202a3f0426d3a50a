package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/senhas/internal/config"
	"github.com/iliyamo/senhas/internal/utils"
)

const secret = "test-secret"

func protected() *echo.Echo {
	e := echo.New()
	g := e.Group("", JWTAuth(secret), RequireRole(RoleTenant))
	g.GET("/me", func(c echo.Context) error { return c.String(http.StatusOK, TenantID(c)) })
	return e
}

func TestJWTAuth(t *testing.T) {
	good, err := utils.NewAccessToken(secret, "tenant-1", RoleTenant, 5)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	otherKey, _ := utils.NewAccessToken("nope", "tenant-1", RoleTenant, 5)
	wrongRole, _ := utils.NewAccessToken(secret, "tenant-1", "ADMIN", 5)
	expired, _ := utils.NewAccessToken(secret, "tenant-1", RoleTenant, -5)
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": RoleTenant,
		"exp":  time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(secret))

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + good.Token, http.StatusOK, "tenant-1"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Token " + good.Token, http.StatusUnauthorized, ""},
		{"wrong key", "Bearer " + otherKey.Token, http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired.Token, http.StatusUnauthorized, ""},
		{"no subject", "Bearer " + noSub, http.StatusUnauthorized, ""},
		{"wrong role", "Bearer " + wrongRole.Token, http.StatusForbidden, ""},
	}
	e := protected()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status=%d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("body=%q, want %q", rec.Body.String(), tc.body)
			}
		})
	}
}

func TestCacheKeyScopedByTenant(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache"}
	e := echo.New()
	key := func(tenant, query string) string {
		req := httptest.NewRequest(http.MethodGet, "/v1/stats"+query, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath("/v1/stats")
		if tenant != "" {
			c.Set(ctxUserID, tenant)
		}
		return cacheKey(cfg, c)
	}
	if key("a", "") == key("b", "") {
		t.Fatalf("tenants share a cache key")
	}
	if key("a", "?from=2024-01-01") == key("a", "") {
		t.Fatalf("query ignored in cache key")
	}
	if key("a", "") != key("a", "") {
		t.Fatalf("cache key not stable")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"total":3}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"total":3}` {
		t.Fatalf("decoded %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:5]); ok {
		t.Fatalf("short payload decoded")
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/tickets", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/tickets")
	c.Set(ctxUserID, "tenant-1")

	cases := map[string]string{
		"ip":            "rl:ip:10.0.0.1",
		"user":          "rl:user:tenant-1",
		"user_route":    "rl:user:tenant-1:route:POST /v1/tickets",
		"ip_user_route": "rl:ip:10.0.0.1:user:tenant-1:route:POST /v1/tickets",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Fatalf("%s: key=%q, want %q", strategy, got, want)
		}
	}
}
