package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/assembly/internal/domain"
)

func testConfig() Config {
	return Config{Secret: "test-secret", Issuer: "assembly.test", TokenTTL: time.Hour}
}

func TestIssueParseRoundTrip(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	worker := domain.Worker{ID: "worker-1", DisplayName: "John Doe", Role: domain.RoleAssembler}

	token, err := Issue(worker, cfg, now)
	require.NoError(t, err)

	claims, err := Parse(token, cfg)
	require.NoError(t, err)
	require.Equal(t, "worker-1", claims.WorkerID)
	require.Equal(t, domain.RoleAssembler, claims.Role)
	require.True(t, claims.HasScope(ScopeAssembliesRead))
	require.True(t, claims.HasScope(ScopeAssembliesWrite))
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestAdminScopesAreReadOnly(t *testing.T) {
	cfg := testConfig()
	worker := domain.Worker{ID: "worker-admin", Role: domain.RoleAdmin}

	token, err := Issue(worker, cfg, time.Now())
	require.NoError(t, err)

	claims, err := Parse(token, cfg)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeAssembliesRead))
	require.False(t, claims.HasScope(ScopeAssembliesWrite))
}

func TestParseRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := Issue(domain.Worker{ID: "worker-1", Role: domain.RoleAssembler}, cfg, time.Now())
	require.NoError(t, err)

	_, err = Parse(token, Config{Secret: "other-secret", Issuer: cfg.Issuer})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	cfg := testConfig()
	token, err := Issue(domain.Worker{ID: "worker-1", Role: domain.RoleAssembler}, cfg, time.Now())
	require.NoError(t, err)

	_, err = Parse(token, Config{Secret: cfg.Secret, Issuer: "someone-else"})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	token, err := Issue(domain.Worker{ID: "worker-1", Role: domain.RoleAssembler}, cfg, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = Parse(token, cfg)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsUnsignedToken(t *testing.T) {
	cfg := testConfig()

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "worker-1",
		"iss": cfg.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Parse(token, cfg)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseEmptyToken(t *testing.T) {
	_, err := Parse("  ", testConfig())
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestNormalizeScopesHandlesFormats(t *testing.T) {
	require.Equal(t,
		map[string]struct{}{"a": {}, "b": {}},
		normalizeScopes([]interface{}{"a", "b", ""}))
	require.Equal(t,
		map[string]struct{}{"a": {}, "b": {}},
		normalizeScopes([]string{"a", "b"}))
	require.Equal(t,
		map[string]struct{}{"a": {}, "b": {}},
		normalizeScopes("a  b"))
	require.Empty(t, normalizeScopes(nil))
}

func TestMiddlewareInjectsClaims(t *testing.T) {
	cfg := testConfig()
	token, err := Issue(domain.Worker{ID: "worker-1", Role: domain.RoleAssembler}, cfg, time.Now())
	require.NoError(t, err)

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	mw := NewMiddleware(cfg, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/units", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	require.Equal(t, "worker-1", seen.WorkerID)
}

func TestMiddlewareRejectsBadHeaders(t *testing.T) {
	mw := NewMiddleware(testConfig(), nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})

	cases := map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc123",
		"garbage jwt":  "Bearer not-a-token",
		"empty bearer": "Bearer ",
	}
	for name, header := range cases {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/units", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			mw.Wrap(next).ServeHTTP(rr, req)
			require.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestMiddlewareSkipper(t *testing.T) {
	mw := NewMiddleware(testConfig(), func(r *http.Request) bool {
		return r.URL.Path == "/healthz"
	})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
