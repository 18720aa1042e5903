package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/assembly/internal/auth"
	"example.com/assembly/internal/domain"
	"example.com/assembly/internal/persistence/memory"
	"example.com/assembly/internal/registry"
)

type fixture struct {
	handler *Handler
	service *domain.Service
	clock   *fakeClock
	authCfg auth.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)}
	reg := registry.New(registry.DefaultUnits(), registry.DefaultRoster())
	service := domain.NewService(reg, reg, memory.NewLedger(), domain.WithClock(clock.Now))
	authCfg := auth.Config{Secret: "test-secret", Issuer: "assembly.test", TokenTTL: time.Hour}

	handler := NewHandler(service, reg, authCfg)
	handler.now = clock.Now
	return &fixture{handler: handler, service: service, clock: clock, authCfg: authCfg}
}

func claimsFor(workerID string, role domain.Role) *auth.Claims {
	scopes := make(map[string]struct{})
	for _, scope := range auth.ScopesForRole(role) {
		scopes[scope] = struct{}{}
	}
	return &auth.Claims{
		WorkerID:  workerID,
		Role:      role,
		Scopes:    scopes,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func authed(req *http.Request, claims *auth.Claims) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader(`{"username":"emp1","password":"pass1"}`))
	rr := httptest.NewRecorder()
	f.handler.login(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "worker-1", resp.Worker.ID)
	require.Equal(t, string(domain.RoleAssembler), resp.Worker.Role)

	claims, err := auth.Parse(resp.Token, f.authCfg)
	require.NoError(t, err)
	require.Equal(t, "worker-1", claims.WorkerID)
	require.True(t, claims.HasScope(auth.ScopeAssembliesWrite))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader(`{"username":"emp1","password":"wrong"}`))
	rr := httptest.NewRecorder()
	f.handler.login(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStartEndAssemblyFlow(t *testing.T) {
	f := newFixture(t)
	claims := claimsFor("worker-1", domain.RoleAssembler)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-1"}`)), claims)
	rr := httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var started AssemblyView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &started))
	require.Equal(t, "worker-1", started.WorkerID)
	require.Equal(t, string(domain.StatusInProgress), started.Status)
	require.Equal(t, started.StartedAt.Add(50*time.Minute), started.ExpectedEndAt)

	req = authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies/current", nil), claims)
	rr = httptest.NewRecorder()
	f.handler.currentAssembly(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var current CurrentAssemblyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &current))
	require.True(t, current.InProgress)
	require.Equal(t, "Bike 1", current.UnitName)
	require.Equal(t, started.EntryID, current.Assembly.EntryID)

	f.clock.Advance(20 * time.Minute)
	req = authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/end", nil), claims)
	rr = httptest.NewRecorder()
	f.handler.endAssembly(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ended AssemblyView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ended))
	require.Equal(t, string(domain.StatusCompleted), ended.Status)
	require.NotNil(t, ended.EndedAt)

	req = authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies/current", nil), claims)
	rr = httptest.NewRecorder()
	f.handler.currentAssembly(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &current))
	require.False(t, current.InProgress)
}

func TestStartAssemblyConflicts(t *testing.T) {
	f := newFixture(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-1"}`)), claimsFor("worker-1", domain.RoleAssembler))
	rr := httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	// Another worker on the same unit.
	req = authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-1"}`)), claimsFor("worker-2", domain.RoleAssembler))
	rr = httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)

	// The busy worker on another unit.
	req = authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-2"}`)), claimsFor("worker-1", domain.RoleAssembler))
	rr = httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)

	// Unknown unit.
	req = authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-99"}`)), claimsFor("worker-3", domain.RoleAssembler))
	rr = httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEndAssemblyWithoutActive(t *testing.T) {
	f := newFixture(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/end", nil), claimsFor("worker-1", domain.RoleAssembler))
	rr := httptest.NewRecorder()
	f.handler.endAssembly(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStartAssemblyRequiresWriteScope(t *testing.T) {
	f := newFixture(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-1"}`)), claimsFor("worker-admin", domain.RoleAdmin))
	rr := httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestListUnitsReflectsOccupancy(t *testing.T) {
	f := newFixture(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-1"}`)), claimsFor("worker-1", domain.RoleAssembler))
	rr := httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = authed(httptest.NewRequest(http.MethodGet, "/v1/units", nil), claimsFor("worker-admin", domain.RoleAdmin))
	rr = httptest.NewRecorder()
	f.handler.listUnits(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ListUnitsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)
	require.Equal(t, string(domain.UnitInProgress), resp.Items[0].Status)
	require.NotNil(t, resp.Items[0].Active)
	require.Equal(t, "John Doe", resp.Items[0].Active.WorkerName)
	require.Equal(t, string(domain.UnitAvailable), resp.Items[1].Status)
}

func TestQueryAssembliesFilters(t *testing.T) {
	f := newFixture(t)
	claims := claimsFor("worker-1", domain.RoleAssembler)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-1"}`)), claims)
	rr := httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	f.clock.Advance(20 * time.Minute)
	req = authed(httptest.NewRequest(http.MethodPost, "/v1/assemblies/end", nil), claims)
	rr = httptest.NewRecorder()
	f.handler.endAssembly(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	admin := claimsFor("worker-admin", domain.RoleAdmin)

	// Defaults to today, both statuses.
	req = authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies", nil), admin)
	rr = httptest.NewRecorder()
	f.handler.queryAssemblies(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp ListAssembliesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	require.Equal(t, string(domain.StatusCompleted), resp.Items[0].Status)

	// A range excluding everything yields an empty list.
	req = authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies?from=2026-04-01&to=2026-04-02", nil), admin)
	rr = httptest.NewRecorder()
	f.handler.queryAssemblies(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Empty(t, resp.Items)

	// Status filter that matches nothing active.
	req = authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies?status=in-progress&from=2026-03-10&to=2026-03-10", nil), admin)
	rr = httptest.NewRecorder()
	f.handler.queryAssemblies(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Empty(t, resp.Items)
}

func TestQueryAssembliesValidation(t *testing.T) {
	f := newFixture(t)
	admin := claimsFor("worker-admin", domain.RoleAdmin)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies?from=2026-03-11&to=2026-03-10", nil), admin)
	rr := httptest.NewRecorder()
	f.handler.queryAssemblies(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies?status=cancelled", nil), admin)
	rr = httptest.NewRecorder()
	f.handler.queryAssemblies(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = authed(httptest.NewRequest(http.MethodGet, "/v1/assemblies?from=yesterday", nil), admin)
	rr = httptest.NewRecorder()
	f.handler.queryAssemblies(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlersRejectMissingClaims(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/assemblies/start", strings.NewReader(`{"unit_id":"unit-1"}`))
	rr := httptest.NewRecorder()
	f.handler.startAssembly(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
