// Package api exposes HTTP handlers for the assembly service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/assembly/internal/auth"
	"example.com/assembly/internal/domain"
	"example.com/assembly/internal/registry"
)

// Handler coordinates HTTP requests with the lifecycle engine.
type Handler struct {
	service  *domain.Service
	registry *registry.Registry
	authCfg  auth.Config
	now      func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, reg *registry.Registry, authCfg auth.Config) *Handler {
	return &Handler{
		service:  service,
		registry: reg,
		authCfg:  authCfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/login", h.login)
	mux.HandleFunc("/v1/units", h.listUnits)
	mux.HandleFunc("/v1/assemblies", h.queryAssemblies)
	mux.HandleFunc("/v1/assemblies/start", h.startAssembly)
	mux.HandleFunc("/v1/assemblies/end", h.endAssembly)
	mux.HandleFunc("/v1/assemblies/current", h.currentAssembly)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	worker, ok := h.registry.Authenticate(req.Username, req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	token, err := auth.Issue(*worker, h.authCfg, h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Worker: toWorkerView(*worker)})
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAssembliesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope assemblies:read required")
		return
	}

	views, err := h.service.ListUnitsWithStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]UnitView, 0, len(views))
	for _, view := range views {
		items = append(items, toUnitView(view))
	}
	writeJSON(w, http.StatusOK, ListUnitsResponse{Items: items})
}

func (h *Handler) startAssembly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAssembliesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope assemblies:write required")
		return
	}

	var req StartAssemblyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UnitID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "unit_id is required")
		return
	}

	entry, err := h.service.StartAssembly(r.Context(), claims.WorkerID, req.UnitID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssemblyView(*entry))
}

func (h *Handler) endAssembly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAssembliesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope assemblies:write required")
		return
	}

	entry, err := h.service.EndAssembly(r.Context(), claims.WorkerID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssemblyView(*entry))
}

func (h *Handler) currentAssembly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAssembliesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope assemblies:read required")
		return
	}

	entry, err := h.service.GetActiveAssembly(r.Context(), claims.WorkerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusOK, CurrentAssemblyResponse{InProgress: false})
		return
	}

	view := toAssemblyView(*entry)
	resp := CurrentAssemblyResponse{InProgress: true, Assembly: &view}
	if unit, ok := h.registry.Get(entry.UnitID); ok {
		resp.UnitName = unit.DisplayName
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) queryAssemblies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAssembliesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope assemblies:read required")
		return
	}

	filter, err := h.parseQueryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	entries, err := h.service.QueryAssemblies(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]AssemblyView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toAssemblyView(entry))
	}
	writeJSON(w, http.StatusOK, ListAssembliesResponse{Items: items})
}

// parseQueryFilter reads status/from/to/worker_id/unit_id parameters.
// Bounds accept RFC 3339 instants or plain dates; a plain "to" date is
// clamped to the end of that day. With neither bound set the range
// defaults to today.
func (h *Handler) parseQueryFilter(r *http.Request) (domain.QueryFilter, error) {
	filter := domain.QueryFilter{
		WorkerID: r.URL.Query().Get("worker_id"),
		UnitID:   r.URL.Query().Get("unit_id"),
	}

	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		switch strings.TrimSpace(raw) {
		case "":
		case string(domain.StatusInProgress):
			filter.Statuses = append(filter.Statuses, domain.StatusInProgress)
		case string(domain.StatusCompleted):
			filter.Statuses = append(filter.Statuses, domain.StatusCompleted)
		default:
			return domain.QueryFilter{}, errors.New("status must be in-progress or completed")
		}
	}

	fromRaw := r.URL.Query().Get("from")
	toRaw := r.URL.Query().Get("to")

	if fromRaw == "" && toRaw == "" {
		today := h.now().Truncate(24 * time.Hour)
		filter.StartFrom = today
		filter.StartTo = endOfDay(today)
		return filter, nil
	}

	if fromRaw != "" {
		from, _, err := parseBound(fromRaw)
		if err != nil {
			return domain.QueryFilter{}, errors.New("from must be RFC 3339 or YYYY-MM-DD")
		}
		filter.StartFrom = from
	}
	if toRaw != "" {
		to, dateOnly, err := parseBound(toRaw)
		if err != nil {
			return domain.QueryFilter{}, errors.New("to must be RFC 3339 or YYYY-MM-DD")
		}
		if dateOnly {
			to = endOfDay(to)
		}
		filter.StartTo = to
	}

	if !filter.StartFrom.IsZero() && !filter.StartTo.IsZero() && filter.StartFrom.After(filter.StartTo) {
		return domain.QueryFilter{}, errors.New("from must not be after to")
	}
	return filter, nil
}

func parseBound(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err = time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	return time.Time{}, false, err
}

func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Nanosecond)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnitNotFound):
		writeError(w, http.StatusNotFound, "not_found", "unit not found")
	case errors.Is(err, domain.ErrNoActiveAssembly):
		writeError(w, http.StatusNotFound, "not_found", "no assembly in progress")
	case errors.Is(err, domain.ErrWorkerBusy):
		writeError(w, http.StatusConflict, "conflict", "worker already has an assembly in progress")
	case errors.Is(err, domain.ErrUnitBusy):
		writeError(w, http.StatusConflict, "conflict", "unit already has an assembly in progress")
	case errors.Is(err, domain.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "validation_failed", "from must not be after to")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
