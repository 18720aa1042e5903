// Package registry holds the seeded unit catalog and worker roster.
// Both are immutable after process start; runtime state lives in the
// assembly ledger, never here.
package registry

import (
	"crypto/subtle"
	"sort"

	"example.com/assembly/internal/domain"
)

// Member pairs a worker with the credentials the login endpoint checks.
type Member struct {
	Worker   domain.Worker
	Username string
	Password string
}

// Registry is the read-only catalog of units and workers.
type Registry struct {
	units      map[string]domain.Unit
	workers    map[string]domain.Worker
	byUsername map[string]Member
}

// New builds a Registry from seed data. Later duplicates of an id or
// username overwrite earlier ones.
func New(units []domain.Unit, roster []Member) *Registry {
	r := &Registry{
		units:      make(map[string]domain.Unit, len(units)),
		workers:    make(map[string]domain.Worker, len(roster)),
		byUsername: make(map[string]Member, len(roster)),
	}
	for _, unit := range units {
		r.units[unit.ID] = unit
	}
	for _, member := range roster {
		r.workers[member.Worker.ID] = member.Worker
		r.byUsername[member.Username] = member
	}
	return r
}

// Get returns the unit for the id.
func (r *Registry) Get(unitID string) (*domain.Unit, bool) {
	unit, ok := r.units[unitID]
	if !ok {
		return nil, false
	}
	return &unit, true
}

// List returns all units, stable by id.
func (r *Registry) List() []domain.Unit {
	out := make([]domain.Unit, 0, len(r.units))
	for _, unit := range r.units {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Worker returns the worker for the id.
func (r *Registry) Worker(workerID string) (*domain.Worker, bool) {
	worker, ok := r.workers[workerID]
	if !ok {
		return nil, false
	}
	return &worker, true
}

// Workers returns the roster, stable by id.
func (r *Registry) Workers() []domain.Worker {
	out := make([]domain.Worker, 0, len(r.workers))
	for _, worker := range r.workers {
		out = append(out, worker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Authenticate checks credentials and returns the matching worker.
func (r *Registry) Authenticate(username, password string) (*domain.Worker, bool) {
	member, ok := r.byUsername[username]
	if !ok {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(member.Password), []byte(password)) != 1 {
		return nil, false
	}
	worker := member.Worker
	return &worker, true
}

// DefaultUnits is the local-dev unit catalog.
func DefaultUnits() []domain.Unit {
	return []domain.Unit{
		{ID: "unit-1", DisplayName: "Bike 1", ExpectedDurationMin: 50},
		{ID: "unit-2", DisplayName: "Bike 2", ExpectedDurationMin: 60},
		{ID: "unit-3", DisplayName: "Bike 3", ExpectedDurationMin: 80},
	}
}

// DefaultRoster is the local-dev worker roster. Replace before any
// non-dev deployment.
func DefaultRoster() []Member {
	return []Member{
		{Worker: domain.Worker{ID: "worker-1", DisplayName: "John Doe", Role: domain.RoleAssembler}, Username: "emp1", Password: "pass1"},
		{Worker: domain.Worker{ID: "worker-2", DisplayName: "Jane Smith", Role: domain.RoleAssembler}, Username: "emp2", Password: "pass2"},
		{Worker: domain.Worker{ID: "worker-3", DisplayName: "Bob Johnson", Role: domain.RoleAssembler}, Username: "emp3", Password: "pass3"},
		{Worker: domain.Worker{ID: "worker-4", DisplayName: "Alice Brown", Role: domain.RoleAssembler}, Username: "emp4", Password: "pass4"},
		{Worker: domain.Worker{ID: "worker-5", DisplayName: "Charlie Wilson", Role: domain.RoleAssembler}, Username: "emp5", Password: "pass5"},
		{Worker: domain.Worker{ID: "worker-admin", DisplayName: "Admin", Role: domain.RoleAdmin}, Username: "admin", Password: "admin1"},
	}
}
