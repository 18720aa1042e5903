package api

import (
	"time"

	"example.com/assembly/internal/domain"
)

// LoginRequest is the payload for POST /v1/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the worker identity.
type LoginResponse struct {
	Token  string     `json:"token"`
	Worker WorkerView `json:"worker"`
}

// WorkerView exposes worker identity without credentials.
type WorkerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// StartAssemblyRequest is the payload for POST /v1/assemblies/start.
// The worker comes from the bearer token, never from the body.
type StartAssemblyRequest struct {
	UnitID string `json:"unit_id"`
}

// AssemblyView exposes one ledger entry.
type AssemblyView struct {
	EntryID       string     `json:"entry_id"`
	WorkerID      string     `json:"worker_id"`
	UnitID        string     `json:"unit_id"`
	StartedAt     time.Time  `json:"started_at"`
	ExpectedEndAt time.Time  `json:"expected_end_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Status        string     `json:"status"`
}

// ActiveView summarizes the entry occupying a unit.
type ActiveView struct {
	EntryID       string    `json:"entry_id"`
	WorkerID      string    `json:"worker_id"`
	WorkerName    string    `json:"worker_name,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	ExpectedEndAt time.Time `json:"expected_end_at"`
}

// UnitView pairs a catalog unit with its derived status.
type UnitView struct {
	UnitID              string      `json:"unit_id"`
	DisplayName         string      `json:"display_name"`
	ExpectedDurationMin int         `json:"expected_duration_min"`
	Status              string      `json:"status"`
	Active              *ActiveView `json:"current_assembly,omitempty"`
}

// ListUnitsResponse packages the unit listing.
type ListUnitsResponse struct {
	Items []UnitView `json:"items"`
}

// CurrentAssemblyResponse reports the caller's active entry, if any.
type CurrentAssemblyResponse struct {
	InProgress bool          `json:"assembly_in_progress"`
	UnitName   string        `json:"unit_name,omitempty"`
	Assembly   *AssemblyView `json:"assembly,omitempty"`
}

// ListAssembliesResponse packages query results.
type ListAssembliesResponse struct {
	Items []AssemblyView `json:"items"`
}

func toWorkerView(worker domain.Worker) WorkerView {
	return WorkerView{
		ID:          worker.ID,
		DisplayName: worker.DisplayName,
		Role:        string(worker.Role),
	}
}

func toAssemblyView(entry domain.AssemblyEntry) AssemblyView {
	return AssemblyView{
		EntryID:       entry.ID,
		WorkerID:      entry.WorkerID,
		UnitID:        entry.UnitID,
		StartedAt:     entry.StartedAt,
		ExpectedEndAt: entry.ExpectedEndAt,
		EndedAt:       entry.EndedAt,
		Status:        string(entry.Status),
	}
}

func toUnitView(view domain.UnitView) UnitView {
	out := UnitView{
		UnitID:              view.Unit.ID,
		DisplayName:         view.Unit.DisplayName,
		ExpectedDurationMin: view.Unit.ExpectedDurationMin,
		Status:              string(view.Status),
	}
	if view.Active != nil {
		out.Active = &ActiveView{
			EntryID:       view.Active.EntryID,
			WorkerID:      view.Active.WorkerID,
			WorkerName:    view.Active.WorkerName,
			StartedAt:     view.Active.StartedAt,
			ExpectedEndAt: view.Active.ExpectedEndAt,
		}
	}
	return out
}
