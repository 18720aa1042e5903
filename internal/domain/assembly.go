package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnitNotFound is returned when a unit id is absent from the catalog.
	ErrUnitNotFound = errors.New("unit not found")
	// ErrWorkerBusy is returned when the worker already has an assembly in progress.
	ErrWorkerBusy = errors.New("worker already has an assembly in progress")
	// ErrUnitBusy is returned when the unit is already being assembled.
	ErrUnitBusy = errors.New("unit already has an assembly in progress")
	// ErrNoActiveAssembly is returned when a worker has nothing to end.
	ErrNoActiveAssembly = errors.New("no assembly in progress for worker")
	// ErrEntryNotFound is returned when an assembly entry cannot be located.
	ErrEntryNotFound = errors.New("assembly entry not found")
	// ErrAlreadyCompleted is returned when the single legal transition is repeated.
	ErrAlreadyCompleted = errors.New("assembly entry already completed")
	// ErrInvalidRange is returned when a query range ends before it starts.
	ErrInvalidRange = errors.New("range start must not be after range end")
)

// Status is the lifecycle state of an assembly entry. There are exactly
// two states; completion is terminal.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// UnitStatus is the read-side projection of a unit's occupancy.
type UnitStatus string

const (
	UnitAvailable  UnitStatus = "available"
	UnitInProgress UnitStatus = "in-progress"
	UnitCompleted  UnitStatus = "completed"
)

// CompletionCause records which path closed an assembly entry.
type CompletionCause string

const (
	CauseManual   CompletionCause = "manual"
	CauseDeadline CompletionCause = "deadline"
)

// Role distinguishes administrative viewers from assembly workers.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAssembler Role = "assembler"
)

// Unit is an assemblable bicycle. Immutable after catalog seeding.
type Unit struct {
	ID                  string
	DisplayName         string
	ExpectedDurationMin int
}

// Worker identifies a person performing or viewing assembly work.
// Credentials live in the roster, not here.
type Worker struct {
	ID          string
	DisplayName string
	Role        Role
}

// AssemblyEntry is one attempt by one worker to assemble one unit.
// EndedAt is nil exactly while Status is StatusInProgress.
type AssemblyEntry struct {
	ID            string
	WorkerID      string
	UnitID        string
	StartedAt     time.Time
	ExpectedEndAt time.Time
	EndedAt       *time.Time
	Status        Status
}

// QueryFilter selects ledger entries for reporting. The time range is
// inclusive on both ends and applies to StartedAt; zero bounds are
// unbounded. An empty status set matches both states.
type QueryFilter struct {
	Statuses  []Status
	StartFrom time.Time
	StartTo   time.Time
	WorkerID  string
	UnitID    string
}

// MatchesStatus reports whether the filter admits the given status.
func (f QueryFilter) MatchesStatus(s Status) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, want := range f.Statuses {
		if want == s {
			return true
		}
	}
	return false
}

// Ledger is the authoritative record of assembly attempts. Insert and
// Complete must be atomic with respect to the active lookups for the
// same worker or unit, so concurrent check-then-write sequences cannot
// interleave per contended key.
type Ledger interface {
	// Insert persists a new in-progress entry. It rejects entries
	// that would give the worker or unit a second active assembly,
	// returning ErrWorkerBusy or ErrUnitBusy.
	Insert(ctx context.Context, entry AssemblyEntry) error
	// Get fetches an entry by id, ErrEntryNotFound when absent.
	Get(ctx context.Context, entryID string) (*AssemblyEntry, error)
	// FindActiveByWorker returns the worker's in-progress entry, or nil.
	FindActiveByWorker(ctx context.Context, workerID string) (*AssemblyEntry, error)
	// FindActiveByUnit returns the unit's in-progress entry, or nil.
	FindActiveByUnit(ctx context.Context, unitID string) (*AssemblyEntry, error)
	// LatestByUnit returns the unit's most recently started entry, or nil.
	LatestByUnit(ctx context.Context, unitID string) (*AssemblyEntry, error)
	// Complete applies the only legal transition, setting EndedAt and
	// flipping the status. An already-completed entry yields
	// ErrAlreadyCompleted so callers can detect the race.
	Complete(ctx context.Context, entryID string, endedAt time.Time) (*AssemblyEntry, error)
	// ListActive returns every in-progress entry, for deadline reconciliation.
	ListActive(ctx context.Context) ([]AssemblyEntry, error)
	// Query returns entries matching the filter, ordered by start time.
	Query(ctx context.Context, filter QueryFilter) ([]AssemblyEntry, error)
}

// UnitCatalog exposes the seeded unit registry. Read-only at runtime.
type UnitCatalog interface {
	Get(unitID string) (*Unit, bool)
	List() []Unit
}

// WorkerDirectory resolves worker identity for display purposes.
type WorkerDirectory interface {
	Worker(workerID string) (*Worker, bool)
}

// DeadlineScheduler receives deadline registrations from the engine.
// Cancellation is best-effort; the idempotent Complete transition
// covers the missed-cancel case.
type DeadlineScheduler interface {
	RegisterDeadline(entryID string, firesAt time.Time)
	Cancel(entryID string)
}

// EventSink receives lifecycle notifications. Implementations must be
// best-effort: a sink failure never fails the engine operation.
type EventSink interface {
	AssemblyStarted(ctx context.Context, entry AssemblyEntry)
	AssemblyCompleted(ctx context.Context, entry AssemblyEntry, cause CompletionCause)
}
