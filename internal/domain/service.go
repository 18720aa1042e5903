// Package domain defines the assembly lifecycle engine and its contracts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"example.com/assembly/internal/observability"
)

// DefaultCompletedLinger is how long a finished unit reports
// UnitCompleted before returning to UnitAvailable.
const DefaultCompletedLinger = 5 * time.Minute

// Service is the lifecycle engine. It owns the start/end invariants,
// computes deadlines, and is the callback target for deadline expiry.
type Service struct {
	units     UnitCatalog
	workers   WorkerDirectory
	ledger    Ledger
	scheduler DeadlineScheduler
	events    EventSink
	now       func() time.Time
	linger    time.Duration
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithDeadlineScheduler wires the scheduler that enforces expected-end deadlines.
func WithDeadlineScheduler(d DeadlineScheduler) Option {
	return func(s *Service) { s.scheduler = d }
}

// WithEventSink wires a lifecycle event sink.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCompletedLinger overrides how long completed units stay visible as such.
func WithCompletedLinger(d time.Duration) Option {
	return func(s *Service) { s.linger = d }
}

// NewService constructs the engine.
func NewService(units UnitCatalog, workers WorkerDirectory, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		units:   units,
		workers: workers,
		ledger:  ledger,
		now:     func() time.Time { return time.Now().UTC() },
		linger:  DefaultCompletedLinger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAssembly opens a new assembly entry for the worker on the unit.
// Precondition failures are reported in order: unknown unit, busy
// worker, busy unit. This is the only creation path for entries.
func (s *Service) StartAssembly(ctx context.Context, workerID, unitID string) (*AssemblyEntry, error) {
	unit, ok := s.units.Get(unitID)
	if !ok {
		return nil, ErrUnitNotFound
	}

	if active, err := s.ledger.FindActiveByWorker(ctx, workerID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, ErrWorkerBusy
	}

	if active, err := s.ledger.FindActiveByUnit(ctx, unitID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, ErrUnitBusy
	}

	startedAt := s.now().UTC()
	entry := AssemblyEntry{
		ID:            uuid.NewString(),
		WorkerID:      workerID,
		UnitID:        unitID,
		StartedAt:     startedAt,
		ExpectedEndAt: startedAt.Add(time.Duration(unit.ExpectedDurationMin) * time.Minute),
		Status:        StatusInProgress,
	}

	// The ledger re-checks exclusivity atomically; a concurrent start
	// for the same worker or unit surfaces here as a busy error.
	if err := s.ledger.Insert(ctx, entry); err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.RegisterDeadline(entry.ID, entry.ExpectedEndAt)
	}
	if s.events != nil {
		s.events.AssemblyStarted(ctx, entry)
	}
	observability.RecordAssemblyStarted()

	return &entry, nil
}

// EndAssembly completes the worker's active entry. If the deadline
// fired between lookup and transition the entry is completed either
// way, so the rejected repeat transition is converted to success.
func (s *Service) EndAssembly(ctx context.Context, workerID string) (*AssemblyEntry, error) {
	active, err := s.ledger.FindActiveByWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveAssembly
	}

	entry, err := s.ledger.Complete(ctx, active.ID, s.now().UTC())
	if errors.Is(err, ErrAlreadyCompleted) {
		if s.scheduler != nil {
			s.scheduler.Cancel(active.ID)
		}
		return s.ledger.Get(ctx, active.ID)
	}
	if err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(entry.ID)
	}
	if s.events != nil {
		s.events.AssemblyCompleted(ctx, *entry, CauseManual)
	}
	observability.RecordAssemblyCompleted(string(CauseManual))

	return entry, nil
}

// ForceComplete closes an entry at its deadline. Already-completed
// entries are a no-op; unknown entries are reported. Called by the
// deadline scheduler, never by transport handlers.
func (s *Service) ForceComplete(ctx context.Context, entryID string, firesAt time.Time) error {
	entry, err := s.ledger.Complete(ctx, entryID, firesAt.UTC())
	if errors.Is(err, ErrAlreadyCompleted) {
		return nil
	}
	if err != nil {
		return err
	}

	if s.events != nil {
		s.events.AssemblyCompleted(ctx, *entry, CauseDeadline)
	}
	observability.RecordAssemblyCompleted(string(CauseDeadline))
	observability.RecordDeadlineLag(s.now().Sub(entry.ExpectedEndAt))

	return nil
}

// GetActiveAssembly returns the worker's in-progress entry, or nil.
func (s *Service) GetActiveAssembly(ctx context.Context, workerID string) (*AssemblyEntry, error) {
	return s.ledger.FindActiveByWorker(ctx, workerID)
}

// ActiveSummary is the occupancy detail attached to a busy unit.
type ActiveSummary struct {
	EntryID       string
	WorkerID      string
	WorkerName    string
	StartedAt     time.Time
	ExpectedEndAt time.Time
}

// UnitView pairs a unit with its derived status.
type UnitView struct {
	Unit   Unit
	Status UnitStatus
	Active *ActiveSummary
}

// ListUnitsWithStatus projects the catalog against the ledger. A unit
// with an active entry reports UnitInProgress; one whose latest entry
// completed within the linger window reports UnitCompleted; otherwise
// it is available again.
func (s *Service) ListUnitsWithStatus(ctx context.Context) ([]UnitView, error) {
	units := s.units.List()
	views := make([]UnitView, 0, len(units))
	now := s.now()

	for _, unit := range units {
		view := UnitView{Unit: unit, Status: UnitAvailable}

		active, err := s.ledger.FindActiveByUnit(ctx, unit.ID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			view.Status = UnitInProgress
			view.Active = s.summarize(active)
		} else {
			latest, err := s.ledger.LatestByUnit(ctx, unit.ID)
			if err != nil {
				return nil, err
			}
			if latest != nil && latest.EndedAt != nil && now.Sub(*latest.EndedAt) <= s.linger {
				view.Status = UnitCompleted
			}
		}

		views = append(views, view)
	}
	return views, nil
}

// QueryAssemblies returns ledger entries matching the filter.
func (s *Service) QueryAssemblies(ctx context.Context, filter QueryFilter) ([]AssemblyEntry, error) {
	if !filter.StartFrom.IsZero() && !filter.StartTo.IsZero() && filter.StartFrom.After(filter.StartTo) {
		return nil, ErrInvalidRange
	}
	return s.ledger.Query(ctx, filter)
}

func (s *Service) summarize(entry *AssemblyEntry) *ActiveSummary {
	summary := &ActiveSummary{
		EntryID:       entry.ID,
		WorkerID:      entry.WorkerID,
		StartedAt:     entry.StartedAt,
		ExpectedEndAt: entry.ExpectedEndAt,
	}
	if s.workers != nil {
		if worker, ok := s.workers.Worker(entry.WorkerID); ok {
			summary.WorkerName = worker.DisplayName
		}
	}
	return summary
}
