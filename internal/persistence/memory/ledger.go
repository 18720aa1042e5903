// Package memory provides a mutex-guarded in-memory ledger, used by
// unit tests and single-process deployments without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/assembly/internal/domain"
)

// Ledger implements domain.Ledger over process memory. A single mutex
// serializes every check-then-write, which satisfies the per-key
// atomicity the engine requires.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*domain.AssemblyEntry
	order   []string
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*domain.AssemblyEntry)}
}

// Insert persists a new in-progress entry, rejecting active-key conflicts.
func (l *Ledger) Insert(_ context.Context, entry domain.AssemblyEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.entries {
		if existing.Status != domain.StatusInProgress {
			continue
		}
		if existing.WorkerID == entry.WorkerID {
			return domain.ErrWorkerBusy
		}
		if existing.UnitID == entry.UnitID {
			return domain.ErrUnitBusy
		}
	}

	stored := entry
	l.entries[entry.ID] = &stored
	l.order = append(l.order, entry.ID)
	return nil
}

// Get fetches an entry by id.
func (l *Ledger) Get(_ context.Context, entryID string) (*domain.AssemblyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return copyEntry(entry), nil
}

// FindActiveByWorker returns the worker's in-progress entry, or nil.
func (l *Ledger) FindActiveByWorker(_ context.Context, workerID string) (*domain.AssemblyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Status == domain.StatusInProgress && entry.WorkerID == workerID {
			return copyEntry(entry), nil
		}
	}
	return nil, nil
}

// FindActiveByUnit returns the unit's in-progress entry, or nil.
func (l *Ledger) FindActiveByUnit(_ context.Context, unitID string) (*domain.AssemblyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Status == domain.StatusInProgress && entry.UnitID == unitID {
			return copyEntry(entry), nil
		}
	}
	return nil, nil
}

// LatestByUnit returns the unit's most recently started entry, or nil.
func (l *Ledger) LatestByUnit(_ context.Context, unitID string) (*domain.AssemblyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var latest *domain.AssemblyEntry
	for _, entry := range l.entries {
		if entry.UnitID != unitID {
			continue
		}
		if latest == nil || entry.StartedAt.After(latest.StartedAt) {
			latest = entry
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyEntry(latest), nil
}

// Complete applies the single legal transition, rejecting repeats.
func (l *Ledger) Complete(_ context.Context, entryID string, endedAt time.Time) (*domain.AssemblyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	if entry.Status == domain.StatusCompleted {
		return nil, domain.ErrAlreadyCompleted
	}

	ended := endedAt
	entry.Status = domain.StatusCompleted
	entry.EndedAt = &ended
	return copyEntry(entry), nil
}

// ListActive returns every in-progress entry.
func (l *Ledger) ListActive(_ context.Context) ([]domain.AssemblyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AssemblyEntry, 0)
	for _, id := range l.order {
		entry := l.entries[id]
		if entry.Status == domain.StatusInProgress {
			out = append(out, *copyEntry(entry))
		}
	}
	return out, nil
}

// Query returns entries matching the filter, ordered by start time.
func (l *Ledger) Query(_ context.Context, filter domain.QueryFilter) ([]domain.AssemblyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AssemblyEntry, 0)
	for _, id := range l.order {
		entry := l.entries[id]
		if !filter.MatchesStatus(entry.Status) {
			continue
		}
		if filter.WorkerID != "" && entry.WorkerID != filter.WorkerID {
			continue
		}
		if filter.UnitID != "" && entry.UnitID != filter.UnitID {
			continue
		}
		if !filter.StartFrom.IsZero() && entry.StartedAt.Before(filter.StartFrom) {
			continue
		}
		if !filter.StartTo.IsZero() && entry.StartedAt.After(filter.StartTo) {
			continue
		}
		out = append(out, *copyEntry(entry))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func copyEntry(entry *domain.AssemblyEntry) *domain.AssemblyEntry {
	out := *entry
	if entry.EndedAt != nil {
		ended := *entry.EndedAt
		out.EndedAt = &ended
	}
	return &out
}
