// Package scheduler enforces assembly deadlines. Every in-progress
// entry is forced to completed at its expected end unless a manual
// completion lands first. Timers are process-local, so a reconcile
// sweep repairs anything a restart or missed timer left behind.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"example.com/assembly/internal/domain"
	"example.com/assembly/internal/observability"
)

const fireTimeout = 30 * time.Second

// Completer is the engine-side callback. The forced transition is
// idempotent, so firing against an already-completed entry is safe.
type Completer interface {
	ForceComplete(ctx context.Context, entryID string, firesAt time.Time) error
}

// ActiveLister is the slice of the ledger the sweep needs.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]domain.AssemblyEntry, error)
}

// Option configures optional Scheduler behaviour.
type Option func(*Scheduler)

// WithSweepInterval overrides the reconcile sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.sweepInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger overrides the logger used to report fire failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler holds one timer per registered deadline. It carries no
// invariant-critical state: correctness rests on the ledger's
// idempotent transition plus the reconcile sweep.
type Scheduler struct {
	ledger        ActiveLister
	sweepInterval time.Duration
	now           func() time.Time
	logger        *log.Logger

	mu        sync.Mutex
	completer Completer
	timers    map[string]*time.Timer

	shutdownComplete chan struct{}
}

// New constructs a Scheduler. The completer is bound by Run; deadlines
// registered earlier stay pending until then and are covered by the
// first sweep.
func New(ledger ActiveLister, opts ...Option) *Scheduler {
	s := &Scheduler{
		ledger:           ledger,
		sweepInterval:    time.Minute,
		now:              func() time.Time { return time.Now().UTC() },
		logger:           log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
		timers:           make(map[string]*time.Timer),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterDeadline schedules a one-shot forced completion for the
// entry. Re-registering an entry already scheduled is a no-op.
func (s *Scheduler) RegisterDeadline(entryID string, firesAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.timers[entryID]; exists {
		return
	}

	delay := firesAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[entryID] = time.AfterFunc(delay, func() {
		s.fire(entryID, firesAt)
	})
}

// Cancel drops a pending deadline. Best-effort: a timer that already
// fired hits the ledger's repeat-transition guard and no-ops there.
func (s *Scheduler) Cancel(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[entryID]; ok {
		timer.Stop()
		delete(s.timers, entryID)
	}
}

// Run binds the completer, reconciles once, then sweeps periodically
// until the context is cancelled. It should be called in a goroutine.
func (s *Scheduler) Run(ctx context.Context, completer Completer) {
	s.mu.Lock()
	s.completer = completer
	s.mu.Unlock()

	defer func() {
		s.stopAll()
		close(s.shutdownComplete)
	}()

	if err := s.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Printf("startup reconcile error: %v", err)
	}

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Printf("sweep error: %v", err)
			}
		}
	}
}

// Wait blocks until Run has returned.
func (s *Scheduler) Wait() {
	<-s.shutdownComplete
}

// Reconcile sweeps all in-progress entries: overdue ones are forced to
// completed immediately, future ones get a timer if missing. This is
// the restart-recovery path for deadlines lost with process memory.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	active, err := s.ledger.ListActive(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, entry := range active {
		if entry.ExpectedEndAt.After(now) {
			s.RegisterDeadline(entry.ID, entry.ExpectedEndAt)
			continue
		}

		s.Cancel(entry.ID)
		completer := s.currentCompleter()
		if completer == nil {
			continue
		}
		if err := completer.ForceComplete(ctx, entry.ID, entry.ExpectedEndAt); err != nil {
			s.logger.Printf("reconcile force-complete %s: %v", entry.ID, err)
			continue
		}
		observability.RecordDeadlineReconciled()
	}
	return nil
}

func (s *Scheduler) fire(entryID string, firesAt time.Time) {
	s.mu.Lock()
	delete(s.timers, entryID)
	completer := s.completer
	s.mu.Unlock()

	if completer == nil {
		// Not running yet; the first sweep picks the entry up.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	if err := completer.ForceComplete(ctx, entryID, firesAt); err != nil {
		s.logger.Printf("force-complete %s: %v", entryID, err)
	}
}

func (s *Scheduler) currentCompleter() Completer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completer
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
