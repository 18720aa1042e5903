// Package postgres provides the pgx-backed assembly ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/assembly/internal/domain"
)

const entryColumns = "entry_id, worker_id, unit_id, started_at, expected_end_at, ended_at, status"

// Repository implements domain.Ledger over Postgres. Check-then-write
// for a worker/unit pair runs under per-key advisory transaction
// locks; the partial unique indexes on active rows are the backstop.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a new in-progress entry, rejecting active-key conflicts.
func (r *Repository) Insert(ctx context.Context, entry domain.AssemblyEntry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('worker:' || $1)), pg_advisory_xact_lock(hashtext('unit:' || $2))`, entry.WorkerID, entry.UnitID); err != nil {
		return err
	}

	var busy bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM assemblies WHERE worker_id=$1 AND status='in-progress')`, entry.WorkerID).Scan(&busy); err != nil {
		return err
	}
	if busy {
		return domain.ErrWorkerBusy
	}
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM assemblies WHERE unit_id=$1 AND status='in-progress')`, entry.UnitID).Scan(&busy); err != nil {
		return err
	}
	if busy {
		return domain.ErrUnitBusy
	}

	const stmt = `INSERT INTO assemblies (entry_id, worker_id, unit_id, started_at, expected_end_at, ended_at, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.Exec(ctx, stmt,
		entry.ID,
		entry.WorkerID,
		entry.UnitID,
		entry.StartedAt,
		entry.ExpectedEndAt,
		entry.EndedAt,
		entry.Status,
	); err != nil {
		return mapConflict(err)
	}

	return tx.Commit(ctx)
}

// Get fetches an entry by id.
func (r *Repository) Get(ctx context.Context, entryID string) (*domain.AssemblyEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM assemblies WHERE entry_id=$1`, entryColumns)
	entry, err := scanEntry(r.pool.QueryRow(ctx, query, entryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// FindActiveByWorker returns the worker's in-progress entry, or nil.
func (r *Repository) FindActiveByWorker(ctx context.Context, workerID string) (*domain.AssemblyEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM assemblies WHERE worker_id=$1 AND status='in-progress'`, entryColumns)
	return r.findOne(ctx, query, workerID)
}

// FindActiveByUnit returns the unit's in-progress entry, or nil.
func (r *Repository) FindActiveByUnit(ctx context.Context, unitID string) (*domain.AssemblyEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM assemblies WHERE unit_id=$1 AND status='in-progress'`, entryColumns)
	return r.findOne(ctx, query, unitID)
}

// LatestByUnit returns the unit's most recently started entry, or nil.
func (r *Repository) LatestByUnit(ctx context.Context, unitID string) (*domain.AssemblyEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM assemblies WHERE unit_id=$1 ORDER BY started_at DESC, entry_id DESC LIMIT 1`, entryColumns)
	return r.findOne(ctx, query, unitID)
}

func (r *Repository) findOne(ctx context.Context, query string, arg interface{}) (*domain.AssemblyEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Complete applies the single legal transition. The conditional UPDATE
// makes the manual-end/deadline race lose cleanly: the second writer
// matches zero rows and gets ErrAlreadyCompleted.
func (r *Repository) Complete(ctx context.Context, entryID string, endedAt time.Time) (*domain.AssemblyEntry, error) {
	query := fmt.Sprintf(`UPDATE assemblies SET status='completed', ended_at=$2
        WHERE entry_id=$1 AND status='in-progress'
        RETURNING %s`, entryColumns)

	entry, err := scanEntry(r.pool.QueryRow(ctx, query, entryID, endedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, entryID); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrAlreadyCompleted
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListActive returns every in-progress entry.
func (r *Repository) ListActive(ctx context.Context) ([]domain.AssemblyEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM assemblies WHERE status='in-progress' ORDER BY started_at, entry_id`, entryColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Query returns entries matching the filter, ordered by start time.
func (r *Repository) Query(ctx context.Context, filter domain.QueryFilter) ([]domain.AssemblyEntry, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.StartFrom.IsZero() {
		args = append(args, filter.StartFrom)
		conditions = append(conditions, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if !filter.StartTo.IsZero() {
		args = append(args, filter.StartTo)
		conditions = append(conditions, fmt.Sprintf("started_at <= $%d", len(args)))
	}
	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		conditions = append(conditions, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	if filter.UnitID != "" {
		args = append(args, filter.UnitID)
		conditions = append(conditions, fmt.Sprintf("unit_id = $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM assemblies", entryColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at, entry_id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func scanEntry(row pgx.Row) (*domain.AssemblyEntry, error) {
	var entry domain.AssemblyEntry
	if err := row.Scan(&entry.ID, &entry.WorkerID, &entry.UnitID, &entry.StartedAt, &entry.ExpectedEndAt, &entry.EndedAt, &entry.Status); err != nil {
		return nil, err
	}
	return &entry, nil
}

func collectEntries(rows pgx.Rows) ([]domain.AssemblyEntry, error) {
	entries := make([]domain.AssemblyEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// mapConflict converts partial-unique-index violations into the busy
// errors the engine expects.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "assemblies_active_worker":
		return domain.ErrWorkerBusy
	case "assemblies_active_unit":
		return domain.ErrUnitBusy
	}
	return err
}
