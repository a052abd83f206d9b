package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/rafaaw/ActivityPro-sub000/engine"
	"github.com/rafaaw/ActivityPro-sub000/models"
)

// Constraint names from migrations. The one-in-progress-per-owner and
// one-open-session-per-activity invariants live in the database as partial
// unique indexes so they hold across processes.
const (
	ownerActiveConstraint = "activities_owner_active_idx"
	openSessionConstraint = "sessions_open_idx"
)

// Store is the Postgres implementation of engine.Store. Each Apply* method
// is a single transaction; the status and total compare-and-swaps are plain
// UPDATE ... WHERE predicates, so concurrent writers serialize on the row.
type Store struct {
	db *sql.DB
}

var _ engine.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const activityColumns = `id, title, kind, priority, plant, status, total_time, owner_id, sector_id,
	started_at, paused_at, completed_at, cancelled_at,
	cancel_reason, completion_notes, evidence_id, created_at, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*models.Activity, error) {
	var a models.Activity
	var plant, cancelReason, completionNotes, evidenceID sql.NullString
	var startedAt, pausedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.Title, &a.Kind, &a.Priority, &plant, &a.Status, &a.TotalTime,
		&a.OwnerID, &a.SectorID,
		&startedAt, &pausedAt, &completedAt, &cancelledAt,
		&cancelReason, &completionNotes, &evidenceID,
		&a.CreatedAt, &a.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Plant = plant.String
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	if pausedAt.Valid {
		a.PausedAt = &pausedAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		a.CancelledAt = &cancelledAt.Time
	}
	if cancelReason.Valid {
		a.CancelReason = &cancelReason.String
	}
	if completionNotes.Valid {
		a.CompletionNotes = &completionNotes.String
	}
	if evidenceID.Valid {
		a.EvidenceID = &evidenceID.String
	}
	return &a, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == constraint
	}
	return false
}

func (s *Store) CreateActivity(ctx context.Context, a *models.Activity, subtasks []string, openSessionAt *time.Time, log *models.ActivityLogEntry) (*models.Activity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO activities (title, kind, priority, plant, status, total_time, owner_id, sector_id,
			started_at, paused_at, completed_at, cancelled_at,
			cancel_reason, completion_notes, evidence_id, created_at, modified_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING id
	`, a.Title, a.Kind, a.Priority, a.Plant, a.Status, a.TotalTime, a.OwnerID, a.SectorID,
		a.StartedAt, a.PausedAt, a.CompletedAt, a.CancelledAt,
		a.CancelReason, a.CompletionNotes, a.EvidenceID, a.CreatedAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, ownerActiveConstraint) {
			return nil, s.ownerBusy(ctx, a.OwnerID)
		}
		return nil, fmt.Errorf("insert activity: %w", err)
	}

	for _, title := range subtasks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subtasks (activity_id, title, completed, created_at, modified_at)
			VALUES ($1, $2, FALSE, $3, $3)
		`, id, title, a.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert subtask: %w", err)
		}
	}
	if openSessionAt != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (activity_id, started_at) VALUES ($1, $2)
		`, id, *openSessionAt); err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
	}
	if log != nil {
		if err := insertActivityLogTx(ctx, tx, id, log); err != nil {
			return nil, err
		}
	}

	created, err := scanActivity(tx.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// ownerBusy resolves the conflicting in-progress activity after a guard
// violation so callers can report it.
func (s *Store) ownerBusy(ctx context.Context, ownerID int) error {
	var activeID int
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM activities WHERE owner_id = $1 AND status = $2
	`, ownerID, models.StatusInProgress).Scan(&activeID)
	if err != nil {
		// The conflicting activity finished between the violation and this
		// read; the caller should simply retry.
		return &engine.OwnerBusyError{OwnerID: ownerID}
	}
	return &engine.OwnerBusyError{OwnerID: ownerID, ActiveID: activeID}
}

func (s *Store) GetActivity(ctx context.Context, id int) (*models.Activity, error) {
	a, err := scanActivity(s.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) listActivities(ctx context.Context, where string, args ...any) ([]*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListByOwner(ctx context.Context, ownerID int) ([]*models.Activity, error) {
	return s.listActivities(ctx, `owner_id = $1`, ownerID)
}

func (s *Store) ListBySector(ctx context.Context, sectorID int) ([]*models.Activity, error) {
	return s.listActivities(ctx, `sector_id = $1`, sectorID)
}

func (s *Store) ListAll(ctx context.Context) ([]*models.Activity, error) {
	return s.listActivities(ctx, "")
}

func (s *Store) UpdateActivityDetails(ctx context.Context, id int, title string, priority models.Priority, plant string) (*models.Activity, error) {
	a, err := scanActivity(s.db.QueryRowContext(ctx, `
		UPDATE activities
		SET title = $1, priority = $2, plant = NULLIF($3, ''), modified_at = NOW()
		WHERE id = $4 AND status IN ($5, $6, $7)
		RETURNING `+activityColumns+`
	`, title, priority, plant, id,
		models.StatusNext, models.StatusInProgress, models.StatusPaused))
	if err == sql.ErrNoRows {
		if _, gerr := s.GetActivity(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, engine.ErrStatusChanged
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) SetActivityEvidence(ctx context.Context, id int, evidenceID string) (*models.Activity, error) {
	a, err := scanActivity(s.db.QueryRowContext(ctx, `
		UPDATE activities SET evidence_id = $1, modified_at = NOW()
		WHERE id = $2
		RETURNING `+activityColumns+`
	`, evidenceID, id))
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) ApplyTransition(ctx context.Context, plan *engine.TransitionPlan) (*models.Activity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sets := []string{"status = $1", "modified_at = NOW()"}
	args := []any{plan.Patch.Status}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	p := plan.Patch
	if p.TotalTime != nil {
		add("total_time", *p.TotalTime)
	}
	if p.StartedAt != nil {
		add("started_at", *p.StartedAt)
	}
	if p.PausedAt != nil {
		add("paused_at", *p.PausedAt)
	}
	if p.CompletedAt != nil {
		add("completed_at", *p.CompletedAt)
	}
	if p.CancelledAt != nil {
		add("cancelled_at", *p.CancelledAt)
	}
	if p.CancelReason != nil {
		add("cancel_reason", *p.CancelReason)
	}
	if p.CompletionNotes != nil {
		add("completion_notes", *p.CompletionNotes)
	}
	if p.EvidenceID != nil {
		add("evidence_id", *p.EvidenceID)
	}
	args = append(args, plan.ActivityID, plan.From)
	where := fmt.Sprintf("id = $%d AND status = $%d", len(args)-1, len(args))
	if plan.RequireSubtasksDone {
		// Completion gate, atomic with the status compare-and-swap.
		where += fmt.Sprintf(
			" AND NOT EXISTS (SELECT 1 FROM subtasks WHERE activity_id = $%d AND NOT completed)",
			len(args)-1)
	}
	query := fmt.Sprintf(`UPDATE activities SET %s WHERE %s RETURNING `+activityColumns,
		strings.Join(sets, ", "), where)

	updated, err := scanActivity(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		cur, gerr := s.GetActivity(ctx, plan.ActivityID)
		if gerr != nil {
			return nil, gerr
		}
		if plan.RequireSubtasksDone && cur.Status == plan.From {
			return nil, engine.ErrSubtasksIncomplete
		}
		return nil, engine.ErrStatusChanged
	}
	if err != nil {
		if isUniqueViolation(err, ownerActiveConstraint) {
			return nil, s.ownerBusy(ctx, plan.OwnerID)
		}
		return nil, fmt.Errorf("update activity: %w", err)
	}

	if plan.OpenSessionAt != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (activity_id, started_at) VALUES ($1, $2)
		`, plan.ActivityID, *plan.OpenSessionAt); err != nil {
			if isUniqueViolation(err, openSessionConstraint) {
				return nil, engine.ErrSessionAlreadyOpen
			}
			return nil, fmt.Errorf("open session: %w", err)
		}
	}
	if plan.CloseSessionAt != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET ended_at = $1,
			    duration = EXTRACT(EPOCH FROM ($1 - started_at))::bigint
			WHERE activity_id = $2 AND ended_at IS NULL
		`, *plan.CloseSessionAt, plan.ActivityID)
		if err != nil {
			return nil, fmt.Errorf("close session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, engine.ErrNoOpenSession
		}
	}
	if plan.Log != nil {
		if err := insertActivityLogTx(ctx, tx, plan.ActivityID, plan.Log); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err, ownerActiveConstraint) {
			return nil, s.ownerBusy(ctx, plan.OwnerID)
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) ApplyAdjustment(ctx context.Context, entry *models.TimeAdjustmentLogEntry) (*models.Activity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	updated, err := scanActivity(tx.QueryRowContext(ctx, `
		UPDATE activities SET total_time = $1, modified_at = NOW()
		WHERE id = $2 AND total_time = $3
		RETURNING `+activityColumns,
		entry.NewTime, entry.ActivityID, entry.PreviousTime))
	if err == sql.ErrNoRows {
		if _, gerr := s.GetActivity(ctx, entry.ActivityID); gerr != nil {
			return nil, gerr
		}
		return nil, engine.ErrStaleTotal
	}
	if err != nil {
		return nil, fmt.Errorf("update total: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO time_adjustments (activity_id, user_id, previous_time, new_time, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ActivityID, entry.UserID, entry.PreviousTime, entry.NewTime, entry.Reason, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert adjustment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}
