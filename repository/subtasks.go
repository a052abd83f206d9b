package repository

import (
	"context"
	"database/sql"

	"github.com/rafaaw/ActivityPro-sub000/engine"
	"github.com/rafaaw/ActivityPro-sub000/models"
)

func scanSubtask(row rowScanner) (*models.Subtask, error) {
	var st models.Subtask
	err := row.Scan(&st.ID, &st.ActivityID, &st.Title, &st.Completed, &st.CreatedAt, &st.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetSubtask(ctx context.Context, id int) (*models.Subtask, error) {
	st, err := scanSubtask(s.db.QueryRowContext(ctx, `
		SELECT id, activity_id, title, completed, created_at, modified_at
		FROM subtasks WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) ListSubtasks(ctx context.Context, activityID int) ([]*models.Subtask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, title, completed, created_at, modified_at
		FROM subtasks WHERE activity_id = $1
		ORDER BY id
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Subtask
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) SetSubtaskCompleted(ctx context.Context, id int, completed bool) (*models.Subtask, error) {
	st, err := scanSubtask(s.db.QueryRowContext(ctx, `
		UPDATE subtasks SET completed = $1, modified_at = NOW()
		WHERE id = $2 AND EXISTS (
			SELECT 1 FROM activities a
			WHERE a.id = subtasks.activity_id AND a.status IN ($3, $4, $5)
		)
		RETURNING id, activity_id, title, completed, created_at, modified_at
	`, completed, id, models.StatusNext, models.StatusInProgress, models.StatusPaused))
	if err == sql.ErrNoRows {
		if _, gerr := s.GetSubtask(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, engine.ErrStatusChanged
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
