package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rafaaw/ActivityPro-sub000/models"
)

func insertActivityLogTx(ctx context.Context, tx *sql.Tx, activityID int, entry *models.ActivityLogEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activity_log (activity_id, user_id, action, title, time_spent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, activityID, entry.UserID, entry.Action, entry.Title, entry.TimeSpent, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (s *Store) ListActivityLog(ctx context.Context, activityID int) ([]*models.ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, user_id, action, title, time_spent, created_at
		FROM activity_log
		WHERE activity_id = $1
		ORDER BY id
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ActivityLogEntry
	for rows.Next() {
		var entry models.ActivityLogEntry
		var timeSpent sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.ActivityID, &entry.UserID, &entry.Action,
			&entry.Title, &timeSpent, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if timeSpent.Valid {
			entry.TimeSpent = &timeSpent.Int64
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

func (s *Store) ListTimeAdjustments(ctx context.Context, activityID int) ([]*models.TimeAdjustmentLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, user_id, previous_time, new_time, reason, created_at
		FROM time_adjustments
		WHERE activity_id = $1
		ORDER BY id
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.TimeAdjustmentLogEntry
	for rows.Next() {
		var entry models.TimeAdjustmentLogEntry
		if err := rows.Scan(&entry.ID, &entry.ActivityID, &entry.UserID,
			&entry.PreviousTime, &entry.NewTime, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
