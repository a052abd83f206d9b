package repository

import (
	"context"
	"database/sql"

	"github.com/rafaaw/ActivityPro-sub000/models"
)

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var endedAt sql.NullTime
	var duration sql.NullInt64
	err := row.Scan(&sess.ID, &sess.ActivityID, &sess.StartedAt, &endedAt, &duration)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	sess.Duration = duration.Int64
	return &sess, nil
}

func (s *Store) GetOpenSession(ctx context.Context, activityID int) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, activity_id, started_at, ended_at, duration
		FROM sessions
		WHERE activity_id = $1 AND ended_at IS NULL
	`, activityID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, activityID int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, started_at, ended_at, duration
		FROM sessions
		WHERE activity_id = $1
		ORDER BY started_at
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
