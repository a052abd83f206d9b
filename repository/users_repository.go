package repository

import (
	"context"
	"database/sql"

	"golang.org/x/crypto/bcrypt"

	"github.com/rafaaw/ActivityPro-sub000/models"
)

type UsersRepository struct {
	db *sql.DB
}

func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

func (r *UsersRepository) CreateUser(ctx context.Context, username, password string, sectorID int, isAdmin bool) (*models.Collaborator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	var u models.Collaborator
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, sector_id, is_admin, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, username, sector_id, is_admin, created_at
	`, username, string(hash), sectorID, isAdmin).Scan(
		&u.ID, &u.Username, &u.SectorID, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepository) GetUserByUsername(ctx context.Context, username string) (*models.Collaborator, error) {
	var u models.Collaborator
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, sector_id, is_admin, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.SectorID, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepository) GetUserByID(ctx context.Context, id int) (*models.Collaborator, error) {
	var u models.Collaborator
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, sector_id, is_admin, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.SectorID, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepository) GetSectorByID(ctx context.Context, id int) (*models.Sector, error) {
	var sec models.Sector
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM sectors WHERE id = $1
	`, id).Scan(&sec.ID, &sec.Name, &sec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

func (r *UsersRepository) ListSectors(ctx context.Context) ([]*models.Sector, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM sectors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Sector
	for rows.Next() {
		var sec models.Sector
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &sec)
	}
	return out, rows.Err()
}
