package initializers

import (
	"context"
	"database/sql"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// InitDefaults is called once on application start to ensure the default
// sectors exist and, when ADMIN_USERNAME/ADMIN_PASSWORD are set, an
// administrator account to bootstrap from.
func InitDefaults(db *sql.DB) error {
	generalID, err := ensureSector(db, "general")
	if err != nil {
		return err
	}
	if _, err := ensureSector(db, "maintenance"); err != nil {
		return err
	}
	if _, err := ensureSector(db, "production"); err != nil {
		return err
	}

	adminUser := os.Getenv("ADMIN_USERNAME")
	adminPass := os.Getenv("ADMIN_PASSWORD")
	if adminUser == "" || adminPass == "" {
		return nil
	}
	return ensureAdmin(db, adminUser, adminPass, generalID)
}

func ensureSector(db *sql.DB, name string) (int, error) {
	var id int
	err := db.QueryRow(`SELECT id FROM sectors WHERE name = $1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		err = db.QueryRow(`INSERT INTO sectors (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	}
	return id, err
}

func ensureAdmin(db *sql.DB, username, password string, sectorID int) error {
	var id int
	err := db.QueryRow(`SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT INTO users (username, password_hash, sector_id, is_admin, created_at)
		VALUES ($1, $2, $3, TRUE, NOW())
	`, username, string(hash), sectorID)
	if err == nil {
		log.Println("Bootstrapped admin user:", username)
	}
	return err
}
