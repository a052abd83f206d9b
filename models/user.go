package models

import "time"

// Collaborator is a user who owns and acts on activities.
type Collaborator struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	SectorID     int       `json:"sectorId"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sector is the organizational grouping used to scope activity visibility
// and broadcast delivery.
type Sector struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
