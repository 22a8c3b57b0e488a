package models

import "time"

// User represents a user account.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password"`
	Admin        bool      `json:"admin" db:"admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
