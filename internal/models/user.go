package models

import "time"

// User is an account created through Google sign-in.
type User struct {
	ID        int64     `json:"id"`
	GoogleID  string    `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
