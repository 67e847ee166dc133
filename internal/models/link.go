package models

import "time"

// Link is one shortened URL. UserID is nil for guest-created links, which
// are keyed by the guest identifier (client IP) instead.
type Link struct {
	ID              int64     `json:"-"`
	OriginalURL     string    `json:"url"`
	ShortCode       string    `json:"code"`
	UserID          *int64    `json:"-"`
	GuestIdentifier string    `json:"-"`
	IsFavourite     bool      `json:"is_favourite"`
	Clicks          int64     `json:"clicks"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}
