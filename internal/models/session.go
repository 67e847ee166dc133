package models

import "time"

// Session is a persisted bearer-token login session.
type Session struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
}
