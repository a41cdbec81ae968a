package models

import "time"

// Lesson is a tracked portal activity belonging to exactly one user.
type Lesson struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	URL           string     `db:"url" json:"url"`
	Name          string     `db:"name" json:"name"`
	Enabled       bool       `db:"enabled" json:"enabled"`
	LastCheckedAt *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	LastMarkedAt  *time.Time `db:"last_marked_at" json:"last_marked_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Label returns the display name used in notifications.
func (l *Lesson) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return l.URL
}
