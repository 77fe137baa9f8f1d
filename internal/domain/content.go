package domain

import "time"

// Content is the slice of an externally owned article that the engine may
// touch: its text body. Version is bumped on every body write and guards
// the insertion commit against lost updates.
type Content struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	SiteID    *string   `json:"site_id" db:"site_id"`
	Body      string    `json:"body" db:"body"`
	Version   int64     `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContentRef identifies a content item without its body.
type ContentRef struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
