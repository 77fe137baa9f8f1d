package domain

import "time"

// InsertionType records how an applied link came to exist.
type InsertionType string

const (
	InsertionAISuggested InsertionType = "ai-suggested"
	InsertionManual      InsertionType = "manual"
	InsertionRuleMatched InsertionType = "rule-matched"
)

// InsertionRecord is the append-only audit entry written for every applied
// link. Records are never mutated.
type InsertionRecord struct {
	ID              string        `json:"id" db:"id"`
	ContentID       string        `json:"content_id" db:"content_id"`
	LinkID          string        `json:"link_id" db:"link_id"`
	SuggestionID    *string       `json:"suggestion_id" db:"suggestion_id"`
	AnchorText      string        `json:"anchor_text" db:"anchor_text"`
	AppliedPosition int           `json:"applied_position" db:"applied_position"`
	InsertionType   InsertionType `json:"insertion_type" db:"insertion_type"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}
