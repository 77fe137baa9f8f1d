package domain

import "time"

// SuggestionStatus enumerates the review states of a suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SuggestionStatus) Valid() bool {
	switch s {
	case SuggestionPending, SuggestionAccepted, SuggestionRejected:
		return true
	}
	return false
}

// Suggestion is a persisted, reviewable proposed insertion. MatchedText is
// the literal body text expected at SuggestedPosition; SuggestedAnchorText
// is what the link will display. They differ only for rules with a custom
// anchor text.
type Suggestion struct {
	ID                  string           `json:"id" db:"id"`
	OwnerID             string           `json:"owner_id" db:"owner_id"`
	ContentID           string           `json:"content_id" db:"content_id"`
	SuggestedLinkID     string           `json:"suggested_link_id" db:"suggested_link_id"`
	SuggestedAnchorText string           `json:"suggested_anchor_text" db:"suggested_anchor_text"`
	MatchedText         string           `json:"matched_text" db:"matched_text"`
	SuggestedPosition   int              `json:"suggested_position" db:"suggested_position"`
	Confidence          int              `json:"confidence" db:"confidence"`
	Reasoning           string           `json:"reasoning" db:"reasoning"`
	Status              SuggestionStatus `json:"status" db:"status"`
	UserFeedback        *string          `json:"user_feedback" db:"user_feedback"`
	InsertionType       InsertionType    `json:"insertion_type" db:"insertion_type"`
	ReviewedAt          *time.Time       `json:"reviewed_at" db:"reviewed_at"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once the suggestion has been reviewed.
func (s *Suggestion) IsTerminal() bool {
	return s.Status == SuggestionAccepted || s.Status == SuggestionRejected
}

// ExpectedText returns the body text the suggestion will replace.
func (s *Suggestion) ExpectedText() string {
	if s.MatchedText != "" {
		return s.MatchedText
	}
	return s.SuggestedAnchorText
}
