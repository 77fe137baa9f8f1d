package domain

import (
	"net/url"
	"strings"
	"time"
)

// Bounds for rule insertion settings.
const (
	MinInsertions = 1
	MaxInsertions = 10
	MinPriority   = 1
	MaxPriority   = 100
)

// Rule is a user-owned keyword → affiliate link policy.
type Rule struct {
	ID              string            `json:"id" db:"id"`
	OwnerID         string            `json:"owner_id" db:"owner_id"`
	SiteID          *string           `json:"site_id" db:"site_id"`
	Keyword         string            `json:"keyword" db:"keyword"`
	AffiliateURL    string            `json:"affiliate_url" db:"affiliate_url"`
	AnchorText      string            `json:"anchor_text,omitempty" db:"anchor_text"`
	LinkTitle       string            `json:"link_title,omitempty" db:"link_title"`
	TargetAttribute string            `json:"target_attribute,omitempty" db:"target_attribute"`
	RelAttribute    string            `json:"rel_attribute,omitempty" db:"rel_attribute"`
	CaseSensitive   bool              `json:"case_sensitive" db:"case_sensitive"`
	MatchWholeWords bool              `json:"match_whole_words" db:"match_whole_words"`
	MaxInsertions   int               `json:"max_insertions" db:"max_insertions"`
	Priority        int               `json:"priority" db:"priority"`
	IsActive        bool              `json:"is_active" db:"is_active"`
	UTMParams       map[string]string `json:"utm_params,omitempty" db:"utm_params"`

	// Usage (read-only, maintained by the insertion commit)
	UsageCount int        `json:"usage_count" db:"usage_count"`
	LastUsed   *time.Time `json:"last_used" db:"last_used"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveAnchorText returns the configured anchor text, falling back to
// the keyword verbatim.
func (r *Rule) EffectiveAnchorText() string {
	if r.AnchorText != "" {
		return r.AnchorText
	}
	return r.Keyword
}

// AppliesToSite reports whether the rule is in scope for content on siteID.
// A rule without a site applies everywhere.
func (r *Rule) AppliesToSite(siteID *string) bool {
	if r.SiteID == nil {
		return true
	}
	return siteID != nil && *r.SiteID == *siteID
}

// Validate checks the rule's invariants. It returns a *ValidationError
// describing the first violated field.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return NewValidationError("owner_id", "is required")
	}
	if strings.TrimSpace(r.Keyword) == "" {
		return NewValidationError("keyword", "must not be empty")
	}
	if err := validateLinkURL(r.AffiliateURL); err != nil {
		return err
	}
	if r.MaxInsertions < MinInsertions || r.MaxInsertions > MaxInsertions {
		return NewValidationError("max_insertions", "must be between 1 and 10")
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return NewValidationError("priority", "must be between 1 and 100")
	}
	for k := range r.UTMParams {
		if strings.TrimSpace(k) == "" {
			return NewValidationError("utm_params", "keys must not be empty")
		}
	}
	return nil
}

func validateLinkURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return NewValidationError("affiliate_url", "is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NewValidationError("affiliate_url", "is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("affiliate_url", "must use http or https")
	}
	if u.Host == "" {
		return NewValidationError("affiliate_url", "must include a host")
	}
	return nil
}
