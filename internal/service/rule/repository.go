package rule

import (
	"context"

	"github.com/ignite/autolink/internal/domain"
)

// Repository defines the data access contract for rules.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single rule. Returns domain.ErrNotFound if it doesn't exist.
	Get(ctx context.Context, ownerID, id string) (*domain.Rule, error)

	// List returns rules matching the filter, ordered by priority DESC, id ASC.
	List(ctx context.Context, ownerID string, filter ListFilter) ([]domain.Rule, int, error)

	// ListActive returns the active rules for an owner that apply to siteID
	// (site-less rules included). A nil siteID returns only site-less rules.
	ListActive(ctx context.Context, ownerID string, siteID *string) ([]domain.Rule, error)

	// Create inserts a new rule.
	Create(ctx context.Context, r *domain.Rule) error

	// Update replaces the mutable fields of an existing rule.
	Update(ctx context.Context, r *domain.Rule) error

	// Delete removes a rule.
	Delete(ctx context.Context, ownerID, id string) error
}

// ListFilter controls pagination and filtering for rule lists.
type ListFilter struct {
	SiteID     *string
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

// UpdateFields holds the mutable fields for a rule update.
// Nil fields are not applied.
type UpdateFields struct {
	SiteID          **string           `json:"-"`
	Keyword         *string            `json:"keyword"`
	AffiliateURL    *string            `json:"affiliate_url"`
	AnchorText      *string            `json:"anchor_text"`
	LinkTitle       *string            `json:"link_title"`
	TargetAttribute *string            `json:"target_attribute"`
	RelAttribute    *string            `json:"rel_attribute"`
	CaseSensitive   *bool              `json:"case_sensitive"`
	MatchWholeWords *bool              `json:"match_whole_words"`
	MaxInsertions   *int               `json:"max_insertions"`
	Priority        *int               `json:"priority"`
	IsActive        *bool              `json:"is_active"`
	UTMParams       *map[string]string `json:"utm_params"`
}
