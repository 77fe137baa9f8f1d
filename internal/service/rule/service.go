package rule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/pkg/logger"
)

// Service implements rule business logic. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a rule service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns a single rule.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Rule, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// List returns rules matching the filter.
func (s *Service) List(ctx context.Context, ownerID string, f ListFilter) ([]domain.Rule, int, error) {
	return s.repo.List(ctx, ownerID, f)
}

// ListActive returns the rule snapshot used by a selection pass.
func (s *Service) ListActive(ctx context.Context, ownerID string, siteID *string) ([]domain.Rule, error) {
	return s.repo.ListActive(ctx, ownerID, siteID)
}

// Create validates and persists a new rule. Nothing is written when
// validation fails.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.Rule, error) {
	now := s.now().UTC()
	r := &domain.Rule{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		SiteID:          normalizeSite(input.SiteID),
		Keyword:         strings.TrimSpace(input.Keyword),
		AffiliateURL:    strings.TrimSpace(input.AffiliateURL),
		AnchorText:      input.AnchorText,
		LinkTitle:       input.LinkTitle,
		TargetAttribute: input.TargetAttribute,
		RelAttribute:    input.RelAttribute,
		CaseSensitive:   input.CaseSensitive,
		MatchWholeWords: true,
		MaxInsertions:   1,
		Priority:        50,
		IsActive:        true,
		UTMParams:       input.UTMParams,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.MatchWholeWords != nil {
		r.MatchWholeWords = *input.MatchWholeWords
	}
	if input.MaxInsertions != nil {
		r.MaxInsertions = *input.MaxInsertions
	}
	if input.Priority != nil {
		r.Priority = *input.Priority
	}
	if input.IsActive != nil {
		r.IsActive = *input.IsActive
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	logger.Info("rule created", "rule_id", r.ID, "owner_id", ownerID, "keyword", r.Keyword)
	return r, nil
}

// Update merges u into the stored rule, validates the result and saves it.
// Usage counters are preserved.
func (s *Service) Update(ctx context.Context, ownerID, id string, u UpdateFields) (*domain.Rule, error) {
	r, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if u.SiteID != nil {
		r.SiteID = normalizeSite(*u.SiteID)
	}
	if u.Keyword != nil {
		r.Keyword = strings.TrimSpace(*u.Keyword)
	}
	if u.AffiliateURL != nil {
		r.AffiliateURL = strings.TrimSpace(*u.AffiliateURL)
	}
	if u.AnchorText != nil {
		r.AnchorText = *u.AnchorText
	}
	if u.LinkTitle != nil {
		r.LinkTitle = *u.LinkTitle
	}
	if u.TargetAttribute != nil {
		r.TargetAttribute = *u.TargetAttribute
	}
	if u.RelAttribute != nil {
		r.RelAttribute = *u.RelAttribute
	}
	if u.CaseSensitive != nil {
		r.CaseSensitive = *u.CaseSensitive
	}
	if u.MatchWholeWords != nil {
		r.MatchWholeWords = *u.MatchWholeWords
	}
	if u.MaxInsertions != nil {
		r.MaxInsertions = *u.MaxInsertions
	}
	if u.Priority != nil {
		r.Priority = *u.Priority
	}
	if u.IsActive != nil {
		r.IsActive = *u.IsActive
	}
	if u.UTMParams != nil {
		r.UTMParams = *u.UTMParams
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	return r, nil
}

// SetActive toggles a rule on or off.
func (s *Service) SetActive(ctx context.Context, ownerID, id string, active bool) (*domain.Rule, error) {
	return s.Update(ctx, ownerID, id, UpdateFields{IsActive: &active})
}

// Delete removes a rule. Existing suggestions that reference it become
// unappliable and are reported stale on accept.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	logger.Info("rule deleted", "rule_id", id, "owner_id", ownerID)
	return nil
}

func normalizeSite(siteID *string) *string {
	if siteID == nil || strings.TrimSpace(*siteID) == "" {
		return nil
	}
	v := strings.TrimSpace(*siteID)
	return &v
}

// CreateInput holds the fields for creating a new rule. Optional numeric
// and boolean settings use pointers so defaults can be applied.
type CreateInput struct {
	SiteID          *string           `json:"site_id"`
	Keyword         string            `json:"keyword"`
	AffiliateURL    string            `json:"affiliate_url"`
	AnchorText      string            `json:"anchor_text"`
	LinkTitle       string            `json:"link_title"`
	TargetAttribute string            `json:"target_attribute"`
	RelAttribute    string            `json:"rel_attribute"`
	CaseSensitive   bool              `json:"case_sensitive"`
	MatchWholeWords *bool             `json:"match_whole_words"`
	MaxInsertions   *int              `json:"max_insertions"`
	Priority        *int              `json:"priority"`
	IsActive        *bool             `json:"is_active"`
	UTMParams       map[string]string `json:"utm_params"`
}
