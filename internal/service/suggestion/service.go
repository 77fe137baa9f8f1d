package suggestion

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/linking"
	"github.com/ignite/autolink/internal/pkg/distlock"
	"github.com/ignite/autolink/internal/pkg/logger"
)

// Config tunes the lifecycle.
type Config struct {
	// RuleMatchedConfidence is stored on rule-matched suggestions.
	RuleMatchedConfidence int
	// MaxLinksPerContent caps candidates per scan pass. Zero means no cap.
	MaxLinksPerContent int
	// GenerateTimeout bounds one AI generation call.
	GenerateTimeout time.Duration
	// MaxContextChars truncates the plain-text context sent to the generator.
	MaxContextChars int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RuleMatchedConfidence: 75,
		MaxLinksPerContent:    20,
		GenerateTimeout:       30 * time.Second,
		MaxContextChars:       8000,
	}
}

// Deps are the collaborators of a Service. Generator and Archiver are
// optional.
type Deps struct {
	Rules     RuleReader
	Contents  ContentReader
	Committer Committer
	Locker    Locker
	Applier   *linking.Applier
	Generator Generator
	Archiver  Archiver
	Now       func() time.Time
}

// Service implements the suggestion lifecycle.
type Service struct {
	repo      Repository
	rules     RuleReader
	contents  ContentReader
	committer Committer
	locker    Locker
	applier   *linking.Applier
	generator Generator
	archiver  Archiver
	sanitizer *bluemonday.Policy
	cfg       Config
	now       func() time.Time
}

// NewService wires a lifecycle service. Zero-valued config fields take the
// DefaultConfig values.
func NewService(repo Repository, deps Deps, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.RuleMatchedConfidence <= 0 {
		cfg.RuleMatchedConfidence = def.RuleMatchedConfidence
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = def.GenerateTimeout
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = def.MaxContextChars
	}
	if deps.Applier == nil {
		deps.Applier = linking.NewApplier(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		repo:      repo,
		rules:     deps.Rules,
		contents:  deps.Contents,
		committer: deps.Committer,
		locker:    deps.Locker,
		applier:   deps.Applier,
		generator: deps.Generator,
		archiver:  deps.Archiver,
		sanitizer: bluemonday.StrictPolicy(),
		cfg:       cfg,
		now:       deps.Now,
	}
}

// Report summarises an insertion pass.
type Report struct {
	ContentID   string              `json:"content_id"`
	Accepted    []domain.Suggestion `json:"accepted"`
	Stale       []StaleItem         `json:"stale"`
	RevisionKey string              `json:"revision_key,omitempty"`
}

// StaleItem is a suggestion that could not be applied. It stays pending.
type StaleItem struct {
	SuggestionID string              `json:"suggestion_id"`
	Position     int                 `json:"position"`
	Reason       linking.StaleReason `json:"reason"`
}

// Get returns a single suggestion.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Suggestion, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// List returns suggestions matching the filter.
func (s *Service) List(ctx context.Context, ownerID string, f ListFilter) ([]domain.Suggestion, int, error) {
	if f.Status != "" && !domain.SuggestionStatus(f.Status).Valid() {
		return nil, 0, domain.NewValidationError("status", "must be pending, accepted or rejected")
	}
	return s.repo.List(ctx, ownerID, f)
}

// ListInsertions returns the audit log for a content item the owner can see.
func (s *Service) ListInsertions(ctx context.Context, ownerID, contentID string) ([]domain.InsertionRecord, error) {
	if _, err := s.contents.Get(ctx, ownerID, contentID); err != nil {
		return nil, err
	}
	return s.repo.ListInsertions(ctx, contentID)
}

// CreateFromCandidates persists one pending suggestion per candidate. The
// batch is all-or-nothing: a malformed candidate fails the whole call before
// anything is written.
func (s *Service) CreateFromCandidates(ctx context.Context, ownerID string, cands []domain.Candidate) ([]domain.Suggestion, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	now := s.now().UTC()
	out := make([]domain.Suggestion, 0, len(cands))
	for i, c := range cands {
		if err := validateCandidate(c); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		confidence := s.cfg.RuleMatchedConfidence
		reasoning := ""
		linkID := c.RuleID
		if c.Source.Kind == domain.SourceAISuggested {
			confidence = c.Source.Confidence
			reasoning = c.Source.Reasoning
		} else if c.Source.RuleID != "" {
			linkID = c.Source.RuleID
		}
		out = append(out, domain.Suggestion{
			ID:                  uuid.New().String(),
			OwnerID:             ownerID,
			ContentID:           c.ContentID,
			SuggestedLinkID:     linkID,
			SuggestedAnchorText: c.AnchorText,
			MatchedText:         c.MatchedText,
			SuggestedPosition:   c.Span.Start,
			Confidence:          domain.ClampConfidence(confidence),
			Reasoning:           reasoning,
			Status:              domain.SuggestionPending,
			InsertionType:       c.Source.InsertionType(),
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}
	if err := s.repo.CreateBatch(ctx, out); err != nil {
		return nil, fmt.Errorf("create suggestions: %w", err)
	}
	return out, nil
}

func validateCandidate(c domain.Candidate) error {
	switch {
	case c.ContentID == "":
		return domain.NewValidationError("content_id", "is required")
	case c.RuleID == "" && c.Source.RuleID == "":
		return domain.NewValidationError("rule_id", "is required")
	case c.AnchorText == "":
		return domain.NewValidationError("anchor_text", "must not be empty")
	case c.Span.Start < 0 || c.Span.End < c.Span.Start:
		return domain.NewValidationError("position", "must be a non-negative span")
	}
	return nil
}

// ScanContent runs the rule selector over a content item and stores the
// resulting candidates as pending suggestions. A rule only receives what is
// left of its MaxInsertions after the links already inserted into this
// content and its pending suggestions. Candidates that repeat a pending or
// rejected suggestion (same rule and position) are skipped.
func (s *Service) ScanContent(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error) {
	content, err := s.contents.Get(ctx, ownerID, contentID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListActive(ctx, ownerID, content.SiteID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	hist, err := s.loadHistory(ctx, ownerID, contentID)
	if err != nil {
		return nil, err
	}

	left := hist.quota(rules)
	cands := linking.Select(*content, withQuota(rules, left), linking.SelectOptions{MaxTotal: s.cfg.MaxLinksPerContent})
	cands = hist.fresh(cands, left)
	created, err := s.CreateFromCandidates(ctx, ownerID, cands)
	if err != nil {
		return nil, err
	}
	logger.Info("content scanned", "content_id", contentID, "rules", len(rules), "suggestions", len(created))
	return created, nil
}

// history is what a content item already holds for each rule.
type history struct {
	// used counts inserted links plus pending suggestions per rule.
	used map[string]int
	// open marks pending and rejected suggestions by rule and position.
	open map[openKey]bool
}

type openKey struct {
	link string
	pos  int
}

func (s *Service) loadHistory(ctx context.Context, ownerID, contentID string) (*history, error) {
	open, err := s.repo.ListOpen(ctx, ownerID, contentID)
	if err != nil {
		return nil, fmt.Errorf("load open suggestions: %w", err)
	}
	records, err := s.repo.ListInsertions(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load insertions: %w", err)
	}
	h := &history{used: make(map[string]int), open: make(map[openKey]bool, len(open))}
	for _, rec := range records {
		h.used[rec.LinkID]++
	}
	for _, o := range open {
		h.open[openKey{o.SuggestedLinkID, o.SuggestedPosition}] = true
		if o.Status == domain.SuggestionPending {
			h.used[o.SuggestedLinkID]++
		}
	}
	return h, nil
}

// quota returns how many more insertions each rule may receive.
func (h *history) quota(rules []domain.Rule) map[string]int {
	left := make(map[string]int, len(rules))
	for _, r := range rules {
		limit := r.MaxInsertions
		if limit < domain.MinInsertions {
			limit = domain.MinInsertions
		}
		left[r.ID] = limit - h.used[r.ID]
	}
	return left
}

// fresh keeps candidates that repeat neither an open suggestion nor an
// earlier candidate, while their rule still has quota left. left is
// decremented for every kept candidate.
func (h *history) fresh(cands []domain.Candidate, left map[string]int) []domain.Candidate {
	out := cands[:0:0]
	for _, c := range cands {
		k := openKey{c.RuleID, c.Span.Start}
		if h.open[k] || left[c.RuleID] <= 0 {
			continue
		}
		h.open[k] = true
		left[c.RuleID]--
		out = append(out, c)
	}
	return out
}

// withQuota drops rules with nothing left and lowers MaxInsertions on the
// rest. The input slice is not modified.
func withQuota(rules []domain.Rule, left map[string]int) []domain.Rule {
	out := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		if left[r.ID] <= 0 {
			continue
		}
		r.MaxInsertions = left[r.ID]
		out = append(out, r)
	}
	return out
}

// Generate asks the AI generator for suggestions on a content item. The
// call runs under the configured timeout; when it expires
// ErrGenerationTimeout is returned and nothing is persisted. Generated
// items referencing unknown rules are dropped, and drifted positions are
// moved to the nearest unprotected occurrence of the anchor text. Rules
// whose per-content quota is spent are not offered to the generator.
func (s *Service) Generate(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error) {
	if s.generator == nil {
		return nil, ErrNoGenerator
	}
	content, err := s.contents.Get(ctx, ownerID, contentID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListActive(ctx, ownerID, content.SiteID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	hist, err := s.loadHistory(ctx, ownerID, contentID)
	if err != nil {
		return nil, err
	}
	left := hist.quota(rules)
	rules = linking.OrderRules(content.SiteID, withQuota(rules, left))
	if len(rules) == 0 {
		return nil, nil
	}

	byID := make(map[string]domain.Rule, len(rules))
	refs := make([]KeywordRef, 0, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
		refs = append(refs, KeywordRef{Keyword: r.Keyword, LinkID: r.ID})
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()
	generated, err := s.generator.Generate(gctx, GenerateRequest{
		ContentID: contentID,
		Keywords:  refs,
		Context:   s.plainContext(content.Body),
	})
	if errors.Is(gctx.Err(), context.DeadlineExceeded) || (err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)) {
		logger.Warn("suggestion generation timed out", "content_id", contentID, "timeout", s.cfg.GenerateTimeout)
		return nil, ErrGenerationTimeout
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}

	var cands []domain.Candidate
	dropped := 0
	for _, g := range generated {
		rule, ok := byID[g.LinkID]
		anchor := strings.TrimSpace(g.AnchorText)
		if !ok || anchor == "" {
			dropped++
			continue
		}
		pos, ok := linking.Realign(content.Body, anchor, g.Position)
		if !ok {
			dropped++
			continue
		}
		cands = append(cands, domain.Candidate{
			RuleID:      rule.ID,
			ContentID:   contentID,
			Span:        domain.Span{Start: pos, End: pos + len(anchor)},
			MatchedText: anchor,
			AnchorText:  anchor,
			Priority:    rule.Priority,
			Source:      domain.AISuggested(g.Confidence, s.plainText(g.Reasoning)),
		})
	}
	if dropped > 0 {
		logger.Warn("dropped generated suggestions", "content_id", contentID, "dropped", dropped)
	}

	return s.CreateFromCandidates(ctx, ownerID, hist.fresh(cands, left))
}

// plainText strips all markup. The policy escapes what it keeps, so the
// result is unescaped again to stay comparable with body text.
func (s *Service) plainText(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(v)))
}

// plainContext strips markup and truncates to MaxContextChars runes.
func (s *Service) plainContext(body string) string {
	text := s.plainText(body)
	if utf8.RuneCountInString(text) <= s.cfg.MaxContextChars {
		return text
	}
	n := 0
	for i := range text {
		if n == s.cfg.MaxContextChars {
			return text[:i]
		}
		n++
	}
	return text
}

// Accept approves a pending suggestion and inserts its link. If the
// suggestion no longer matches the body it stays pending and the returned
// error wraps ErrStale; the report lists it.
func (s *Service) Accept(ctx context.Context, ownerID, id string, feedback *string) (*Report, error) {
	sug, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != domain.SuggestionPending {
		return nil, fmt.Errorf("accept %s suggestion: %w", sug.Status, ErrInvalidState)
	}

	report, err := s.applyLocked(ctx, ownerID, sug.ContentID, []domain.Suggestion{*sug}, map[string]*string{id: feedback})
	if err != nil {
		return nil, err
	}
	if len(report.Stale) > 0 {
		return report, fmt.Errorf("suggestion %s %s: %w", id, report.Stale[0].Reason, ErrStale)
	}
	return report, nil
}

// BulkAccept applies every pending suggestion of a content item in one
// applier pass. Stale items are reported and left pending.
func (s *Service) BulkAccept(ctx context.Context, ownerID, contentID string) (*Report, error) {
	if _, err := s.contents.Get(ctx, ownerID, contentID); err != nil {
		return nil, err
	}
	pending, err := s.repo.ListPending(ctx, ownerID, contentID)
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}
	if len(pending) == 0 {
		return &Report{ContentID: contentID}, nil
	}
	return s.applyLocked(ctx, ownerID, contentID, pending, nil)
}

// Reject marks a pending suggestion rejected. Content is not touched.
func (s *Service) Reject(ctx context.Context, ownerID, id string, feedback *string) (*domain.Suggestion, error) {
	sug, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != domain.SuggestionPending {
		return nil, fmt.Errorf("reject %s suggestion: %w", sug.Status, ErrInvalidState)
	}
	now := s.now().UTC()
	err = s.repo.Transition(ctx, ownerID, id, Transition{
		From: domain.SuggestionPending, To: domain.SuggestionRejected,
		Feedback: feedback, ReviewedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	sug.Status = domain.SuggestionRejected
	sug.UserFeedback = feedback
	sug.ReviewedAt = &now
	sug.UpdatedAt = now
	return sug, nil
}

// Reopen returns a reviewed suggestion to pending. Reopening an accepted
// suggestion does not remove its link; accepting it again reports it stale.
func (s *Service) Reopen(ctx context.Context, ownerID, id string) (*domain.Suggestion, error) {
	sug, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !sug.IsTerminal() {
		return nil, fmt.Errorf("reopen %s suggestion: %w", sug.Status, ErrInvalidState)
	}
	err = s.repo.Transition(ctx, ownerID, id, Transition{From: sug.Status, To: domain.SuggestionPending})
	if err != nil {
		return nil, err
	}
	sug.Status = domain.SuggestionPending
	sug.UserFeedback = nil
	sug.ReviewedAt = nil
	sug.UpdatedAt = s.now().UTC()
	return sug, nil
}

func (s *Service) applyLocked(ctx context.Context, ownerID, contentID string, sugs []domain.Suggestion, feedback map[string]*string) (*Report, error) {
	var report *Report
	err := s.locker.WithLock(ctx, "content:"+contentID, func(ctx context.Context) error {
		var err error
		report, err = s.apply(ctx, ownerID, contentID, sugs, feedback)
		return err
	})
	if errors.Is(err, distlock.ErrNotAcquired) || errors.Is(err, distlock.ErrLockLost) {
		return nil, fmt.Errorf("content %s: %w", contentID, ErrContentLocked)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// apply runs one insertion pass. It must be called with the content lock
// held.
func (s *Service) apply(ctx context.Context, ownerID, contentID string, sugs []domain.Suggestion, feedback map[string]*string) (*Report, error) {
	content, err := s.contents.Get(ctx, ownerID, contentID)
	if err != nil {
		return nil, err
	}
	report := &Report{ContentID: contentID}

	byID := make(map[string]domain.Suggestion, len(sugs))
	rules := make(map[string]*domain.Rule)
	insertions := make([]linking.Insertion, 0, len(sugs))
	for _, sug := range sugs {
		rule, ok := rules[sug.SuggestedLinkID]
		if !ok {
			rule, err = s.rules.Get(ctx, ownerID, sug.SuggestedLinkID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("load rule %s: %w", sug.SuggestedLinkID, err)
			}
			rules[sug.SuggestedLinkID] = rule
		}
		if rule == nil {
			report.Stale = append(report.Stale, StaleItem{SuggestionID: sug.ID, Position: sug.SuggestedPosition, Reason: StaleRuleMissing})
			continue
		}
		byID[sug.ID] = sug
		insertions = append(insertions, linking.Insertion{
			Ref:         sug.ID,
			LinkID:      rule.ID,
			Position:    sug.SuggestedPosition,
			MatchedText: sug.ExpectedText(),
			AnchorText:  sug.SuggestedAnchorText,
			URL:         rule.AffiliateURL,
			UTMParams:   rule.UTMParams,
			Title:       rule.LinkTitle,
			Target:      rule.TargetAttribute,
			Rel:         rule.RelAttribute,
		})
	}

	res, err := s.applier.Apply(ctx, content.Body, insertions)
	if err != nil {
		return nil, err
	}
	for _, sk := range res.Skipped {
		report.Stale = append(report.Stale, StaleItem{SuggestionID: sk.Insertion.Ref, Position: sk.Insertion.Position, Reason: sk.Reason})
	}
	if !res.Changed() {
		return report, nil
	}

	if s.archiver != nil {
		key, err := s.archiver.Archive(ctx, contentID, content.Body)
		if err != nil {
			return nil, fmt.Errorf("archive revision: %w", err)
		}
		report.RevisionKey = key
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	commit := Commit{
		OwnerID:         ownerID,
		ContentID:       contentID,
		ExpectedVersion: content.Version,
		NewBody:         res.Body,
		Usage:           make(map[string]int),
		UsedAt:          now,
		Shifts:          res.Shifts,
	}
	for _, in := range res.Applied {
		sug := byID[in.Ref]
		sugID := sug.ID
		commit.Usage[in.LinkID]++
		commit.Records = append(commit.Records, domain.InsertionRecord{
			ID:              uuid.New().String(),
			ContentID:       contentID,
			LinkID:          in.LinkID,
			SuggestionID:    &sugID,
			AnchorText:      sug.SuggestedAnchorText,
			AppliedPosition: in.Position,
			InsertionType:   sug.InsertionType,
			CreatedAt:       now,
		})
		commit.Accepted = append(commit.Accepted, Review{SuggestionID: sug.ID, Feedback: feedback[sug.ID]})

		sug.Status = domain.SuggestionAccepted
		sug.UserFeedback = feedback[sug.ID]
		sug.ReviewedAt = &now
		sug.UpdatedAt = now
		report.Accepted = append(report.Accepted, sug)
	}

	if err := s.committer.CommitInsertions(ctx, commit); err != nil {
		return nil, fmt.Errorf("commit insertions: %w", err)
	}
	logger.Info("insertions applied",
		"content_id", contentID,
		"applied", len(report.Accepted),
		"stale", len(report.Stale),
	)
	return report, nil
}
