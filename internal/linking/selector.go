package linking

import (
	"sort"

	"github.com/ignite/autolink/internal/domain"
)

// SelectOptions bounds a selection pass.
type SelectOptions struct {
	// MaxTotal caps the number of candidates across all rules. Zero means
	// no global cap.
	MaxTotal int
}

// Select runs one selection pass over content. Rules are filtered to the
// active ones in scope for the content's site, then visited in priority
// order (highest first, ties by ascending ID). Each rule may claim up to
// MaxInsertions non-overlapping spans that no earlier rule has claimed.
// The result is ordered by span start.
func Select(content domain.Content, rules []domain.Rule, opts SelectOptions) []domain.Candidate {
	ordered := OrderRules(content.SiteID, rules)
	if len(ordered) == 0 {
		return nil
	}

	protected := ProtectedSpans(content.Body)
	exclude := make([]domain.Span, len(protected))
	copy(exclude, protected)

	var out []domain.Candidate
	for _, rule := range ordered {
		if opts.MaxTotal > 0 && len(out) >= opts.MaxTotal {
			break
		}
		found := ScanExcluding(content.Body, rule, exclude)
		limit := rule.MaxInsertions
		if limit < domain.MinInsertions {
			limit = domain.MinInsertions
		}
		if len(found) > limit {
			found = found[:limit]
		}
		for _, c := range found {
			if opts.MaxTotal > 0 && len(out) >= opts.MaxTotal {
				break
			}
			c.ContentID = content.ID
			out = append(out, c)
			exclude = append(exclude, c.Span)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Span.Start < out[j].Span.Start })
	return out
}

// OrderRules returns the active rules in scope for siteID, sorted by
// priority descending and ID ascending. The input slice is not modified.
func OrderRules(siteID *string, rules []domain.Rule) []domain.Rule {
	out := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		if !r.IsActive || !r.AppliesToSite(siteID) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
