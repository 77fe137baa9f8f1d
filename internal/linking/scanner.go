package linking

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ignite/autolink/internal/domain"
)

// Scan finds every occurrence of rule's keyword in text, left to right,
// skipping occurrences inside protected markup (see ProtectedSpans).
// It does not apply MaxInsertions.
func Scan(text string, rule domain.Rule) []domain.Candidate {
	return ScanExcluding(text, rule, ProtectedSpans(text))
}

// ScanExcluding is Scan with a caller-supplied exclusion set. Matches that
// intersect any excluded span are dropped.
func ScanExcluding(text string, rule domain.Rule, exclude []domain.Span) []domain.Candidate {
	spans := findAll(text, rule.Keyword, rule.CaseSensitive, rule.MatchWholeWords, exclude)
	if len(spans) == 0 {
		return nil
	}
	anchor := rule.EffectiveAnchorText()
	out := make([]domain.Candidate, 0, len(spans))
	for _, s := range spans {
		matched := text[s.Start:s.End]
		a := anchor
		if rule.AnchorText == "" {
			// Keyword-derived anchors keep the body's own casing so the
			// applier can verify them against the text.
			a = matched
		}
		out = append(out, domain.Candidate{
			RuleID:      rule.ID,
			Span:        s,
			MatchedText: matched,
			AnchorText:  a,
			Priority:    rule.Priority,
			Source:      domain.RuleMatched(rule.ID),
		})
	}
	return out
}

func findAll(text, keyword string, caseSensitive, wholeWord bool, exclude []domain.Span) []domain.Span {
	if keyword == "" || len(keyword) > len(text) && caseSensitive {
		return nil
	}
	var spans []domain.Span
	i := 0
	for i < len(text) {
		if caseSensitive {
			idx := strings.Index(text[i:], keyword)
			if idx < 0 {
				break
			}
			i += idx
		}
		n, ok := matchAt(text, i, keyword, caseSensitive)
		if ok {
			s := domain.Span{Start: i, End: i + n}
			if (!wholeWord || isWordBounded(text, s)) && !overlapsAny(exclude, s) {
				spans = append(spans, s)
				i += n
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return spans
}

// matchAt reports whether keyword occurs at byte offset i and returns the
// length of the match in text. Case-insensitive comparison folds each rune
// to lower case, so the returned length always refers to the original text.
func matchAt(text string, i int, keyword string, caseSensitive bool) (int, bool) {
	if caseSensitive {
		if strings.HasPrefix(text[i:], keyword) {
			return len(keyword), true
		}
		return 0, false
	}
	j := i
	for _, kr := range keyword {
		if j >= len(text) {
			return 0, false
		}
		tr, size := utf8.DecodeRuneInString(text[j:])
		if tr != kr && unicode.ToLower(tr) != unicode.ToLower(kr) {
			return 0, false
		}
		j += size
	}
	return j - i, true
}

func isWordBounded(text string, s domain.Span) bool {
	if s.Start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:s.Start])
		if isWordRune(r) {
			return false
		}
	}
	if s.End < len(text) {
		r, _ := utf8.DecodeRuneInString(text[s.End:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
