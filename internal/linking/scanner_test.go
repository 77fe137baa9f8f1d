package linking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/autolink/internal/domain"
)

func rule(id, keyword string, priority int) domain.Rule {
	return domain.Rule{
		ID:            id,
		OwnerID:       "owner-1",
		Keyword:       keyword,
		AffiliateURL:  "https://shop.example.com/" + id,
		MaxInsertions: 10,
		Priority:      priority,
		IsActive:      true,
	}
}

func TestScan_WholeWordBoundary(t *testing.T) {
	r := rule("r1", "cat", 50)

	r.MatchWholeWords = true
	assert.Empty(t, Scan("cats", r))

	r.MatchWholeWords = false
	got := Scan("cats", r)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Span{Start: 0, End: 3}, got[0].Span)
}

func TestScan_WholeWordPunctuation(t *testing.T) {
	r := rule("r1", "cat", 50)
	r.MatchWholeWords = true

	got := Scan("cat, (cat) cat_food bobcat cat.", r)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Span.Start)
	assert.Equal(t, 6, got[1].Span.Start)
	assert.Equal(t, 27, got[2].Span.Start)
}

func TestScan_CaseInsensitiveReportsOriginalOffsets(t *testing.T) {
	r := rule("r1", "Best", 50)

	got := Scan("the best laptop", r)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Span{Start: 4, End: 8}, got[0].Span)
	assert.Equal(t, "best", got[0].MatchedText)
	assert.Equal(t, "best", got[0].AnchorText)
}

func TestScan_CaseSensitive(t *testing.T) {
	r := rule("r1", "Best", 50)
	r.CaseSensitive = true

	assert.Empty(t, Scan("the best laptop", r))
	require.Len(t, Scan("the Best laptop", r), 1)
}

func TestScan_MultibyteOffsets(t *testing.T) {
	r := rule("r1", "café", 50)

	text := "Ünïcode café Café"
	got := Scan(text, r)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Span{Start: 10, End: 15}, got[0].Span)
	assert.Equal(t, domain.Span{Start: 16, End: 21}, got[1].Span)
	assert.Equal(t, "Café", text[got[1].Span.Start:got[1].Span.End])
}

func TestScan_SkipsExistingLinksAndMarkup(t *testing.T) {
	r := rule("r1", "laptop", 50)

	text := `<p>Buy a <a href="/x">laptop</a> or <img alt="laptop"> a laptop.</p>`
	got := Scan(text, r)
	require.Len(t, got, 1)
	assert.Equal(t, strings.LastIndex(text, "laptop"), got[0].Span.Start)
}

func TestScan_SkipsScriptAndComments(t *testing.T) {
	r := rule("r1", "laptop", 50)

	text := "<script>var laptop = 1;</script><!-- laptop -->laptop"
	got := Scan(text, r)
	require.Len(t, got, 1)
	assert.Equal(t, len(text)-len("laptop"), got[0].Span.Start)
}

func TestScan_DoesNotCap(t *testing.T) {
	r := rule("r1", "cat", 50)
	r.MaxInsertions = 1

	assert.Len(t, Scan("cat cat cat cat cat", r), 5)
}

func TestScan_CustomAnchorText(t *testing.T) {
	r := rule("r1", "laptop", 50)
	r.AnchorText = "our favourite laptop"

	got := Scan("a Laptop", r)
	require.Len(t, got, 1)
	assert.Equal(t, "Laptop", got[0].MatchedText)
	assert.Equal(t, "our favourite laptop", got[0].AnchorText)
	assert.Equal(t, domain.SourceRuleMatched, got[0].Source.Kind)
	assert.Equal(t, "r1", got[0].Source.RuleID)
}

func TestScan_EmptyKeyword(t *testing.T) {
	assert.Empty(t, Scan("anything", rule("r1", "", 50)))
}

func TestProtectedSpans(t *testing.T) {
	got := ProtectedSpans(`<p>Hi <a href="x">there</a></p>`)
	assert.Equal(t, []domain.Span{{Start: 0, End: 3}, {Start: 6, End: 31}}, got)

	assert.Nil(t, ProtectedSpans("plain text only"))
}

func TestProtectedSpans_UnclosedAnchor(t *testing.T) {
	text := `intro <a href="x">never closed laptop`
	got := ProtectedSpans(text)
	require.NotEmpty(t, got)
	assert.Equal(t, len(text), got[len(got)-1].End)
}

func TestProtectedSpans_Entities(t *testing.T) {
	r := rule("r1", "amp", 50)
	assert.Empty(t, Scan("fish &amp; chips", r))
}
