package domain

// Span is a half-open byte range [Start, End) in a content body.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the span width.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// SourceKind tags where a candidate came from.
type SourceKind string

const (
	SourceRuleMatched SourceKind = "rule_matched"
	SourceAISuggested SourceKind = "ai_suggested"
)

// CandidateSource is a tagged variant: RuleMatched(ruleID) or
// AISuggested(confidence, reasoning). Use the constructors below.
type CandidateSource struct {
	Kind       SourceKind `json:"kind"`
	RuleID     string     `json:"rule_id,omitempty"`
	Confidence int        `json:"confidence,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// RuleMatched builds the source for a deterministic keyword match.
func RuleMatched(ruleID string) CandidateSource {
	return CandidateSource{Kind: SourceRuleMatched, RuleID: ruleID}
}

// AISuggested builds the source for a generator-produced candidate.
func AISuggested(confidence int, reasoning string) CandidateSource {
	return CandidateSource{Kind: SourceAISuggested, Confidence: ClampConfidence(confidence), Reasoning: reasoning}
}

// InsertionType maps the source onto the audit record's insertion type.
func (s CandidateSource) InsertionType() InsertionType {
	if s.Kind == SourceAISuggested {
		return InsertionAISuggested
	}
	return InsertionRuleMatched
}

// Candidate is an ephemeral, unpersisted match produced by a scan pass.
type Candidate struct {
	RuleID      string          `json:"rule_id"`
	ContentID   string          `json:"content_id"`
	Span        Span            `json:"span"`
	MatchedText string          `json:"matched_text"`
	AnchorText  string          `json:"anchor_text"`
	Priority    int             `json:"priority"`
	Source      CandidateSource `json:"source"`
}

// ClampConfidence forces a score into [0, 100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
