package linking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/autolink/internal/domain"
)

// Insertion is one link to place into a body.
type Insertion struct {
	// Ref identifies the insertion to the caller (usually a suggestion ID).
	Ref    string
	LinkID string

	Position int
	// MatchedText is the literal text expected at Position. Empty means
	// AnchorText.
	MatchedText string
	AnchorText  string

	URL       string
	UTMParams map[string]string
	Title     string
	Target    string
	Rel       string
}

func (in Insertion) expected() string {
	if in.MatchedText != "" {
		return in.MatchedText
	}
	return in.AnchorText
}

// StaleReason explains why an insertion was skipped.
type StaleReason string

const (
	StaleDrifted    StaleReason = "drifted"
	StaleLinked     StaleReason = "already_linked"
	StaleOverlap    StaleReason = "overlap"
	StaleOutOfRange StaleReason = "out_of_range"
)

// Skipped is an insertion the applier refused. It unwraps to
// domain.ErrStaleSuggestion.
type Skipped struct {
	Insertion Insertion   `json:"insertion"`
	Reason    StaleReason `json:"reason"`
}

func (s Skipped) Error() string {
	return fmt.Sprintf("insertion %s at %d: %s", s.Insertion.Ref, s.Insertion.Position, s.Reason)
}

func (s Skipped) Unwrap() error { return domain.ErrStaleSuggestion }

// Shift records how much the body grew at one applied insertion. At is the
// end of the replaced text in the original body; every offset at or after
// At moves right by Delta.
type Shift struct {
	At    int
	Delta int
}

// ApplyResult is the outcome of one Apply call.
type ApplyResult struct {
	Body    string
	Applied []Insertion
	Skipped []Skipped
	// Shifts is ordered by At, one per applied insertion.
	Shifts []Shift
}

// ShiftPosition maps an offset in the original body to the rewritten one.
func (r *ApplyResult) ShiftPosition(pos int) int {
	out := pos
	for _, sh := range r.Shifts {
		if sh.At > pos {
			break
		}
		out += sh.Delta
	}
	return out
}

// Changed reports whether any insertion was applied.
func (r *ApplyResult) Changed() bool { return len(r.Applied) > 0 }

// Applier rewrites bodies with link constructs.
type Applier struct {
	renderer LinkRenderer
}

// NewApplier creates an applier. A nil renderer selects the default Liquid
// template.
func NewApplier(renderer LinkRenderer) *Applier {
	if renderer == nil {
		renderer = MustTemplateRenderer("")
	}
	return &Applier{renderer: renderer}
}

// Apply places every insertion that still matches body and reports the rest
// as skipped. Insertions are sorted by position and written right to left
// so earlier offsets stay valid while later ones are edited. ctx is checked
// before each insertion; on cancellation no result is returned and the
// caller must treat the body as untouched.
func (a *Applier) Apply(ctx context.Context, body string, insertions []Insertion) (*ApplyResult, error) {
	sorted := make([]Insertion, len(insertions))
	copy(sorted, insertions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	res := &ApplyResult{Body: body}
	protected := ProtectedSpans(body)
	valid := make([]Insertion, 0, len(sorted))
	lastEnd := -1
	for _, in := range sorted {
		want := in.expected()
		span := domain.Span{Start: in.Position, End: in.Position + len(want)}
		switch {
		case want == "" || in.Position < 0 || span.End > len(body):
			res.Skipped = append(res.Skipped, Skipped{Insertion: in, Reason: StaleOutOfRange})
		case body[span.Start:span.End] != want:
			res.Skipped = append(res.Skipped, Skipped{Insertion: in, Reason: StaleDrifted})
		case overlapsAny(protected, span):
			res.Skipped = append(res.Skipped, Skipped{Insertion: in, Reason: StaleLinked})
		case span.Start < lastEnd:
			res.Skipped = append(res.Skipped, Skipped{Insertion: in, Reason: StaleOverlap})
		default:
			valid = append(valid, in)
			lastEnd = span.End
		}
	}
	if len(valid) == 0 {
		return res, nil
	}

	// Walk right to left, collecting the rewritten pieces in reverse.
	pieces := make([]string, 0, 2*len(valid)+1)
	shifts := make([]Shift, len(valid))
	tail := len(body)
	for i := len(valid) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in := valid[i]
		end := in.Position + len(in.expected())
		link, err := a.render(in)
		if err != nil {
			return nil, fmt.Errorf("insertion %s: %w", in.Ref, err)
		}
		pieces = append(pieces, body[end:tail], link)
		shifts[i] = Shift{At: end, Delta: len(link) - (end - in.Position)}
		tail = in.Position
	}
	pieces = append(pieces, body[:tail])

	var b strings.Builder
	b.Grow(len(body) + 64*len(valid))
	for i := len(pieces) - 1; i >= 0; i-- {
		b.WriteString(pieces[i])
	}
	res.Body = b.String()
	res.Applied = valid
	res.Shifts = shifts
	return res, nil
}

func (a *Applier) render(in Insertion) (string, error) {
	href, err := MergeUTM(in.URL, in.UTMParams)
	if err != nil {
		return "", err
	}
	anchor := in.AnchorText
	if anchor == "" {
		anchor = in.expected()
	}
	if anchor != in.expected() {
		anchor = escapeAnchor(anchor)
	}
	return a.renderer.RenderLink(Link{
		Href:   href,
		Anchor: anchor,
		Title:  in.Title,
		Target: in.Target,
		Rel:    in.Rel,
	})
}
