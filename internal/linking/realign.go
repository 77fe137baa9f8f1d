package linking

import (
	"strings"

	"github.com/ignite/autolink/internal/domain"
)

// Realign returns the offset of the unprotected occurrence of text closest
// to pos. If text already sits at pos it is returned unchanged. Ties go to
// the earlier occurrence. ok is false when text does not occur outside
// protected markup.
func Realign(body, text string, pos int) (int, bool) {
	if text == "" {
		return 0, false
	}
	protected := ProtectedSpans(body)
	at := func(i int) bool {
		return !overlapsAny(protected, domain.Span{Start: i, End: i + len(text)})
	}
	if pos >= 0 && pos+len(text) <= len(body) && body[pos:pos+len(text)] == text && at(pos) {
		return pos, true
	}

	best, bestDist := -1, 0
	for i := 0; i < len(body); {
		idx := strings.Index(body[i:], text)
		if idx < 0 {
			break
		}
		i += idx
		if at(i) {
			d := i - pos
			if d < 0 {
				d = -d
			}
			if best < 0 || d < bestDist {
				best, bestDist = i, d
			}
		}
		i++
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
