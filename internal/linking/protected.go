package linking

import (
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/ignite/autolink/internal/domain"
)

// ProtectedSpans returns the merged, sorted regions of body that must never
// receive a link: every tag, comment and doctype, whole <a> elements
// (including their text), and the bodies of <script> and <style>.
func ProtectedSpans(body string) []domain.Span {
	if !strings.ContainsAny(body, "<&") {
		return nil
	}

	z := html.NewTokenizer(strings.NewReader(body))
	var (
		spans       []domain.Span
		offset      int
		anchorDepth int
		anchorStart int
		rawTag      string
		rawStart    int
	)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// Tokenizer gave up; protect the remainder.
				spans = append(spans, domain.Span{Start: offset, End: len(body)})
			}
			break
		}
		start := offset
		offset += len(z.Raw())

		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			spans = append(spans, domain.Span{Start: start, End: offset})
			switch tag {
			case "a":
				if anchorDepth == 0 {
					anchorStart = start
				}
				anchorDepth++
			case "script", "style", "textarea", "title":
				if rawTag == "" {
					rawTag, rawStart = tag, start
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			spans = append(spans, domain.Span{Start: start, End: offset})
			if tag == "a" && anchorDepth > 0 {
				anchorDepth--
				if anchorDepth == 0 {
					spans = append(spans, domain.Span{Start: anchorStart, End: offset})
				}
			}
			if tag == rawTag {
				spans = append(spans, domain.Span{Start: rawStart, End: offset})
				rawTag = ""
			}
		case html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
			spans = append(spans, domain.Span{Start: start, End: offset})
		case html.TextToken:
			// Entities such as &amp; are markup too; a keyword must not
			// split one.
			spans = append(spans, entitySpans(z.Raw(), start)...)
		}
	}

	if anchorDepth > 0 {
		spans = append(spans, domain.Span{Start: anchorStart, End: len(body)})
	}
	if rawTag != "" {
		spans = append(spans, domain.Span{Start: rawStart, End: len(body)})
	}
	return mergeSpans(spans)
}

func entitySpans(raw []byte, base int) []domain.Span {
	var out []domain.Span
	for i := 0; i < len(raw); i++ {
		if raw[i] != '&' {
			continue
		}
		j := i + 1
		for j < len(raw) && j-i <= 32 && isEntityByte(raw[j]) {
			j++
		}
		if j < len(raw) && raw[j] == ';' && j > i+1 {
			out = append(out, domain.Span{Start: base + i, End: base + j + 1})
			i = j
		}
	}
	return out
}

func isEntityByte(b byte) bool {
	return b == '#' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// mergeSpans sorts spans and coalesces overlapping or touching ones.
func mergeSpans(spans []domain.Span) []domain.Span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start == spans[j].Start {
			return spans[i].End > spans[j].End
		}
		return spans[i].Start < spans[j].Start
	})
	out := []domain.Span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// overlapsAny reports whether s intersects any span in set.
func overlapsAny(set []domain.Span, s domain.Span) bool {
	for _, p := range set {
		if p.Overlaps(s) {
			return true
		}
	}
	return false
}
