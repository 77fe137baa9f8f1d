package linking

import (
	"fmt"
	"html"

	"github.com/osteele/liquid"
)

// DefaultLinkTemplate renders a plain anchor element. The anchor binding is
// inserted verbatim because it is either text taken from the body or text
// the applier has already escaped.
const DefaultLinkTemplate = `<a href="{{ href | escape }}"` +
	`{% if title != "" %} title="{{ title | escape }}"{% endif %}` +
	`{% if target != "" %} target="{{ target | escape }}"{% endif %}` +
	`{% if rel != "" %} rel="{{ rel | escape }}"{% endif %}` +
	`>{{ anchor }}</a>`

// Link is the data a renderer needs to build one link construct.
type Link struct {
	Href   string
	Anchor string
	Title  string
	Target string
	Rel    string
}

// LinkRenderer turns a Link into markup.
type LinkRenderer interface {
	RenderLink(l Link) (string, error)
}

// TemplateRenderer renders links through a Liquid template.
type TemplateRenderer struct {
	tpl *liquid.Template
}

// NewTemplateRenderer compiles src. An empty src selects DefaultLinkTemplate.
func NewTemplateRenderer(src string) (*TemplateRenderer, error) {
	if src == "" {
		src = DefaultLinkTemplate
	}
	tpl, err := liquid.NewEngine().ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parse link template: %w", err)
	}
	return &TemplateRenderer{tpl: tpl}, nil
}

// MustTemplateRenderer is NewTemplateRenderer for templates known to be valid.
func MustTemplateRenderer(src string) *TemplateRenderer {
	r, err := NewTemplateRenderer(src)
	if err != nil {
		panic(err)
	}
	return r
}

// RenderLink implements LinkRenderer.
func (r *TemplateRenderer) RenderLink(l Link) (string, error) {
	out, err := r.tpl.RenderString(liquid.Bindings{
		"href":   l.Href,
		"anchor": l.Anchor,
		"title":  l.Title,
		"target": l.Target,
		"rel":    l.Rel,
	})
	if err != nil {
		return "", fmt.Errorf("render link: %w", err)
	}
	return out, nil
}

func escapeAnchor(s string) string { return html.EscapeString(s) }
