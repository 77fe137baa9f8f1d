package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/autolink/internal/pkg/httputil"
	"github.com/ignite/autolink/internal/service/rule"
)

// ListRules returns the caller's rules.
//
//	GET /api/rules?site_id=&active=true&q=&page=&offset=&limit=
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	win, err := parseListWindow(r)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	q := r.URL.Query()

	f := rule.ListFilter{
		ActiveOnly: q.Get("active") == "true",
		Search:     strings.TrimSpace(q.Get("q")),
		Limit:      win.Limit,
		Offset:     win.Offset,
	}
	if site := strings.TrimSpace(q.Get("site_id")); site != "" {
		f.SiteID = &site
	}

	rules, total, err := h.rules.List(r.Context(), owner, f)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, newListResponse(rules, win, total))
}

// GetRule returns a single rule.
//
//	GET /api/rules/{id}
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rl, err := h.rules.Get(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, rl)
}

// CreateRule creates a rule.
//
//	POST /api/rules
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var input rule.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	rl, err := h.rules.Create(r.Context(), OwnerFromContext(r.Context()), input)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, rl)
}

// updateRuleRequest distinguishes an absent site_id from an explicit null.
type updateRuleRequest struct {
	rule.UpdateFields
	SiteID json.RawMessage `json:"site_id"`
}

func (req updateRuleRequest) fields() (rule.UpdateFields, error) {
	u := req.UpdateFields
	if len(req.SiteID) == 0 {
		return u, nil
	}
	var site *string
	if err := json.Unmarshal(req.SiteID, &site); err != nil {
		return u, err
	}
	u.SiteID = &site
	return u, nil
}

// UpdateRule applies a partial update.
//
//	PUT /api/rules/{id}
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req updateRuleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, err := req.fields()
	if err != nil {
		httputil.BadRequest(w, "site_id must be a string or null")
		return
	}
	rl, err := h.rules.Update(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), u)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, rl)
}

// ActivateRule sets is_active.
//
//	POST /api/rules/{id}/activate
func (h *Handlers) ActivateRule(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// DeactivateRule clears is_active.
//
//	POST /api/rules/{id}/deactivate
func (h *Handlers) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	rl, err := h.rules.SetActive(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), active)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, rl)
}

// DeleteRule removes a rule. Existing suggestions for it become stale.
//
//	DELETE /api/rules/{id}
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.Delete(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.NoContent(w)
}
