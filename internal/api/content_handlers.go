package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/autolink/internal/pkg/httputil"
)

type suggestionsResponse struct {
	ContentID string      `json:"content_id"`
	Count     int         `json:"count"`
	Items     interface{} `json:"items"`
}

// ScanContent runs the rule selector over a content body and stores the
// candidates as pending suggestions.
//
//	POST /api/content/{id}/scan
func (h *Handlers) ScanContent(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")
	items, err := h.suggestions.ScanContent(r.Context(), OwnerFromContext(r.Context()), contentID)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, suggestionsResponse{ContentID: contentID, Count: len(items), Items: items})
}

// GenerateSuggestions asks the AI generator for suggestions.
//
//	POST /api/content/{id}/generate
func (h *Handlers) GenerateSuggestions(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")
	items, err := h.suggestions.Generate(r.Context(), OwnerFromContext(r.Context()), contentID)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, suggestionsResponse{ContentID: contentID, Count: len(items), Items: items})
}

// BulkAccept applies every pending suggestion for a content item in one
// pass. Stale items are reported, not fatal.
//
//	POST /api/content/{id}/bulk-accept
func (h *Handlers) BulkAccept(w http.ResponseWriter, r *http.Request) {
	report, err := h.suggestions.BulkAccept(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, report)
}

// ListInsertions returns the insertion audit trail.
//
//	GET /api/content/{id}/insertions
func (h *Handlers) ListInsertions(w http.ResponseWriter, r *http.Request) {
	records, err := h.suggestions.ListInsertions(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, records)
}

// ListRevisions returns archived pre-rewrite bodies, newest first.
//
//	GET /api/content/{id}/revisions?limit=
func (h *Handlers) ListRevisions(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.ownedArchive(w, r)
	if !ok {
		return
	}
	revs, err := h.revisions.ListRevisions(r.Context(), contentID, httputil.QueryInt(r, "limit", 20))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, revs)
}

// GetRevision returns one archived body as HTML.
//
//	GET /api/content/{id}/revisions/raw?key=
func (h *Handlers) GetRevision(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.ownedArchive(w, r)
	if !ok {
		return
	}
	body, err := h.revisions.Fetch(r.Context(), contentID, r.URL.Query().Get("key"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// ownedArchive checks the archive is configured and the content belongs to
// the caller.
func (h *Handlers) ownedArchive(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.revisions == nil || h.contents == nil {
		respondError(w, http.StatusNotImplemented, "revision archive not configured")
		return "", false
	}
	contentID := chi.URLParam(r, "id")
	if _, err := h.contents.Get(r.Context(), OwnerFromContext(r.Context()), contentID); err != nil {
		httputil.FromError(w, err)
		return "", false
	}
	return contentID, true
}
