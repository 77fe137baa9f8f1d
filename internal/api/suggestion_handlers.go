package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/pkg/httputil"
	"github.com/ignite/autolink/internal/service/suggestion"
)

type reviewRequest struct {
	Feedback *string `json:"feedback"`
}

// decodeReview accepts an empty body.
func decodeReview(w http.ResponseWriter, r *http.Request) (reviewRequest, bool) {
	var req reviewRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, true
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return req, false
	}
	if strings.TrimSpace(string(body)) == "" {
		return req, true
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	if !httputil.Decode(w, r, &req) {
		return req, false
	}
	return req, true
}

// ListSuggestions returns the caller's suggestions, newest first.
//
//	GET /api/suggestions?status=&content_id=&page=&offset=&limit=
func (h *Handlers) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	win, err := parseListWindow(r)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	q := r.URL.Query()
	f := suggestion.ListFilter{
		Status:    q.Get("status"),
		ContentID: q.Get("content_id"),
		Limit:     win.Limit,
		Offset:    win.Offset,
	}
	items, total, err := h.suggestions.List(r.Context(), OwnerFromContext(r.Context()), f)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, newListResponse(items, win, total))
}

// GetSuggestion returns one suggestion.
//
//	GET /api/suggestions/{id}
func (h *Handlers) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	s, err := h.suggestions.Get(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, s)
}

// AcceptSuggestion inserts the link. A stale suggestion answers 409 with the
// report so the client can see why.
//
//	POST /api/suggestions/{id}/accept
func (h *Handlers) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	report, err := h.suggestions.Accept(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), req.Feedback)
	if errors.Is(err, domain.ErrStaleSuggestion) && report != nil {
		httputil.JSON(w, http.StatusConflict, httputil.ErrorResponse{
			Error:   err.Error(),
			Code:    "stale_suggestion",
			Details: report,
		})
		return
	}
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, report)
}

// RejectSuggestion marks a pending suggestion rejected.
//
//	POST /api/suggestions/{id}/reject
func (h *Handlers) RejectSuggestion(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	s, err := h.suggestions.Reject(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"), req.Feedback)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, s)
}

// ReopenSuggestion moves a reviewed suggestion back to pending.
//
//	POST /api/suggestions/{id}/reopen
func (h *Handlers) ReopenSuggestion(w http.ResponseWriter, r *http.Request) {
	s, err := h.suggestions.Reopen(r.Context(), OwnerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, s)
}
