package api

import (
	"context"
	"net/http"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/pkg/httputil"
	"github.com/ignite/autolink/internal/service/rule"
	"github.com/ignite/autolink/internal/service/suggestion"
	"github.com/ignite/autolink/internal/storage"
)

// RuleService is the rule management surface used by the handlers.
type RuleService interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Rule, error)
	List(ctx context.Context, ownerID string, f rule.ListFilter) ([]domain.Rule, int, error)
	Create(ctx context.Context, ownerID string, input rule.CreateInput) (*domain.Rule, error)
	Update(ctx context.Context, ownerID, id string, u rule.UpdateFields) (*domain.Rule, error)
	SetActive(ctx context.Context, ownerID, id string, active bool) (*domain.Rule, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// SuggestionService is the lifecycle surface used by the handlers.
type SuggestionService interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Suggestion, error)
	List(ctx context.Context, ownerID string, f suggestion.ListFilter) ([]domain.Suggestion, int, error)
	ListInsertions(ctx context.Context, ownerID, contentID string) ([]domain.InsertionRecord, error)
	ScanContent(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error)
	Generate(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error)
	Accept(ctx context.Context, ownerID, id string, feedback *string) (*suggestion.Report, error)
	BulkAccept(ctx context.Context, ownerID, contentID string) (*suggestion.Report, error)
	Reject(ctx context.Context, ownerID, id string, feedback *string) (*domain.Suggestion, error)
	Reopen(ctx context.Context, ownerID, id string) (*domain.Suggestion, error)
}

// RevisionLister lists and fetches archived bodies. It is optional.
type RevisionLister interface {
	ListRevisions(ctx context.Context, contentID string, limit int) ([]storage.Revision, error)
	Fetch(ctx context.Context, contentID, key string) (string, error)
}

// ContentChecker confirms a content item belongs to the caller.
type ContentChecker interface {
	Get(ctx context.Context, ownerID, contentID string) (*domain.Content, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	rules       RuleService
	suggestions SuggestionService
	revisions   RevisionLister
	contents    ContentChecker
}

// NewHandlers creates a new Handlers instance. revisions and contents may
// be nil, which disables the revisions endpoint.
func NewHandlers(rules RuleService, suggestions SuggestionService, revisions RevisionLister, contents ContentChecker) *Handlers {
	return &Handlers{
		rules:       rules,
		suggestions: suggestions,
		revisions:   revisions,
		contents:    contents,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	httputil.Error(w, status, message)
}
