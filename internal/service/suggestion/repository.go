package suggestion

import (
	"context"
	"time"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/linking"
)

// Repository defines the data access contract for suggestions and the
// insertion audit log. Implementations must be safe for concurrent use.
type Repository interface {
	// CreateBatch inserts all suggestions or none.
	CreateBatch(ctx context.Context, items []domain.Suggestion) error

	// Get returns a single suggestion. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, ownerID, id string) (*domain.Suggestion, error)

	// List returns suggestions matching the filter, newest first.
	List(ctx context.Context, ownerID string, filter ListFilter) ([]domain.Suggestion, int, error)

	// ListPending returns the pending suggestions for one content item,
	// ordered by position.
	ListPending(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error)

	// ListOpen returns the pending and rejected suggestions for one content
	// item, ordered by position.
	ListOpen(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error)

	// Transition moves a suggestion from one status to another. It returns
	// domain.ErrInvalidState when the stored status is not from.
	Transition(ctx context.Context, ownerID, id string, t Transition) error

	// ListInsertions returns the audit records for a content item, oldest
	// first.
	ListInsertions(ctx context.Context, contentID string) ([]domain.InsertionRecord, error)
}

// ListFilter controls pagination and filtering for suggestion lists.
type ListFilter struct {
	Status    string
	ContentID string
	Limit     int
	Offset    int
}

// Transition describes a guarded status change.
type Transition struct {
	From       domain.SuggestionStatus
	To         domain.SuggestionStatus
	Feedback   *string
	ReviewedAt *time.Time
}

// RuleReader is the slice of the rule store the lifecycle needs. The rule
// service satisfies it.
type RuleReader interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Rule, error)
	ListActive(ctx context.Context, ownerID string, siteID *string) ([]domain.Rule, error)
}

// ContentReader loads content bodies.
type ContentReader interface {
	Get(ctx context.Context, ownerID, contentID string) (*domain.Content, error)
}

// Committer persists the outcome of one insertion pass atomically: the new
// body (guarded by ExpectedVersion), usage increments, audit records and the
// accepted status of each applied suggestion. Pending and rejected
// suggestions of the content are then moved by Shifts so their positions
// keep pointing at the same text in the new body. A version mismatch must
// return domain.ErrConflict and write nothing.
type Committer interface {
	CommitInsertions(ctx context.Context, c Commit) error
}

// Commit is the unit of work handed to a Committer.
type Commit struct {
	OwnerID         string
	ContentID       string
	ExpectedVersion int64
	NewBody         string
	// Usage maps rule ID to the number of links applied for it.
	Usage    map[string]int
	UsedAt   time.Time
	Records  []domain.InsertionRecord
	Accepted []Review
	Shifts   []linking.Shift
}

// Review is the accepted status write for one suggestion.
type Review struct {
	SuggestionID string
	Feedback     *string
}

// Generator proposes AI suggestions for a body.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]Generated, error)
}

// GenerateRequest is the input for an AI generation call.
type GenerateRequest struct {
	ContentID string
	Keywords  []KeywordRef
	Context   string
}

// KeywordRef names one rule the generator may propose.
type KeywordRef struct {
	Keyword string `json:"keyword"`
	LinkID  string `json:"link_id"`
}

// Generated is one raw AI suggestion. Position is a byte offset hint into
// the content body.
type Generated struct {
	LinkID     string `json:"link_id"`
	AnchorText string `json:"anchor_text"`
	Position   int    `json:"position"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// Archiver stores the pre-rewrite body and returns its object key.
type Archiver interface {
	Archive(ctx context.Context, contentID, body string) (string, error)
}

// Locker serialises insertion passes per key. distlock.Provider satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
