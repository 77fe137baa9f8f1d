package suggestion

import (
	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/linking"
)

// Sentinel errors for the suggestion service layer.
var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidState      = domain.ErrInvalidState
	ErrStale             = domain.ErrStaleSuggestion
	ErrGenerationTimeout = domain.ErrGenerationTimeout
	ErrContentLocked     = domain.ErrContentLocked
	ErrNoGenerator       = domain.NewValidationError("generator", "AI suggestions are not configured")
)

// StaleRuleMissing marks a suggestion whose rule was deleted after the
// suggestion was created.
const StaleRuleMissing linking.StaleReason = "rule_missing"
