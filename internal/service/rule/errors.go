package rule

import "github.com/ignite/autolink/internal/domain"

// Sentinel errors for the rule service layer. They alias the domain errors
// so callers can match with errors.Is regardless of which layer they import.
var (
	ErrNotFound = domain.ErrNotFound
)
