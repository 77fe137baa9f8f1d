// Package rule implements management of keyword → link rules.
//
// The service validates rules before they reach the repository and owns the
// update-merge semantics. Usage counters are never written here; they are
// maintained by the insertion commit in the suggestion service.
//
// Repository implementations live in repository/postgres/.
package rule
