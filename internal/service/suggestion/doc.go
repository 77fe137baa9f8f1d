// Package suggestion implements the suggestion lifecycle: creating pending
// suggestions from scan or AI candidates, reviewing them, and applying
// accepted ones to content.
//
// State machine:
//
//	pending → accepted   (terminal; the link is inserted into the body)
//	pending → rejected   (terminal; content untouched)
//	accepted|rejected → pending   (explicit Reopen only)
//
// Accepting always triggers insertion. Acceptance and body rewrite happen
// under a per-content distributed lock and commit in one transaction via the
// Committer, together with usage counters and insertion audit records.
// Suggestions whose text no longer matches the body are reported stale and
// stay pending; the rest of the batch still applies.
package suggestion
