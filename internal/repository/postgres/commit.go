package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/service/suggestion"
)

// CommitRepo implements suggestion.Committer. Every statement of a pass runs
// in one transaction so the body, counters, audit log and review state never
// disagree.
type CommitRepo struct{ db *sql.DB }

// NewCommitRepo creates the Postgres insertion committer.
func NewCommitRepo(db *sql.DB) *CommitRepo { return &CommitRepo{db: db} }

// CommitInsertions writes one insertion pass. The body update is guarded by
// the content version; a concurrent writer makes it fail with
// domain.ErrConflict and nothing is written.
func (r *CommitRepo) CommitInsertions(ctx context.Context, c suggestion.Commit) error {
	return runInTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE contents SET body = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND owner_id = $3 AND version = $4
		`, c.NewBody, c.ContentID, c.OwnerID, c.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("update content body: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("content %s at version %d: %w", c.ContentID, c.ExpectedVersion, domain.ErrConflict)
		}

		// Stable order keeps lock acquisition on link_rules deterministic.
		ruleIDs := make([]string, 0, len(c.Usage))
		for id := range c.Usage {
			ruleIDs = append(ruleIDs, id)
		}
		sort.Strings(ruleIDs)
		for _, id := range ruleIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE link_rules SET usage_count = usage_count + $1, last_used = $2
				WHERE id = $3
			`, c.Usage[id], c.UsedAt, id); err != nil {
				return fmt.Errorf("increment usage %s: %w", id, err)
			}
		}

		for _, rec := range c.Records {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO link_insertions
					(id, content_id, link_id, suggestion_id, anchor_text,
					 applied_position, insertion_type, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, rec.ID, rec.ContentID, rec.LinkID, nullString(rec.SuggestionID), rec.AnchorText,
				rec.AppliedPosition, rec.InsertionType, rec.CreatedAt); err != nil {
				return fmt.Errorf("insert insertion record: %w", err)
			}
		}

		for _, a := range c.Accepted {
			res, err := tx.ExecContext(ctx, `
				UPDATE link_suggestions
				SET status = 'accepted', user_feedback = $1, reviewed_at = $2, updated_at = $2
				WHERE id = $3 AND status = 'pending'
			`, nullString(a.Feedback), c.UsedAt, a.SuggestionID)
			if err != nil {
				return fmt.Errorf("accept suggestion %s: %w", a.SuggestionID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("accept suggestion %s: %w", a.SuggestionID, domain.ErrInvalidState)
			}
		}

		// Right to left: a row moved by a later shift still sits past every
		// earlier At, so each row collects all the deltas in front of it.
		for i := len(c.Shifts) - 1; i >= 0; i-- {
			sh := c.Shifts[i]
			if sh.Delta == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE link_suggestions SET suggested_position = suggested_position + $1
				WHERE content_id = $2 AND owner_id = $3
				  AND status IN ('pending', 'rejected') AND suggested_position >= $4
			`, sh.Delta, c.ContentID, c.OwnerID, sh.At); err != nil {
				return fmt.Errorf("shift suggestions at %d: %w", sh.At, err)
			}
		}
		return nil
	})
}
