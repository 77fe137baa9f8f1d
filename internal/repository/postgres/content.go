package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/autolink/internal/domain"
)

// ContentRepo reads content rows. Body writes go through CommitRepo.
type ContentRepo struct{ db *sql.DB }

// NewContentRepo creates a Postgres-backed content reader.
func NewContentRepo(db *sql.DB) *ContentRepo { return &ContentRepo{db: db} }

func (r *ContentRepo) Get(ctx context.Context, ownerID, id string) (*domain.Content, error) {
	var (
		c      domain.Content
		siteID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, site_id, body, version, updated_at
		FROM contents
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(&c.ID, &c.OwnerID, &siteID, &c.Body, &c.Version, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	c.SiteID = stringPtr(siteID)
	return &c, nil
}

// ListUpdatedSince returns content ordered by (updated_at, id) that sorts
// after the cursor. Rows sharing a timestamp are paged by id so none is
// skipped at a batch boundary.
func (r *ContentRepo) ListUpdatedSince(ctx context.Context, after domain.ContentRef, limit int) ([]domain.ContentRef, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, updated_at
		FROM contents
		WHERE (updated_at, id) > ($1, $2)
		ORDER BY updated_at ASC, id ASC
		LIMIT $3
	`, after.UpdatedAt, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list updated content: %w", err)
	}
	defer rows.Close()

	var out []domain.ContentRef
	for rows.Next() {
		var c domain.ContentRef
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan content ref: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
