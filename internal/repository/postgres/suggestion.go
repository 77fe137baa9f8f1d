package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/service/suggestion"
)

// SuggestionRepo implements suggestion.Repository against PostgreSQL.
type SuggestionRepo struct{ db *sql.DB }

// NewSuggestionRepo creates a Postgres-backed suggestion repository.
func NewSuggestionRepo(db *sql.DB) *SuggestionRepo { return &SuggestionRepo{db: db} }

const suggestionColumns = `
	id, owner_id, content_id, suggested_link_id, suggested_anchor_text,
	matched_text, suggested_position, confidence, reasoning, status,
	user_feedback, insertion_type, reviewed_at, created_at, updated_at`

func scanSuggestion(s rowScanner) (*domain.Suggestion, error) {
	var (
		out      domain.Suggestion
		feedback sql.NullString
		reviewed sql.NullTime
	)
	err := s.Scan(
		&out.ID, &out.OwnerID, &out.ContentID, &out.SuggestedLinkID, &out.SuggestedAnchorText,
		&out.MatchedText, &out.SuggestedPosition, &out.Confidence, &out.Reasoning, &out.Status,
		&feedback, &out.InsertionType, &reviewed, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	out.UserFeedback = stringPtr(feedback)
	if reviewed.Valid {
		t := reviewed.Time
		out.ReviewedAt = &t
	}
	return &out, nil
}

// CreateBatch inserts every suggestion in one transaction.
func (r *SuggestionRepo) CreateBatch(ctx context.Context, items []domain.Suggestion) error {
	if len(items) == 0 {
		return nil
	}
	return runInTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO link_suggestions
				(id, owner_id, content_id, suggested_link_id, suggested_anchor_text,
				 matched_text, suggested_position, confidence, reasoning, status,
				 insertion_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
		if err != nil {
			return fmt.Errorf("prepare suggestion insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range items {
			if _, err := stmt.ExecContext(ctx,
				s.ID, s.OwnerID, s.ContentID, s.SuggestedLinkID, s.SuggestedAnchorText,
				s.MatchedText, s.SuggestedPosition, s.Confidence, s.Reasoning, s.Status,
				s.InsertionType, s.CreatedAt, s.UpdatedAt,
			); err != nil {
				return fmt.Errorf("insert suggestion %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

func (r *SuggestionRepo) Get(ctx context.Context, ownerID, id string) (*domain.Suggestion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+suggestionColumns+` FROM link_suggestions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	out, err := scanSuggestion(row)
	if err == sql.ErrNoRows {
		return nil, suggestion.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	return out, nil
}

func (r *SuggestionRepo) List(ctx context.Context, ownerID string, f suggestion.ListFilter) ([]domain.Suggestion, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE owner_id = $1`
	args := []interface{}{ownerID}
	idx := 2
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.ContentID != "" {
		where += fmt.Sprintf(" AND content_id = $%d", idx)
		args = append(args, f.ContentID)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM link_suggestions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suggestions: %w", err)
	}

	q := `SELECT ` + suggestionColumns + ` FROM link_suggestions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	out, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *SuggestionRepo) ListPending(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error) {
	return r.query(ctx, `SELECT `+suggestionColumns+` FROM link_suggestions
		WHERE owner_id = $1 AND content_id = $2 AND status = 'pending'
		ORDER BY suggested_position ASC, id ASC`, ownerID, contentID)
}

func (r *SuggestionRepo) ListOpen(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error) {
	return r.query(ctx, `SELECT `+suggestionColumns+` FROM link_suggestions
		WHERE owner_id = $1 AND content_id = $2 AND status IN ('pending', 'rejected')
		ORDER BY suggested_position ASC, id ASC`, ownerID, contentID)
}

func (r *SuggestionRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Suggestion, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Transition updates status only while the stored status equals t.From.
// A zero-row update is disambiguated into not-found or invalid-state.
func (r *SuggestionRepo) Transition(ctx context.Context, ownerID, id string, t suggestion.Transition) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE link_suggestions
		SET status = $1, user_feedback = $2, reviewed_at = $3, updated_at = NOW()
		WHERE id = $4 AND owner_id = $5 AND status = $6
	`, t.To, nullString(t.Feedback), t.ReviewedAt, id, ownerID, t.From)
	if err != nil {
		return fmt.Errorf("transition suggestion: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM link_suggestions WHERE id = $1 AND owner_id = $2)`,
		id, ownerID).Scan(&exists); err != nil {
		return fmt.Errorf("check suggestion: %w", err)
	}
	if !exists {
		return suggestion.ErrNotFound
	}
	return suggestion.ErrInvalidState
}

func (r *SuggestionRepo) ListInsertions(ctx context.Context, contentID string) ([]domain.InsertionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content_id, link_id, suggestion_id, anchor_text,
		       applied_position, insertion_type, created_at
		FROM link_insertions
		WHERE content_id = $1
		ORDER BY created_at ASC, applied_position ASC
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list insertions: %w", err)
	}
	defer rows.Close()

	var out []domain.InsertionRecord
	for rows.Next() {
		var (
			rec   domain.InsertionRecord
			sugID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.ContentID, &rec.LinkID, &sugID, &rec.AnchorText,
			&rec.AppliedPosition, &rec.InsertionType, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insertion: %w", err)
		}
		rec.SuggestionID = stringPtr(sugID)
		out = append(out, rec)
	}
	return out, rows.Err()
}
