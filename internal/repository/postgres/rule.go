package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/service/rule"
)

// RuleRepo implements rule.Repository against PostgreSQL.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

const ruleColumns = `
	id, owner_id, site_id, keyword, affiliate_url, anchor_text, link_title,
	target_attribute, rel_attribute, case_sensitive, match_whole_words,
	max_insertions, priority, is_active, utm_params, usage_count, last_used,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(s rowScanner) (*domain.Rule, error) {
	var (
		r        domain.Rule
		siteID   sql.NullString
		utm      []byte
		lastUsed sql.NullTime
	)
	err := s.Scan(
		&r.ID, &r.OwnerID, &siteID, &r.Keyword, &r.AffiliateURL, &r.AnchorText, &r.LinkTitle,
		&r.TargetAttribute, &r.RelAttribute, &r.CaseSensitive, &r.MatchWholeWords,
		&r.MaxInsertions, &r.Priority, &r.IsActive, &utm, &r.UsageCount, &lastUsed,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.SiteID = stringPtr(siteID)
	if lastUsed.Valid {
		t := lastUsed.Time
		r.LastUsed = &t
	}
	if len(utm) > 0 {
		if err := json.Unmarshal(utm, &r.UTMParams); err != nil {
			return nil, fmt.Errorf("decode utm_params: %w", err)
		}
	}
	return &r, nil
}

func encodeUTM(params map[string]string) ([]byte, error) {
	if params == nil {
		params = map[string]string{}
	}
	return json.Marshal(params)
}

func (r *RuleRepo) Get(ctx context.Context, ownerID, id string) (*domain.Rule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM link_rules WHERE id = $1 AND owner_id = $2`, id, ownerID)
	out, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, rule.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return out, nil
}

func (r *RuleRepo) List(ctx context.Context, ownerID string, f rule.ListFilter) ([]domain.Rule, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE owner_id = $1`
	args := []interface{}{ownerID}
	idx := 2
	if f.SiteID != nil {
		where += fmt.Sprintf(" AND (site_id IS NULL OR site_id = $%d)", idx)
		args = append(args, *f.SiteID)
		idx++
	}
	if f.ActiveOnly {
		where += " AND is_active"
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND keyword ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM link_rules`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rules: %w", err)
	}

	q := `SELECT ` + ruleColumns + ` FROM link_rules` + where +
		fmt.Sprintf(" ORDER BY priority DESC, id ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	out, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *RuleRepo) ListActive(ctx context.Context, ownerID string, siteID *string) ([]domain.Rule, error) {
	if siteID == nil {
		return r.query(ctx, `SELECT `+ruleColumns+` FROM link_rules
			WHERE owner_id = $1 AND is_active AND site_id IS NULL
			ORDER BY priority DESC, id ASC`, ownerID)
	}
	return r.query(ctx, `SELECT `+ruleColumns+` FROM link_rules
		WHERE owner_id = $1 AND is_active AND (site_id IS NULL OR site_id = $2)
		ORDER BY priority DESC, id ASC`, ownerID, *siteID)
}

func (r *RuleRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		rl, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *rl)
	}
	return out, rows.Err()
}

func (r *RuleRepo) Create(ctx context.Context, rl *domain.Rule) error {
	utm, err := encodeUTM(rl.UTMParams)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO link_rules
			(id, owner_id, site_id, keyword, affiliate_url, anchor_text, link_title,
			 target_attribute, rel_attribute, case_sensitive, match_whole_words,
			 max_insertions, priority, is_active, utm_params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, rl.ID, rl.OwnerID, nullString(rl.SiteID), rl.Keyword, rl.AffiliateURL, rl.AnchorText, rl.LinkTitle,
		rl.TargetAttribute, rl.RelAttribute, rl.CaseSensitive, rl.MatchWholeWords,
		rl.MaxInsertions, rl.Priority, rl.IsActive, utm, rl.CreatedAt, rl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// Update writes the mutable fields. usage_count and last_used are owned by
// the insertion commit and are never written here.
func (r *RuleRepo) Update(ctx context.Context, rl *domain.Rule) error {
	utm, err := encodeUTM(rl.UTMParams)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE link_rules SET
			site_id = $1, keyword = $2, affiliate_url = $3, anchor_text = $4, link_title = $5,
			target_attribute = $6, rel_attribute = $7, case_sensitive = $8, match_whole_words = $9,
			max_insertions = $10, priority = $11, is_active = $12, utm_params = $13, updated_at = $14
		WHERE id = $15 AND owner_id = $16
	`, nullString(rl.SiteID), rl.Keyword, rl.AffiliateURL, rl.AnchorText, rl.LinkTitle,
		rl.TargetAttribute, rl.RelAttribute, rl.CaseSensitive, rl.MatchWholeWords,
		rl.MaxInsertions, rl.Priority, rl.IsActive, utm, rl.UpdatedAt,
		rl.ID, rl.OwnerID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return rule.ErrNotFound
	}
	return nil
}

func (r *RuleRepo) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM link_rules WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return rule.ErrNotFound
	}
	return nil
}
