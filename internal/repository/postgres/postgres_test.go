package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/linking"
	"github.com/ignite/autolink/internal/service/rule"
	"github.com/ignite/autolink/internal/service/suggestion"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var ruleCols = []string{
	"id", "owner_id", "site_id", "keyword", "affiliate_url", "anchor_text", "link_title",
	"target_attribute", "rel_attribute", "case_sensitive", "match_whole_words",
	"max_insertions", "priority", "is_active", "utm_params", "usage_count", "last_used",
	"created_at", "updated_at",
}

func TestRuleRepo_Get(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM link_rules WHERE id = \\$1 AND owner_id = \\$2").
		WithArgs("r1", "o1").
		WillReturnRows(sqlmock.NewRows(ruleCols).AddRow(
			"r1", "o1", "site-a", "laptop", "https://shop.example.com", "", "",
			"", "nofollow", false, true,
			3, 80, true, []byte(`{"utm_source":"blog"}`), 7, now,
			now, now,
		))

	r, err := NewRuleRepo(db).Get(context.Background(), "o1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "laptop", r.Keyword)
	require.NotNil(t, r.SiteID)
	assert.Equal(t, "site-a", *r.SiteID)
	assert.Equal(t, "blog", r.UTMParams["utm_source"])
	assert.Equal(t, 7, r.UsageCount)
	require.NotNil(t, r.LastUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepo_GetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT .+ FROM link_rules").WillReturnError(sql.ErrNoRows)

	_, err := NewRuleRepo(db).Get(context.Background(), "o1", "missing")
	assert.ErrorIs(t, err, rule.ErrNotFound)
}

func TestRuleRepo_ListActiveSiteScope(t *testing.T) {
	db, mock := setupTestDB(t)
	site := "site-a"
	mock.ExpectQuery("site_id IS NULL OR site_id = \\$2").
		WithArgs("o1", site).
		WillReturnRows(sqlmock.NewRows(ruleCols))

	out, err := NewRuleRepo(db).ListActive(context.Background(), "o1", &site)
	require.NoError(t, err)
	assert.Empty(t, out)

	mock.ExpectQuery("is_active AND site_id IS NULL").
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(ruleCols))
	_, err = NewRuleRepo(db).ListActive(context.Background(), "o1", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepo_List(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM link_rules WHERE owner_id = \\$1 AND is_active AND keyword ILIKE \\$2").
		WithArgs("o1", "%lap%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("ORDER BY priority DESC, id ASC LIMIT \\$3 OFFSET \\$4").
		WithArgs("o1", "%lap%", 50, 0).
		WillReturnRows(sqlmock.NewRows(ruleCols))

	_, total, err := NewRuleRepo(db).List(context.Background(), "o1", rule.ListFilter{ActiveOnly: true, Search: "lap"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepo_CreateEncodesUTM(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO link_rules").
		WithArgs("r1", "o1", nil, "laptop", "https://shop.example.com", "", "",
			"", "", false, true, 1, 50, true, []byte(`{"utm_medium":"post"}`), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewRuleRepo(db).Create(context.Background(), &domain.Rule{
		ID: "r1", OwnerID: "o1", Keyword: "laptop", AffiliateURL: "https://shop.example.com",
		MatchWholeWords: true, MaxInsertions: 1, Priority: 50, IsActive: true,
		UTMParams: map[string]string{"utm_medium": "post"}, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepo_UpdateNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("UPDATE link_rules SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewRuleRepo(db).Update(context.Background(), &domain.Rule{ID: "r1", OwnerID: "o1"})
	assert.ErrorIs(t, err, rule.ErrNotFound)
}

func TestRuleRepo_Delete(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("DELETE FROM link_rules").WithArgs("r1", "o1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, NewRuleRepo(db).Delete(context.Background(), "o1", "r1"))

	mock.ExpectExec("DELETE FROM link_rules").WithArgs("r2", "o1").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, NewRuleRepo(db).Delete(context.Background(), "o1", "r2"), rule.ErrNotFound)
}

func TestContentRepo_Get(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("FROM contents").
		WithArgs("c1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "site_id", "body", "version", "updated_at"}).
			AddRow("c1", "o1", nil, "<p>hi</p>", int64(4), now))

	c, err := NewContentRepo(db).Get(context.Background(), "o1", "c1")
	require.NoError(t, err)
	assert.Nil(t, c.SiteID)
	assert.Equal(t, int64(4), c.Version)

	mock.ExpectQuery("FROM contents").WillReturnError(sql.ErrNoRows)
	_, err = NewContentRepo(db).Get(context.Background(), "o1", "c2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContentRepo_ListUpdatedSince(t *testing.T) {
	db, mock := setupTestDB(t)
	since := time.Now().Add(-time.Hour)
	mock.ExpectQuery("WHERE \\(updated_at, id\\) > \\(\\$1, \\$2\\)").
		WithArgs(since, "c0", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "updated_at"}).
			AddRow("c1", "o1", time.Now()).
			AddRow("c2", "o2", time.Now()))

	refs, err := NewContentRepo(db).ListUpdatedSince(context.Background(), domain.ContentRef{ID: "c0", UpdatedAt: since}, 0)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestSuggestionRepo_CreateBatchRollsBack(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	items := []domain.Suggestion{
		{ID: "s1", OwnerID: "o1", ContentID: "c1", SuggestedLinkID: "r1", SuggestedAnchorText: "laptop", Status: domain.SuggestionPending, InsertionType: domain.InsertionRuleMatched, CreatedAt: now, UpdatedAt: now},
		{ID: "s2", OwnerID: "o1", ContentID: "c1", SuggestedLinkID: "r1", SuggestedAnchorText: "laptop", Status: domain.SuggestionPending, InsertionType: domain.InsertionRuleMatched, CreatedAt: now, UpdatedAt: now},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO link_suggestions")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := NewSuggestionRepo(db).CreateBatch(context.Background(), items)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuggestionRepo_TransitionDisambiguates(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSuggestionRepo(db)
	tr := suggestion.Transition{From: domain.SuggestionPending, To: domain.SuggestionRejected}

	mock.ExpectExec("UPDATE link_suggestions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("s1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.Transition(context.Background(), "o1", "s1", tr), suggestion.ErrInvalidState)

	mock.ExpectExec("UPDATE link_suggestions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("s2", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, repo.Transition(context.Background(), "o1", "s2", tr), suggestion.ErrNotFound)

	mock.ExpectExec("UPDATE link_suggestions").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Transition(context.Background(), "o1", "s3", tr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var suggestionCols = []string{
	"id", "owner_id", "content_id", "suggested_link_id", "suggested_anchor_text",
	"matched_text", "suggested_position", "confidence", "reasoning", "status",
	"user_feedback", "insertion_type", "reviewed_at", "created_at", "updated_at",
}

func TestSuggestionRepo_ListOpenIncludesRejected(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("status IN \\('pending', 'rejected'\\)").
		WithArgs("o1", "c1").
		WillReturnRows(sqlmock.NewRows(suggestionCols).
			AddRow("s1", "o1", "c1", "r1", "laptop", "laptop", 9, 75, "", "rejected", nil, "rule_matched", now, now, now).
			AddRow("s2", "o1", "c1", "r1", "laptop", "laptop", 30, 75, "", "pending", nil, "rule_matched", nil, now, now))

	out, err := NewSuggestionRepo(db).ListOpen(context.Background(), "o1", "c1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.SuggestionRejected, out[0].Status)
	assert.NotNil(t, out[0].ReviewedAt)
	assert.Equal(t, 30, out[1].SuggestedPosition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func testCommit() suggestion.Commit {
	sid := "s1"
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return suggestion.Commit{
		OwnerID:         "o1",
		ContentID:       "c1",
		ExpectedVersion: 3,
		NewBody:         `<p><a href="https://x.example.com">laptop</a></p>`,
		Usage:           map[string]int{"r1": 3},
		UsedAt:          now,
		Records: []domain.InsertionRecord{{
			ID: "i1", ContentID: "c1", LinkID: "r1", SuggestionID: &sid,
			AnchorText: "laptop", AppliedPosition: 3, InsertionType: domain.InsertionRuleMatched, CreatedAt: now,
		}},
		Accepted: []suggestion.Review{{SuggestionID: "s1"}},
	}
}

func TestCommitRepo_CommitsInOneTransaction(t *testing.T) {
	db, mock := setupTestDB(t)
	c := testCommit()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE contents SET body").
		WithArgs(c.NewBody, "c1", "o1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE link_rules SET usage_count = usage_count \\+ \\$1").
		WithArgs(3, c.UsedAt, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO link_insertions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE link_suggestions").
		WithArgs(nil, c.UsedAt, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewCommitRepo(db).CommitInsertions(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitRepo_ShiftsOpenSuggestionsRightToLeft(t *testing.T) {
	db, mock := setupTestDB(t)
	c := testCommit()
	c.Shifts = []linking.Shift{{At: 9, Delta: 40}, {At: 30, Delta: 0}, {At: 50, Delta: 42}}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE contents SET body").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE link_rules").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO link_insertions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET status = 'accepted'").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET suggested_position = suggested_position \\+ \\$1").
		WithArgs(42, "c1", "o1", 50).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("SET suggested_position = suggested_position \\+ \\$1").
		WithArgs(40, "c1", "o1", 9).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, NewCommitRepo(db).CommitInsertions(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitRepo_VersionConflictRollsBack(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE contents SET body").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewCommitRepo(db).CommitInsertions(context.Background(), testCommit())
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitRepo_SuggestionAlreadyReviewedRollsBack(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE contents SET body").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE link_rules").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO link_insertions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE link_suggestions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewCommitRepo(db).CommitInsertions(context.Background(), testCommit())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}
