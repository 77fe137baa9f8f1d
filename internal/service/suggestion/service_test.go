package suggestion_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/pkg/distlock"
	"github.com/ignite/autolink/internal/service/suggestion"
)

// memStore is an in-memory stand-in for the rule, content and suggestion
// tables. CommitInsertions applies everything under one mutex so it behaves
// like a single transaction.
type memStore struct {
	mu          sync.Mutex
	rules       map[string]*domain.Rule
	contents    map[string]*domain.Content
	suggestions map[string]*domain.Suggestion
	insertions  []domain.InsertionRecord
	commits     int
	commitErr   error
}

func newMemStore() *memStore {
	return &memStore{
		rules:       make(map[string]*domain.Rule),
		contents:    make(map[string]*domain.Content),
		suggestions: make(map[string]*domain.Suggestion),
	}
}

func (m *memStore) CreateBatch(_ context.Context, items []domain.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range items {
		cp := items[i]
		m.suggestions[cp.ID] = &cp
	}
	return nil
}

func (m *memStore) Get(_ context.Context, ownerID, id string) (*domain.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suggestions[id]
	if !ok || s.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) List(_ context.Context, ownerID string, f suggestion.ListFilter) ([]domain.Suggestion, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Suggestion
	for _, s := range m.suggestions {
		if s.OwnerID != ownerID {
			continue
		}
		if f.Status != "" && string(s.Status) != f.Status {
			continue
		}
		if f.ContentID != "" && s.ContentID != f.ContentID {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *memStore) ListPending(_ context.Context, ownerID, contentID string) ([]domain.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Suggestion
	for _, s := range m.suggestions {
		if s.OwnerID == ownerID && s.ContentID == contentID && s.Status == domain.SuggestionPending {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuggestedPosition < out[j].SuggestedPosition })
	return out, nil
}

func (m *memStore) ListOpen(_ context.Context, ownerID, contentID string) ([]domain.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Suggestion
	for _, s := range m.suggestions {
		if s.OwnerID == ownerID && s.ContentID == contentID && s.Status != domain.SuggestionAccepted {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuggestedPosition < out[j].SuggestedPosition })
	return out, nil
}

func (m *memStore) Transition(_ context.Context, ownerID, id string, t suggestion.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suggestions[id]
	if !ok || s.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	if s.Status != t.From {
		return domain.ErrInvalidState
	}
	s.Status, s.UserFeedback, s.ReviewedAt = t.To, t.Feedback, t.ReviewedAt
	return nil
}

func (m *memStore) ListInsertions(_ context.Context, contentID string) ([]domain.InsertionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InsertionRecord
	for _, r := range m.insertions {
		if r.ContentID == contentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CommitInsertions(_ context.Context, c suggestion.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	content := m.contents[c.ContentID]
	if content.Version != c.ExpectedVersion {
		return domain.ErrConflict
	}
	content.Body = c.NewBody
	content.Version++
	for ruleID, n := range c.Usage {
		r := m.rules[ruleID]
		r.UsageCount += n
		used := c.UsedAt
		r.LastUsed = &used
	}
	m.insertions = append(m.insertions, c.Records...)
	for _, a := range c.Accepted {
		s := m.suggestions[a.SuggestionID]
		s.Status = domain.SuggestionAccepted
		s.UserFeedback = a.Feedback
		at := c.UsedAt
		s.ReviewedAt = &at
	}
	for _, s := range m.suggestions {
		if s.ContentID != c.ContentID || s.Status == domain.SuggestionAccepted {
			continue
		}
		pos := s.SuggestedPosition
		for _, sh := range c.Shifts {
			if sh.At <= pos {
				s.SuggestedPosition += sh.Delta
			}
		}
	}
	m.commits++
	return nil
}

// rules and contents are exposed through small adapters so memStore can
// satisfy both Get signatures.
type memRules struct{ *memStore }

func (r memRules) Get(_ context.Context, ownerID, id string) (*domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	cp := *rule
	return &cp, nil
}

func (r memRules) ListActive(_ context.Context, ownerID string, siteID *string) ([]domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Rule
	for _, rule := range r.rules {
		if rule.OwnerID == ownerID && rule.IsActive && rule.AppliesToSite(siteID) {
			out = append(out, *rule)
		}
	}
	return out, nil
}

type memContents struct{ *memStore }

func (c memContents) Get(_ context.Context, ownerID, id string) (*domain.Content, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.contents[id]
	if !ok || content.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	cp := *content
	return &cp, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return distlock.ErrNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

type fakeGenerator struct {
	items []suggestion.Generated
	block bool
	got   suggestion.GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req suggestion.GenerateRequest) ([]suggestion.Generated, error) {
	g.got = req
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.items, nil
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, contentID, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := "revisions/" + contentID + "/1.html"
	a.keys = append(a.keys, key)
	return key, nil
}

const (
	testOwner   = "owner-1"
	testContent = "content-1"
	laptopBody  = "<p>Buy a laptop today. A laptop is great. Every laptop counts.</p>"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	now    time.Time
	store  *memStore
	locker *memLocker
	gen    *fakeGenerator
	arch   *fakeArchiver
	svc    *suggestion.Service
}

func newFixture(t *testing.T, body string) *fixture {
	t.Helper()
	f := &fixture{
		now:    fixedNow,
		store:  newMemStore(),
		locker: &memLocker{held: make(map[string]bool)},
		gen:    &fakeGenerator{},
		arch:   &fakeArchiver{},
	}
	f.store.contents[testContent] = &domain.Content{ID: testContent, OwnerID: testOwner, Body: body, Version: 1}
	f.store.rules["r-laptop"] = &domain.Rule{
		ID: "r-laptop", OwnerID: testOwner, Keyword: "laptop",
		AffiliateURL: "https://shop.example.com/laptops", MatchWholeWords: true,
		MaxInsertions: 3, Priority: 50, IsActive: true,
		UTMParams: map[string]string{"utm_source": "blog"},
	}
	f.svc = suggestion.NewService(f.store, suggestion.Deps{
		Rules:     memRules{f.store},
		Contents:  memContents{f.store},
		Committer: f.store,
		Locker:    f.locker,
		Generator: f.gen,
		Archiver:  f.arch,
		Now:       func() time.Time { return f.now },
	}, suggestion.Config{GenerateTimeout: 50 * time.Millisecond})
	return f
}

func (f *fixture) body() string {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.contents[testContent].Body
}

func TestScanContent_CreatesPendingSuggestions(t *testing.T) {
	f := newFixture(t, laptopBody)
	created, err := f.svc.ScanContent(context.Background(), testOwner, testContent)
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, s := range created {
		assert.Equal(t, domain.SuggestionPending, s.Status)
		assert.Equal(t, 75, s.Confidence)
		assert.Equal(t, domain.InsertionRuleMatched, s.InsertionType)
		assert.Equal(t, "r-laptop", s.SuggestedLinkID)
		assert.Equal(t, "laptop", laptopBody[s.SuggestedPosition:s.SuggestedPosition+6])
	}
}

func TestScanContent_SkipsDuplicatePending(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	_, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	again, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, f.store.suggestions, 3)
}

func TestScanContent_RejectedNotRecreated(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	require.Len(t, created, 3)

	_, err = f.svc.Reject(ctx, testOwner, created[0].ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, testOwner, created[2].ID, nil)
	require.NoError(t, err)

	again, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, f.store.suggestions, 3)
	assert.Equal(t, domain.SuggestionRejected, f.store.suggestions[created[0].ID].Status)
}

func TestScanContent_RejectedAfterEarlierAcceptNotRecreated(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	require.Len(t, created, 3)

	_, err = f.svc.Reject(ctx, testOwner, created[2].ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, testOwner, created[0].ID, nil)
	require.NoError(t, err)

	// The insertion before them moved the open suggestions with the text.
	body := f.body()
	for _, orig := range created[1:] {
		pos := f.store.suggestions[orig.ID].SuggestedPosition
		assert.Greater(t, pos, orig.SuggestedPosition)
		assert.Equal(t, "laptop", body[pos:pos+6])
	}

	again, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, f.store.suggestions, 3)

	report, err := f.svc.BulkAccept(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Len(t, report.Accepted, 1)
	assert.Empty(t, report.Stale)
	assert.Equal(t, 2, f.store.rules["r-laptop"].UsageCount)
}

func TestScanContent_MaxInsertionsAcrossPasses(t *testing.T) {
	f := newFixture(t, laptopBody)
	f.store.rules["r-laptop"].MaxInsertions = 1
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.ScanContent(ctx, testOwner, testContent)
		require.NoError(t, err)
		_, err = f.svc.BulkAccept(ctx, testOwner, testContent)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, strings.Count(f.body(), "<a "))
	assert.Equal(t, 1, f.store.rules["r-laptop"].UsageCount)
	records, err := f.svc.ListInsertions(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestScanContent_PendingCountsTowardQuota(t *testing.T) {
	f := newFixture(t, laptopBody)
	f.store.rules["r-laptop"].MaxInsertions = 2
	ctx := context.Background()

	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	require.Len(t, created, 2)
	_, err = f.svc.Accept(ctx, testOwner, created[0].ID, nil)
	require.NoError(t, err)

	again, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestScanContent_UnknownContent(t *testing.T) {
	f := newFixture(t, laptopBody)
	_, err := f.svc.ScanContent(context.Background(), testOwner, "missing")
	assert.ErrorIs(t, err, suggestion.ErrNotFound)
}

func TestCreateFromCandidates_AllOrNothing(t *testing.T) {
	f := newFixture(t, laptopBody)
	cands := []domain.Candidate{
		{RuleID: "r-laptop", ContentID: testContent, Span: domain.Span{Start: 9, End: 15}, MatchedText: "laptop", AnchorText: "laptop", Source: domain.RuleMatched("r-laptop")},
		{RuleID: "r-laptop", ContentID: testContent, Span: domain.Span{Start: 30, End: 36}, AnchorText: "", Source: domain.RuleMatched("r-laptop")},
	}
	_, err := f.svc.CreateFromCandidates(context.Background(), testOwner, cands)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, f.store.suggestions)
}

func TestCreateFromCandidates_AIConfidence(t *testing.T) {
	f := newFixture(t, laptopBody)
	out, err := f.svc.CreateFromCandidates(context.Background(), testOwner, []domain.Candidate{{
		RuleID: "r-laptop", ContentID: testContent, Span: domain.Span{Start: 9, End: 15},
		MatchedText: "laptop", AnchorText: "laptop", Source: domain.AISuggested(91, "fits"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 91, out[0].Confidence)
	assert.Equal(t, "fits", out[0].Reasoning)
	assert.Equal(t, domain.InsertionAISuggested, out[0].InsertionType)
}

func TestBulkAccept_UsageAccounting(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	_, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)

	report, err := f.svc.BulkAccept(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Len(t, report.Accepted, 3)
	assert.Empty(t, report.Stale)
	assert.Equal(t, "revisions/content-1/1.html", report.RevisionKey)

	rule := f.store.rules["r-laptop"]
	assert.Equal(t, 3, rule.UsageCount)
	require.NotNil(t, rule.LastUsed)
	assert.Equal(t, fixedNow, *rule.LastUsed)

	body := f.body()
	assert.Equal(t, 3, strings.Count(body, `<a href="https://shop.example.com/laptops?utm_source=blog">laptop</a>`))
	assert.Equal(t, int64(2), f.store.contents[testContent].Version)

	records, err := f.svc.ListInsertions(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, s := range f.store.suggestions {
		assert.Equal(t, domain.SuggestionAccepted, s.Status)
	}
}

func TestAccept_SequentialUpdatesLastUsed(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	require.Len(t, created, 3)

	var last time.Time
	for i, s := range created {
		last = fixedNow.Add(time.Duration(i+1) * time.Hour)
		f.now = last
		_, err := f.svc.Accept(ctx, testOwner, s.ID, nil)
		require.NoError(t, err, "accept %d", i)
	}

	rule := f.store.rules["r-laptop"]
	assert.Equal(t, 3, rule.UsageCount)
	require.NotNil(t, rule.LastUsed)
	assert.Equal(t, last, *rule.LastUsed)
	assert.Equal(t, 3, strings.Count(f.body(), "<a "))
	assert.Equal(t, int64(4), f.store.contents[testContent].Version)

	records, err := f.svc.ListInsertions(ctx, testOwner, testContent)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, fixedNow.Add(time.Duration(i+1)*time.Hour), rec.CreatedAt)
	}
}

func TestBulkAccept_StalePartialSuccess(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)

	// The first occurrence is edited away with a same-length word so the
	// remaining offsets stay valid.
	f.store.contents[testContent].Body = strings.Replace(laptopBody, "laptop", "tablet", 1)

	report, err := f.svc.BulkAccept(ctx, testOwner, testContent)
	require.NoError(t, err)
	assert.Len(t, report.Accepted, 2)
	require.Len(t, report.Stale, 1)
	assert.Equal(t, "drifted", string(report.Stale[0].Reason))

	first := created[0]
	for _, s := range created {
		if s.SuggestedPosition < first.SuggestedPosition {
			first = s
		}
	}
	assert.Equal(t, first.ID, report.Stale[0].SuggestionID)
	assert.Equal(t, domain.SuggestionPending, f.store.suggestions[first.ID].Status)
	assert.Equal(t, 2, f.store.rules["r-laptop"].UsageCount)
}

func TestBulkAccept_NothingPending(t *testing.T) {
	f := newFixture(t, laptopBody)
	report, err := f.svc.BulkAccept(context.Background(), testOwner, testContent)
	require.NoError(t, err)
	assert.Empty(t, report.Accepted)
	assert.Equal(t, 0, f.store.commits)
}

func TestBulkAccept_CancelledCommitsNothing(t *testing.T) {
	f := newFixture(t, laptopBody)
	_, err := f.svc.ScanContent(context.Background(), testOwner, testContent)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.BulkAccept(ctx, testOwner, testContent)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, laptopBody, f.body())
	assert.Equal(t, 0, f.store.commits)
	assert.Equal(t, 0, f.store.rules["r-laptop"].UsageCount)
}

func TestBulkAccept_ContentLocked(t *testing.T) {
	f := newFixture(t, laptopBody)
	_, err := f.svc.ScanContent(context.Background(), testOwner, testContent)
	require.NoError(t, err)

	f.locker.held["content:"+testContent] = true
	_, err = f.svc.BulkAccept(context.Background(), testOwner, testContent)
	assert.ErrorIs(t, err, suggestion.ErrContentLocked)
	assert.Equal(t, laptopBody, f.body())
}

func TestBulkAccept_ArchiveFailureAborts(t *testing.T) {
	f := newFixture(t, laptopBody)
	_, err := f.svc.ScanContent(context.Background(), testOwner, testContent)
	require.NoError(t, err)

	f.arch.err = errors.New("s3 down")
	_, err = f.svc.BulkAccept(context.Background(), testOwner, testContent)
	assert.Error(t, err)
	assert.Equal(t, 0, f.store.commits)
}

func TestBulkAccept_VersionConflict(t *testing.T) {
	f := newFixture(t, laptopBody)
	_, err := f.svc.ScanContent(context.Background(), testOwner, testContent)
	require.NoError(t, err)

	f.store.commitErr = domain.ErrConflict
	_, err = f.svc.BulkAccept(context.Background(), testOwner, testContent)
	assert.ErrorIs(t, err, domain.ErrConflict)
	for _, s := range f.store.suggestions {
		assert.Equal(t, domain.SuggestionPending, s.Status)
	}
}

func TestAccept_StateMachine(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	id := created[0].ID

	feedback := "good fit"
	report, err := f.svc.Accept(ctx, testOwner, id, &feedback)
	require.NoError(t, err)
	require.Len(t, report.Accepted, 1)
	assert.Equal(t, 1, f.store.rules["r-laptop"].UsageCount)
	assert.Equal(t, "good fit", *f.store.suggestions[id].UserFeedback)

	_, err = f.svc.Accept(ctx, testOwner, id, nil)
	assert.ErrorIs(t, err, suggestion.ErrInvalidState)
	_, err = f.svc.Reject(ctx, testOwner, id, nil)
	assert.ErrorIs(t, err, suggestion.ErrInvalidState)

	reopened, err := f.svc.Reopen(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SuggestionPending, reopened.Status)

	// The link is already in the body, so a second accept is stale.
	_, err = f.svc.Accept(ctx, testOwner, id, nil)
	assert.ErrorIs(t, err, suggestion.ErrStale)
	assert.Equal(t, 1, f.store.rules["r-laptop"].UsageCount)
}

func TestAccept_NotFound(t *testing.T) {
	f := newFixture(t, laptopBody)
	_, err := f.svc.Accept(context.Background(), testOwner, "nope", nil)
	assert.ErrorIs(t, err, suggestion.ErrNotFound)
	_, err = f.svc.Reject(context.Background(), testOwner, "nope", nil)
	assert.ErrorIs(t, err, suggestion.ErrNotFound)
}

func TestAccept_RuleDeletedIsStale(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)
	delete(f.store.rules, "r-laptop")

	report, err := f.svc.Accept(ctx, testOwner, created[0].ID, nil)
	assert.ErrorIs(t, err, suggestion.ErrStale)
	require.NotNil(t, report)
	assert.Equal(t, suggestion.StaleRuleMissing, report.Stale[0].Reason)
	assert.Equal(t, laptopBody, f.body())
}

func TestReject_LeavesContentUntouched(t *testing.T) {
	f := newFixture(t, laptopBody)
	ctx := context.Background()
	created, err := f.svc.ScanContent(ctx, testOwner, testContent)
	require.NoError(t, err)

	s, err := f.svc.Reject(ctx, testOwner, created[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SuggestionRejected, s.Status)
	assert.Equal(t, laptopBody, f.body())
	assert.Equal(t, 0, f.store.rules["r-laptop"].UsageCount)

	_, err = f.svc.Reopen(ctx, testOwner, created[1].ID)
	assert.ErrorIs(t, err, suggestion.ErrInvalidState, "pending cannot be reopened")
}

func TestGenerate_RealignsAndDropsUnknownRules(t *testing.T) {
	f := newFixture(t, laptopBody)
	f.gen.items = []suggestion.Generated{
		{LinkID: "r-laptop", AnchorText: "laptop", Position: 30, Confidence: 88, Reasoning: "<b>natural</b> fit"},
		{LinkID: "r-unknown", AnchorText: "today", Position: 16, Confidence: 90},
		{LinkID: "r-laptop", AnchorText: "desktop", Position: 5, Confidence: 90},
	}

	out, err := f.svc.Generate(context.Background(), testOwner, testContent)
	require.NoError(t, err)
	require.Len(t, out, 1)
	s := out[0]
	assert.Equal(t, "laptop", laptopBody[s.SuggestedPosition:s.SuggestedPosition+6])
	assert.Equal(t, 88, s.Confidence)
	assert.Equal(t, "natural fit", s.Reasoning)
	assert.Equal(t, domain.InsertionAISuggested, s.InsertionType)

	assert.NotContains(t, f.gen.got.Context, "<p>")
	require.Len(t, f.gen.got.Keywords, 1)
	assert.Equal(t, "r-laptop", f.gen.got.Keywords[0].LinkID)
}

func TestGenerate_SkipsRulesWithSpentQuota(t *testing.T) {
	f := newFixture(t, laptopBody)
	f.store.rules["r-laptop"].MaxInsertions = 1
	f.store.insertions = []domain.InsertionRecord{{ID: "i1", ContentID: testContent, LinkID: "r-laptop"}}
	f.gen.items = []suggestion.Generated{{LinkID: "r-laptop", AnchorText: "laptop", Position: 9, Confidence: 90}}

	out, err := f.svc.Generate(context.Background(), testOwner, testContent)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, f.gen.got.Keywords)
	assert.Empty(t, f.store.suggestions)
}

func TestGenerate_Timeout(t *testing.T) {
	f := newFixture(t, laptopBody)
	f.gen.block = true
	_, err := f.svc.Generate(context.Background(), testOwner, testContent)
	assert.ErrorIs(t, err, suggestion.ErrGenerationTimeout)
	assert.Empty(t, f.store.suggestions)
}

func TestList_InvalidStatus(t *testing.T) {
	f := newFixture(t, laptopBody)
	_, _, err := f.svc.List(context.Background(), testOwner, suggestion.ListFilter{Status: "maybe"})
	assert.True(t, domain.IsValidation(err))
}
