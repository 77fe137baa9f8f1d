package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/pkg/httpretry"
	"github.com/ignite/autolink/internal/pkg/logger"
)

// FeedConfig names one publisher feed whose items map to content IDs.
type FeedConfig struct {
	URL     string `yaml:"url"`
	OwnerID string `yaml:"owner_id"`
}

// FeedWatcher polls publisher RSS/Atom feeds and scans the content behind
// new or updated items. An item's GUID (or link when the GUID is empty) is
// taken as the content ID.
type FeedWatcher struct {
	parser      *gofeed.Parser
	feeds       []FeedConfig
	scanner     Scanner
	concurrency int

	// seen maps owner|url to the items of that feed's latest document and
	// the timestamp each was last scanned at. Items that leave the document
	// are forgotten.
	mu   sync.Mutex
	seen map[string]map[string]time.Time

	totalCreated int64
	totalErrors  int64
}

// NewFeedWatcher creates a watcher for feeds.
func NewFeedWatcher(feeds []FeedConfig, scanner Scanner, concurrency int) *FeedWatcher {
	if concurrency <= 0 {
		concurrency = 2
	}
	parser := gofeed.NewParser()
	parser.Client = httpretry.NewClient(30*time.Second, 3)
	return &FeedWatcher{
		parser:      parser,
		feeds:       feeds,
		scanner:     scanner,
		concurrency: concurrency,
		seen:        make(map[string]map[string]time.Time),
	}
}

// PollAll polls every configured feed and returns the number of content
// items scanned. A failing feed is logged and skipped.
func (f *FeedWatcher) PollAll(ctx context.Context) (int, error) {
	total := 0
	for _, fc := range f.feeds {
		n, err := f.Poll(ctx, fc)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			atomic.AddInt64(&f.totalErrors, 1)
			logger.Warn("feed poll failed", "url", fc.URL, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

// Poll fetches one feed and scans items not seen at their current timestamp.
// An item whose scan fails is retried on the next poll.
func (f *FeedWatcher) Poll(ctx context.Context, fc FeedConfig) (int, error) {
	feed, err := f.parser.ParseURLWithContext(fc.URL, ctx)
	if err != nil {
		return 0, err
	}

	feedKey := fc.OwnerID + "|" + fc.URL
	f.mu.Lock()
	prev := f.seen[feedKey]
	f.mu.Unlock()

	current := make(map[string]time.Time, len(feed.Items))
	var refs []domain.ContentRef
	for _, item := range feed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}
		ts := itemTime(item)
		if last, ok := prev[id]; ok {
			current[id] = last
			if !ts.After(last) {
				continue
			}
		}
		refs = append(refs, domain.ContentRef{ID: id, OwnerID: fc.OwnerID, UpdatedAt: ts})
	}

	n := 0
	if len(refs) > 0 {
		var failed int64
		errs := scanAll(ctx, notFoundTolerant{f.scanner}, refs, f.concurrency, &f.totalCreated, &failed)
		atomic.AddInt64(&f.totalErrors, failed)
		for i, ref := range refs {
			if errs[i] == nil {
				current[ref.ID] = ref.UpdatedAt
				n++
			}
		}
	}

	f.mu.Lock()
	f.seen[feedKey] = current
	f.mu.Unlock()
	return n, nil
}

func itemTime(item *gofeed.Item) time.Time {
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	return time.Time{}
}

// notFoundTolerant treats feed items with no matching content as empty scans.
type notFoundTolerant struct{ Scanner }

func (s notFoundTolerant) ScanContent(ctx context.Context, ownerID, contentID string) ([]domain.Suggestion, error) {
	out, err := s.Scanner.ScanContent(ctx, ownerID, contentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return out, err
}
