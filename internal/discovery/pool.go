package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"markpilot/internal/model"
	"markpilot/internal/progress"
	"markpilot/internal/storage"
)

// Discoverer locates a feed for a site. Satisfied by Prober.
type Discoverer interface {
	Discover(ctx context.Context, siteURL string) (*Found, error)
}

// Pool runs probes over a candidate list with a bounded number in flight.
// A finished probe immediately frees its slot for the next candidate, so
// the pool stays full until the list drains.
type Pool struct {
	prober Discoverer
	store  storage.Storage
	size   int
	sink   progress.Sink
}

// NewPool creates a Pool. A nil sink discards progress events.
func NewPool(prober Discoverer, store storage.Storage, size int, sink progress.Sink) *Pool {
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Pool{prober: prober, store: store, size: size, sink: sink}
}

// Run probes every candidate and persists each outcome as it settles:
// a discovered feed becomes a subscription, a completed probe without a
// feed caches the candidate's key, a probe that never got a response is
// only logged so the next run retries it. Returns the number of
// subscriptions created.
func (p *Pool) Run(ctx context.Context, candidates []Candidate) int {
	var (
		mu    sync.Mutex
		added int
		done  int
	)
	total := len(candidates)

	var g errgroup.Group
	g.SetLimit(p.size)
	for _, c := range candidates {
		g.Go(func() error {
			found, err := p.prober.Discover(ctx, c.URL)

			mu.Lock()
			defer mu.Unlock()
			done++

			switch {
			case err != nil:
				p.sink.Publish(progress.Event{
					Kind:    progress.KindError,
					Message: fmt.Sprintf("probe %s failed: %v", c.URL, err),
				})
			case found == nil:
				if err := p.store.AddDomains(ctx, model.DomainNoFeed, []string{c.CacheKey}); err != nil {
					p.sink.Publish(progress.Event{
						Kind:    progress.KindError,
						Message: fmt.Sprintf("cache %s: %v", c.CacheKey, err),
					})
				}
				p.sink.Publish(progress.Event{
					Kind:    progress.KindProgress,
					Message: fmt.Sprintf("%d/%d %s: no feed", done, total, c.URL),
				})
			default:
				sub := newSubscription(c, found)
				if err := p.store.SaveSubscription(ctx, sub); err != nil {
					p.sink.Publish(progress.Event{
						Kind:    progress.KindError,
						Message: fmt.Sprintf("save subscription for %s: %v", c.URL, err),
					})
					return nil
				}
				added++
				p.sink.Publish(progress.Event{
					Kind:    progress.KindProgress,
					Message: fmt.Sprintf("%d/%d %s: %s feed at %s", done, total, c.URL, found.FeedType, found.FeedURL),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return added
}

func newSubscription(c Candidate, found *Found) *model.Subscription {
	title := c.Title
	if title == "" {
		title = found.Title
	}
	return &model.Subscription{
		ID:        uuid.New().String(),
		URL:       c.URL,
		Title:     title,
		FeedURL:   found.FeedURL,
		FeedType:  found.FeedType,
		FeedTitle: found.Title,
		Followed:  true,
		CreatedAt: time.Now().UTC(),
	}
}
