// Package service orchestrates subscriptions over storage, discovery,
// and feed fetching.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"markpilot/internal/bookmarks"
	"markpilot/internal/discovery"
	"markpilot/internal/feed"
	"markpilot/internal/model"
	"markpilot/internal/pipeline"
	"markpilot/internal/progress"
	"markpilot/internal/storage"
)

// ErrNoFeed is returned when a site exposes no discoverable feed.
var ErrNoFeed = errors.New("no feed found")

// Service ties subscriptions, discovery, and refresh together.
type Service struct {
	store    storage.Storage
	tree     bookmarks.Service
	fetcher  *feed.Fetcher
	prober   discovery.Discoverer
	poolSize int
	logger   *slog.Logger
}

// New creates a Service.
func New(store storage.Storage, tree bookmarks.Service, fetcher *feed.Fetcher, prober discovery.Discoverer, poolSize int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		tree:     tree,
		fetcher:  fetcher,
		prober:   prober,
		poolSize: poolSize,
		logger:   logger,
	}
}

// CreateSubscription probes siteURL for a feed and, when one is found,
// creates and persists a subscription with an initial item set. A failed
// initial refresh is tolerated; the next refresh cycle fills the items.
func (s *Service) CreateSubscription(ctx context.Context, siteURL, title string) (*model.Subscription, error) {
	found, err := s.prober.Discover(ctx, siteURL)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", siteURL, err)
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", siteURL, ErrNoFeed)
	}

	if title == "" {
		title = found.Title
	}
	sub := &model.Subscription{
		ID:        uuid.New().String(),
		URL:       siteURL,
		Title:     title,
		FeedURL:   found.FeedURL,
		FeedType:  found.FeedType,
		FeedTitle: found.Title,
		Followed:  true,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.fetcher.Refresh(ctx, sub); err != nil {
		s.logger.Warn("initial refresh failed", "url", sub.FeedURL, "error", err)
	}

	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	return sub, nil
}

// DeleteSubscription removes the subscription and records its origin
// domain in the ignored cache so discovery does not resurrect it.
func (s *Service) DeleteSubscription(ctx context.Context, id string) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}
	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if u, err := url.Parse(sub.URL); err == nil && u.Host != "" {
		if err := s.store.AddDomains(ctx, model.DomainIgnored, []string{u.Host}); err != nil {
			return fmt.Errorf("record ignored domain: %w", err)
		}
	}
	return nil
}

// RefreshSummary reports the outcome of a refresh cycle.
type RefreshSummary struct {
	Total    int
	Counts   map[string]int // new items per subscription display name
	NewItems []model.FeedItem
}

// RefreshAll refreshes every subscription. A subscription whose refresh
// fails is logged and skipped, never dropped.
func (s *Service) RefreshAll(ctx context.Context) (*RefreshSummary, error) {
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	summary := &RefreshSummary{Counts: make(map[string]int)}
	for i := range subs {
		sub := &subs[i]
		fresh, err := s.fetcher.Refresh(ctx, sub)
		if err != nil {
			s.logger.Warn("refresh failed", "url", sub.FeedURL, "error", err)
			continue
		}
		if err := s.store.SaveSubscription(ctx, sub); err != nil {
			s.logger.Warn("save after refresh failed", "id", sub.ID, "error", err)
			continue
		}
		if len(fresh) > 0 {
			name := sub.Title
			if name == "" {
				name = sub.FeedTitle
			}
			summary.Counts[name] += len(fresh)
			summary.NewItems = append(summary.NewItems, fresh...)
			summary.Total += len(fresh)
		}
	}
	return summary, nil
}

// MarkRead records item links as read on a subscription.
func (s *Service) MarkRead(ctx context.Context, id string, links ...string) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}
	feed.MarkRead(sub, links...)
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// DiscoverAll derives probe candidates from the bookmark tree, filters
// out known domains, and runs the remainder through the probe pool.
// Returns the number of subscriptions created.
func (s *Service) DiscoverAll(ctx context.Context, sink progress.Sink) (int, error) {
	if sink == nil {
		sink = progress.Nop{}
	}

	tree, err := s.tree.GetTree(ctx)
	if err != nil {
		return 0, fmt.Errorf("get tree: %w", err)
	}
	candidates := discovery.Derive(pipeline.Flatten(tree))

	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}
	ignored, err := s.store.ListDomains(ctx, model.DomainIgnored)
	if err != nil {
		return 0, fmt.Errorf("list ignored domains: %w", err)
	}
	noFeed, err := s.store.ListDomains(ctx, model.DomainNoFeed)
	if err != nil {
		return 0, fmt.Errorf("list no-feed domains: %w", err)
	}

	pending := discovery.FilterKnown(candidates, discovery.SubscribedHosts(subs), ignored, noFeed)
	sink.Publish(progress.Event{
		Kind:    progress.KindLog,
		Message: fmt.Sprintf("probing %d of %d candidates", len(pending), len(candidates)),
	})
	if len(pending) == 0 {
		return 0, nil
	}

	pool := discovery.NewPool(s.prober, s.store, s.poolSize, sink)
	return pool.Run(ctx, pending), nil
}
