package feed

import (
	"context"
	"time"

	"markpilot/internal/model"
)

// Refresh fetches the subscription's feed and replaces its items with the
// fetched set. It returns the items not seen on the previous refresh and
// not already marked read. The subscription is mutated in place; the
// caller persists it.
func (f *Fetcher) Refresh(ctx context.Context, sub *model.Subscription) ([]model.FeedItem, error) {
	result, err := f.Fetch(ctx, sub.FeedURL, sub.FeedType)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(sub.Items)+len(sub.ReadItems))
	for _, item := range sub.Items {
		known[item.Link] = true
	}
	for _, link := range sub.ReadItems {
		known[link] = true
	}

	var fresh []model.FeedItem
	for _, item := range result.Items {
		if !known[item.Link] {
			fresh = append(fresh, item)
		}
	}

	// Wholesale replacement: the feed is the source of truth, items that
	// fell out of it fall out of the subscription too.
	sub.Items = result.Items
	if result.Title != "" {
		sub.FeedTitle = result.Title
	}
	now := time.Now().UTC()
	sub.LastChecked = &now

	return fresh, nil
}

// MarkRead records links as read on the subscription, keeping at most
// MaxReadItems entries with the newest at the end.
func MarkRead(sub *model.Subscription, links ...string) {
	seen := make(map[string]bool, len(sub.ReadItems))
	for _, l := range sub.ReadItems {
		seen[l] = true
	}
	for _, l := range links {
		if !seen[l] {
			seen[l] = true
			sub.ReadItems = append(sub.ReadItems, l)
		}
	}
	if len(sub.ReadItems) > model.MaxReadItems {
		sub.ReadItems = sub.ReadItems[len(sub.ReadItems)-model.MaxReadItems:]
	}
}
