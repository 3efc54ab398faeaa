package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"markpilot/internal/model"
)

var ignoreTimestamps = cmpopts.IgnoreFields(model.Subscription{}, "CreatedAt", "LastChecked")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := NewSQLite(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSubscriptionCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	sub := model.Subscription{
		ID:        "sub1",
		URL:       "https://example.com",
		Title:     "Example",
		FeedURL:   "https://example.com/feed",
		FeedType:  model.FeedRSS,
		FeedTitle: "Example Feed",
		Items: []model.FeedItem{
			{Title: "Post", Link: "https://example.com/p/1", PubDate: "2026-01-02", Description: "hi"},
		},
		ReadItems:   []string{"https://example.com/p/0"},
		LastChecked: &now,
		Followed:    true,
	}

	if err := s.SaveSubscription(ctx, &sub); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetSubscription(ctx, "sub1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(sub, *got, ignoreTimestamps); diff != "" {
		t.Errorf("GetSubscription mismatch (-want +got):\n%s", diff)
	}
	if got.LastChecked == nil || !got.LastChecked.Equal(now) {
		t.Errorf("LastChecked = %v, want %v", got.LastChecked, now)
	}

	// Items replaced wholesale on re-save.
	sub.Items = []model.FeedItem{{Title: "Newer", Link: "https://example.com/p/2"}}
	if err := s.SaveSubscription(ctx, &sub); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err = s.GetSubscription(ctx, "sub1")
	if err != nil {
		t.Fatalf("get after re-save: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Link != "https://example.com/p/2" {
		t.Errorf("items not replaced: %+v", got.Items)
	}

	subs, err := s.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("len(subs) = %d, want 1", len(subs))
	}

	if err := s.DeleteSubscription(ctx, "sub1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSubscription(ctx, "sub1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestDomainCaches(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if err := s.AddDomains(ctx, model.DomainNoFeed, []string{"a.com", "b.com", "a.com"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddDomains(ctx, model.DomainIgnored, []string{"c.com"}); err != nil {
		t.Fatalf("add ignored: %v", err)
	}

	noFeed, err := s.ListDomains(ctx, model.DomainNoFeed)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := map[string]bool{"a.com": true, "b.com": true}
	if diff := cmp.Diff(want, noFeed); diff != "" {
		t.Errorf("noFeed mismatch (-want +got):\n%s", diff)
	}

	// Kinds are independent.
	ignored, err := s.ListDomains(ctx, model.DomainIgnored)
	if err != nil {
		t.Fatalf("list ignored: %v", err)
	}
	if !ignored["c.com"] || len(ignored) != 1 {
		t.Errorf("ignored = %v", ignored)
	}

	if err := s.RemoveDomain(ctx, model.DomainNoFeed, "a.com"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.ClearDomains(ctx, model.DomainIgnored); err != nil {
		t.Fatalf("clear: %v", err)
	}

	noFeed, _ = s.ListDomains(ctx, model.DomainNoFeed)
	ignored, _ = s.ListDomains(ctx, model.DomainIgnored)
	if len(noFeed) != 1 || len(ignored) != 0 {
		t.Errorf("after remove/clear: noFeed = %v, ignored = %v", noFeed, ignored)
	}
}

func TestClickStats(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for i := 0; i < 3; i++ {
		if err := s.IncrementClick(ctx, "https://example.com"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := s.IncrementClick(ctx, "https://other.com"); err != nil {
		t.Fatalf("increment other: %v", err)
	}

	stats, err := s.ClickStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := map[string]int{"https://example.com": 3, "https://other.com": 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	v, err := s.GetSetting(ctx, "missing")
	if err != nil || v != "" {
		t.Fatalf("missing key: v = %q, err = %v", v, err)
	}

	if err := s.SetSetting(ctx, "saved_briefing", "hello"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetSetting(ctx, "saved_briefing", "world"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, err = s.GetSetting(ctx, "saved_briefing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "world" {
		t.Errorf("v = %q, want world", v)
	}

	all, err := s.AllSettings(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 || all["saved_briefing"] != "world" {
		t.Errorf("all = %v", all)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	sub := model.Subscription{ID: "s", URL: "https://x.com", FeedURL: "https://x.com/feed", FeedType: model.FeedRSS}
	if err := s.SaveSubscription(ctx, &sub); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = s.AddDomains(ctx, model.DomainNoFeed, []string{"x.com"})
	_ = s.IncrementClick(ctx, "https://x.com")
	_ = s.SetSetting(ctx, "k", "v")

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	subs, _ := s.ListSubscriptions(ctx)
	domains, _ := s.ListDomains(ctx, model.DomainNoFeed)
	stats, _ := s.ClickStats(ctx)
	settings, _ := s.AllSettings(ctx)
	if len(subs)+len(domains)+len(stats)+len(settings) != 0 {
		t.Errorf("clear left data: %d subs, %d domains, %d stats, %d settings",
			len(subs), len(domains), len(stats), len(settings))
	}
}
