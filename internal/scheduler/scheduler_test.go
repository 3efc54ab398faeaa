package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"markpilot/internal/model"
	"markpilot/internal/service"
	"markpilot/internal/storage"
)

type fakeRefresher struct {
	summary *service.RefreshSummary
	err     error
	calls   atomic.Int32
}

func (f *fakeRefresher) RefreshAll(_ context.Context) (*service.RefreshSummary, error) {
	f.calls.Add(1)
	return f.summary, f.err
}

type fakeSender struct {
	titles   []string
	messages []string
}

func (f *fakeSender) Send(_ context.Context, title, message, _ string) error {
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return nil
}

type fakeBriefer struct {
	sections []model.BriefingSection
	err      error
	content  string
}

func (f *fakeBriefer) GenerateBriefing(_ context.Context, content string) ([]model.BriefingSection, error) {
	f.content = content
	return f.sections, f.err
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	store := storage.NewSQLite(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCycleNotifiesAndSavesBriefing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	refresher := &fakeRefresher{summary: &service.RefreshSummary{
		Total:  3,
		Counts: map[string]int{"Go Blog": 2, "Releases": 1},
		NewItems: []model.FeedItem{
			{Title: "Profiling", Description: "CPU"},
			{Title: "SQLite"},
			{Title: "v2.4.0"},
		},
	}}
	sender := &fakeSender{}
	briefer := &fakeBriefer{sections: []model.BriefingSection{{Title: "Highlights", Content: "Go news"}}}

	s := New(refresher, store, sender, briefer, nil)
	s.cycle(ctx)

	if len(sender.titles) != 1 || sender.titles[0] != "3 new items" {
		t.Errorf("notification titles = %v", sender.titles)
	}
	if briefer.content == "" {
		t.Fatal("briefer got no content")
	}

	raw, err := store.GetSetting(ctx, SavedBriefingKey)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	var sections []model.BriefingSection
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		t.Fatalf("saved briefing not valid JSON: %v", err)
	}
	if diff := cmp.Diff(briefer.sections, sections); diff != "" {
		t.Errorf("saved briefing mismatch (-want +got):\n%s", diff)
	}
}

func TestCycleQuietWhenNothingNew(t *testing.T) {
	store := newTestStore(t)

	refresher := &fakeRefresher{summary: &service.RefreshSummary{Counts: map[string]int{}}}
	sender := &fakeSender{}
	briefer := &fakeBriefer{}

	s := New(refresher, store, sender, briefer, nil)
	s.cycle(context.Background())

	if len(sender.titles) != 0 {
		t.Errorf("notified despite no new items: %v", sender.titles)
	}
	if briefer.content != "" {
		t.Error("briefing regenerated despite no new items")
	}
}

func TestCycleKeepsPreviousBriefingOnFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.SetSetting(ctx, SavedBriefingKey, `[{"title":"Old","content":"kept"}]`); err != nil {
		t.Fatalf("seed setting: %v", err)
	}

	refresher := &fakeRefresher{summary: &service.RefreshSummary{
		Total:    1,
		Counts:   map[string]int{"Go Blog": 1},
		NewItems: []model.FeedItem{{Title: "x"}},
	}}
	briefer := &fakeBriefer{err: errors.New("api down")}

	s := New(refresher, store, nil, briefer, nil)
	s.cycle(ctx)

	raw, err := store.GetSetting(ctx, SavedBriefingKey)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if raw != `[{"title":"Old","content":"kept"}]` {
		t.Errorf("previous briefing overwritten: %s", raw)
	}
}

func TestRunFirstCycleImmediate(t *testing.T) {
	store := newTestStore(t)
	refresher := &fakeRefresher{summary: &service.RefreshSummary{Counts: map[string]int{}}}

	s := New(refresher, store, nil, nil, nil)
	s.SetTickInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The first cycle runs before the first tick.
	deadline := time.After(2 * time.Second)
	for refresher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no refresh before first tick")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
	<-done
}
