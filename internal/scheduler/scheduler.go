// Package scheduler periodically refreshes subscriptions, notifies about
// new items, and keeps the saved briefing current.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"markpilot/internal/model"
	"markpilot/internal/notify"
	"markpilot/internal/service"
	"markpilot/internal/storage"
)

// SavedBriefingKey is the settings key holding the last generated
// briefing as JSON.
const SavedBriefingKey = "saved_briefing"

// Refresher runs one refresh cycle over all subscriptions.
type Refresher interface {
	RefreshAll(ctx context.Context) (*service.RefreshSummary, error)
}

// Briefer turns new-item content into briefing sections.
type Briefer interface {
	GenerateBriefing(ctx context.Context, content string) ([]model.BriefingSection, error)
}

// Scheduler drives the periodic refresh loop. Sender and briefer are
// optional; a nil value disables that step.
type Scheduler struct {
	refresher Refresher
	store     storage.Storage
	sender    notify.Sender
	briefer   Briefer
	log       *slog.Logger
	tick      time.Duration
}

// New creates a Scheduler.
func New(refresher Refresher, store storage.Storage, sender notify.Sender, briefer Briefer, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		refresher: refresher,
		store:     store,
		sender:    sender,
		briefer:   briefer,
		log:       log,
		tick:      60 * time.Minute,
	}
}

// SetTickInterval overrides the default 60-minute refresh interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the refresh loop, blocking until ctx is cancelled. The first
// cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.cycle(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	summary, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.log.Error("refresh cycle", "error", err)
		return
	}
	if summary.Total == 0 {
		s.log.Debug("refresh cycle: no new items")
		return
	}
	s.log.Info("refresh cycle", "new_items", summary.Total, "subscriptions", len(summary.Counts))

	if s.sender != nil {
		title, message := notify.FormatNewItems(summary.Counts, summary.Total)
		if err := s.sender.Send(ctx, title, message, ""); err != nil {
			s.log.Warn("notification failed", "error", err)
		}
	}

	if s.briefer != nil {
		s.regenerateBriefing(ctx, summary.NewItems)
	}
}

// regenerateBriefing summarizes the new items and persists the result.
// Failures only log; the previous briefing stays in place.
func (s *Scheduler) regenerateBriefing(ctx context.Context, items []model.FeedItem) {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s", item.Title)
		if item.Description != "" {
			fmt.Fprintf(&b, ": %s", item.Description)
		}
		b.WriteByte('\n')
	}

	sections, err := s.briefer.GenerateBriefing(ctx, b.String())
	if err != nil {
		s.log.Warn("briefing generation failed", "error", err)
		return
	}

	data, err := json.Marshal(sections)
	if err != nil {
		s.log.Warn("briefing encode failed", "error", err)
		return
	}
	if err := s.store.SetSetting(ctx, SavedBriefingKey, string(data)); err != nil {
		s.log.Warn("briefing save failed", "error", err)
	}
}
