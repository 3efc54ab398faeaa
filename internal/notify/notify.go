// Package notify delivers new-item notifications. Delivery is best
// effort: a failed send is logged, never retried.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"markpilot/internal/model"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, title, message, url string) error
}

// Multi fans a notification out to every sender, best effort.
type Multi []Sender

// Send delivers to all senders and returns the first error, if any.
func (m Multi) Send(ctx context.Context, title, message, url string) error {
	var first error
	for _, s := range m {
		if err := s.Send(ctx, title, message, url); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FormatNewItems builds a notification body for a refresh that produced
// new items across subscriptions.
func FormatNewItems(counts map[string]int, total int) (title, message string) {
	title = fmt.Sprintf("%d new items", total)
	if total == 1 {
		title = "1 new item"
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %d\n", name, counts[name])
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// FormatItem builds a notification body for a single feed item.
func FormatItem(feedName string, item model.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", feedName)
	b.WriteString(item.Title)
	if item.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(item.Description)
	}
	return b.String()
}
