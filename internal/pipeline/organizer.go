package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"markpilot/internal/bookmarks"
	"markpilot/internal/model"
	"markpilot/internal/progress"
)

// UncategorizedFolder is the lazily created fallback folder for bookmarks
// the provider did not categorize.
const UncategorizedFolder = "Uncategorized"

// ErrNoBookmarks is returned when a reorganization run finds nothing to
// categorize. No side effects have occurred at that point.
var ErrNoBookmarks = errors.New("no categorizable bookmarks")

// Categorizer is the LLM-facing part of the pipeline.
type Categorizer interface {
	CategorizeBatch(ctx context.Context, batch []model.FlatBookmark) (model.CategoryMap, error)
}

// Organizer drives a full reorganization run against the bookmark tree.
type Organizer struct {
	tree        bookmarks.Service
	categorizer Categorizer
	batchSize   int
	concurrency int
	sink        progress.Sink
}

// NewOrganizer creates an Organizer. A nil sink discards progress events.
func NewOrganizer(tree bookmarks.Service, categorizer Categorizer, batchSize, concurrency int, sink progress.Sink) *Organizer {
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Organizer{
		tree:        tree,
		categorizer: categorizer,
		batchSize:   batchSize,
		concurrency: concurrency,
		sink:        sink,
	}
}

// Run flattens the tree, categorizes every bookmark in concurrent batches,
// clears the given roots, and rebuilds the folder tree under rebuildRoot.
// Bookmarks of failed batches land in the fallback folder. There is no
// rollback: a failure mid-rebuild leaves a partially populated tree.
func (o *Organizer) Run(ctx context.Context, rootIDs []string, rebuildRoot string) error {
	tree, err := o.tree.GetTree(ctx)
	if err != nil {
		return fmt.Errorf("get tree: %w", err)
	}

	flat := Flatten(tree)
	if len(flat) == 0 {
		return ErrNoBookmarks
	}

	batches := SplitBatches(flat, o.batchSize)
	o.sink.Publish(progress.Event{
		Kind: progress.KindLog,
		Message: fmt.Sprintf("%d unique bookmarks in %d batches (concurrency %d)",
			len(flat), len(batches), o.concurrency),
	})

	partials := ProcessBatches(ctx, batches, o.concurrency, o.categorizer.CategorizeBatch, o.sink)
	categories := MergeCategories(partials)

	if err := o.ClearAll(ctx, rootIDs); err != nil {
		return err
	}
	return o.Rebuild(ctx, categories, flat, rebuildRoot)
}

// ClearAll deletes the immediate children of each given root folder.
// Per-child failures are logged and skipped so a handful of locked
// bookmarks cannot abort the whole clear.
func (o *Organizer) ClearAll(ctx context.Context, rootIDs []string) error {
	for _, rootID := range rootIDs {
		root, err := o.tree.GetSubTree(ctx, rootID)
		if err != nil {
			o.sink.Publish(progress.Event{
				Kind:    progress.KindError,
				Message: fmt.Sprintf("fetch root %s failed: %v", rootID, err),
			})
			continue
		}
		for _, child := range root.Children {
			if err := o.tree.RemoveTree(ctx, child.ID); err != nil {
				o.sink.Publish(progress.Event{
					Kind:    progress.KindError,
					Message: fmt.Sprintf("remove %s failed: %v", child.ID, err),
				})
			}
		}
	}
	return nil
}

// Rebuild creates one folder per distinct category under rootID and places
// every bookmark in its assigned folder. Bookmarks without an assignment
// go to a lazily created fallback folder. Creation is sequential and not
// transactional.
func (o *Organizer) Rebuild(ctx context.Context, categories model.CategoryMap, list []model.FlatBookmark, rootID string) error {
	// Defensive re-dedup; idempotent with Flatten's own dedup.
	seen := make(map[string]bool)
	var unique []model.FlatBookmark
	for _, b := range list {
		if seen[b.URL] {
			continue
		}
		seen[b.URL] = true
		unique = append(unique, b)
	}

	names := make(map[string]bool)
	for _, name := range categories {
		names[name] = true
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	folders := make(map[string]string, len(ordered))
	for _, name := range ordered {
		folder, err := o.tree.Create(ctx, bookmarks.CreateParams{ParentID: rootID, Title: name})
		if err != nil {
			return fmt.Errorf("create folder %q: %w", name, err)
		}
		folders[name] = folder.ID
	}

	uncategorizedID := ""
	for _, b := range unique {
		parentID := ""
		if name, ok := categories[b.ID]; ok && folders[name] != "" {
			parentID = folders[name]
		} else {
			if uncategorizedID == "" {
				folder, err := o.tree.Create(ctx, bookmarks.CreateParams{ParentID: rootID, Title: UncategorizedFolder})
				if err != nil {
					return fmt.Errorf("create fallback folder: %w", err)
				}
				uncategorizedID = folder.ID
			}
			parentID = uncategorizedID
		}

		if _, err := o.tree.Create(ctx, bookmarks.CreateParams{ParentID: parentID, Title: b.Title, URL: b.URL}); err != nil {
			return fmt.Errorf("create bookmark %q: %w", b.URL, err)
		}
	}

	o.sink.Publish(progress.Event{
		Kind:    progress.KindLog,
		Message: fmt.Sprintf("rebuilt %d bookmarks into %d folders", len(unique), len(folders)),
	})
	return nil
}
