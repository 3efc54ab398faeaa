package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"markpilot/internal/model"
	"markpilot/internal/progress"
)

// Worker processes one batch and returns its partial category map.
type Worker func(ctx context.Context, batch []model.FlatBookmark) (model.CategoryMap, error)

// ProcessBatches runs batches through worker with at most limit requests
// in flight. Batches are processed in generations: every batch of a chunk
// settles before the next chunk starts. A failed batch is reported on the
// sink and skipped; its bookmarks simply end up uncategorized. The
// successful partial maps are returned in input order; outcomes are
// recorded per slot regardless of which batch finishes first.
func ProcessBatches(ctx context.Context, batches [][]model.FlatBookmark, limit int, worker Worker, sink progress.Sink) []model.CategoryMap {
	if limit <= 0 {
		limit = 1
	}

	var results []model.CategoryMap
	total := len(batches)
	completed := 0

	for start := 0; start < total; start += limit {
		end := min(start+limit, total)
		chunk := batches[start:end]

		sink.Publish(progress.Event{
			Kind:    progress.KindProgress,
			Message: fmt.Sprintf("categorizing batches %d-%d of %d", start+1, end, total),
		})

		type outcome struct {
			categories model.CategoryMap
			err        error
		}
		outcomes := make([]outcome, len(chunk))

		// All workers of the chunk settle before the next chunk starts.
		// Errors are captured per slot, never propagated to the group.
		var g errgroup.Group
		for i, batch := range chunk {
			g.Go(func() error {
				cats, err := worker(ctx, batch)
				outcomes[i] = outcome{categories: cats, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for _, o := range outcomes {
			completed++
			if o.err != nil {
				sink.Publish(progress.Event{
					Kind:    progress.KindError,
					Message: fmt.Sprintf("batch %d/%d failed: %v", completed, total, o.err),
				})
				continue
			}
			results = append(results, o.categories)
			sink.Publish(progress.Event{
				Kind:    progress.KindLog,
				Message: fmt.Sprintf("batch %d/%d completed", completed, total),
			})
		}
	}

	return results
}

// MergeCategories flattens partial maps into one CategoryMap by shallow
// merge. IDs should not collide across batches given upstream dedup; if
// they do, later entries win.
func MergeCategories(partials []model.CategoryMap) model.CategoryMap {
	merged := make(model.CategoryMap)
	for _, p := range partials {
		for id, category := range p {
			merged[id] = category
		}
	}
	return merged
}
