// Package pipeline implements the bookmark reorganization run: flattening
// the tree, batching bookmarks to the categorization client under a
// concurrency cap, and rebuilding the folder tree from the merged result.
package pipeline

import (
	"markpilot/internal/model"
)

// Flatten reduces a bookmark forest to a flat list of bookmarks via
// depth-first traversal. Duplicates by URL are dropped, first occurrence
// wins; this is the single dedup point preventing the same URL from being
// categorized (and priced) twice.
func Flatten(tree []model.BookmarkNode) []model.FlatBookmark {
	seen := make(map[string]bool)
	var out []model.FlatBookmark

	var walk func(nodes []model.BookmarkNode)
	walk = func(nodes []model.BookmarkNode) {
		for _, n := range nodes {
			if n.URL != "" && !seen[n.URL] {
				seen[n.URL] = true
				out = append(out, model.FlatBookmark{ID: n.ID, Title: n.Title, URL: n.URL})
			}
			if len(n.Children) > 0 {
				walk(n.Children)
			}
		}
	}
	walk(tree)
	return out
}

// SplitBatches partitions bookmarks into batches of at most size entries,
// preserving order.
func SplitBatches(bookmarks []model.FlatBookmark, size int) [][]model.FlatBookmark {
	if size <= 0 || len(bookmarks) == 0 {
		return nil
	}
	var batches [][]model.FlatBookmark
	for i := 0; i < len(bookmarks); i += size {
		end := min(i+size, len(bookmarks))
		batches = append(batches, bookmarks[i:end])
	}
	return batches
}
