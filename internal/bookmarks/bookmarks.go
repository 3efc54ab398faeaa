// Package bookmarks provides the bookmark tree: hierarchical folders and
// bookmark leaves with create/move/delete/search operations.
package bookmarks

import (
	"context"

	"markpilot/internal/model"
)

// CreateParams holds the fields for creating a node. An empty URL creates
// a folder.
type CreateParams struct {
	ParentID string
	Title    string
	URL      string
}

// Service is the bookmark tree collaborator. The reorganization pipeline,
// backup, and discovery consume only this interface.
type Service interface {
	// GetTree returns the forest under the permanent roots, roots included.
	GetTree(ctx context.Context) ([]model.BookmarkNode, error)
	// GetSubTree returns the node with the given ID and its descendants.
	GetSubTree(ctx context.Context, id string) (*model.BookmarkNode, error)
	// Create adds a folder or bookmark under ParentID.
	Create(ctx context.Context, p CreateParams) (*model.BookmarkNode, error)
	// Remove deletes a leaf node or an empty folder.
	Remove(ctx context.Context, id string) error
	// RemoveTree deletes a node and all of its descendants.
	RemoveTree(ctx context.Context, id string) error
	// Move reparents a node.
	Move(ctx context.Context, id, parentID string) error
	// Search returns bookmarks whose title or URL contains the query.
	Search(ctx context.Context, query string) ([]model.BookmarkNode, error)
	// Update changes a node's title.
	Update(ctx context.Context, id, title string) error
}
