package bookmarks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"markpilot/internal/model"
)

// ErrNotFound is returned when a node does not exist.
var ErrNotFound = errors.New("bookmark node not found")

// ErrNotEmpty is returned by Remove when the folder still has children.
var ErrNotEmpty = errors.New("folder not empty")

// SQLite implements Service backed by the bookmark_nodes table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an opened, migrated database handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

type nodeRow struct {
	id       string
	parentID sql.NullString
	title    string
	url      sql.NullString
	position int
}

func (s *SQLite) allRows(ctx context.Context) ([]nodeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, title, url, position FROM bookmark_nodes`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var all []nodeRow
	for rows.Next() {
		var r nodeRow
		if err := rows.Scan(&r.id, &r.parentID, &r.title, &r.url, &r.position); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		all = append(all, r)
	}
	return all, rows.Err()
}

// buildForest assembles nested BookmarkNodes from flat rows, children
// ordered by position then id.
func buildForest(all []nodeRow, parentID string) []model.BookmarkNode {
	var rows []nodeRow
	for _, r := range all {
		pid := ""
		if r.parentID.Valid {
			pid = r.parentID.String
		}
		if pid == parentID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].position != rows[j].position {
			return rows[i].position < rows[j].position
		}
		return rows[i].id < rows[j].id
	})

	var nodes []model.BookmarkNode
	for _, r := range rows {
		n := model.BookmarkNode{ID: r.id, Title: r.title, URL: r.url.String}
		if !r.url.Valid || r.url.String == "" {
			n.URL = ""
			n.Children = buildForest(all, r.id)
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// GetTree returns the forest under the permanent roots, roots included.
func (s *SQLite) GetTree(ctx context.Context) ([]model.BookmarkNode, error) {
	all, err := s.allRows(ctx)
	if err != nil {
		return nil, err
	}
	return buildForest(all, ""), nil
}

// GetSubTree returns the node with the given ID and its descendants.
func (s *SQLite) GetSubTree(ctx context.Context, id string) (*model.BookmarkNode, error) {
	all, err := s.allRows(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.id != id {
			continue
		}
		n := model.BookmarkNode{ID: r.id, Title: r.title, URL: r.url.String}
		if !r.url.Valid || r.url.String == "" {
			n.URL = ""
			n.Children = buildForest(all, r.id)
		}
		return &n, nil
	}
	return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
}

// Create adds a folder or bookmark under ParentID.
func (s *SQLite) Create(ctx context.Context, p CreateParams) (*model.BookmarkNode, error) {
	if p.ParentID != "" {
		parent, err := s.GetSubTree(ctx, p.ParentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, fmt.Errorf("parent %s is not a folder", p.ParentID)
		}
	}

	var pid *string
	if p.ParentID != "" {
		pid = &p.ParentID
	}

	var position int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position)+1, 0) FROM bookmark_nodes WHERE parent_id IS ?`,
		pid).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("next position: %w", err)
	}

	id := uuid.New().String()
	var url *string
	if p.URL != "" {
		url = &p.URL
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bookmark_nodes (id, parent_id, title, url, position) VALUES (?, ?, ?, ?, ?)`,
		id, pid, p.Title, url, position)
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}

	return &model.BookmarkNode{ID: id, Title: p.Title, URL: p.URL}, nil
}

// Remove deletes a leaf node or an empty folder.
func (s *SQLite) Remove(ctx context.Context, id string) error {
	var children int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookmark_nodes WHERE parent_id = ?`, id).Scan(&children)
	if err != nil {
		return fmt.Errorf("count children: %w", err)
	}
	if children > 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotEmpty)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmark_nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

// RemoveTree deletes a node and all of its descendants.
func (s *SQLite) RemoveTree(ctx context.Context, id string) error {
	all, err := s.allRows(ctx)
	if err != nil {
		return err
	}

	ids := []string{id}
	collectDescendants(all, id, &ids)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, nid := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookmark_nodes WHERE id = ?`, nid); err != nil {
			return fmt.Errorf("delete node %s: %w", nid, err)
		}
	}
	return tx.Commit()
}

func collectDescendants(all []nodeRow, parentID string, out *[]string) {
	for _, r := range all {
		if r.parentID.Valid && r.parentID.String == parentID {
			*out = append(*out, r.id)
			collectDescendants(all, r.id, out)
		}
	}
}

// Move reparents a node, appending it at the end of the new parent.
func (s *SQLite) Move(ctx context.Context, id, parentID string) error {
	parent, err := s.GetSubTree(ctx, parentID)
	if err != nil {
		return err
	}
	if !parent.IsFolder() {
		return fmt.Errorf("parent %s is not a folder", parentID)
	}

	var position int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position)+1, 0) FROM bookmark_nodes WHERE parent_id = ?`,
		parentID).Scan(&position); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE bookmark_nodes SET parent_id = ?, position = ? WHERE id = ?`,
		parentID, position, id)
	if err != nil {
		return fmt.Errorf("move node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

// Search returns bookmarks whose title or URL contains the query,
// case-insensitively.
func (s *SQLite) Search(ctx context.Context, query string) ([]model.BookmarkNode, error) {
	all, err := s.allRows(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var hits []model.BookmarkNode
	for _, r := range all {
		if !r.url.Valid || r.url.String == "" {
			continue
		}
		if strings.Contains(strings.ToLower(r.title), q) ||
			strings.Contains(strings.ToLower(r.url.String), q) {
			hits = append(hits, model.BookmarkNode{ID: r.id, Title: r.title, URL: r.url.String})
		}
	}
	return hits, nil
}

// Update changes a node's title.
func (s *SQLite) Update(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookmark_nodes SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}
