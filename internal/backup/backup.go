// Package backup exports and imports the full application state: the
// bookmark tree, click stats, and settings.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"markpilot/internal/bookmarks"
	"markpilot/internal/model"
	"markpilot/internal/storage"
)

// ErrInvalidBackup is returned when the imported data is not a backup
// produced by Export.
var ErrInvalidBackup = errors.New("invalid backup file")

const backupType = "backup"

type payload struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Bookmarks json.RawMessage   `json:"bookmarks"`
	Stats     map[string]int    `json:"stats"`
	Settings  map[string]string `json:"settings"`
}

// Backup exports and restores application state.
type Backup struct {
	tree  bookmarks.Service
	store storage.Storage
	log   *slog.Logger
}

// New creates a Backup over the tree and store.
func New(tree bookmarks.Service, store storage.Storage, log *slog.Logger) *Backup {
	if log == nil {
		log = slog.Default()
	}
	return &Backup{tree: tree, store: store, log: log}
}

// Export serializes the bookmark forest, click stats, and settings.
func (b *Backup) Export(ctx context.Context) ([]byte, error) {
	forest, err := b.tree.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	stats, err := b.store.ClickStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("click stats: %w", err)
	}
	settings, err := b.store.AllSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	raw, err := json.Marshal(forest)
	if err != nil {
		return nil, fmt.Errorf("marshal tree: %w", err)
	}
	return json.MarshalIndent(payload{
		Type:      backupType,
		Timestamp: time.Now().UTC(),
		Bookmarks: raw,
		Stats:     stats,
		Settings:  settings,
	}, "", "  ")
}

// Import replaces the entire application state with the backup's. The
// current bookmark tree, subscriptions, stats, and settings are wiped
// first; there is no way back, callers must confirm beforehand.
func (b *Backup) Import(ctx context.Context, data []byte) error {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if p.Type != backupType {
		return fmt.Errorf("%w: type %q", ErrInvalidBackup, p.Type)
	}
	if len(p.Bookmarks) == 0 || bytes.TrimSpace(p.Bookmarks)[0] != '[' {
		return fmt.Errorf("%w: bookmarks is not an array", ErrInvalidBackup)
	}
	var forest []model.BookmarkNode
	if err := json.Unmarshal(p.Bookmarks, &forest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	roots, err := b.tree.GetTree(ctx)
	if err != nil {
		return fmt.Errorf("get tree: %w", err)
	}
	for _, root := range roots {
		for _, child := range root.Children {
			if err := b.tree.RemoveTree(ctx, child.ID); err != nil {
				b.log.Warn("clear bookmark failed", "id", child.ID, "error", err)
			}
		}
	}
	if err := b.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}

	for key, value := range p.Settings {
		if err := b.store.SetSetting(ctx, key, value); err != nil {
			return fmt.Errorf("restore setting %s: %w", key, err)
		}
	}
	for url, count := range p.Stats {
		if err := b.store.SetClicks(ctx, url, count); err != nil {
			return fmt.Errorf("restore stat %s: %w", url, err)
		}
	}

	return b.restoreForest(ctx, roots, forest)
}

// restoreForest places each top-level backup folder under the matching
// permanent root, matched by ID first and title second. Unmatched
// top-level folders land under the first root.
func (b *Backup) restoreForest(ctx context.Context, roots, forest []model.BookmarkNode) error {
	if len(roots) == 0 {
		return errors.New("no permanent roots")
	}

	for _, top := range forest {
		rootID := b.matchRoot(roots, top)
		if rootID != "" {
			for _, child := range top.Children {
				if err := b.restoreNode(ctx, rootID, child); err != nil {
					return err
				}
			}
			continue
		}
		if err := b.restoreNode(ctx, roots[0].ID, top); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backup) matchRoot(roots []model.BookmarkNode, top model.BookmarkNode) string {
	for _, r := range roots {
		if r.ID == top.ID {
			return r.ID
		}
	}
	for _, r := range roots {
		if r.Title == top.Title {
			return r.ID
		}
	}
	return ""
}

func (b *Backup) restoreNode(ctx context.Context, parentID string, node model.BookmarkNode) error {
	created, err := b.tree.Create(ctx, bookmarks.CreateParams{
		ParentID: parentID,
		Title:    node.Title,
		URL:      node.URL,
	})
	if err != nil {
		return fmt.Errorf("restore %q: %w", node.Title, err)
	}
	for _, child := range node.Children {
		if err := b.restoreNode(ctx, created.ID, child); err != nil {
			return err
		}
	}
	return nil
}
