// Package titlefix repairs bookmarks that were saved without a title,
// either by asking a titler for names or by fetching the page title with
// a hostname fallback.
package titlefix

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"

	"markpilot/internal/bookmarks"
	"markpilot/internal/model"
	"markpilot/internal/pipeline"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	fetchTimeout = 5 * time.Second
	maxBodySize  = 256 * 1024
	maxPageText  = 5000
)

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Fixer finds and repairs untitled bookmarks.
type Fixer struct {
	tree   bookmarks.Service
	client HTTPClient
	log    *slog.Logger
}

// New creates a Fixer.
func New(tree bookmarks.Service, client HTTPClient, log *slog.Logger) *Fixer {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Fixer{tree: tree, client: client, log: log}
}

// FetchPageTitle downloads the page and extracts its <title>. When the
// page is unreachable or has no title, the hostname serves as the title.
func (f *Fixer) FetchPageTitle(ctx context.Context, rawURL string) string {
	fallback := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		fallback = u.Hostname()
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fallback
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fallback
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fallback
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fallback
	}

	m := titleRe.FindSubmatch(body)
	if m == nil {
		return fallback
	}
	title := strings.TrimSpace(html.UnescapeString(string(m[1])))
	if title == "" {
		return fallback
	}
	return strings.Join(strings.Fields(title), " ")
}

// FixEmptyTitles walks the tree and retitles every bookmark with an
// empty title. Per-bookmark failures log and continue. Returns the
// number of bookmarks updated.
func (f *Fixer) FixEmptyTitles(ctx context.Context) (int, error) {
	tree, err := f.tree.GetTree(ctx)
	if err != nil {
		return 0, err
	}

	fixed := 0
	var walk func(nodes []model.BookmarkNode)
	walk = func(nodes []model.BookmarkNode) {
		for _, n := range nodes {
			if n.URL != "" && strings.TrimSpace(n.Title) == "" {
				title := f.FetchPageTitle(ctx, n.URL)
				if err := f.tree.Update(ctx, n.ID, title); err != nil {
					f.log.Warn("retitle failed", "id", n.ID, "error", err)
					continue
				}
				fixed++
			}
			walk(n.Children)
		}
	}
	walk(tree)
	return fixed, nil
}

// Titler generates titles for a batch of bookmarks, keyed by bookmark ID.
type Titler interface {
	GenerateTitles(ctx context.Context, batch []model.FlatBookmark) (map[string]string, error)
}

// GenerateMissingTitles collects bookmarks with an empty title and asks
// the titler to name them, in batches. Only bookmarks from the untitled
// set are ever updated, whatever IDs the titler returns. Failed batches
// log and continue. Returns the number of titles applied.
func (f *Fixer) GenerateMissingTitles(ctx context.Context, titler Titler, batchSize int) (int, error) {
	tree, err := f.tree.GetTree(ctx)
	if err != nil {
		return 0, err
	}

	var untitled []model.FlatBookmark
	var walk func(nodes []model.BookmarkNode)
	walk = func(nodes []model.BookmarkNode) {
		for _, n := range nodes {
			if n.URL != "" && strings.TrimSpace(n.Title) == "" {
				untitled = append(untitled, model.FlatBookmark{ID: n.ID, URL: n.URL})
			}
			walk(n.Children)
		}
	}
	walk(tree)
	if len(untitled) == 0 {
		return 0, nil
	}

	eligible := make(map[string]bool, len(untitled))
	for _, b := range untitled {
		eligible[b.ID] = true
	}

	applied := 0
	for _, batch := range pipeline.SplitBatches(untitled, batchSize) {
		titles, err := titler.GenerateTitles(ctx, batch)
		if err != nil {
			f.log.Warn("title batch failed", "error", err)
			continue
		}
		for id, title := range titles {
			if !eligible[id] || strings.TrimSpace(title) == "" {
				continue
			}
			if err := f.tree.Update(ctx, id, title); err != nil {
				f.log.Warn("apply title failed", "id", id, "error", err)
				continue
			}
			applied++
		}
	}
	return applied, nil
}

// FetchPageText downloads a page and returns its visible text, with
// script and style content removed and the result capped at maxPageText
// characters.
func (f *Fixer) FetchPageText(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var b strings.Builder
	skipDepth := 0
	tokenizer := xhtml.NewTokenizer(io.LimitReader(resp.Body, maxBodySize))
	for {
		switch tokenizer.Next() {
		case xhtml.ErrorToken:
			text := strings.Join(strings.Fields(b.String()), " ")
			if len(text) > maxPageText {
				text = text[:maxPageText]
			}
			return text, nil
		case xhtml.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case xhtml.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case xhtml.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}
