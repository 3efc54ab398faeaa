// Package feed handles downloading and parsing RSS, Atom, and sitemap
// feeds, and refreshing subscriptions from them.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"markpilot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	userAgent   = "MarkPilot/1.0"
	maxBodySize = 5 * 1024 * 1024
	maxDescLen  = 300
)

// Result holds a parsed feed mapped to domain items.
type Result struct {
	Title string
	Type  model.FeedType
	Items []model.FeedItem
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads the feed at url according to its type. Sitemaps go
// through the XML sitemap parser, everything else through gofeed.
func (f *Fetcher) Fetch(ctx context.Context, url string, feedType model.FeedType) (*Result, error) {
	if feedType == model.FeedSitemap {
		return f.FetchSitemap(ctx, url)
	}

	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	result := &Result{
		Title: parsed.Title,
		Type:  model.FeedRSS,
	}
	if parsed.FeedType == "atom" {
		result.Type = model.FeedAtom
	}

	for _, item := range parsed.Items {
		if len(result.Items) >= model.MaxItems {
			break
		}
		pubDate := ""
		if item.PublishedParsed != nil {
			pubDate = item.PublishedParsed.Format(time.RFC3339)
		} else if item.Published != "" {
			pubDate = item.Published
		}
		result.Items = append(result.Items, model.FeedItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			PubDate:     pubDate,
			Description: cleanDescription(item.Description),
		})
	}
	return result, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// cleanDescription strips markup from a feed description and truncates it
// for list display.
func cleanDescription(s string) string {
	text := stripTags(s)
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxDescLen {
		text = text[:maxDescLen] + "..."
	}
	return text
}

func stripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		if tt == html.TextToken {
			b.WriteString(tokenizer.Token().Data)
			b.WriteByte(' ')
		}
	}
}
