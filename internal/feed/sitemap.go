package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"markpilot/internal/model"
)

// A sitemap index is followed at most this many children deep to bound
// the number of requests a single refresh can issue.
const maxSitemapChildren = 3

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapURL `xml:"sitemap"`
}

// FetchSitemap downloads a sitemap and converts its URLs to feed items,
// newest first by lastmod. A sitemap index is resolved by fetching its
// first child sitemaps.
func (f *Fetcher) FetchSitemap(ctx context.Context, url string) (*Result, error) {
	urls, err := f.fetchSitemapURLs(ctx, url, true)
	if err != nil {
		return nil, err
	}

	// Entries with a lastmod sort newest first; undated entries keep
	// document order at the tail.
	sort.SliceStable(urls, func(i, j int) bool {
		return urls[i].LastMod > urls[j].LastMod
	})

	result := &Result{Type: model.FeedSitemap}
	for _, u := range urls {
		if len(result.Items) >= model.MaxItems {
			break
		}
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		result.Items = append(result.Items, model.FeedItem{
			Title:   pageTitleFromURL(loc),
			Link:    loc,
			PubDate: u.LastMod,
		})
	}
	return result, nil
}

func (f *Fetcher) fetchSitemapURLs(ctx context.Context, url string, followIndex bool) ([]sitemapURL, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		return set.URLs, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		if !followIndex {
			return nil, nil
		}
		var urls []sitemapURL
		for i, child := range index.Sitemaps {
			if i >= maxSitemapChildren {
				break
			}
			childURLs, err := f.fetchSitemapURLs(ctx, strings.TrimSpace(child.Loc), false)
			if err != nil {
				continue
			}
			urls = append(urls, childURLs...)
		}
		return urls, nil
	}

	return nil, fmt.Errorf("not a sitemap: %s", url)
}

// pageTitleFromURL derives a readable title from the last path segment.
func pageTitleFromURL(loc string) string {
	trimmed := strings.TrimRight(loc, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return trimmed
	}
	segment := trimmed[idx+1:]
	segment = strings.TrimSuffix(segment, ".html")
	segment = strings.ReplaceAll(segment, "-", " ")
	segment = strings.ReplaceAll(segment, "_", " ")
	if segment == "" {
		return loc
	}
	return strings.ToUpper(segment[:1]) + segment[1:]
}
