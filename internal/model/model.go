// Package model defines the domain types used across the application.
package model

import "time"

// BookmarkNode is a node of the bookmark tree. A node with a URL is a
// bookmark; a node without a URL is a folder. Folders may have zero or
// more children, bookmarks never have children.
type BookmarkNode struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	URL      string         `json:"url,omitempty"`
	Children []BookmarkNode `json:"children,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n BookmarkNode) IsFolder() bool {
	return n.URL == ""
}

// FlatBookmark is a single bookmark produced by flattening a tree.
// Within one flatten operation entries are unique by URL.
type FlatBookmark struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// CategoryMap maps a bookmark ID to a provider-generated category name.
// Absence of an ID means the bookmark is uncategorized.
type CategoryMap map[string]string

// FeedType identifies the kind of feed behind a subscription.
type FeedType string

// Supported feed types.
const (
	FeedRSS     FeedType = "rss"
	FeedAtom    FeedType = "atom"
	FeedSitemap FeedType = "sitemap"
)

// Caps on per-subscription item history.
const (
	MaxItems     = 50  // items kept per subscription, newest first
	MaxReadItems = 500 // read-item links remembered per subscription
)

// FeedItem is a single entry of a feed. Link is the dedup key against
// ReadItems and against previously seen items when computing new arrivals.
type FeedItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	PubDate     string `json:"pubDate"`
	Description string `json:"description"`
}

// Subscription is a followed feed derived from a bookmarked site.
// Items are replaced wholesale on each refresh, not merged.
type Subscription struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	FeedURL     string     `json:"feedUrl"`
	FeedType    FeedType   `json:"feedType"`
	FeedTitle   string     `json:"feedTitle"`
	Items       []FeedItem `json:"items"`
	ReadItems   []string   `json:"readItems"`
	LastChecked *time.Time `json:"lastChecked"`
	Followed    bool       `json:"followed"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// DomainKind distinguishes the two persisted domain caches.
type DomainKind string

// Domain cache kinds.
const (
	// DomainIgnored marks a domain whose subscription the user deleted;
	// discovery must not resurrect it.
	DomainIgnored DomainKind = "ignored"
	// DomainNoFeed marks a domain (or domain+subpath) that was probed and
	// exposed no feed.
	DomainNoFeed DomainKind = "nofeed"
)

// BriefingSection is one titled section of an AI-generated briefing.
type BriefingSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
