// Package discovery finds feeds behind bookmarked sites: deriving probe
// candidates from bookmark URLs, probing each site in three tiers, and
// running probes through a bounded task pool.
package discovery

import (
	"net/url"
	"strings"

	"markpilot/internal/model"
)

// Content-section path prefixes. A bookmark under one of these gets a
// finer-grained candidate than its origin, so a feed scoped to the
// section is found even when the site root has none.
var contentSections = []string{"/blog", "/posts", "/articles", "/news", "/updates", "/changelog"}

// Candidate is a site URL worth probing for a feed. CacheKey is the
// identity used against the domain caches: the bare host for an origin
// candidate, host plus truncated path for a section candidate.
type Candidate struct {
	URL      string
	Title    string
	CacheKey string
}

// Derive extracts probe candidates from bookmarks. Each bookmark yields
// its origin; bookmarks under a content section additionally yield the
// section prefix. Candidates are deduped by cache key, first title wins.
func Derive(list []model.FlatBookmark) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate

	add := func(c Candidate) {
		if c.CacheKey == "" || seen[c.CacheKey] {
			return
		}
		seen[c.CacheKey] = true
		out = append(out, c)
	}

	for _, b := range list {
		u, err := url.Parse(b.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		origin := u.Scheme + "://" + u.Host

		add(Candidate{URL: origin, Title: b.Title, CacheKey: u.Host})

		for _, section := range contentSections {
			idx := strings.Index(u.Path, section)
			if idx < 0 {
				continue
			}
			prefix := u.Path[:idx+len(section)]
			add(Candidate{
				URL:      origin + prefix,
				Title:    b.Title,
				CacheKey: u.Host + prefix,
			})
			break
		}
	}
	return out
}

// FilterKnown drops candidates already covered by a subscription or by
// one of the domain caches. The ignored cache is keyed by host, the
// no-feed cache by candidate cache key.
func FilterKnown(candidates []Candidate, subscribedHosts, ignored, noFeed map[string]bool) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		host := c.CacheKey
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		if subscribedHosts[host] || ignored[host] || noFeed[c.CacheKey] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SubscribedHosts collects the hosts of existing subscriptions for
// candidate gating.
func SubscribedHosts(subs []model.Subscription) map[string]bool {
	hosts := make(map[string]bool, len(subs))
	for _, s := range subs {
		if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
			hosts[u.Host] = true
		}
	}
	return hosts
}
