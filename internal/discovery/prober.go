package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"markpilot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Found describes a feed located by a probe.
type Found struct {
	FeedURL  string
	FeedType model.FeedType
	Title    string
}

const (
	pageTimeout  = 10 * time.Second
	probeTimeout = 5 * time.Second
	maxProbeBody = 512 * 1024
	userAgent    = "MarkPilot/1.0"
)

// Conventional feed locations probed when the page itself advertises
// none. Order matters: the first hit wins.
var conventionalPaths = []string{
	"/feed",
	"/rss.xml",
	"/atom.xml",
	"/feed.xml",
	"/index.xml",
	"/blog/feed",
	"/blog/rss",
	"/?feed=rss2",
	"/feeds/posts/default",
}

// Prober locates a feed for a site in three tiers: advertised link tags
// in the page HTML, conventional feed paths, and finally /sitemap.xml.
type Prober struct {
	client HTTPClient
}

// NewProber creates a Prober using the given HTTP client.
func NewProber(client HTTPClient) *Prober {
	return &Prober{client: client}
}

// Discover probes siteURL for a feed. A (nil, nil) return means the probe
// completed and the site has no feed; that outcome is cacheable. A non-nil
// error means no tier got an HTTP response, so the outcome says nothing
// about the site and must not be cached.
func (p *Prober) Discover(ctx context.Context, siteURL string) (*Found, error) {
	completed := false
	var lastErr error

	settle := func(err error) {
		var se *statusError
		if errors.As(err, &se) {
			completed = true
			return
		}
		lastErr = err
	}

	found, err := p.probePage(ctx, siteURL)
	if err == nil {
		completed = true
		if found != nil {
			return found, nil
		}
	} else {
		settle(err)
	}

	found, ok := p.probeConventional(ctx, siteURL)
	if found != nil {
		return found, nil
	}
	completed = completed || ok

	found, err = p.probeSitemap(ctx, siteURL)
	if err == nil {
		completed = true
		if found != nil {
			return found, nil
		}
	} else {
		settle(err)
	}

	if completed {
		return nil, nil
	}
	return nil, lastErr
}

// probePage fetches the page and scans it for feed link tags.
func (p *Prober) probePage(ctx context.Context, siteURL string) (*Found, error) {
	body, _, err := p.get(ctx, siteURL, pageTimeout)
	if err != nil {
		return nil, err
	}
	return scanLinkTags(body, siteURL), nil
}

// probeConventional tries the conventional feed paths under the site's
// origin. The boolean reports whether at least one request completed.
func (p *Prober) probeConventional(ctx context.Context, siteURL string) (*Found, bool) {
	origin, err := originOf(siteURL)
	if err != nil {
		return nil, false
	}

	completed := false
	for _, path := range conventionalPaths {
		probeURL := origin + path
		body, contentType, err := p.get(ctx, probeURL, probeTimeout)
		if err != nil {
			// A status error still proves the site answered.
			var se *statusError
			if errors.As(err, &se) {
				completed = true
			}
			continue
		}
		completed = true
		if ft, ok := sniffFeedType(contentType, body); ok {
			return &Found{FeedURL: probeURL, FeedType: ft}, true
		}
	}
	return nil, completed
}

func (p *Prober) probeSitemap(ctx context.Context, siteURL string) (*Found, error) {
	origin, err := originOf(siteURL)
	if err != nil {
		return nil, err
	}
	sitemapURL := origin + "/sitemap.xml"
	body, _, err := p.get(ctx, sitemapURL, probeTimeout)
	if err != nil {
		return nil, err
	}
	if strings.Contains(body, "<urlset") || strings.Contains(body, "<sitemapindex") {
		return &Found{FeedURL: sitemapURL, FeedType: model.FeedSitemap}, nil
	}
	return nil, nil
}

// get performs a GET and returns the body and Content-Type on a 200. A
// non-200 status is an error here but still counts as a completed request
// for callers that retry with different paths.
func (p *Prober) get(ctx context.Context, rawURL string, timeout time.Duration) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", &statusError{code: resp.StatusCode}
	}
	return string(body), resp.Header.Get("Content-Type"), nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

// scanLinkTags walks the page HTML and returns the first advertised RSS
// or Atom link, href resolved against the page URL.
func scanLinkTags(body, pageURL string) *Found {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return nil
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		token := tokenizer.Token()
		if token.Data != "link" {
			continue
		}

		var rel, typ, href, title string
		for _, attr := range token.Attr {
			switch attr.Key {
			case "rel":
				rel = strings.ToLower(attr.Val)
			case "type":
				typ = strings.ToLower(attr.Val)
			case "href":
				href = attr.Val
			case "title":
				title = attr.Val
			}
		}
		if rel != "alternate" || href == "" {
			continue
		}

		var ft model.FeedType
		switch typ {
		case "application/rss+xml":
			ft = model.FeedRSS
		case "application/atom+xml":
			ft = model.FeedAtom
		default:
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		return &Found{
			FeedURL:  base.ResolveReference(ref).String(),
			FeedType: ft,
			Title:    title,
		}
	}
}

// sniffFeedType decides whether a response is a feed, from markers
// anywhere in the body or from a feed-ish Content-Type. The body wins
// when both disagree on the variant.
func sniffFeedType(contentType, body string) (model.FeedType, bool) {
	switch {
	case strings.Contains(body, "<feed"):
		return model.FeedAtom, true
	case strings.Contains(body, "<rss"), strings.Contains(body, "<channel"):
		return model.FeedRSS, true
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "atom"):
		return model.FeedAtom, true
	case strings.Contains(ct, "rss"), strings.Contains(ct, "xml"):
		return model.FeedRSS, true
	}
	return "", false
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
