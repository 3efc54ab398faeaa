package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PushRelay sends notifications through a push relay endpoint understood
// by phone notification apps. The relay address and user key come from
// configuration.
type PushRelay struct {
	relayURL string
	userKey  string
	client   HTTPClient
	timeout  time.Duration
}

// NewPushRelay creates a PushRelay sender.
func NewPushRelay(relayURL, userKey string, client HTTPClient) *PushRelay {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushRelay{
		relayURL: strings.TrimRight(relayURL, "/"),
		userKey:  userKey,
		client:   client,
		timeout:  10 * time.Second,
	}
}

// Send issues GET {relay}/{userKey}/{title}/{message}?url={url}. The relay
// treats the request itself as the delivery; the response body carries
// nothing of interest.
func (p *PushRelay) Send(ctx context.Context, title, message, clickURL string) error {
	endpoint := fmt.Sprintf("%s/%s/%s/%s",
		p.relayURL,
		url.PathEscape(p.userKey),
		url.PathEscape(title),
		url.PathEscape(message),
	)
	if clickURL != "" {
		endpoint += "?url=" + url.QueryEscape(clickURL)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push relay: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push relay status %d", resp.StatusCode)
	}
	return nil
}
