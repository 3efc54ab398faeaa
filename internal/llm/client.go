package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"markpilot/internal/jsonrepair"
	"markpilot/internal/model"
)

// Greedy extraction of the first balanced-looking JSON object or array.
// The Anthropic shape may wrap JSON in prose, so the widest span is taken
// and handed to the repair pass.
var (
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
)

// Client issues domain-level completions over a Provider.
type Client struct {
	provider  Provider
	anthropic bool
}

// NewClient creates a Client for the named provider.
func NewClient(name string, opts Options) (*Client, error) {
	p, err := NewProvider(name, opts)
	if err != nil {
		return nil, err
	}
	return &Client{provider: p, anthropic: name == "anthropic"}, nil
}

// NewClientWithProvider wraps an existing provider, mostly for tests.
func NewClientWithProvider(p Provider, anthropic bool) *Client {
	return &Client{provider: p, anthropic: anthropic}
}

const categorizePrompt = `You are a bookmark organizing assistant. Assign each of the following bookmarks to a broad, general category (for example: "Development", "Security", "Entertainment", "Tools", "Cloud", "System Administration").

Important instructions: return raw JSON only.
- Do not use markdown code fences (no ` + "```json" + `).
- Do not include any text before or after the JSON.
- The output must be a valid JSON object whose keys are bookmark IDs and whose values are category names.

Example output:
{
    "101": "Search Engines",
    "102": "Development",
    "103": "Social Media",
    "104": "Containers"
}

Bookmarks:
%s`

// CategorizeBatch asks the provider to assign a category to every bookmark
// in the batch. The returned map may omit IDs; absent means uncategorized.
func (c *Client) CategorizeBatch(ctx context.Context, batch []model.FlatBookmark) (model.CategoryMap, error) {
	listing, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	text, err := c.provider.Complete(ctx, fmt.Sprintf(categorizePrompt, listing), maxCompletionTokens)
	if err != nil {
		return nil, err
	}

	var categories model.CategoryMap
	if err := c.parseObject(text, &categories); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	return categories, nil
}

const titlesPrompt = `You are a bookmark organizing assistant. Generate a concise, meaningful title for each of the following URLs.

Important instructions: return raw JSON only.
- Do not use markdown code fences.
- The output must be a valid JSON object whose keys are bookmark IDs and whose values are the generated titles.
- Titles must be short (at most 30 characters) and describe the site's main content or purpose.

URLs:
%s`

// GenerateTitles asks the provider for titles, keyed by bookmark ID.
// Intended for bookmarks whose stored title is empty.
func (c *Client) GenerateTitles(ctx context.Context, batch []model.FlatBookmark) (map[string]string, error) {
	type urlEntry struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	entries := make([]urlEntry, len(batch))
	for i, b := range batch {
		entries[i] = urlEntry{ID: b.ID, URL: b.URL}
	}
	listing, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	text, err := c.provider.Complete(ctx, fmt.Sprintf(titlesPrompt, listing), maxCompletionTokens)
	if err != nil {
		return nil, err
	}

	var titles map[string]string
	if err := c.parseObject(text, &titles); err != nil {
		return nil, fmt.Errorf("parse titles: %w", err)
	}
	return titles, nil
}

const briefingPrompt = `You are an information assistant. Produce a concise briefing from the subscribed feed content below.

Important instructions: return a raw JSON array only.
- Do not use markdown code fences (no ` + "```json" + `).
- Do not include any text before or after the JSON.

Output format:
[
  { "title": "Topic 1", "content": "Summary of that topic..." },
  { "title": "Topic 2", "content": "Summary of that topic..." }
]

Requirements:
1. Group content by topic, one entry per topic.
2. "title" is the topic name (for example "Tech News").
3. "content" is a concise summary of everything under that topic.
4. Mark important items with [important] inside the content.
5. The last entry's title must be "Summary" with overall trends or suggestions.

Feed content:
%s`

// GenerateBriefing summarizes feed content into titled sections. The
// provider should reply with a JSON array, but bare objects and wrapped
// shapes are accepted so callers always receive an array.
func (c *Client) GenerateBriefing(ctx context.Context, content string) ([]model.BriefingSection, error) {
	text, err := c.provider.Complete(ctx, fmt.Sprintf(briefingPrompt, content), 2000)
	if err != nil {
		return nil, err
	}
	return c.parseSections(text)
}

const analyzePrompt = `You are a reading assistant. Analyze the article below and produce structured notes.

Important instructions: return a raw JSON array only, no markdown fences, no surrounding text.

Output format:
[
  { "title": "Key Points", "content": "..." },
  { "title": "Details", "content": "..." },
  { "title": "Takeaway", "content": "..." }
]

Article titled %q:
%s`

// AnalyzeArticle produces structured notes for a single article, using the
// same array shape and fallbacks as GenerateBriefing.
func (c *Client) AnalyzeArticle(ctx context.Context, title, content string) ([]model.BriefingSection, error) {
	text, err := c.provider.Complete(ctx, fmt.Sprintf(analyzePrompt, title, content), 2000)
	if err != nil {
		return nil, err
	}
	return c.parseSections(text)
}

// TestConnection sends a trivial prompt to validate the configured
// provider, key, and endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.provider.Complete(ctx, "Reply with exactly: OK", 10)
	return err
}

// parseObject strips fences and decodes a JSON object reply. For the
// Anthropic shape the first balanced-looking object substring is extracted
// first, since the provider may wrap JSON in prose.
func (c *Client) parseObject(text string, v any) error {
	s := jsonrepair.StripFences(text)
	if c.anthropic {
		if m := objectRe.FindString(s); m != "" {
			s = m
		}
	}
	return jsonrepair.SafeUnmarshal(s, v)
}

// parseSections decodes an array-shaped reply, tolerating the object
// shapes providers sometimes produce instead.
func (c *Client) parseSections(text string) ([]model.BriefingSection, error) {
	s := jsonrepair.StripFences(text)

	if c.anthropic {
		if m := arrayRe.FindString(s); m != "" {
			s = m
		}
	}

	var sections []model.BriefingSection
	if err := json.Unmarshal([]byte(s), &sections); err == nil {
		return sections, nil
	}

	// Accept an object carrying the array under "items" (or any key), or a
	// bare object wrapped into a single section.
	var wrapper map[string]json.RawMessage
	if err := jsonrepair.SafeUnmarshal(s, &wrapper); err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	if raw, ok := wrapper["items"]; ok {
		var items []model.BriefingSection
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
	}
	for _, raw := range wrapper {
		var items []model.BriefingSection
		if json.Unmarshal(raw, &items) == nil && items != nil {
			return items, nil
		}
	}

	return []model.BriefingSection{{Title: "Briefing", Content: strings.TrimSpace(s)}}, nil
}
