// Package catalog talks to the streaming host's search and release-catalog
// JSON endpoints described in SPEC_FULL.md §6, and adapts the release
// catalog into the orchestrator.EpisodeCatalog interface.
package catalog

import (
	"context"
	"fmt"
)

// SearchResult is one hit from the host's search endpoint.
type SearchResult struct {
	Session string `json:"session"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
}

type searchResponse struct {
	Data []SearchResult `json:"data"`
}

type releasePage struct {
	Data     []releaseEntry `json:"data"`
	LastPage int            `json:"last_page"`
}

type releaseEntry struct {
	Episode int    `json:"episode"`
	Session string `json:"session"`
}

// JSONFetcher decodes a JSON endpoint's body into dst, typically
// (*hostclient.Client).GetJSON.
type JSONFetcher func(ctx context.Context, rawURL string, dst any) error

// Client resolves anime titles and episode numbers against one streaming
// host's API.
type Client struct {
	Host    string
	Slug    string
	GetJSON JSONFetcher
}

// New returns a Client scoped to host and slug, using fetch for JSON calls.
func New(host, slug string, fetch JSONFetcher) *Client {
	return &Client{Host: host, Slug: slug, GetJSON: fetch}
}

// Search looks up anime titles matching term.
func Search(ctx context.Context, host, term string, fetch JSONFetcher) ([]SearchResult, error) {
	url := fmt.Sprintf("%s/api?m=search&q=%s", host, term)
	var resp searchResponse
	if err := fetch(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Episodes returns every episode number and its session token in the
// release catalog, paginating through every page the host reports.
func (c *Client) Episodes(ctx context.Context) (map[int]string, error) {
	out := make(map[int]string)
	page := 1
	for {
		url := fmt.Sprintf("%s/api?m=release&id=%s&sort=episode_asc&page=%d", c.Host, c.Slug, page)
		var resp releasePage
		if err := c.GetJSON(ctx, url, &resp); err != nil {
			return nil, err
		}
		for _, entry := range resp.Data {
			out[entry.Episode] = entry.Session
		}
		if page >= resp.LastPage {
			break
		}
		page++
	}
	return out, nil
}

// Resolve implements orchestrator.EpisodeCatalog: it fetches the full
// release catalog once, then maps each requested episode number to its
// play-page URL, omitting numbers the catalog does not contain.
func (c *Client) Resolve(ctx context.Context, episodes []int) (map[int]string, error) {
	sessions, err := c.Episodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(episodes))
	for _, ep := range episodes {
		session, ok := sessions[ep]
		if !ok {
			continue
		}
		out[ep] = fmt.Sprintf("%s/play/%s/%s", c.Host, c.Slug, session)
	}
	return out, nil
}
