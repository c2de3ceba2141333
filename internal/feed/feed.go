// Package feed handles downloading and parsing channel upload feeds.
package feed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"tubewatch/internal/model"
)

// DefaultURLTemplate builds the upload feed URL for a channel id.
const DefaultURLTemplate = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Kind classifies a fetch failure.
type Kind int

const (
	// KindNetwork covers transport failures and unexpected statuses.
	// Transient: the next poll retries.
	KindNetwork Kind = iota
	// KindParse means a document came back but could not be decoded.
	// Also retried on the next poll.
	KindParse
	// KindNotFound means the upstream reports no such channel. The
	// subscription is kept and the channel is flagged instead, since
	// upstream ids occasionally vanish and come back.
	KindNotFound
)

// Error describes a failed fetch for one channel.
type Error struct {
	Kind      Kind
	ChannelID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch channel %s: %v", e.ChannelID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err says the upstream channel does not exist.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindNotFound
}

// Result holds the outcome of fetching and parsing one channel feed.
type Result struct {
	Title string       // channel display name as published upstream
	Items []model.Item // newest first
}

// Client downloads and parses channel upload feeds.
type Client struct {
	client   HTTPClient
	template string
}

// New creates a Client. template must contain a single %s taking the
// channel id; an empty template selects DefaultURLTemplate.
func New(client HTTPClient, template string) *Client {
	if template == "" {
		template = DefaultURLTemplate
	}
	return &Client{client: client, template: template}
}

// Fetch downloads and parses the upload feed of channelID. Items come back
// newest first. All failures are *Error values carrying the Kind callers
// dispatch on.
func (c *Client) Fetch(ctx context.Context, channelID string) (*Result, error) {
	feedURL := fmt.Sprintf(c.template, url.QueryEscape(channelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, ChannelID: channelID, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", "tubewatch/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, ChannelID: channelID, Err: fmt.Errorf("http get: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &Error{Kind: KindNotFound, ChannelID: channelID, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindNetwork, ChannelID: channelID, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, ChannelID: channelID, Err: fmt.Errorf("read body: %w", err)}
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &Error{Kind: KindParse, ChannelID: channelID, Err: fmt.Errorf("parse feed: %w", err)}
	}

	items := make([]model.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		items = append(items, model.Item{
			ID:        entryID(entry),
			Title:     entry.Title,
			Link:      entry.Link,
			Published: publishedAt(entry),
		})
	}
	// Upstream order is not guaranteed; normalize to newest first so the
	// novelty filter can rely on it. Ties keep document order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})

	return &Result{Title: parsed.Title, Items: items}, nil
}

// entryID returns the upstream id of a feed entry.
// Entries without one get a SHA-256 hash of title+link instead.
func entryID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func publishedAt(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Time{}
}
