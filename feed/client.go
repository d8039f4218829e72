// Package feed retrieves a podcast feed and turns its items into an ordered
// list of episodes.
package feed

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/tmshv/podmirror/internal"
	"github.com/tmshv/podmirror/utils"
)

const userAgent = "podmirror/1.0"

// Client fetches and parses feed documents.
type Client struct {
	parser *gofeed.Parser
	logger *zap.SugaredLogger
}

// NewClient returns a Client whose requests are bounded by timeout.
// A nil httpClient gets a fresh one.
func NewClient(httpClient *http.Client, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	fp := gofeed.NewParser()
	fp.Client = httpClient
	fp.UserAgent = userAgent

	return &Client{
		parser: fp,
		logger: logger,
	}
}

// Fetch downloads the feed at feedURL and returns its items in document
// order. Any failure is marked with internal.ErrFeedFetch.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]internal.RawItem, error) {
	feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			err = errors.Newf("unexpected status %d", httpErr.StatusCode)
		}
		return nil, errors.Mark(errors.Wrapf(err, "fetch feed %s", utils.Redact(feedURL)), internal.ErrFeedFetch)
	}

	c.logger.Debugw("Parsed feed", "title", feed.Title, "items", len(feed.Items))

	items := make([]internal.RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, rawItem(item))
	}
	return items, nil
}

func rawItem(item *gofeed.Item) internal.RawItem {
	raw := internal.RawItem{
		Title:       item.Title,
		Description: item.Description,
		Link:        item.Link,
		Published:   item.Published,
		PublishedAt: item.PublishedParsed,
	}
	if strings.TrimSpace(raw.Description) == "" {
		raw.Description = item.Content
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.TrimSpace(enc.URL) != "" {
			raw.EnclosureURL = enc.URL
			break
		}
	}

	if item.ITunesExt != nil {
		raw.Duration = item.ITunesExt.Duration
	}

	return raw
}
