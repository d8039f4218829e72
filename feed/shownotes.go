package feed

import (
	"context"
	"net/http"
	"strings"

	"github.com/cixtor/readability"
	"github.com/cockroachdb/errors"

	"github.com/tmshv/podmirror/internal"
	"github.com/tmshv/podmirror/utils"
)

// FillShowNotes replaces empty descriptions with the readable body of the
// item's web page. Items without a link, or whose page cannot be fetched,
// keep their empty description. It returns the number of items filled.
func (c *Client) FillShowNotes(ctx context.Context, items []internal.RawItem) int {
	filled := 0

	for i := range items {
		item := &items[i]
		if strings.TrimSpace(item.Description) != "" || item.Link == "" {
			continue
		}

		content, err := c.showNotes(ctx, item.Link)
		if err != nil {
			c.logger.Warnw("Failed to get show notes", "title", item.Title, "url", utils.Redact(item.Link), "error", err)
			continue
		}
		item.Description = content
		filled++
	}

	return filled
}

func (c *Client) showNotes(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.parser.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", errors.Newf("got status %d", res.StatusCode)
	}

	r := readability.New()
	a, err := r.Parse(res.Body, link)
	if err != nil {
		return "", errors.Wrap(err, "parse page")
	}
	return a.Content, nil
}
