package feed

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"github.com/tmshv/podmirror/internal"
	"github.com/tmshv/podmirror/utils"
)

// Normalize orders items by publish date, oldest first, and numbers them
// from 1. Items sharing a timestamp keep their feed order.
//
// Items that fail validation are left out without consuming a sequence
// number. The returned error, if any, is a *multierror.Error listing every
// skipped item by its 1-based feed position and enclosure URL; the episodes
// are usable either way.
func Normalize(items []internal.RawItem) ([]internal.Episode, error) {
	type positioned struct {
		pos  int
		item internal.RawItem
	}

	var skipped *multierror.Error
	skip := func(p positioned, err error) {
		skipped = multierror.Append(skipped, errors.Wrapf(err, "item %d (%s)", p.pos, enclosure(p.item)))
	}

	dated := make([]positioned, 0, len(items))
	for i, item := range items {
		p := positioned{pos: i + 1, item: item}
		if item.PublishedAt == nil || item.PublishedAt.IsZero() {
			// NewEpisode produces the descriptive error
			_, err := internal.NewEpisode(1, item)
			skip(p, err)
			continue
		}
		dated = append(dated, p)
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].item.PublishedAt.Before(*dated[j].item.PublishedAt)
	})

	episodes := make([]internal.Episode, 0, len(dated))
	for _, p := range dated {
		ep, err := internal.NewEpisode(len(episodes)+1, p.item)
		if err != nil {
			skip(p, err)
			continue
		}
		episodes = append(episodes, ep)
	}

	return episodes, skipped.ErrorOrNil()
}

func enclosure(item internal.RawItem) string {
	if item.EnclosureURL == "" {
		return "no enclosure"
	}
	return utils.Redact(item.EnclosureURL)
}
