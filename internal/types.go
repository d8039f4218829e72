package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"

	"github.com/tmshv/podmirror/utils"
)

// RawItem is a feed entry as the feed parser hands it over, before any
// validation. PublishedAt is nil when the feed carried no parseable date.
type RawItem struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	EnclosureURL string     `json:"enclosure_url"`
	Duration     string     `json:"duration"`
	PublishedAt  *time.Time `json:"published_at"`
	Published    string     `json:"published"`
	Link         string     `json:"link"`
}

// Episode is a validated feed entry with its position in the manifest.
// Values are built with NewEpisode and never mutated afterwards.
type Episode struct {
	SequenceNumber  int       `json:"sequence_number"`
	Title           string    `json:"title"`
	DescriptionHTML string    `json:"description_html"`
	AudioURL        string    `json:"audio_url"`
	Duration        string    `json:"duration"`
	PublishedAt     time.Time `json:"published_at"`
}

// NewEpisode validates item and assigns it the given 1-based sequence number.
// The returned error is marked with ErrEpisodeData.
func NewEpisode(seq int, item RawItem) (Episode, error) {
	title := norm.NFC.String(strings.TrimSpace(item.Title))
	audio := strings.TrimSpace(item.EnclosureURL)

	switch {
	case seq < 1:
		return Episode{}, errors.Mark(errors.Newf("invalid sequence number %d", seq), ErrEpisodeData)
	case title == "":
		return Episode{}, errors.Mark(errors.New("missing title"), ErrEpisodeData)
	case audio == "":
		return Episode{}, errors.Mark(errors.Newf("%q: missing enclosure url", title), ErrEpisodeData)
	case item.PublishedAt == nil || item.PublishedAt.IsZero():
		return Episode{}, errors.Mark(errors.Newf("%q: missing or unparseable publish date %q", title, item.Published), ErrEpisodeData)
	}

	if !utils.IsAbsoluteURL(audio) {
		return Episode{}, errors.Mark(errors.Newf("%q: enclosure url %q is not absolute", title, audio), ErrEpisodeData)
	}

	return Episode{
		SequenceNumber:  seq,
		Title:           title,
		DescriptionHTML: item.Description,
		AudioURL:        audio,
		Duration:        strings.TrimSpace(item.Duration),
		PublishedAt:     *item.PublishedAt,
	}, nil
}

// Identifier is "{sequence}-{slug(title)}". The sequence prefix keeps it
// unique even when two titles slugify to the same token.
func (e Episode) Identifier() string {
	s := Slug(e.Title)
	if s == "" {
		return fmt.Sprintf("%d", e.SequenceNumber)
	}
	return fmt.Sprintf("%d-%s", e.SequenceNumber, s)
}

func (e Episode) Filename(ext string) string {
	return e.Identifier() + ext
}

func (e Episode) TextFilename() string {
	return e.Filename(".txt")
}

// AudioFilename takes its extension verbatim from the audio URL path.
func (e Episode) AudioFilename() string {
	return e.Filename(e.AudioFormat())
}

func (e Episode) AudioFormat() string {
	return utils.PathExtension(e.AudioURL)
}

// MaxSlugLength keeps "{seq}-{slug}.{ext}" and the temporary names derived
// from it under the 255 byte file name limit.
const MaxSlugLength = 200

func init() {
	slug.MaxLength = MaxSlugLength
}

// Slug lower-cases title, strips punctuation and joins the words with hyphens.
// Long titles are cut at a word boundary.
func Slug(title string) string {
	return slug.Make(norm.NFC.String(title))
}

// Download statuses recorded in the run journal.
const (
	DownloadSucceeded = "succeeded"
	DownloadFailed    = "failed"
)

// Run is one invocation of the mirror as recorded in the journal.
type Run struct {
	ID         string     `json:"id" db:"id"`
	FeedURL    string     `json:"feed_url" db:"feed_url"`
	Episodes   int        `json:"episodes" db:"episodes"`
	Succeeded  int        `json:"succeeded" db:"succeeded"`
	Failed     int        `json:"failed" db:"failed"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
}

// Download is the terminal outcome of one audio transfer.
type Download struct {
	RunID      string    `json:"run_id" db:"run_id"`
	Identifier string    `json:"identifier" db:"identifier"`
	URL        string    `json:"url" db:"url"`
	Path       string    `json:"path" db:"path"`
	Status     string    `json:"status" db:"status"`
	Bytes      int64     `json:"bytes" db:"bytes"`
	Error      string    `json:"error" db:"error"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}
