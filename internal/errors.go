package internal

import "github.com/cockroachdb/errors"

// Error classes. Concrete errors are marked with one of these via
// errors.Mark and matched with errors.Is.
var (
	// ErrFeedFetch means the feed document was unreachable or unparsable.
	// It aborts the run before anything is written.
	ErrFeedFetch = errors.New("feed fetch failed")

	// ErrEpisodeData means a feed item lacked a required field and was skipped.
	ErrEpisodeData = errors.New("invalid episode data")

	// ErrDownload means a transfer failed: bad status, connection error or timeout.
	ErrDownload = errors.New("download failed")

	// ErrFilesystem means a local file or directory could not be written.
	ErrFilesystem = errors.New("filesystem error")
)
