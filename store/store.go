package store

import (
	"github.com/tmshv/podmirror/internal"
)

// Store is the run journal: an audit trail of what each run downloaded.
// Nothing reads it back to decide what to fetch.
type Store interface {
	StartRun(feedURL string, episodes int) (string, error)
	AddDownload(internal.Download) error
	FinishRun(runID string, succeeded int, failed int) error
	GetRun(runID string) (internal.Run, error)
	GetRunDownloads(runID string) ([]internal.Download, error)
	Close() error
}
