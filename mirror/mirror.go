// Package mirror ties the pipeline together: it reads the feed, writes one
// manifest per episode and downloads the audio.
package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/tmshv/podmirror/feed"
	"github.com/tmshv/podmirror/fetch"
	"github.com/tmshv/podmirror/internal"
	"github.com/tmshv/podmirror/manifest"
	"github.com/tmshv/podmirror/progress"
	"github.com/tmshv/podmirror/store"
	"github.com/tmshv/podmirror/utils"
)

// FeedSource provides the raw items of a feed. *feed.Client implements it.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) ([]internal.RawItem, error)
	FillShowNotes(ctx context.Context, items []internal.RawItem) int
}

type Options struct {
	FeedURL   string
	TargetDir string

	// Concurrency is the maximum number of audio transfers in flight.
	Concurrency int
	IdleTimeout time.Duration
	HTTPClient  *http.Client

	// ShowNotes fills empty descriptions from the episode web page.
	ShowNotes bool

	// Output receives the user-facing messages and the progress display.
	// Default: os.Stdout
	Output io.Writer

	// Interactive forces the progress bar on or off.
	Interactive *bool
}

// Result describes a completed run.
type Result struct {
	RunID    string
	Episodes int
	Skipped  int

	// ManifestFailed counts episodes whose text summary could not be written.
	ManifestFailed int

	Downloads fetch.Summary
	Elapsed   time.Duration
}

type Mirror struct {
	opts    Options
	feed    FeedSource
	journal store.Store
	logger  *zap.SugaredLogger
}

// New creates a Mirror. journal may be nil, in which case runs are not
// recorded.
func New(opts Options, source FeedSource, journal store.Store, logger *zap.SugaredLogger) *Mirror {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Mirror{
		opts:    opts,
		feed:    source,
		journal: journal,
		logger:  logger,
	}
}

// Run mirrors the feed once. The returned error is fatal: the target
// directory could not be created or the feed could not be read. Failures of
// a single episode are not errors; they are logged and counted in Result.
func (m *Mirror) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	var result Result

	fmt.Fprintln(m.opts.Output, "Preparing…")

	if err := os.MkdirAll(m.opts.TargetDir, 0o755); err != nil {
		return result, errors.Mark(errors.Wrapf(err, "create target directory %s", m.opts.TargetDir), internal.ErrFilesystem)
	}

	items, err := m.feed.Fetch(ctx, m.opts.FeedURL)
	if err != nil {
		return result, err
	}
	m.logger.Infow("Feed fetched", "url", utils.Redact(m.opts.FeedURL), "items", len(items))

	if m.opts.ShowNotes {
		n := m.feed.FillShowNotes(ctx, items)
		m.logger.Debugw("Show notes filled", "items", n)
	}

	episodes, err := feed.Normalize(items)
	if err != nil {
		var skipped *multierror.Error
		if errors.As(err, &skipped) {
			result.Skipped = len(skipped.Errors)
			for _, e := range skipped.Errors {
				m.logger.Warnw("Skipping item", "error", e)
			}
		} else {
			return result, err
		}
	}
	result.Episodes = len(episodes)

	runID := m.startRun(len(episodes))
	result.RunID = runID

	reporter := progress.NewReporter(progress.Options{
		Total:       len(episodes),
		Output:      m.opts.Output,
		Interactive: m.opts.Interactive,
	})

	scheduler := fetch.New(fetch.Options{
		Concurrency: m.opts.Concurrency,
		Client:      m.opts.HTTPClient,
		IdleTimeout: m.opts.IdleTimeout,
		Logger:      m.logger.Named("fetch"),
		OnComplete: func(out fetch.Outcome) {
			reporter.Increment(out.Succeeded())
			m.recordDownload(runID, out)
		},
	})

	writer := manifest.NewWriter(m.opts.TargetDir)
	for _, ep := range episodes {
		if _, err := writer.Write(ep); err != nil {
			// the audio is still mirrored without its summary
			result.ManifestFailed++
			m.logger.Warnw("Failed to write manifest", "episode", ep.Identifier(), "error", err)
		}
		scheduler.Submit(fetch.Job{
			ID:   ep.Identifier(),
			URL:  ep.AudioURL,
			Dest: filepath.Join(m.opts.TargetDir, ep.AudioFilename()),
		})
	}

	fmt.Fprintln(m.opts.Output, "Episodes information read, downloading.")

	if err := reporter.Start(); err != nil {
		m.logger.Debugw("Progress bar unavailable", "error", err)
	}
	result.Downloads = scheduler.Run(ctx)
	reporter.Stop()

	m.finishRun(result)

	result.Elapsed = time.Since(started)
	reporter.PrintSummary(result.Downloads.Bytes, result.Elapsed)
	if result.Downloads.Err != nil {
		var failed *multierror.Error
		if errors.As(result.Downloads.Err, &failed) {
			for _, e := range failed.Errors {
				fmt.Fprintf(m.opts.Output, "  failed: %v\n", e)
			}
		}
	}

	return result, nil
}

func (m *Mirror) startRun(episodes int) string {
	if m.journal == nil {
		return ""
	}
	id, err := m.journal.StartRun(utils.Redact(m.opts.FeedURL), episodes)
	if err != nil {
		m.logger.Warnw("Failed to record run", "error", err)
		return ""
	}
	return id
}

func (m *Mirror) recordDownload(runID string, out fetch.Outcome) {
	if m.journal == nil || runID == "" {
		return
	}

	d := internal.Download{
		RunID:      runID,
		Identifier: out.Job.ID,
		URL:        utils.Redact(out.Job.URL),
		Path:       out.Job.Dest,
		Status:     internal.DownloadSucceeded,
		Bytes:      out.Bytes,
		FinishedAt: time.Now().UTC(),
	}
	if out.Err != nil {
		d.Status = internal.DownloadFailed
		d.Error = out.Err.Error()
	}

	if err := m.journal.AddDownload(d); err != nil {
		m.logger.Warnw("Failed to record download", "episode", out.Job.ID, "error", err)
	}
}

func (m *Mirror) finishRun(result Result) {
	if m.journal == nil || result.RunID == "" {
		return
	}
	err := m.journal.FinishRun(result.RunID, result.Downloads.Succeeded, result.Downloads.Failed)
	if err != nil {
		m.logger.Warnw("Failed to finish run", "run", result.RunID, "error", err)
	}
}
