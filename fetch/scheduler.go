package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tmshv/podmirror/internal"
	"github.com/tmshv/podmirror/utils"
)

// DefaultConcurrency is the number of simultaneous transfers when
// Options.Concurrency is not set.
const DefaultConcurrency = 50

// Job downloads URL into the file at Dest.
type Job struct {
	// ID names the job in logs, usually the episode identifier.
	ID   string
	URL  string
	Dest string
}

// Outcome is the terminal state of a job. Err is nil when the job succeeded.
type Outcome struct {
	Job   Job
	Bytes int64
	Err   error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Summary totals the outcomes of every job the scheduler has finished.
type Summary struct {
	Submitted int
	Succeeded int
	Failed    int
	Bytes     int64

	// Err lists every failed job, or is nil when none failed.
	Err error
}

// Options configures a Scheduler.
type Options struct {
	// Concurrency is the maximum number of transfers in flight.
	// Default: 50
	Concurrency int

	// Client performs the requests.
	// Default: NewHTTPClient(DefaultHTTPOptions())
	Client *http.Client

	// IdleTimeout fails a transfer whose body delivers no data for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// OnComplete is called once per job when it reaches a terminal state,
	// from the goroutine that ran the transfer. It must be safe for
	// concurrent use.
	OnComplete func(Outcome)

	Logger *zap.SugaredLogger
}

type pending struct {
	job    Job
	result chan Outcome
}

// Scheduler runs download jobs with at most Options.Concurrency in flight.
type Scheduler struct {
	opts   Options
	client *http.Client
	logger *zap.SugaredLogger
	slots  *semaphore.Weighted

	// wake is signalled on every Submit and every terminal transition.
	wake chan struct{}

	mu       sync.Mutex
	queue    []*pending
	terminal int
	active   int
	peak     int
	summary  Summary
	failures *multierror.Error
}

// New creates a Scheduler. It is meant to be used for a single run.
func New(opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(DefaultHTTPOptions())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	return &Scheduler{
		opts:   opts,
		client: opts.Client,
		logger: opts.Logger,
		slots:  semaphore.NewWeighted(int64(opts.Concurrency)),
		wake:   make(chan struct{}, 1),
	}
}

// Submit queues job and returns a channel that receives its Outcome exactly
// once and is then closed. It does not block and may be called while Run is
// in progress.
func (s *Scheduler) Submit(job Job) <-chan Outcome {
	p := &pending{job: job, result: make(chan Outcome, 1)}

	s.mu.Lock()
	s.queue = append(s.queue, p)
	s.summary.Submitted++
	s.mu.Unlock()

	s.notify()
	return p.result
}

// Run drains the queue and blocks until every submitted job is terminal.
// Cancelling ctx aborts in-flight transfers and fails queued jobs without
// sending a request; Run still waits for all of them. Run must not be
// called concurrently with itself.
func (s *Scheduler) Run(ctx context.Context) Summary {
	var wg sync.WaitGroup
	done := ctx.Done()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.terminal == s.summary.Submitted
			s.mu.Unlock()
			if finished {
				break
			}
			select {
			case <-s.wake:
			case <-done:
				// in-flight jobs observe ctx themselves
				done = nil
			}
			continue
		}
		p := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if err := s.slots.Acquire(ctx, 1); err != nil {
			s.finish(p, 0, s.notStarted(err))
			continue
		}
		if err := ctx.Err(); err != nil {
			s.slots.Release(1)
			s.finish(p, 0, s.notStarted(err))
			continue
		}

		s.mu.Lock()
		s.active++
		if s.active > s.peak {
			s.peak = s.active
		}
		s.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.transfer(ctx, p.job)

			s.mu.Lock()
			s.active--
			s.mu.Unlock()
			s.slots.Release(1)

			s.finish(p, n, err)
		}()
	}

	wg.Wait()
	return s.Summary()
}

// Summary returns the totals of the jobs finished so far.
func (s *Scheduler) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := s.summary
	sum.Err = s.failures.ErrorOrNil()
	return sum
}

func (s *Scheduler) notStarted(err error) error {
	return errors.Mark(errors.Wrap(err, "not started"), internal.ErrDownload)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// finish records the terminal state of p. It runs exactly once per job.
func (s *Scheduler) finish(p *pending, n int64, err error) {
	out := Outcome{Job: p.job, Bytes: n, Err: err}

	s.mu.Lock()
	if err != nil {
		s.summary.Failed++
		s.failures = multierror.Append(s.failures, errors.Wrapf(err, "%s (%s)", p.job.ID, utils.Redact(p.job.URL)))
	} else {
		s.summary.Succeeded++
		s.summary.Bytes += n
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warnw("Download failed", "episode", p.job.ID, "url", utils.Redact(p.job.URL), "error", err)
	} else {
		s.logger.Debugw("Downloaded", "episode", p.job.ID, "bytes", n, "file", p.job.Dest)
	}

	p.result <- out
	close(p.result)

	if s.opts.OnComplete != nil {
		s.opts.OnComplete(out)
	}

	// counted last so Run cannot return while a callback may still Submit
	s.mu.Lock()
	s.terminal++
	s.mu.Unlock()
	s.notify()
}

// transfer streams job.URL into job.Dest. The file is opened before the
// request is sent and removed again if the transfer does not succeed.
func (s *Scheduler) transfer(ctx context.Context, job Job) (int64, error) {
	f, err := os.Create(job.Dest)
	if err != nil {
		return 0, errors.Mark(errors.Mark(errors.Wrap(err, "create destination"), internal.ErrFilesystem), internal.ErrDownload)
	}

	n, err := s.stream(ctx, job, fileWriter{f})

	if cerr := f.Close(); cerr != nil && err == nil {
		err = errors.Mark(errors.Mark(errors.Wrap(cerr, "close destination"), internal.ErrFilesystem), internal.ErrDownload)
	}
	if err != nil {
		if rerr := os.Remove(job.Dest); rerr != nil && !os.IsNotExist(rerr) {
			s.logger.Warnw("Failed to remove partial file", "episode", job.ID, "file", job.Dest, "error", rerr)
		}
		return 0, err
	}
	return n, nil
}

func (s *Scheduler) stream(ctx context.Context, job Job, w io.Writer) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "create request"), internal.ErrDownload)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "request"), internal.ErrDownload)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.Mark(&StatusError{Code: resp.StatusCode, Status: resp.Status}, internal.ErrDownload)
	}

	body := newIdleReader(resp.Body, s.opts.IdleTimeout, cancel)
	defer body.stop()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, errors.Mark(errors.Wrapf(err, "after %d bytes", n), internal.ErrDownload)
	}
	return n, nil
}

// fileWriter marks write failures as filesystem errors and hides
// (*os.File).ReadFrom so the body is copied chunk by chunk.
type fileWriter struct {
	f *os.File
}

func (w fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		err = errors.Mark(err, internal.ErrFilesystem)
	}
	return n, err
}
