// Package fetch downloads many URLs to local files with a bounded number of
// simultaneous transfers.
//
// # Usage
//
//	s := fetch.New(fetch.Options{
//	    Concurrency: 50,
//	    OnComplete:  func(o fetch.Outcome) { bar.Increment() },
//	})
//	for _, ep := range episodes {
//	    s.Submit(fetch.Job{ID: ep.Identifier(), URL: ep.AudioURL, Dest: path})
//	}
//	summary := s.Run(ctx)
//
// # Jobs
//
// Submit never blocks and returns a channel that receives the job's single
// Outcome. A job is queued, then in flight, then either succeeded or failed.
// It is never retried. Run admits queued jobs as slots free up and returns
// once every submitted job has reached a terminal state.
//
// # Failures
//
// A non-2xx status, a connection error, a stalled body or a local write
// error fails only that job. Its destination file is closed and removed.
// Failed outcomes carry errors marked with internal.ErrDownload.
package fetch
