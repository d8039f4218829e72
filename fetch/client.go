package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
)

// UserAgent is sent with every media request.
const UserAgent = "podmirror/1.0"

// HTTPOptions configures the HTTP client used for media transfers.
type HTTPOptions struct {
	// ConnectTimeout bounds dialing, the TLS handshake and the wait for
	// response headers.
	// Default: 30s
	ConnectTimeout time.Duration

	// MaxRedirects is how many redirects a request may follow.
	// Default: 10
	MaxRedirects int

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 50
	MaxIdleConnsPerHost int
}

// DefaultHTTPOptions returns options with sensible defaults.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		ConnectTimeout:      30 * time.Second,
		MaxRedirects:        10,
		MaxIdleConnsPerHost: 50,
	}
}

// NewHTTPClient creates a client suited to long streaming downloads: there is
// no overall deadline, only connect and header timeouts. Body stalls are
// handled by the scheduler's idle timeout.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ConnectTimeout,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport:     transport,
		CheckRedirect: limitRedirects(opts.MaxRedirects),
	}
}

// ErrTooManyRedirects is returned when a request exceeds HTTPOptions.MaxRedirects.
var ErrTooManyRedirects = errors.New("fetch: too many redirects")

func limitRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return errors.Wrapf(ErrTooManyRedirects, "stopped after %d redirects", max)
		}
		return nil
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// ErrStalled is returned when a response body delivers no data for longer
// than the idle timeout.
var ErrStalled = errors.New("fetch: transfer stalled")

// idleReader cancels the request when no bytes arrive for timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	if timeout > 0 {
		ir.timer = time.AfterFunc(timeout, func() {
			ir.expired.Store(true)
			cancel()
		})
	}
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.timer != nil && n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	if err != nil && err != io.EOF && ir.expired.Load() {
		err = errors.Wrapf(ErrStalled, "no data for %s", ir.timeout)
	}
	return n, err
}

func (ir *idleReader) stop() {
	if ir.timer != nil {
		ir.timer.Stop()
	}
}
