package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/api-failover/internal/backend"
	"github.com/angeloszaimis/api-failover/internal/metrics"
)

// DefaultTimeout bounds how long one attempt waits for a response.
const DefaultTimeout = 10 * time.Second

var (
	ErrNoCandidates = errors.New("at least one candidate backend is required")
	ErrNilRequest   = errors.New("nil request")

	// errAttemptTimeout is the cancellation cause set when an attempt's
	// timer fires before the backend answers.
	errAttemptTimeout = errors.New("attempt timed out")
)

// hopHeaders are connection-scoped and never copied onto an attempt.
// Accept-Encoding is dropped so the transport negotiates and decodes
// compression itself and the body is relayed as plain text.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Accept-Encoding",
}

// Options is the immutable configuration of a Forwarder.
type Options struct {
	// Candidates in priority order: preferred first, then fallbacks.
	Candidates []*backend.Candidate
	// Origin is the canonical application origin.
	Origin string
	// Timeout bounds each attempt until response headers arrive.
	Timeout time.Duration
	// Client issues the attempts. Defaults to a plain http.Client.
	Client *http.Client
}

// AttemptError is the failure of a single candidate.
type AttemptError struct {
	Backend string
	Timeout bool
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Forwarder routes an intercepted request to the first candidate that
// answers. It holds no per-request state and is safe for concurrent use.
type Forwarder struct {
	logger     *slog.Logger
	candidates []*backend.Candidate
	names      []string
	origin     string
	timeout    time.Duration
	client     *http.Client
	metrics    *metrics.Collector
}

// New creates a Forwarder. collector may be nil.
func New(logger *slog.Logger, opts Options, collector *metrics.Collector) (*Forwarder, error) {
	if len(opts.Candidates) == 0 {
		return nil, ErrNoCandidates
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	candidates := make([]*backend.Candidate, len(opts.Candidates))
	copy(candidates, opts.Candidates)

	names := make([]string, len(candidates))
	for i, c := range candidates {
		if c == nil {
			return nil, fmt.Errorf("candidate %d is nil", i)
		}
		names[i] = c.String()
	}

	return &Forwarder{
		logger:     logger,
		candidates: candidates,
		names:      names,
		origin:     opts.Origin,
		timeout:    timeout,
		client:     client,
		metrics:    collector,
	}, nil
}

// Candidates returns the candidate base URLs in attempt order.
func (f *Forwarder) Candidates() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Forward attempts req against every candidate in order and returns the
// first response received, or a synthesized 503 when all of them fail.
// The error is non-nil only for internal faults; the caller turns it into
// a 500.
func (f *Forwarder) Forward(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	f.metrics.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})

	var lastErr error

	for i, candidate := range f.candidates {
		resp, err := f.attempt(ctx, candidate, req)
		if err != nil {
			lastErr = err
			f.logger.Warn("Backend attempt failed",
				slog.String("request_id", req.ID),
				slog.Int("attempt", i+1),
				slog.String("backend", candidate.String()),
				slog.Any("err", err))
			continue
		}

		f.logger.Info("Backend responded",
			slog.String("request_id", req.ID),
			slog.Int("attempt", i+1),
			slog.String("backend", candidate.String()),
			slog.Int("status", resp.StatusCode))

		return resp, nil
	}

	f.metrics.Emit(metrics.MetricEvent{Type: metrics.EventAllFailed})

	f.logger.Error("All backends failed",
		slog.String("request_id", req.ID),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Any("backends", f.names),
		slog.Any("last_err", lastErr))

	return allFailedResponse(f.Candidates(), lastErr, time.Now())
}

func (f *Forwarder) attempt(ctx context.Context, candidate *backend.Candidate, req *Request) (*Response, error) {
	name := candidate.String()

	target, err := candidate.Target(req.Path, req.RawQuery)
	if err != nil {
		return nil, f.fail(name, false, err)
	}

	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	out, err := http.NewRequestWithContext(attemptCtx, req.Method, target.String(), req.bodyReader())
	if err != nil {
		return nil, f.fail(name, false, err)
	}
	out.Header = f.adaptHeaders(candidate, req.Header)

	f.metrics.Emit(metrics.MetricEvent{Type: metrics.EventAttemptStarted, Backend: name})

	f.logger.Debug("Attempting backend",
		slog.String("request_id", req.ID),
		slog.String("method", req.Method),
		slog.String("target", target.String()))

	start := time.Now()
	timer := time.AfterFunc(f.timeout, func() { cancel(errAttemptTimeout) })

	res, err := f.client.Do(out)
	timer.Stop()
	if err != nil {
		if errors.Is(context.Cause(attemptCtx), errAttemptTimeout) {
			return nil, f.fail(name, true, fmt.Errorf("no response within %s", f.timeout))
		}
		return nil, f.fail(name, false, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, f.fail(name, false, fmt.Errorf("read response body: %w", err))
	}

	duration := time.Since(start)
	f.metrics.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Backend:    name,
		Duration:   duration,
		StatusCode: res.StatusCode,
	})

	return successResponse(res, body, f.origin, name), nil
}

func (f *Forwarder) fail(backend string, timeout bool, err error) *AttemptError {
	f.metrics.Emit(metrics.MetricEvent{
		Type:    metrics.EventAttemptFailed,
		Backend: backend,
		Timeout: timeout,
	})

	return &AttemptError{Backend: backend, Timeout: timeout, Err: err}
}

// adaptHeaders copies the inbound headers for one attempt. Natural-origin
// candidates get no Origin header; every other candidate gets the
// canonical origin.
func (f *Forwarder) adaptHeaders(candidate *backend.Candidate, in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}

	for _, v := range in.Values("Connection") {
		for _, h := range strings.Split(v, ",") {
			out.Del(strings.TrimSpace(h))
		}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}

	if candidate.NaturalOrigin() {
		out.Del("Origin")
	} else {
		out.Set("Origin", f.origin)
	}

	return out
}
