package http

import (
	"context"
	"fmt"
	"io"
	ghttp "net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	gstr "github.com/savsgio/gotils/strconv"
	"github.com/shopmonkeyus/go-kvcache/logger"
	cstr "github.com/shopmonkeyus/go-kvcache/string"
	"golang.org/x/sync/semaphore"
)

var ErrTooManyAttempts = errors.New("too many attempts")

const (
	userAgentHeaderValue = "kvcache (+https://github.com/shopmonkeyus/go-kvcache)"
)

// StatusError is returned by Fetch when the final response has a status of 400 or above.
type StatusError struct {
	URL        string
	StatusCode int
	Attempts   uint
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned %d %s after %d attempt(s)", e.URL, e.StatusCode, ghttp.StatusText(e.StatusCode), e.Attempts)
}

type Response struct {
	StatusCode int               `json:"statusCode"`
	Body       []byte            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers"`
	Attempts   uint              `json:"attempts"`
	Latency    time.Duration     `json:"latency"`
}

// Recorder is an interface for recording responses.
type Recorder interface {
	OnResponse(ctx context.Context, url string, resp *Response)
}

// Client fetches resources over HTTP. It satisfies fetchcache.Fetcher.
type Client struct {
	logger      logger.Logger
	transport   ghttp.RoundTripper
	timeout     time.Duration
	dur         time.Duration // base backoff between attempts, multiplied by the attempt number
	maxAttempts uint
	recorder    Recorder
	count       uint64
	semaphore   *semaphore.Weighted
}

func (h *Client) shouldRetry(resp *ghttp.Response, err error) bool {
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "EOF") {
			return true
		}
	}
	if resp != nil {
		switch resp.StatusCode {
		case ghttp.StatusRequestTimeout, ghttp.StatusBadGateway, ghttp.StatusServiceUnavailable, ghttp.StatusGatewayTimeout, ghttp.StatusTooManyRequests:
			return true
		}
	}
	return false
}

func (h *Client) toResponse(resp *ghttp.Response, attempt uint, latency time.Duration) (*Response, error) {
	var body []byte
	if resp.Body != nil {
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "error reading response body")
		}
		body = b
	}
	headers := make(map[string]string)
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    headers,
		Attempts:   attempt,
		Latency:    latency,
	}, nil
}

var isNumber = regexp.MustCompile("^[0-9]+$")

// retryAfter returns the wait requested by a Retry-After header, in seconds or as an http date.
func retryAfter(val string, fallback time.Duration) time.Duration {
	if val == "" {
		return fallback
	}
	if isNumber.MatchString(val) {
		if afterSeconds, _ := strconv.Atoi(val); afterSeconds > 0 {
			return time.Second * time.Duration(afterSeconds)
		}
		return fallback
	}
	if tv, err := time.Parse(ghttp.TimeFormat, val); err == nil {
		return time.Until(tv)
	}
	return fallback
}

func (h *Client) generateRequestId(url string) string {
	count := atomic.AddUint64(&h.count, 1)
	return fmt.Sprintf("%d/%s", count, cstr.NewHash(url, time.Now().UnixNano()))
}

// Get performs a GET of url, retrying transient failures up to the configured
// number of attempts. The last response is returned even when it is an error status.
func (h *Client) Get(ctx context.Context, url string) (*Response, error) {
	started := time.Now()
	if err := h.semaphore.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "error acquiring semaphore")
	}
	defer h.semaphore.Release(1)
	c, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	var attempt uint
	var lastErr error
	var response *Response
	for attempt < h.maxAttempts {
		attempt++
		reqId := h.generateRequestId(url)
		hreq, err := ghttp.NewRequestWithContext(c, ghttp.MethodGet, url, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating request for %s", url)
		}
		hreq.Header.Set("User-Agent", userAgentHeaderValue)
		hreq.Header.Set("X-Request-Id", reqId)
		hreq.Header.Set("X-Attempt", strconv.Itoa(int(attempt)))
		resp, err := h.transport.RoundTrip(hreq)
		if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return nil, err
		}
		retry := h.shouldRetry(resp, err)
		wait := h.dur * time.Duration(attempt)
		if resp != nil {
			wait = retryAfter(resp.Header.Get("Retry-After"), wait)
			r, rerr := h.toResponse(resp, attempt, time.Since(started))
			if rerr != nil {
				return nil, rerr
			}
			response = r
			if h.recorder != nil {
				h.recorder.OnResponse(ctx, url, r)
			}
		}
		lastErr = err
		if !retry {
			break
		}
		if attempt == h.maxAttempts {
			break
		}
		h.logger.Debug("retrying %s (attempt %d, request %s) in %v", url, attempt, reqId, wait)
		if wait > 0 {
			select {
			case <-c.Done():
				return nil, c.Err()
			case <-time.After(wait):
			}
		}
	}
	if lastErr != nil {
		if attempt > 1 {
			return nil, errors.CombineErrors(errors.Wrapf(ErrTooManyAttempts, "GET %s", url), lastErr)
		}
		return nil, errors.Wrapf(lastErr, "GET %s", url)
	}
	return response, nil
}

// Fetch returns the body of url as text. A final status of 400 or above is a *StatusError.
func (h *Client) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := h.Get(ctx, url)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= ghttp.StatusBadRequest {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode, Attempts: resp.Attempts}
	}
	h.logger.Trace("fetched %s: %d bytes in %v", url, len(resp.Body), resp.Latency)
	return gstr.B2S(resp.Body), nil
}

type configOpts struct {
	logger      logger.Logger
	recorder    Recorder
	max         uint64
	maxAttempts uint
	timeout     time.Duration
	dur         time.Duration
}

type ConfigOpt func(opts *configOpts)

// New returns a new HTTP client.
func New(opts ...ConfigOpt) *Client {
	var c configOpts
	c.timeout = time.Second * 55
	c.dur = time.Second
	c.max = 100
	c.maxAttempts = 1
	for _, opt := range opts {
		opt(&c)
	}
	if c.max <= 0 {
		panic("max was zero")
	}
	if c.maxAttempts == 0 {
		c.maxAttempts = 1
	}
	if c.logger == nil {
		c.logger = logger.NewConsoleLogger(logger.LevelNone)
	}
	return &Client{
		logger:      c.logger.WithPrefix("[http]"),
		transport:   ghttp.DefaultTransport,
		timeout:     c.timeout,
		dur:         c.dur,
		maxAttempts: c.maxAttempts,
		recorder:    c.recorder,
		semaphore:   semaphore.NewWeighted(int64(c.max)),
	}
}

// WithLogger sets the logger for the http client.
func WithLogger(log logger.Logger) ConfigOpt {
	return func(opts *configOpts) {
		opts.logger = log
	}
}

// WithRecorder sets the recorder for the http client.
func WithRecorder(recorder Recorder) ConfigOpt {
	return func(opts *configOpts) {
		opts.recorder = recorder
	}
}

// WithMax sets the max number of concurrent requests.
func WithMax(max uint64) ConfigOpt {
	return func(opts *configOpts) {
		opts.max = max
	}
}

// WithMaxAttempts sets how many times a transient failure is tried. The default is one.
func WithMaxAttempts(attempts uint) ConfigOpt {
	return func(opts *configOpts) {
		opts.maxAttempts = attempts
	}
}

// WithTimeout sets the timeout covering all attempts of a request.
func WithTimeout(timeout time.Duration) ConfigOpt {
	return func(opts *configOpts) {
		opts.timeout = timeout
	}
}

// WithDuration sets the base backoff between attempts.
func WithDuration(dur time.Duration) ConfigOpt {
	return func(opts *configOpts) {
		opts.dur = dur
	}
}
