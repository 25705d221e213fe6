package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/phrazzld/taskline/internal/redact"
	"github.com/phrazzld/taskline/internal/task"
)

// FetchResult is the outcome of one HTTP GET
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// FetcherConfig holds the limits applied to every fetch
type FetcherConfig struct {
	// Timeout bounds each request, including reading the body
	Timeout time.Duration

	// MaxBodyBytes caps the response body; larger bodies fail the fetch
	MaxBodyBytes int64
}

// DefaultFetcherConfig returns a FetcherConfig with reasonable defaults
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:      15 * time.Second,
		MaxBodyBytes: 4 << 20,
	}
}

// Fetcher builds fetch callables that share an HTTP client and limits.
type Fetcher struct {
	client *http.Client
	config FetcherConfig
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client, config FetcherConfig, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	defaults := DefaultFetcherConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	return &Fetcher{
		client: client,
		config: config,
		logger: logger.With("component", "fetcher"),
	}
}

// ValidateURL reports whether raw is an absolute http or https URL
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, redact.String(err.Error()))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, redact.URL(raw))
	}
	return nil
}

// Fetch returns a one-shot cancellable GET of rawURL.
func (f *Fetcher) Fetch(rawURL string) *Fetch {
	return &Fetch{
		fetcher: f,
		url:     rawURL,
	}
}

// Task wraps a GET of rawURL in a Task whose clones issue fresh requests.
func (f *Fetcher) Task(e *task.Engine, rawURL string) *task.Task[FetchResult] {
	return task.FromFactory(e, func() task.Callable[FetchResult] {
		return f.Fetch(rawURL)
	})
}

// Fetch is a single HTTP GET. Cancel aborts the in-flight request.
type Fetch struct {
	fetcher *Fetcher
	url     string

	mu        sync.Mutex
	cancelled bool
	abort     context.CancelFunc
}

// Call performs the request and reads the body.
func (f *Fetch) Call() (FetchResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.fetcher.config.Timeout)
	defer cancel()

	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return FetchResult{}, task.ErrCancelled
	}
	f.abort = cancel
	f.mu.Unlock()

	log := f.fetcher.logger.With("url", redact.URL(f.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %s", ErrInvalidURL, redact.Error(err))
	}

	start := time.Now()
	resp, err := f.fetcher.client.Do(req)
	if err != nil {
		if f.isCancelled() {
			return FetchResult{}, task.ErrCancelled
		}
		return FetchResult{}, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Debug("failed to close response body", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FetchResult{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	limit := f.fetcher.config.MaxBodyBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if f.isCancelled() {
			return FetchResult{}, task.ErrCancelled
		}
		return FetchResult{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limit {
		return FetchResult{}, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, limit)
	}

	log.Debug("fetch completed",
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds())

	return FetchResult{
		URL:         f.url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Cancel aborts the request if it is in flight and prevents it from starting
// otherwise.
func (f *Fetch) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return false
	}
	f.cancelled = true
	if f.abort != nil {
		f.abort()
	}
	return true
}

func (f *Fetch) isCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}
