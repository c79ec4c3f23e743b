package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	chunkSize    = 64 * 1024
	defaultDelay = 500 * time.Millisecond
)

// Fetcher streams remote resources to disk with size limits and a retry
// budget for transient failures.
type Fetcher struct {
	client     *http.Client
	headers    map[string]string
	maxSize    int64
	maxRetries int
	delay      time.Duration
	log        zerolog.Logger
}

// New builds a fetcher. maxSizeMB of zero disables the size cap.
func New(headers map[string]string, maxSizeMB int64, maxRetries int, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		headers:    headers,
		maxSize:    maxSizeMB * 1024 * 1024,
		maxRetries: maxRetries,
		delay:      defaultDelay,
		log:        logger.With().Str("component", "fetch").Logger(),
	}
}

// Fetch downloads rawURL to dest and returns the final path, which may
// differ from dest when retries switch to a randomized name. An existing
// destination file short-circuits without any network traffic.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string, extra map[string]string) (string, error) {
	if rawURL == "" {
		return "", ErrEmptyURL
	}
	if info, err := os.Stat(dest); err == nil && !info.IsDir() {
		return dest, nil
	}

	target := dest
	err := retry.Do(
		func() error {
			return f.attempt(ctx, rawURL, target, extra)
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.maxRetries+1)),
		retry.Delay(f.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.log.Warn().Err(err).Uint("attempt", n+1).Str("url", rawURL).Msg("download attempt failed")
			if n >= 1 {
				// Another process may still be retrying under the
				// original name; move to a fresh one.
				target = randomizedName(dest)
			}
		}),
	)
	if err != nil {
		var sizeErr *SizeLimitError
		switch {
		case errors.Is(err, ErrZeroSize):
			return "", ErrZeroSize
		case errors.As(err, &sizeErr):
			return "", sizeErr
		default:
			return "", &DownloadError{URL: rawURL, Attempts: f.maxRetries + 1, Err: err}
		}
	}
	return target, nil
}

// attempt performs a single GET and streams the body to target. Terminal
// conditions are marked unrecoverable so the retry loop stops immediately.
func (f *Fetcher) attempt(ctx context.Context, rawURL, target string, extra map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	f.applyHeaders(req, extra)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	if resp.ContentLength == 0 {
		return retry.Unrecoverable(ErrZeroSize)
	}
	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return retry.Unrecoverable(&SizeLimitError{Size: resp.ContentLength, Limit: f.maxSize})
	}

	written, err := writeBody(resp.Body, target)
	if err != nil {
		return err
	}
	f.log.Info().Str("url", rawURL).Str("path", target).
		Str("size", humanize.Bytes(uint64(written))).Msg("download complete")
	return nil
}

// Get performs a single GET and returns the whole body. Used for manifest
// text and media segments, where callers manage their own retries.
func (f *Fetcher) Get(ctx context.Context, rawURL string, extra map[string]string) ([]byte, error) {
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	f.applyHeaders(req, extra)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (f *Fetcher) applyHeaders(req *http.Request, extra map[string]string) {
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// writeBody streams the body to path in fixed-size chunks. A failed write
// never leaves a partial file behind.
func writeBody(body io.Reader, path string) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, chunkSize)
	written, err := io.CopyBuffer(out, body, buf)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return written, nil
}

// randomizedName inserts a random token before the extension of dest.
func randomizedName(dest string) string {
	ext := filepath.Ext(dest)
	return strings.TrimSuffix(dest, ext) + "-" + uuid.NewString()[:8] + ext
}
