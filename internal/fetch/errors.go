package fetch

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	// ErrEmptyURL is returned when a caller asks to fetch nothing.
	ErrEmptyURL = errors.New("empty url")

	// ErrZeroSize is returned when the origin declares a zero-length body.
	// A declared empty resource cannot become non-empty on retry, so it is
	// terminal.
	ErrZeroSize = errors.New("remote resource has zero size")
)

// SizeLimitError indicates the declared content length exceeds the
// configured cap. No bytes are downloaded for oversized resources.
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("resource size %s exceeds limit %s",
		humanize.Bytes(uint64(e.Size)), humanize.Bytes(uint64(e.Limit)))
}

// DownloadError wraps the last transient failure after the retry budget is
// exhausted.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
