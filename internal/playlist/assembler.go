package playlist

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"media-fetcher/internal/fetch"
)

const (
	segmentAttempts = 3

	// minAssembledBytes is the sanity floor. Anything smaller means the
	// whole pipeline produced no usable media.
	minAssembledBytes = 1024
)

// AssemblyError indicates that segment collection produced too little data
// to be a playable stream.
type AssemblyError struct {
	Written int64
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembled only %d bytes of stream data", e.Written)
}

// Assembler downloads media segments in strict list order and appends their
// bytes into a single container file.
type Assembler struct {
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

func NewAssembler(f *fetch.Fetcher, logger zerolog.Logger) *Assembler {
	return &Assembler{
		fetcher: f,
		log:     logger.With().Str("component", "assemble").Logger(),
	}
}

// Assemble fetches every segment and writes it to dest in order. A segment
// that keeps failing is skipped rather than aborting the stream; the result
// is validated against a minimal size floor instead.
func (a *Assembler) Assemble(ctx context.Context, segments []string, dest string, headers map[string]string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	var written int64
	for i, seg := range segments {
		data, err := a.fetchSegment(ctx, seg, headers)
		if err != nil {
			if ctx.Err() != nil {
				out.Close()
				os.Remove(dest)
				return 0, ctx.Err()
			}
			a.log.Warn().Err(err).Int("segment", i).Str("url", seg).Msg("segment skipped")
			continue
		}
		n, err := out.Write(data)
		if err != nil {
			out.Close()
			os.Remove(dest)
			return 0, err
		}
		written += int64(n)
	}

	if err := out.Close(); err != nil {
		os.Remove(dest)
		return 0, err
	}
	if written < minAssembledBytes {
		os.Remove(dest)
		return written, &AssemblyError{Written: written}
	}

	a.log.Info().Int("segments", len(segments)).
		Str("size", humanize.Bytes(uint64(written))).Str("path", dest).Msg("stream assembled")
	return written, nil
}

func (a *Assembler) fetchSegment(ctx context.Context, segURL string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < segmentAttempts; attempt++ {
		data, err := a.fetcher.Get(ctx, segURL, headers)
		if err == nil {
			return data, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return nil, lastErr
}
