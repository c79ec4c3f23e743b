package playlist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"

	"media-fetcher/internal/fetch"
)

// maxVariantDepth bounds recursion through nested variant indexes.
const maxVariantDepth = 5

// ManifestError indicates a playlist that is unreachable, undecodable or
// empty. It is never retried.
type ManifestError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("manifest %s: %s", e.URL, e.Reason)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// Resolver turns a manifest URL into an ordered list of absolute media
// segment URLs, recursing through variant indexes down to one media
// playlist.
type Resolver struct {
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

func NewResolver(f *fetch.Fetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fetcher: f,
		log:     logger.With().Str("component", "playlist").Logger(),
	}
}

// IsManifest reports whether the URL path points at a playlist. The query
// string is ignored.
func IsManifest(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, ".m3u8")
}

// Resolve fetches and parses the manifest at manifestURL. Variant indexes
// recurse into the last listed variant; media playlists yield their segment
// URLs in listed order, relative references resolved against the manifest's
// own URL.
func (r *Resolver) Resolve(ctx context.Context, manifestURL string, headers map[string]string) ([]string, error) {
	return r.resolve(ctx, manifestURL, headers, 0)
}

func (r *Resolver) resolve(ctx context.Context, manifestURL string, headers map[string]string, depth int) ([]string, error) {
	if depth > maxVariantDepth {
		return nil, &ManifestError{URL: manifestURL, Reason: "variant recursion too deep"}
	}

	body, err := r.fetcher.Get(ctx, manifestURL, headers)
	if err != nil {
		return nil, &ManifestError{URL: manifestURL, Reason: "fetch failed", Err: err}
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, &ManifestError{URL: manifestURL, Reason: "invalid manifest url", Err: err}
	}

	pl, kind, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		// Some playlists carry the #EXTM3U header but none of the
		// per-entry tags the strict decoder requires. Those are still
		// valid line protocol: fall back to a plain scan.
		if !hasM3UHeader(body) {
			return nil, &ManifestError{URL: manifestURL, Reason: "undecodable", Err: err}
		}
		return r.scanPlain(ctx, manifestURL, base, body, headers, depth)
	}

	switch kind {
	case m3u8.MASTER:
		master := pl.(*m3u8.MasterPlaylist)
		var variants []string
		for _, v := range master.Variants {
			if v == nil || v.URI == "" {
				continue
			}
			variants = append(variants, resolveRef(base, v.URI))
		}
		if len(variants) == 0 {
			return nil, &ManifestError{URL: manifestURL, Reason: "variant index lists no variants"}
		}
		// Fixed policy: the last listed variant is taken as
		// representative. List order is not a bitrate ranking.
		next := variants[len(variants)-1]
		r.log.Debug().Str("manifest", manifestURL).Str("variant", next).Msg("descending into variant")
		return r.resolve(ctx, next, headers, depth+1)

	case m3u8.MEDIA:
		media := pl.(*m3u8.MediaPlaylist)
		var segments []string
		for _, seg := range media.Segments {
			if seg == nil || seg.URI == "" {
				continue
			}
			segments = append(segments, resolveRef(base, seg.URI))
		}
		if len(segments) == 0 {
			return nil, &ManifestError{URL: manifestURL, Reason: "playlist lists no segments"}
		}
		return segments, nil

	default:
		return r.scanPlain(ctx, manifestURL, base, body, headers, depth)
	}
}

// scanPlain consumes a manifest line by line. Lines starting with "#" are
// tags and blank lines are padding; everything else is a URL. An
// #EXT-X-STREAM-INF tag anywhere marks the file as a variant index, in
// which case the plain lines are variant URLs and the last one is
// followed; otherwise they are media segment URLs in listed order.
func (r *Resolver) scanPlain(ctx context.Context, manifestURL string, base *url.URL, body []byte, headers map[string]string, depth int) ([]string, error) {
	var entries []string
	variantIndex := false
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "#EXT-X-STREAM-INF") {
				variantIndex = true
			}
			continue
		}
		entries = append(entries, resolveRef(base, line))
	}

	if variantIndex {
		if len(entries) == 0 {
			return nil, &ManifestError{URL: manifestURL, Reason: "variant index lists no variants"}
		}
		next := entries[len(entries)-1]
		r.log.Debug().Str("manifest", manifestURL).Str("variant", next).Msg("descending into variant")
		return r.resolve(ctx, next, headers, depth+1)
	}
	if len(entries) == 0 {
		return nil, &ManifestError{URL: manifestURL, Reason: "playlist lists no segments"}
	}
	return entries, nil
}

// hasM3UHeader reports whether the first non-blank line is the #EXTM3U
// header.
func hasM3UHeader(body []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		return strings.HasPrefix(line, "#EXTM3U")
	}
	return false
}

// resolveRef resolves a possibly-relative reference against a base URL.
func resolveRef(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
