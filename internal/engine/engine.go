// Package engine coordinates naming, request deduplication, fetching and
// post-processing for remote media downloads.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"media-fetcher/internal/cache"
	"media-fetcher/internal/config"
	"media-fetcher/internal/fetch"
	"media-fetcher/internal/history"
	"media-fetcher/internal/playlist"
	"media-fetcher/internal/remux"
)

// Request describes one logical download.
type Request struct {
	URL     string
	Kind    cache.Kind
	Name    string            // optional explicit file name
	Headers map[string]string // extra per-request headers
}

// Engine is the download coordinator. All mutable state (name history,
// in-flight map) is owned by the instance, so tests can construct isolated
// engines.
type Engine struct {
	store    *cache.Store
	names    *cache.NameAllocator
	flights  *flightGroup
	fetcher  *fetch.Fetcher
	resolver *playlist.Resolver
	asm      *playlist.Assembler
	remuxer  *remux.Pipeline
	history  *history.Repository
	log      zerolog.Logger
}

// New wires an engine from configuration. repo may be nil when no history
// should be kept.
func New(cfg config.Config, store *cache.Store, repo *history.Repository, logger zerolog.Logger) *Engine {
	fetcher := fetch.New(cfg.Headers, cfg.MaxFileSizeMB, cfg.MaxRetries, logger)
	return &Engine{
		store:    store,
		names:    cache.NewNameAllocator(),
		flights:  newFlightGroup(),
		fetcher:  fetcher,
		resolver: playlist.NewResolver(fetcher, logger),
		asm:      playlist.NewAssembler(fetcher, logger),
		remuxer:  remux.New(cfg.FFmpegPath, logger),
		history:  repo,
		log:      logger.With().Str("component", "engine").Logger(),
	}
}

// Download returns the local path for the resource, fetching it at most
// once per cache key no matter how many callers ask concurrently.
func (e *Engine) Download(ctx context.Context, req Request) (string, error) {
	if req.URL == "" {
		return "", fetch.ErrEmptyURL
	}
	name := req.Name
	if name == "" {
		name = e.names.Allocate(req.URL, req.Kind)
	}
	key := cache.Key(req.URL, req.Kind)
	h := e.flights.getOrStart(key, func() (string, error) {
		return e.run(req, name)
	})
	return h.Wait(ctx)
}

// DownloadMerged fetches a video stream and an audio stream independently
// and muxes them into one file.
func (e *Engine) DownloadMerged(ctx context.Context, videoURL, audioURL, name string, headers map[string]string) (string, error) {
	if videoURL == "" || audioURL == "" {
		return "", fetch.ErrEmptyURL
	}
	if name == "" {
		name = e.names.Allocate(videoURL, cache.KindVideo)
	}
	key := cache.Key(videoURL+"|"+audioURL, cache.KindVideo)
	h := e.flights.getOrStart(key, func() (string, error) {
		return e.runMerge(videoURL, audioURL, name, headers)
	})
	return h.Wait(ctx)
}

// run executes one flight. It uses a background context: the flight belongs
// to every current and future waiter, not to the caller that started it.
func (e *Engine) run(req Request, name string) (string, error) {
	ctx := context.Background()
	dest := e.store.Path(name)
	if fileExists(dest) {
		return dest, nil
	}

	var path string
	var err error
	if playlist.IsManifest(req.URL) {
		path, err = e.downloadStream(ctx, req, dest)
	} else {
		path, err = e.fetcher.Fetch(ctx, req.URL, dest, req.Headers)
	}
	if err != nil {
		return "", err
	}
	e.record(req.URL, req.Kind, path)
	return path, nil
}

// downloadStream resolves a manifest down to one media playlist, assembles
// its segments into a transport-stream container and remuxes the result.
func (e *Engine) downloadStream(ctx context.Context, req Request, dest string) (string, error) {
	segments, err := e.resolver.Resolve(ctx, req.URL, req.Headers)
	if err != nil {
		return "", err
	}

	tmp := dest + ".ts"
	if _, err := e.asm.Assemble(ctx, segments, tmp, req.Headers); err != nil {
		return "", err
	}

	out, err := e.remuxer.Remux(ctx, tmp, dest)
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	return out, nil
}

func (e *Engine) runMerge(videoURL, audioURL, name string, headers map[string]string) (string, error) {
	ctx := context.Background()
	dest := e.store.Path(name)
	if fileExists(dest) {
		return dest, nil
	}

	base := strings.TrimSuffix(dest, filepath.Ext(dest))
	var videoPath, audioPath string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.fetcher.Fetch(gctx, videoURL, base+".video.tmp", headers)
		videoPath = p
		return err
	})
	g.Go(func() error {
		p, err := e.fetcher.Fetch(gctx, audioURL, base+".audio.tmp", headers)
		audioPath = p
		return err
	})
	if err := g.Wait(); err != nil {
		removeIfSet(videoPath)
		removeIfSet(audioPath)
		return "", err
	}

	out, err := e.remuxer.Merge(ctx, videoPath, audioPath, dest)
	if err != nil {
		return "", err
	}
	e.record(videoURL, cache.KindVideo, out)
	return out, nil
}

func (e *Engine) record(rawURL string, kind cache.Kind, path string) {
	if e.history == nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	rec := history.Record{
		ID:          cache.Key(rawURL, kind),
		URL:         rawURL,
		Kind:        kind.String(),
		Path:        path,
		SizeBytes:   info.Size(),
		CreatedTime: time.Now(),
		Status:      history.StatusCompleted,
	}
	if err := e.history.Create(rec); err != nil {
		e.log.Warn().Err(err).Str("url", rawURL).Msg("failed to record download")
	}
}

func removeIfSet(path string) {
	if path != "" {
		os.Remove(path)
	}
}
