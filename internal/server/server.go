package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"media-fetcher/internal/cache"
	"media-fetcher/internal/config"
	"media-fetcher/internal/engine"
	"media-fetcher/internal/fetch"
	"media-fetcher/internal/history"
	"media-fetcher/internal/playlist"
	"media-fetcher/internal/remux"
)

// Server exposes the download engine over HTTP.
type Server struct {
	addr    string
	store   *cache.Store
	engine  *engine.Engine
	history *history.Repository
	log     zerolog.Logger
}

func New(cfg config.Config, store *cache.Store, eng *engine.Engine, repo *history.Repository, logger zerolog.Logger) *Server {
	return &Server{
		addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		store:   store,
		engine:  eng,
		history: repo,
		log:     logger.With().Str("component", "server").Logger(),
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("server starting")
	return http.ListenAndServe(s.addr, s.Handler())
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/fetch", s.handleFetch)
	mux.HandleFunc("POST /api/merge", s.handleMerge)
	mux.HandleFunc("GET /api/downloads", s.handleList)
	mux.HandleFunc("DELETE /api/downloads/{id}", s.handleDelete)

	mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(s.store.Root()))))

	return mux
}

type fetchRequest struct {
	URL     string            `json:"url"`
	Kind    string            `json:"kind"`
	Name    string            `json:"name"`
	Headers map[string]string `json:"headers"`
}

type mergeRequest struct {
	VideoURL string            `json:"video_url"`
	AudioURL string            `json:"audio_url"`
	Name     string            `json:"name"`
	Headers  map[string]string `json:"headers"`
}

type fileResponse struct {
	Path string `json:"path"`
	Size string `json:"size"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var body fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := url.Parse(body.URL); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	path, err := s.engine.Download(r.Context(), engine.Request{
		URL:     body.URL,
		Kind:    cache.KindFromString(body.Kind),
		Name:    body.Name,
		Headers: body.Headers,
	})
	if err != nil {
		s.writeFetchError(w, body.URL, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse(path))
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var body mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.VideoURL == "" || body.AudioURL == "" {
		writeError(w, http.StatusBadRequest, "video_url and audio_url are required")
		return
	}

	path, err := s.engine.DownloadMerged(r.Context(), body.VideoURL, body.AudioURL, body.Name, body.Headers)
	if err != nil {
		s.writeFetchError(w, body.VideoURL, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse(path))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type listItem struct {
		history.Record
		Size string `json:"size"`
	}
	items := make([]listItem, 0, len(records))
	for _, rec := range records {
		items = append(items, listItem{Record: rec, Size: humanize.Bytes(uint64(rec.SizeBytes))})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rec, err := s.history.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "download not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to remove file: %v", err))
		return
	}
	if err := s.history.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeFetchError maps engine errors to status codes and the short messages
// the presentation layer distinguishes: too large, empty, failed after
// retries.
func (s *Server) writeFetchError(w http.ResponseWriter, rawURL string, err error) {
	s.log.Error().Err(err).Str("url", rawURL).Msg("download failed")

	var sizeErr *fetch.SizeLimitError
	var dlErr *fetch.DownloadError
	var manifestErr *playlist.ManifestError
	var asmErr *playlist.AssemblyError
	var remuxErr *remux.RemuxError
	var mergeErr *remux.MergeError

	switch {
	case errors.Is(err, fetch.ErrEmptyURL):
		writeError(w, http.StatusBadRequest, "url is required")
	case errors.Is(err, fetch.ErrZeroSize):
		writeError(w, http.StatusUnprocessableEntity, "remote resource is empty")
	case errors.As(err, &sizeErr):
		writeError(w, http.StatusRequestEntityTooLarge, sizeErr.Error())
	case errors.As(err, &dlErr):
		writeError(w, http.StatusBadGateway, fmt.Sprintf("download failed after %d attempts", dlErr.Attempts))
	case errors.As(err, &manifestErr), errors.As(err, &asmErr),
		errors.As(err, &remuxErr), errors.As(err, &mergeErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func newFileResponse(path string) fileResponse {
	resp := fileResponse{Path: path}
	if info, err := os.Stat(path); err == nil {
		resp.Size = humanize.Bytes(uint64(info.Size()))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
