package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"media-fetcher/internal/cache"
	"media-fetcher/internal/config"
	"media-fetcher/internal/fetch"
	"media-fetcher/internal/remux"
)

func newTestEngine(t *testing.T) (*Engine, *cache.Store) {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	cfg := config.Config{
		MaxFileSizeMB: 10,
		MaxRetries:    0,
		FFmpegPath:    "no-such-media-tool-for-tests",
	}
	return New(cfg, store, nil, zerolog.Nop()), store
}

func TestDownloadDirectFile(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	eng, store := newTestEngine(t)
	path, err := eng.Download(context.Background(), Request{
		URL:  srv.URL + "/photo.jpg",
		Kind: cache.KindImage,
		Name: "photo.jpg",
	})
	if err != nil {
		t.Fatalf("download returned error: %v", err)
	}
	if path != store.Path("photo.jpg") {
		t.Fatalf("unexpected path %q", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read result: %v", err)
	}
	if string(got) != "image bytes" {
		t.Fatalf("unexpected content %q", got)
	}

	// The second request reuses the completed handle; the origin is not
	// contacted again.
	again, err := eng.Download(context.Background(), Request{
		URL:  srv.URL + "/photo.jpg",
		Kind: cache.KindImage,
		Name: "photo.jpg",
	})
	if err != nil {
		t.Fatalf("repeat download returned error: %v", err)
	}
	if again != path {
		t.Fatalf("expected identical path, got %q and %q", path, again)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one origin hit, got %d", hits.Load())
	}
}

func TestDownloadConcurrentSingleFlight(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte("shared payload"))
	}))
	defer srv.Close()

	eng, _ := newTestEngine(t)
	req := Request{URL: srv.URL + "/v.mp4", Kind: cache.KindVideo, Name: "v.mp4"}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	paths := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = eng.Download(context.Background(), req)
		}(i)
	}
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Fatalf("caller %d got different path %q", i, paths[i])
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one origin fetch, got %d", hits.Load())
	}
}

func TestDownloadEmptyURL(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Download(context.Background(), Request{})
	if !errors.Is(err, fetch.ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
}

func TestDownloadZeroSizeResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eng, _ := newTestEngine(t)
	_, err := eng.Download(context.Background(), Request{URL: srv.URL + "/empty.bin", Name: "empty.bin"})
	if !errors.Is(err, fetch.ErrZeroSize) {
		t.Fatalf("expected ErrZeroSize, got %v", err)
	}
}

func TestDownloadManifestAssemblesStream(t *testing.T) {
	seg0 := bytes.Repeat([]byte{'a'}, 700)
	seg1 := bytes.Repeat([]byte{'b'}, 700)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	master := `#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=800000
low.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=2000000
high.m3u8
`
	media := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.0,
seg0.ts
#EXTINF:9.0,
seg1.ts
#EXT-X-ENDLIST
`
	mux.HandleFunc("/stream/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, master) })
	mux.HandleFunc("/stream/high.m3u8", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, media) })
	mux.HandleFunc("/stream/seg0.ts", func(w http.ResponseWriter, r *http.Request) { w.Write(seg0) })
	mux.HandleFunc("/stream/seg1.ts", func(w http.ResponseWriter, r *http.Request) { w.Write(seg1) })

	eng, store := newTestEngine(t)
	path, err := eng.Download(context.Background(), Request{
		URL:  srv.URL + "/stream/playlist.m3u8",
		Kind: cache.KindVideo,
		Name: "clip.mp4",
	})
	if err != nil {
		t.Fatalf("download returned error: %v", err)
	}
	if path != store.Path("clip.mp4") {
		t.Fatalf("unexpected path %q", path)
	}

	// Without the external tool the assembled stream is renamed as-is.
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read result: %v", err)
	}
	want := append(append([]byte{}, seg0...), seg1...)
	if !bytes.Equal(got, want) {
		t.Fatal("assembled file does not match segment bytes in order")
	}
	if _, err := os.Stat(path + ".ts"); !os.IsNotExist(err) {
		t.Fatal("expected temporary container to be gone")
	}
}

func TestDownloadMergedDeletesInputsOnToolFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stream bytes"))
	}))
	defer srv.Close()

	eng, store := newTestEngine(t)
	_, err := eng.DownloadMerged(context.Background(), srv.URL+"/v.mp4", srv.URL+"/a.mp3", "muxed.mp4", nil)

	var mergeErr *remux.MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("expected MergeError, got %v", err)
	}

	entries, readErr := os.ReadDir(store.Root())
	if readErr != nil {
		t.Fatalf("failed to read store: %v", readErr)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected consumed inputs to be deleted, found %v", names)
	}
}
