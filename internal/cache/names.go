package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"
)

// historySize bounds the URL to name mapping. The table only keeps repeated
// requests for the same URL idempotent in naming; it is not a correctness
// cache, so a small window is enough.
const historySize = 20

type nameEntry struct {
	url  string
	name string
}

// NameAllocator maps URLs to stable local file names. Repeated requests for
// a URL still in the history window get the previously assigned name.
type NameAllocator struct {
	mu      sync.Mutex
	entries []nameEntry
}

func NewNameAllocator() *NameAllocator {
	return &NameAllocator{}
}

// Allocate returns the file name for a URL, deriving and recording a new one
// on first sight. The oldest mapping is evicted once the history is full.
func (a *NameAllocator) Allocate(rawURL string, kind Kind) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range a.entries {
		if e.url == rawURL {
			return e.name
		}
	}

	name := deriveName(rawURL, kind, time.Now())
	a.entries = append(a.entries, nameEntry{url: rawURL, name: name})
	if len(a.entries) > historySize {
		a.entries = a.entries[1:]
	}
	return name
}

// deriveName builds a collision-resistant name from the kind, the current
// time and a hash of the URL.
func deriveName(rawURL string, kind Kind, now time.Time) string {
	ext := kind.Ext()
	if ext == "" {
		ext = sniffExt(rawURL)
	}
	hash := md5.Sum([]byte(rawURL))
	return fmt.Sprintf("%s-%d-%s%s", kind, now.Unix(), hex.EncodeToString(hash[:])[:12], ext)
}

// sniffExt extracts a plausible extension from the URL path, ignoring the
// query string.
func sniffExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) < 2 || len(ext) > 5 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
