package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAllocateStableForRepeatedURL(t *testing.T) {
	a := NewNameAllocator()

	first := a.Allocate("https://example.com/v/123", KindVideo)
	second := a.Allocate("https://example.com/v/123", KindVideo)

	if first != second {
		t.Fatalf("expected stable name for repeated URL, got %q then %q", first, second)
	}
}

func TestAllocateEvictsOldestBeyondCapacity(t *testing.T) {
	a := NewNameAllocator()

	a.Allocate("https://example.com/first", KindVideo)
	for i := 0; i < historySize; i++ {
		a.Allocate(fmt.Sprintf("https://example.com/%d", i), KindVideo)
	}

	if len(a.entries) != historySize {
		t.Fatalf("expected history capped at %d, got %d", historySize, len(a.entries))
	}
	for _, e := range a.entries {
		if e.url == "https://example.com/first" {
			t.Fatal("expected oldest entry to be evicted")
		}
	}
}

func TestAllocateExtensions(t *testing.T) {
	a := NewNameAllocator()

	tests := []struct {
		url  string
		kind Kind
		ext  string
	}{
		{"https://example.com/a", KindAudio, ".mp3"},
		{"https://example.com/b", KindVideo, ".mp4"},
		{"https://example.com/c", KindImage, ".jpg"},
		{"https://example.com/doc/file.pdf?sig=abc", KindGeneric, ".pdf"},
		{"https://example.com/noext", KindGeneric, ""},
	}

	for _, tt := range tests {
		name := a.Allocate(tt.url, tt.kind)
		if tt.ext == "" {
			if got := sniffExt(tt.url); got != "" {
				t.Errorf("sniffExt(%q) = %q, expected none", tt.url, got)
			}
			continue
		}
		if !strings.HasSuffix(name, tt.ext) {
			t.Errorf("Allocate(%q, %v) = %q, expected suffix %q", tt.url, tt.kind, name, tt.ext)
		}
	}
}

func TestDeriveNameDeterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := deriveName("https://example.com/x", KindVideo, now)
	b := deriveName("https://example.com/x", KindVideo, now)
	if a != b {
		t.Fatalf("expected deterministic name, got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "video-1700000000-") {
		t.Fatalf("unexpected name shape: %q", a)
	}
}

func TestSniffExtRejectsJunk(t *testing.T) {
	tests := []string{
		"https://example.com/file.superlongext",
		"https://example.com/file.a%b",
		"://bad-url.mp4",
		"https://example.com/",
	}
	for _, u := range tests {
		if got := sniffExt(u); got != "" {
			t.Errorf("sniffExt(%q) = %q, expected none", u, got)
		}
	}
}
