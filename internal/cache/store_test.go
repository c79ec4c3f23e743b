package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKeyStableAndKindScoped(t *testing.T) {
	a := Key("https://example.com/v", KindVideo)
	b := Key("https://example.com/v", KindVideo)
	c := Key("https://example.com/v", KindAudio)

	if a != b {
		t.Fatalf("expected equal keys for equal input, got %q and %q", a, b)
	}
	if a == c {
		t.Fatal("expected different kinds to produce different keys")
	}
}

func TestKindFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"audio", KindAudio},
		{"video", KindVideo},
		{"image", KindImage},
		{"", KindGeneric},
		{"bogus", KindGeneric},
	}
	for _, tt := range tests {
		if got := KindFromString(tt.in); got != tt.want {
			t.Errorf("KindFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStorePaths(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if s.Exists("missing.mp4") {
		t.Fatal("expected missing file to not exist")
	}

	path := s.Path("clip.mp4")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if !s.Exists("clip.mp4") {
		t.Fatal("expected file to exist")
	}

	if err := s.Remove("clip.mp4"); err != nil {
		t.Fatalf("remove returned error: %v", err)
	}
	if s.Exists("clip.mp4") {
		t.Fatal("expected file to be removed")
	}
	if err := s.Remove("clip.mp4"); err != nil {
		t.Fatalf("removing a missing file should not error, got: %v", err)
	}
}
