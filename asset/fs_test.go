package asset_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/musewave/maestro/asset"
)

func TestFS_SaveAndOpen(t *testing.T) {
	store, err := asset.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}

	url, err := store.Save(context.Background(), "midnight-drive", asset.FileInstrumental,
		strings.NewReader("RIFF...wav bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if want := "/assets/midnight-drive/instrumental.wav"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}

	rc, err := store.Open(context.Background(), "midnight-drive", asset.FileInstrumental)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "RIFF...wav bytes" {
		t.Errorf("read back %q", data)
	}
}

func TestFS_SaveReplaces(t *testing.T) {
	store, err := asset.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Save(ctx, "track", asset.FileMix, strings.NewReader("v1")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := store.Save(ctx, "track", asset.FileMix, strings.NewReader("v2")); err != nil {
		t.Fatalf("second save: %v", err)
	}

	rc, err := store.Open(ctx, "track", asset.FileMix)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "v2" {
		t.Errorf("read back %q, want replacement", data)
	}
}

func TestFS_RejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	store, err := asset.NewFS(filepath.Join(root, "assets"))
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}

	ctx := context.Background()
	for _, slug := range []string{"", "..", "a/b", `a\b`} {
		if _, err := store.Save(ctx, slug, asset.FileVideo, strings.NewReader("x")); err == nil {
			t.Errorf("slug %q should be rejected", slug)
		}
	}
	if _, err := store.Open(ctx, "ok", "../secret"); err == nil {
		t.Error("name with separator should be rejected")
	}
}

func TestFS_Remove(t *testing.T) {
	root := t.TempDir()
	store, err := asset.NewFS(root)
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Save(ctx, "gone", asset.FileVocals, strings.NewReader("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Remove(ctx, "gone"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "gone")); !os.IsNotExist(err) {
		t.Error("slug directory should be gone")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Midnight Drive", "midnight-drive"},
		{"  Lo-Fi  Beats!! ", "lo-fi-beats"},
		{"Synthwave / RnB", "synthwave-rnb"},
		{"", "untitled"},
		{"!!!", "untitled"},
	}
	for _, tt := range tests {
		if got := asset.Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
