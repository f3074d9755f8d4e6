package asset

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/musewave/maestro"
)

// Canonical file names inside a track's asset directory. Every stage of
// the pipeline writes a fixed name so later stages can find its output
// knowing only the slug.
const (
	FileInstrumental = "instrumental.wav"
	FileVocals       = "vocals.wav"
	FileMix          = "mix.mp3"
	FileVideo        = "video.mp4"
)

// Store persists generated media blobs, grouped by track slug.
type Store interface {
	// Save writes the blob under slug/name and returns its public URL.
	// Saving over an existing name replaces it atomically.
	Save(ctx context.Context, slug, name string, r io.Reader) (string, error)

	// Open returns a reader for a previously saved blob.
	Open(ctx context.Context, slug, name string) (io.ReadCloser, error)

	// URL returns the public URL a saved blob is served under, without
	// checking that it exists.
	URL(slug, name string) string

	// Remove deletes every blob stored under the slug.
	Remove(ctx context.Context, slug string) error
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a filesystem- and URL-safe slug from a track title.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled"
	}
	if len(s) > 64 {
		s = strings.Trim(s[:64], "-")
	}
	return s
}

// validName rejects path components that could escape the asset root.
func validName(s string) error {
	if s == "" {
		return maestro.Validationf("name", "must not be empty")
	}
	if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return maestro.Validationf("name", "%q is not a valid path component", s)
	}
	return nil
}
