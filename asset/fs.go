package asset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FS stores assets on the local filesystem under root/<slug>/<name> and
// serves them under baseURL/<slug>/<name>.
type FS struct {
	root    string
	baseURL string
}

// FSOption configures an FS store.
type FSOption func(*FS)

// WithBaseURL overrides the URL prefix assets are served under.
// Defaults to "/assets".
func WithBaseURL(prefix string) FSOption {
	return func(f *FS) {
		f.baseURL = prefix
	}
}

// NewFS creates a filesystem asset store rooted at dir, creating it if
// necessary.
func NewFS(dir string, opts ...FSOption) (*FS, error) {
	f := &FS{root: dir, baseURL: "/assets"}
	for _, opt := range opts {
		opt(f)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return f, nil
}

var _ Store = (*FS)(nil)

func (f *FS) Save(_ context.Context, slug, name string, r io.Reader) (string, error) {
	if err := validName(slug); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}

	dir := filepath.Join(f.root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	// Write to a temp file in the same directory, then rename, so a
	// concurrent reader never sees a half-written blob.
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp asset: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("publish asset: %w", err)
	}
	return f.URL(slug, name), nil
}

func (f *FS) Open(_ context.Context, slug, name string) (io.ReadCloser, error) {
	if err := validName(slug); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	rc, err := os.Open(filepath.Join(f.root, slug, name))
	if err != nil {
		return nil, fmt.Errorf("open asset %s/%s: %w", slug, name, err)
	}
	return rc, nil
}

func (f *FS) URL(slug, name string) string {
	return f.baseURL + "/" + slug + "/" + name
}

func (f *FS) Remove(_ context.Context, slug string) error {
	if err := validName(slug); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(f.root, slug)); err != nil {
		return fmt.Errorf("remove assets for %s: %w", slug, err)
	}
	return nil
}

// Root returns the directory assets are stored under, for serving the
// tree over HTTP.
func (f *FS) Root() string { return f.root }
