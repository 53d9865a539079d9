// Package vault is the document store notes and attachments are written to.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/spf13/afero"
)

// ErrExists is returned when creating a file that is already present.
var ErrExists = errors.New("vault: file already exists")

// Store is the set of document store operations the importer relies on.
// Paths are slash-separated and relative to the vault root.
type Store interface {
	Exists(ctx context.Context, p string) (bool, error)
	CreateFolder(ctx context.Context, p string) error
	CreateBinary(ctx context.Context, p string, data []byte) error
	CreateText(ctx context.Context, p string, content string) error
	ReadRaw(ctx context.Context, p string) (string, error)
}

// FS implements Store on top of an afero filesystem.
type FS struct {
	fs afero.Fs
}

// Open returns a vault rooted at the directory root on the local disk.
func Open(root string) (*FS, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening vault %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening vault %s: not a directory", root)
	}
	return NewFS(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// NewFS wraps an arbitrary afero filesystem. Tests use afero.NewMemMapFs.
func NewFS(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// Exists reports whether p names an existing file or folder.
func (v *FS) Exists(_ context.Context, p string) (bool, error) {
	ok, err := afero.Exists(v.fs, clean(p))
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", p, err)
	}
	return ok, nil
}

// CreateFolder creates p and any missing parents.
func (v *FS) CreateFolder(_ context.Context, p string) error {
	if err := v.fs.MkdirAll(clean(p), 0o755); err != nil {
		return fmt.Errorf("creating folder %s: %w", p, err)
	}
	return nil
}

// CreateBinary writes data to a new file at p. It fails with ErrExists if
// p is already taken.
func (v *FS) CreateBinary(_ context.Context, p string, data []byte) error {
	return v.create(p, data)
}

// CreateText writes content to a new file at p. It fails with ErrExists if
// p is already taken.
func (v *FS) CreateText(_ context.Context, p string, content string) error {
	return v.create(p, []byte(content))
}

// ReadRaw returns the contents of the file at p.
func (v *FS) ReadRaw(_ context.Context, p string) (string, error) {
	data, err := afero.ReadFile(v.fs, clean(p))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	return string(data), nil
}

func (v *FS) create(p string, data []byte) error {
	name := clean(p)
	if dir := path.Dir(name); dir != "." {
		if err := v.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating folder %s: %w", dir, err)
		}
	}

	f, err := v.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("creating %s: %w", p, ErrExists)
		}
		return fmt.Errorf("creating %s: %w", p, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", p, err)
	}
	return nil
}

func clean(p string) string {
	return path.Clean("/" + p)[1:]
}
