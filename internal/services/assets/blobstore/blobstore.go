// Package blobstore stores asset blobs by name on an afero filesystem.
//
// Writes go to a temporary file that is renamed into place, so readers
// never observe a partially written blob under its final name.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrNotFound indicates no blob is stored under the requested name.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidName indicates a name that could escape the store root.
	ErrInvalidName = errors.New("invalid blob name")
)

const tempPrefix = ".upload-"

// Store is a flat name-keyed blob store.
type Store struct {
	fs afero.Fs
}

// New returns a store over fsys. Blobs live at the root of fsys.
func New(fsys afero.Fs) *Store {
	return &Store{fs: fsys}
}

// OpenDir returns a store rooted at dir on the OS filesystem, creating the
// directory when needed.
func OpenDir(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	osFS := afero.NewOsFs()
	if err := osFS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return New(afero.NewBasePathFs(osFS, dir)), nil
}

// Put stores data under name, replacing any previous blob with that name.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.fs == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, "/", tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return cause
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("write blob %s: %w", name, err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync blob %s: %w", name, err))
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close blob %s: %w", name, err)
	}
	if err := s.fs.Rename(tmpName, "/"+name); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("commit blob %s: %w", name, err)
	}
	return nil
}

// Get returns the blob stored under name.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.fs == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, "/"+name)
	if err != nil {
		if isNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

// Delete removes the blob stored under name. Deleting a missing blob is not
// an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.fs == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.fs.Remove("/" + name); err != nil && !isNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

// ValidateName rejects names that are empty, hidden, or contain path
// elements.
func ValidateName(name string) error {
	switch {
	case name == "",
		strings.HasPrefix(name, "."),
		strings.ContainsAny(name, `/\`),
		path.Clean(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}
