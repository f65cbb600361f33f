package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sh00ty/rendezvous/internal/models"
)

// Backend keeps every record as a file named after the record inside one
// shared directory. Files appear atomically, so a reader either sees the
// whole endpoint or no file at all.
type Backend struct {
	dir string
}

func NewBackend(dir string) (*Backend, error) {
	if dir == "" {
		dir = "."
	}
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create rendezvous dir %s: %w", dir, err)
	}
	return &Backend{dir: dir}, nil
}

func (b *Backend) Dir() string {
	return b.dir
}

// Path returns the file the record with the given name lives in.
func (b *Backend) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid rendezvous name %q", name)
	}
	return filepath.Join(b.dir, name), nil
}

func (b *Backend) Publish(ctx context.Context, name string, endpoint string) error {
	path, err := b.Path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	_, err = tmp.WriteString(endpoint)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to write endpoint for %s: %w", name, err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", name, closeErr)
	}

	// link fails if the target exists, which makes publish create-only
	err = os.Link(tmpName, path)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("publish %s: %w", path, models.ErrAlreadyPublished)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	return nil
}

func (b *Backend) Resolve(ctx context.Context, name string) (string, error) {
	path, err := b.Path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("resolve %s: %w", path, models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	endpoint := strings.TrimSpace(string(data))
	if endpoint == "" {
		// somebody created the file by hand and has not written it yet
		return "", fmt.Errorf("resolve %s: empty file: %w", path, models.ErrNotFound)
	}
	return endpoint, nil
}

func (b *Backend) Retract(ctx context.Context, name string) error {
	path, err := b.Path(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("retract %s: %w", path, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
