package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// FileStore persists artifacts in a local directory. It is intended for single-node and
// development deployments.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("artifact: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.basePath, name)
}

// Put writes data to a temporary file and renames it into place so readers never
// observe a partial artifact.
func (s *FileStore) Put(ctx context.Context, name string, data []byte) (models.Artifact, error) {
	if err := checkName(name); err != nil {
		return models.Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Artifact{}, err
	}

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return models.Artifact{}, fmt.Errorf("artifact: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return models.Artifact{}, fmt.Errorf("artifact: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.Artifact{}, fmt.Errorf("artifact: close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return models.Artifact{}, fmt.Errorf("artifact: rename file: %w", err)
	}

	info, err := os.Stat(s.path(name))
	if err != nil {
		return models.Artifact{}, fmt.Errorf("artifact: stat file: %w", err)
	}
	return models.Artifact{
		Name:        name,
		Size:        info.Size(),
		ContentType: ContentType(name),
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

func (s *FileStore) Open(_ context.Context, name string) (io.ReadCloser, models.Artifact, error) {
	if err := checkName(name); err != nil {
		return nil, models.Artifact{}, ErrNotFound
	}
	f, err := os.Open(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.Artifact{}, ErrNotFound
	}
	if err != nil {
		return nil, models.Artifact{}, fmt.Errorf("artifact: open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, models.Artifact{}, fmt.Errorf("artifact: stat file: %w", err)
	}
	return f, models.Artifact{
		Name:        name,
		Size:        info.Size(),
		ContentType: ContentType(name),
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("artifact: delete file: %w", err)
	}
	return nil
}

func (s *FileStore) Ping(context.Context) error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("artifact: stat base path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact: %s is not a directory", s.basePath)
	}
	return nil
}
