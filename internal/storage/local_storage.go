package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type LocalStorage struct {
	basePath string
}

var _ BlobStorage = (*LocalStorage)(nil)

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, err
	}
	return &LocalStorage{basePath: basePath}, nil
}

// pathFor shards blobs into two directory levels taken from the name prefix.
func (ls *LocalStorage) pathFor(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	if len(name) < 4 {
		return filepath.Join(ls.basePath, name), nil
	}
	return filepath.Join(ls.basePath, name[:2], name[2:4], name), nil
}

// Save writes to a temp file first so a failed write never leaves a partial blob.
func (ls *LocalStorage) Save(ctx context.Context, name string, data io.Reader) error {
	filePath, err := ls.pathFor(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(filePath)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (ls *LocalStorage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	filePath, err := ls.pathFor(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", name, ErrBlobNotFound)
		}
		return nil, err
	}

	return file, nil
}

func (ls *LocalStorage) Delete(ctx context.Context, name string) error {
	filePath, err := ls.pathFor(name)
	if err != nil {
		return err
	}

	err = os.Remove(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}
