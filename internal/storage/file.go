package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File stores one document per key inside a directory. Key names are hex
// encoded so arbitrary session identifiers map to safe file names.
type File struct {
	Dir string
}

// NewFile ensures dir exists and returns a File adapter rooted there.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("storage: file backend requires a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &File{Dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.Dir, hex.EncodeToString([]byte(key))+".dat")
}

func (f *File) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save writes through a temp file and rename so readers never see a partial record.
func (f *File) Save(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(f.Dir, ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, f.path(key))
}

func (f *File) Remove(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *File) Ping(context.Context) error {
	_, err := os.Stat(f.Dir)
	return err
}
