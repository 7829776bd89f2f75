package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const PublicPrefix = "/uploads/"

type Disk struct {
	dir string
}

func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) Dir() string {
	return d.dir
}

func (d *Disk) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	f, err := os.OpenFile(filepath.Join(d.dir, filepath.Base(key)), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create avatar file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write avatar file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close avatar file: %w", err)
	}
	return PublicPrefix + filepath.Base(key), nil
}

func (d *Disk) Delete(_ context.Context, ref string) error {
	if !strings.HasPrefix(ref, PublicPrefix) {
		return nil
	}
	name := path.Base(ref)
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove avatar file: %w", err)
	}
	return nil
}
