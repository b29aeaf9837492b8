package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// BlobStore persists binary run output and returns a reference to it.
type BlobStore interface {
	Put(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

type localBlobStore struct {
	rootDir string
}

// NewLocalBlobStore writes blobs under rootDir and returns file:// URLs.
func NewLocalBlobStore(rootDir string) BlobStore {
	return &localBlobStore{rootDir: rootDir}
}

func (u *localBlobStore) Put(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("blob %s: empty payload", name)
	}
	if filepath.Ext(name) == "" {
		name += extensionFor(contentType, data)
	}
	dst := filepath.Join(u.rootDir, filepath.Clean("/"+name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(dst)
	return "file://" + filepath.ToSlash(abs), nil
}

// extensionFor prefers the sniffed type; servers often send
// application/octet-stream for images.
func extensionFor(contentType string, data []byte) string {
	if ext := mimetype.Detect(data).Extension(); ext != "" {
		return ext
	}
	if ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]); ct != "" {
		if m := mimetype.Lookup(ct); m != nil {
			return m.Extension()
		}
	}
	return ".bin"
}
