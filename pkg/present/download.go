package present

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DownloadName is the fixed save-as name of a downloaded result.
const DownloadName = "image.jpg"

// Fetcher retrieves the bytes behind a result reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// Download fetches ref and saves it as dir/image.jpg, replacing any earlier
// download. It returns the written path.
func Download(ctx context.Context, f Fetcher, ref, dir string) (string, error) {
	if ref == "" {
		return "", errors.New("download: empty reference")
	}
	if dir == "" {
		dir = "."
	}
	data, _, err := f.Fetch(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("download: empty body")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, DownloadName)
	tmp, err := os.CreateTemp(dir, ".image-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return dst, nil
}
