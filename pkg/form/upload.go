package form

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/osvaldoandrade/modelhub/internal/metrics"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

var acceptedImages = []string{"image/jpeg", "image/png", "image/webp"}

// OpenLocal resolves a local file selection for an asset field and checks its
// content against what the field accepts.
func OpenLocal(path string, kind domain.FieldType) (*domain.LocalFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case domain.FieldImage:
		if !mimetype.EqualsAny(mt.String(), acceptedImages...) {
			return nil, fmt.Errorf("unsupported image type %s (PNG, JPG or Webp)", mt.String())
		}
		if err := probeImage(path); err != nil {
			return nil, err
		}
	case domain.FieldVideo:
		if !isFamily(mt, "video/") {
			return nil, fmt.Errorf("not a video file (%s)", mt.String())
		}
	case domain.FieldAudio:
		if !isFamily(mt, "audio/") {
			return nil, fmt.Errorf("not an audio file (%s)", mt.String())
		}
	default:
		return nil, fmt.Errorf("%s fields do not take files", kind)
	}
	return &domain.LocalFile{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: mt.String(),
		Size:        info.Size(),
	}, nil
}

func isFamily(mt *mimetype.MIME, prefix string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), prefix) {
			return true
		}
	}
	return false
}

func probeImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("unreadable image: %w", err)
	}
	return nil
}

// AssetUploader is the collaborator that stores a file and returns its URL.
type AssetUploader interface {
	UploadAsset(ctx context.Context, file *domain.LocalFile) (string, error)
}

// Uploads runs the image upload sub-flow. Each field has its own busy state;
// different fields upload independently.
type Uploads struct {
	uploader AssetUploader
	store    *Store
	logger   *slog.Logger

	mu     sync.Mutex
	busy   map[string]bool
	onBusy func(key string, busy bool)
}

func NewUploads(uploader AssetUploader, store *Store, logger *slog.Logger) *Uploads {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploads{uploader: uploader, store: store, logger: logger, busy: map[string]bool{}}
}

// OnBusy registers a callback for busy transitions, e.g. to drive a spinner.
func (u *Uploads) OnBusy(fn func(key string, busy bool)) {
	u.mu.Lock()
	u.onBusy = fn
	u.mu.Unlock()
}

// Busy reports whether key has an upload in flight.
func (u *Uploads) Busy(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.busy[key]
}

// Upload sends file and writes the returned reference into the store. A
// second upload for a field that is already uploading is rejected with
// domain.ErrUploadInProgress. Failures are logged and returned as
// *domain.UploadError; the store is left untouched.
func (u *Uploads) Upload(ctx context.Context, key string, file *domain.LocalFile) error {
	if file == nil {
		return &domain.UploadError{Key: key, Err: errors.New("no file")}
	}
	u.mu.Lock()
	if u.busy[key] {
		u.mu.Unlock()
		return domain.ErrUploadInProgress
	}
	u.busy[key] = true
	notify := u.onBusy
	u.mu.Unlock()
	if notify != nil {
		notify(key, true)
	}

	defer func() {
		u.mu.Lock()
		delete(u.busy, key)
		notify := u.onBusy
		u.mu.Unlock()
		if notify != nil {
			notify(key, false)
		}
	}()

	url, err := u.uploader.UploadAsset(ctx, file)
	if err == nil && strings.TrimSpace(url) == "" {
		err = errors.New("upload returned no url")
	}
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failure").Inc()
		u.logger.Warn("image upload failed", "field", key, "file", file.Name, "err", err)
		return &domain.UploadError{Key: key, Err: err}
	}
	metrics.UploadsTotal.WithLabelValues("success").Inc()
	u.store.Set(key, url)
	return nil
}
