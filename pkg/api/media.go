package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// UploadAsset sends file as multipart field "image" and returns the stored
// URL.
func (c *Client) UploadAsset(ctx context.Context, file *domain.LocalFile) (string, error) {
	if file == nil {
		return "", fmt.Errorf("upload: no file")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeFile(mw, "image", file); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	r := request{
		op:          "upload_media",
		method:      http.MethodPost,
		path:        "/media/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		accept:      "application/json",
		auth:        true,
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.decode(ctx, r, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Fetch reads the bytes behind a result reference: http(s) URLs are fetched
// without credentials, file:// references are read from disk.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	switch u.Scheme {
	case "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, "", err
		}
		return data, mimetype.Detect(data).String(), nil
	case "http", "https":
	default:
		return nil, "", fmt.Errorf("unsupported reference scheme %q", u.Scheme)
	}

	ctx, span := c.tracer.Start(ctx, "api.fetch")
	defer span.End()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch %s: %w", domain.ErrNetwork, u.Redacted(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", readAPIError(resp)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %w", domain.ErrNetwork, u.Redacted(), err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = mimetype.Detect(data).String()
	}
	return data, ct, nil
}
