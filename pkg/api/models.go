package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// GetModel fetches a model descriptor. A missing model is domain.ErrNotFound.
func (c *Client) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("model id: %w", domain.ErrNotFound)
	}
	r, _ := jsonRequest("get_model", http.MethodGet, "/models/"+url.PathEscape(id), nil, true)
	var m domain.Model
	if err := c.decode(ctx, r, &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = id
	}
	return &m, nil
}

type ModelQuery struct {
	Search string
	Sort   string
}

// ListModels searches the catalog. Sort defaults to popularity.
func (c *Client) ListModels(ctx context.Context, q ModelQuery) ([]domain.Model, error) {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	sortBy := q.Sort
	if sortBy == "" {
		sortBy = "popularity"
	}
	v.Set("sort", sortBy)
	r, _ := jsonRequest("list_models", http.MethodGet, "/models?"+v.Encode(), nil, true)

	var raw json.RawMessage
	if err := c.decode(ctx, r, &raw); err != nil {
		return nil, err
	}
	var list []domain.Model
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Models []domain.Model `json:"models"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode list_models response: %w", err)
	}
	return wrapped.Models, nil
}

// RunModel executes modelID against inputs. The body is JSON
// {modelId, ...inputs}; inputs holding *domain.LocalFile values are sent as
// multipart instead. The answer is either JSON {imageUrl} or a binary
// payload.
func (c *Client) RunModel(ctx context.Context, modelID string, inputs map[string]any) (*domain.RunOutput, error) {
	r, err := runRequest(modelID, inputs)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read run response: %w", domain.ErrNetwork, err)
	}
	ct := resp.Header.Get("Content-Type")
	if isJSON(ct) {
		var out struct {
			ImageURL string `json:"imageUrl"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode run response: %w", err)
		}
		return &domain.RunOutput{ImageURL: out.ImageURL}, nil
	}
	if len(data) == 0 {
		return &domain.RunOutput{}, nil
	}
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = mimetype.Detect(data).String()
	}
	return &domain.RunOutput{Data: data, ContentType: ct}, nil
}

func runRequest(modelID string, inputs map[string]any) (request, error) {
	hasFiles := false
	for _, v := range inputs {
		if _, ok := v.(*domain.LocalFile); ok {
			hasFiles = true
			break
		}
	}
	if !hasFiles {
		// Inputs are spread over modelId, so an input keyed modelId wins.
		payload := map[string]any{"modelId": modelID}
		for k, v := range inputs {
			payload[k] = v
		}
		r, err := jsonRequest("run_model", http.MethodPost, "/models/run", payload, true)
		r.accept = "application/json, image/*"
		return r, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, ok := inputs["modelId"]; !ok {
		if err := mw.WriteField("modelId", modelID); err != nil {
			return request{}, err
		}
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writePart(mw, k, inputs[k]); err != nil {
			return request{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return request{}, err
	}
	return request{
		op:          "run_model",
		method:      http.MethodPost,
		path:        "/models/run",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		accept:      "application/json, image/*",
		auth:        true,
	}, nil
}

func writePart(mw *multipart.Writer, key string, v any) error {
	switch t := v.(type) {
	case *domain.LocalFile:
		return writeFile(mw, key, t)
	case string:
		return mw.WriteField(key, t)
	case bool:
		return mw.WriteField(key, strconv.FormatBool(t))
	case float64:
		return mw.WriteField(key, strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		return mw.WriteField(key, strconv.Itoa(t))
	case nil:
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		return mw.WriteField(key, string(b))
	}
}

func writeFile(mw *multipart.Writer, field string, f *domain.LocalFile) error {
	if f == nil {
		return nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}
	ct := f.ContentType
	if ct == "" {
		ct = mimetype.Detect(data).String()
	}
	name := f.Name
	if name == "" {
		name = "upload"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": field, "filename": name}))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func isJSON(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
