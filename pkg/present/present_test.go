package present

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

func TestPresent(t *testing.T) {
	withPreview := &domain.Model{Name: "Upscaler", MainImage: "https://cdn/x.png"}
	bare := &domain.Model{Name: "Upscaler"}

	tests := []struct {
		name  string
		model *domain.Model
		run   domain.JobRun
		want  Frame
	}{
		{
			name:  "idle with preview",
			model: withPreview,
			run:   domain.JobRun{State: domain.RunIdle},
			want:  Frame{State: domain.RunIdle, Kind: KindPlaceholder, Title: "Upscaler", Preview: "https://cdn/x.png"},
		},
		{
			name:  "idle without preview",
			model: bare,
			run:   domain.JobRun{},
			want:  Frame{Kind: KindPlaceholder, Title: "Upscaler", Text: PlaceholderText},
		},
		{
			name:  "processing",
			model: bare,
			run:   domain.JobRun{State: domain.RunProcessing, Progress: 42},
			want:  Frame{State: domain.RunProcessing, Kind: KindProgress, Title: "Upscaler", Text: ProcessingText, Progress: 42},
		},
		{
			name:  "processing clamps",
			model: bare,
			run:   domain.JobRun{State: domain.RunProcessing, Progress: 130},
			want:  Frame{State: domain.RunProcessing, Kind: KindProgress, Title: "Upscaler", Text: ProcessingText, Progress: 100},
		},
		{
			name:  "succeeded",
			model: bare,
			run:   domain.JobRun{State: domain.RunSucceeded, Result: &domain.Result{URL: "https://x/out.png"}},
			want: Frame{State: domain.RunSucceeded, Kind: KindResult, Title: "Upscaler", Progress: 100,
				Result: "https://x/out.png", Download: true, Chain: true},
		},
		{
			name:  "failed with details",
			model: bare,
			run:   domain.JobRun{State: domain.RunFailed, Error: &domain.ErrorInfo{Message: "Bad input", Details: "field x invalid"}},
			want:  Frame{State: domain.RunFailed, Kind: KindError, Title: "Upscaler", Message: "Bad input", Details: "field x invalid"},
		},
		{
			name:  "failed without info",
			model: nil,
			run:   domain.JobRun{State: domain.RunFailed},
			want:  Frame{State: domain.RunFailed, Kind: KindError, Message: "Error processing image"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Present(tt.model, tt.run)); diff != "" {
				t.Errorf("Present mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type fakeFetcher struct {
	data []byte
	err  error
	refs []string
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, string, error) {
	f.refs = append(f.refs, ref)
	return f.data, "image/png", f.err
}

func TestDownloadWritesFixedName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := &fakeFetcher{data: []byte("pixels")}

	path, err := Download(context.Background(), f, "https://x/out.png", dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(dir, "image.jpg") {
		t.Fatalf("path = %s", path)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "pixels" {
		t.Fatalf("content = %q", got)
	}

	f.data = []byte("second")
	if _, err := Download(context.Background(), f, "https://x/out2.png", dir); err != nil {
		t.Fatal(err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != "second" {
		t.Fatalf("second download content = %q", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("leftover files: %v", entries)
	}
}

func TestDownloadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Download(context.Background(), &fakeFetcher{}, "", dir); err == nil {
		t.Fatal("empty ref should fail")
	}
	boom := errors.New("boom")
	if _, err := Download(context.Background(), &fakeFetcher{err: boom}, "https://x", dir); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Download(context.Background(), &fakeFetcher{}, "https://x", dir); err == nil {
		t.Fatal("empty body should fail")
	}
	if _, err := os.Stat(filepath.Join(dir, DownloadName)); !os.IsNotExist(err) {
		t.Fatal("nothing should be written on failure")
	}
}

func TestTerminalRender(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.Render(Frame{Kind: KindPlaceholder, Title: "Upscaler", Text: PlaceholderText})
	term.Render(Frame{Kind: KindProgress, Text: ProcessingText, Progress: 10})
	term.Render(Frame{Kind: KindProgress, Text: ProcessingText, Progress: 20})
	term.Render(Frame{Kind: KindError, Message: "Bad input", Details: "field x invalid"})
	term.Render(Frame{Kind: KindResult, Result: "https://x/out.png"})
	term.Close()

	out := buf.String()
	for _, want := range []string{"Upscaler", PlaceholderText, "[ERROR] Bad input", "field x invalid", "[OK] Result: https://x/out.png"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
