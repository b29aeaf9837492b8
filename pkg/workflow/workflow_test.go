package workflow

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/osvaldoandrade/modelhub/internal/providers"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

type fakeModels struct {
	model *domain.Model
	err   error
}

func (f *fakeModels) Model(context.Context, string) (*domain.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.model
	return &cp, nil
}

type fakeRuns struct {
	mu      sync.Mutex
	calls   int
	inputs  map[string]any
	out     *domain.RunOutput
	err     error
	release chan struct{}
}

func (f *fakeRuns) RunModel(ctx context.Context, _ string, inputs map[string]any) (*domain.RunOutput, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = inputs
	release, out, err := f.release, f.out, f.err
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, err
}

func (f *fakeRuns) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUploader struct {
	mu    sync.Mutex
	url   string
	err   error
	files []string
}

func (f *fakeUploader) UploadAsset(_ context.Context, file *domain.LocalFile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, file.Path)
	return f.url, f.err
}

// gatedUploader blocks every upload until release is closed.
type gatedUploader struct {
	url     string
	started chan struct{}
	release chan struct{}
}

func (g *gatedUploader) UploadAsset(ctx context.Context, _ *domain.LocalFile) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return g.url, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fakeFetcher struct{ data []byte }

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	return f.data, "image/png", nil
}

func sourceModel(cost int) *domain.Model {
	return &domain.Model{
		ID:         "m1",
		Name:       "Upscaler",
		CreditCost: cost,
		RequiredInputs: []domain.FieldDescriptor{
			{Key: "src", Type: domain.FieldImage, DisplayName: "Source Image", Required: true},
			{Key: "strength", Type: domain.FieldNumber, DisplayName: "Strength"},
		},
	}
}

func session(credits int) *domain.Session {
	return &domain.Session{Token: "t", User: domain.User{ID: "u1", Credits: credits}}
}

func newWorkflow(t *testing.T, m *domain.Model, runs *fakeRuns, s *domain.Session, opts ...Option) *Workflow {
	t.Helper()
	w := New(m.ID, Deps{
		Models:           &fakeModels{model: m},
		Runs:             runs,
		Sessions:         StaticSession{Session: s},
		Uploader:         &fakeUploader{url: "https://cdn/uploaded.png"},
		Fetcher:          fakeFetcher{data: []byte("img")},
		ProgressInterval: time.Millisecond,
	}, opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestNext(t *testing.T) {
	tests := []struct {
		from  domain.RunState
		event Event
		to    domain.RunState
		ok    bool
	}{
		{domain.RunIdle, EventSubmit, domain.RunProcessing, true},
		{domain.RunSucceeded, EventSubmit, domain.RunProcessing, true},
		{domain.RunFailed, EventSubmit, domain.RunProcessing, true},
		{domain.RunProcessing, EventSubmit, domain.RunProcessing, false},
		{domain.RunProcessing, EventSucceed, domain.RunSucceeded, true},
		{domain.RunProcessing, EventFail, domain.RunFailed, true},
		{domain.RunIdle, EventSucceed, domain.RunIdle, false},
		{domain.RunSucceeded, EventFail, domain.RunSucceeded, false},
		{domain.RunProcessing, EventReset, domain.RunIdle, true},
		{domain.RunFailed, EventReset, domain.RunIdle, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.event.String(), func(t *testing.T) {
			to, ok := Next(tt.from, tt.event)
			if to != tt.to || ok != tt.ok {
				t.Fatalf("Next = %s, %v; want %s, %v", to, ok, tt.to, tt.ok)
			}
		})
	}
}

func TestStepProgress(t *testing.T) {
	var seen []int
	p := 0
	for i := 0; i < 30; i++ {
		p = StepProgress(p)
		if p > 100 {
			t.Fatalf("progress %d exceeds 100", p)
		}
		seen = append(seen, p)
	}
	want := []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 92, 94, 96, 98, 100, 100}
	if diff := cmp.Diff(want, seen[:len(want)]); diff != "" {
		t.Fatalf("progress sequence (-want +got):\n%s", diff)
	}
	if StepProgress(99) != 100 || StepProgress(-5) != 10 {
		t.Fatal("StepProgress bounds")
	}
}

func TestGate(t *testing.T) {
	m := sourceModel(3)
	tests := []struct {
		name    string
		missing []string
		session *domain.Session
		state   domain.RunState
		want    GateResult
	}{
		{
			name:    "open",
			session: session(5),
			state:   domain.RunIdle,
			want:    GateResult{Enabled: true, Cost: 3},
		},
		{
			name:  "no session stays enabled",
			state: domain.RunSucceeded,
			want:  GateResult{Enabled: true, NeedsAuth: true, Cost: 3, Message: "Sign in to process images"},
		},
		{
			name:    "insufficient credits",
			session: session(1),
			state:   domain.RunIdle,
			want:    GateResult{Reason: GateCredits, Message: "Insufficient credits. You need 2 more credits.", Cost: 3},
		},
		{
			name:    "missing fields",
			missing: []string{"Source Image"},
			session: session(5),
			state:   domain.RunIdle,
			want: GateResult{Reason: GateMissing, Message: "Please provide: Source Image",
				Missing: []string{"Source Image"}, Cost: 3},
		},
		{
			name:    "processing",
			session: session(5),
			state:   domain.RunProcessing,
			want:    GateResult{Reason: GateProcessing, Message: "Processing...", Cost: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Gate(m, tt.missing, tt.session, tt.state)); diff != "" {
				t.Errorf("Gate mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if g := Gate(nil, nil, nil, domain.RunIdle); g.Enabled || g.Reason != GateDescriptor {
		t.Errorf("Gate without model = %+v", g)
	}
}

func TestErrorInfoFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorInfo
	}{
		{"message and detail", &domain.APIError{Status: 400, Message: "Bad input", Detail: "field x invalid"},
			domain.ErrorInfo{Message: "Bad input", Details: "field x invalid"}},
		{"detail only", &domain.APIError{Status: 422, Detail: "field x invalid"},
			domain.ErrorInfo{Message: "field x invalid"}},
		{"bare status", &domain.APIError{Status: 502},
			domain.ErrorInfo{Message: "Error processing image", Details: "Request failed with status code 502"}},
		{"network", errors.New("dial tcp: refused"),
			domain.ErrorInfo{Message: "Error processing image", Details: "dial tcp: refused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ErrorInfoFrom(tt.err)); diff != "" {
				t.Errorf("ErrorInfoFrom (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubmitBlockedByValidation(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}}
	w := newWorkflow(t, sourceModel(3), runs, session(5))

	if diff := cmp.Diff([]string{"Source Image"}, w.Missing()); diff != "" {
		t.Fatalf("Missing (-want +got):\n%s", diff)
	}
	if g := w.Gate(context.Background()); g.Enabled {
		t.Fatal("submit should be disabled with missing fields")
	}
	_, err := w.Submit(context.Background())
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Error() != "Please provide: Source Image" {
		t.Fatalf("Submit err = %v", err)
	}
	if runs.Calls() != 0 || w.Run().State != domain.RunIdle {
		t.Fatalf("no run expected: calls=%d state=%s", runs.Calls(), w.Run().State)
	}
}

func TestSubmitSucceeds(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}}
	var submitted []domain.JobRun
	w := newWorkflow(t, sourceModel(3), runs, session(5), WithHooks(Hooks{
		OnSubmit: func(run domain.JobRun) { submitted = append(submitted, run) },
	}))

	if err := w.SetField("src", "https://x/img.png"); err != nil {
		t.Fatal(err)
	}
	if g := w.Gate(context.Background()); !g.Enabled {
		t.Fatalf("gate = %+v", g)
	}
	run, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.State != domain.RunSucceeded || run.Result == nil || run.Result.URL != "https://x/out.png" {
		t.Fatalf("run = %+v", run)
	}
	if run.Error != nil {
		t.Fatalf("succeeded run carries error %+v", run.Error)
	}
	if runs.Calls() != 1 || runs.inputs["src"] != "https://x/img.png" {
		t.Fatalf("calls=%d inputs=%v", runs.Calls(), runs.inputs)
	}
	if len(submitted) != 1 || submitted[0].State != domain.RunProcessing || submitted[0].Progress != 0 {
		t.Fatalf("OnSubmit = %+v", submitted)
	}
	if f := w.Frame(); !f.Download || f.Result != "https://x/out.png" {
		t.Fatalf("frame = %+v", f)
	}
}

func TestSubmitBlockedByCredits(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}}
	w := newWorkflow(t, sourceModel(3), runs, session(1))
	_ = w.SetField("src", "https://x/img.png")

	if g := w.Gate(context.Background()); g.Enabled || g.Reason != GateCredits {
		t.Fatalf("gate = %+v", g)
	}
	_, err := w.Submit(context.Background())
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("Submit err = %v", err)
	}
	var cerr *domain.CreditError
	if !errors.As(err, &cerr) || cerr.Cost != 3 || cerr.Credits != 1 {
		t.Fatalf("credit error = %+v", cerr)
	}
	if runs.Calls() != 0 || w.Run().ID != "" {
		t.Fatal("no job run should be created")
	}
}

func TestSubmitFailsWithServerMessage(t *testing.T) {
	runs := &fakeRuns{err: &domain.APIError{Status: 400, Message: "Bad input", Detail: "field x invalid"}}
	w := newWorkflow(t, sourceModel(3), runs, session(5))
	_ = w.SetField("src", "https://x/img.png")

	run, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("a failed run is not a submit error: %v", err)
	}
	if run.State != domain.RunFailed || run.Result != nil {
		t.Fatalf("run = %+v", run)
	}
	if diff := cmp.Diff(&domain.ErrorInfo{Message: "Bad input", Details: "field x invalid"}, run.Error); diff != "" {
		t.Fatalf("error info (-want +got):\n%s", diff)
	}
}

func TestSubmitRequiresSession(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}}
	w := newWorkflow(t, sourceModel(3), runs, nil)
	_ = w.SetField("src", "https://x/img.png")

	g := w.Gate(context.Background())
	if !g.Enabled || !g.NeedsAuth {
		t.Fatalf("gate = %+v", g)
	}
	_, err := w.Submit(context.Background())
	if !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("Submit err = %v", err)
	}
	if runs.Calls() != 0 || w.Run().State != domain.RunIdle {
		t.Fatal("unauthenticated submit must not start a run")
	}
}

func TestSubmitEmptyResultFails(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{}}
	w := newWorkflow(t, sourceModel(0), runs, session(0))
	_ = w.SetField("src", "https://x/img.png")

	run, err := w.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.State != domain.RunFailed || run.Error.Message == "" {
		t.Fatalf("run = %+v", run)
	}
}

type updates struct {
	mu   sync.Mutex
	runs []domain.JobRun
}

func (u *updates) add(run domain.JobRun) {
	u.mu.Lock()
	u.runs = append(u.runs, run)
	u.mu.Unlock()
}

func (u *updates) snapshot() []domain.JobRun {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]domain.JobRun(nil), u.runs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProgressTicker(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}, release: make(chan struct{})}
	seen := &updates{}
	w := newWorkflow(t, sourceModel(0), runs, session(0), WithHooks(Hooks{OnUpdate: seen.add}))
	_ = w.SetField("src", "https://x/img.png")

	done := make(chan domain.JobRun, 1)
	go func() {
		run, _ := w.Submit(context.Background())
		done <- run
	}()

	waitFor(t, func() bool { return w.Run().Progress == 100 })
	if g := w.Gate(context.Background()); g.Enabled || g.Reason != GateProcessing {
		t.Fatalf("gate while processing = %+v", g)
	}
	close(runs.release)
	run := <-done
	if run.State != domain.RunSucceeded {
		t.Fatalf("run = %+v", run)
	}

	got := seen.snapshot()
	if got[0].State != domain.RunProcessing || got[0].Progress != 0 {
		t.Fatalf("first update = %+v", got[0])
	}
	for _, u := range got {
		if u.Progress > 100 {
			t.Fatalf("progress %d exceeds 100", u.Progress)
		}
	}
	if last := got[len(got)-1]; last.State != domain.RunSucceeded {
		t.Fatalf("last update = %+v", last)
	}

	// The ticker is joined before the run settles.
	n := len(seen.snapshot())
	time.Sleep(20 * time.Millisecond)
	if len(seen.snapshot()) != n {
		t.Fatal("ticker kept running after the run settled")
	}
}

func TestResubmitDiscardsPreviousOutcome(t *testing.T) {
	runs := &fakeRuns{err: &domain.APIError{Status: 500, Message: "boom"}}
	var started []domain.JobRun
	w := newWorkflow(t, sourceModel(0), runs, session(0), WithHooks(Hooks{
		OnSubmit: func(run domain.JobRun) { started = append(started, run) },
	}))
	_ = w.SetField("src", "https://x/img.png")

	first, _ := w.Submit(context.Background())
	if first.State != domain.RunFailed {
		t.Fatalf("first = %+v", first)
	}

	runs.mu.Lock()
	runs.err = nil
	runs.out = &domain.RunOutput{ImageURL: "https://x/out.png"}
	runs.release = make(chan struct{})
	release := runs.release
	runs.mu.Unlock()

	done := make(chan domain.JobRun, 1)
	go func() {
		run, _ := w.Submit(context.Background())
		done <- run
	}()
	waitFor(t, func() bool { return w.Run().ID != first.ID })
	mid := w.Run()
	if mid.State != domain.RunProcessing || mid.Error != nil || mid.Result != nil {
		t.Fatalf("processing run leaks previous outcome: %+v", mid)
	}
	close(release)
	second := <-done
	if second.State != domain.RunSucceeded || second.Error != nil || second.ID == first.ID {
		t.Fatalf("second = %+v", second)
	}
	if len(started) != 2 || started[1].Progress != 0 {
		t.Fatalf("started = %+v", started)
	}
}

func TestSubmitWhileProcessing(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}, release: make(chan struct{})}
	w := newWorkflow(t, sourceModel(0), runs, session(0))
	_ = w.SetField("src", "https://x/img.png")

	run, err := w.SubmitAsync(context.Background())
	if err != nil || run.State != domain.RunProcessing {
		t.Fatalf("SubmitAsync = %+v, %v", run, err)
	}
	if _, err := w.Submit(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("second submit err = %v", err)
	}
	close(runs.release)
	waitFor(t, func() bool { return w.Run().State == domain.RunSucceeded })
	if runs.Calls() != 1 {
		t.Fatalf("calls = %d", runs.Calls())
	}
}

func TestStopCancelsRun(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}, release: make(chan struct{})}
	seen := &updates{}
	w := newWorkflow(t, sourceModel(0), runs, session(0), WithHooks(Hooks{OnUpdate: seen.add}))
	_ = w.SetField("src", "https://x/img.png")

	if _, err := w.SubmitAsync(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return w.Run().Progress >= 20 })
	w.Stop()

	if w.Run().State != domain.RunIdle {
		t.Fatalf("state after Stop = %s", w.Run().State)
	}
	if w.Inputs() != nil {
		t.Fatal("store should be discarded")
	}
	if err := w.SetField("src", "x"); !errors.Is(err, domain.ErrStopped) {
		t.Fatalf("SetField after Stop = %v", err)
	}
	if _, err := w.Submit(context.Background()); !errors.Is(err, domain.ErrStopped) {
		t.Fatalf("Submit after Stop = %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	n := len(seen.snapshot())
	time.Sleep(20 * time.Millisecond)
	if len(seen.snapshot()) != n {
		t.Fatal("updates continued after Stop")
	}
	w.Stop()
}

func TestStartNotFound(t *testing.T) {
	w := New("missing", Deps{
		Models: &fakeModels{err: &domain.APIError{Status: 404}},
		Runs:   &fakeRuns{},
	})
	err := w.Start(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Start err = %v", err)
	}
	if err := w.SetField("src", "x"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("SetField before a successful Start = %v", err)
	}
}

func TestHandoffSeedsFirstImageField(t *testing.T) {
	var changes []string
	w := newWorkflow(t, sourceModel(0), &fakeRuns{}, session(0),
		WithHandoff("https://x/prev.png"),
		WithHooks(Hooks{OnFieldChange: func(key string, _ any) { changes = append(changes, key) }}),
	)
	if diff := cmp.Diff(map[string]any{"src": "https://x/prev.png"}, w.Inputs()); diff != "" {
		t.Fatalf("inputs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"src"}, changes); diff != "" {
		t.Fatalf("changes (-want +got):\n%s", diff)
	}
}

func TestSetField(t *testing.T) {
	w := newWorkflow(t, sourceModel(0), &fakeRuns{}, session(0))
	if err := w.SetField("nope", 1); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("unknown key err = %v", err)
	}
	if err := w.SetField("src", &domain.LocalFile{Path: "/tmp/a.png"}); err == nil {
		t.Fatal("local image file should require upload")
	}
	if err := w.SetField("strength", 150.0); err != nil {
		t.Fatalf("out of range numbers pass through: %v", err)
	}
	if got := w.Inputs()["strength"]; got != 150.0 {
		t.Fatalf("strength = %v", got)
	}
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "in.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	w := newWorkflow(t, sourceModel(0), &fakeRuns{}, session(0))
	path := writePNG(t, dir)

	if err := w.Upload(context.Background(), "strength", &domain.LocalFile{Path: path}); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("upload to number field = %v", err)
	}
	if err := w.Upload(context.Background(), "src", &domain.LocalFile{Path: path, Name: "in.png"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := w.Inputs()["src"]; got != "https://cdn/uploaded.png" {
		t.Fatalf("src = %v", got)
	}
}

func TestSetFieldDuringUpload(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir)
	uploader := &gatedUploader{url: "https://cdn/slow.png", started: make(chan struct{}, 1), release: make(chan struct{})}
	model := sourceModel(0)
	w := New(model.ID, Deps{
		Models:           &fakeModels{model: model},
		Runs:             &fakeRuns{},
		Sessions:         StaticSession{Session: session(0)},
		Uploader:         uploader,
		ProgressInterval: time.Millisecond,
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	done := make(chan error, 1)
	go func() { done <- w.Upload(context.Background(), "src", &domain.LocalFile{Path: path, Name: "in.png"}) }()
	<-uploader.started

	if err := w.SetField("src", "https://user/newer.png"); !errors.Is(err, domain.ErrUploadInProgress) {
		t.Fatalf("SetField during upload = %v, want ErrUploadInProgress", err)
	}
	if err := w.SetField("strength", 2.0); err != nil {
		t.Fatalf("other fields stay writable: %v", err)
	}
	close(uploader.release)
	if err := <-done; err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := w.Inputs()["src"]; got != "https://cdn/slow.png" {
		t.Fatalf("src after upload = %v", got)
	}

	if err := w.SetField("src", "https://user/newer.png"); err != nil {
		t.Fatalf("SetField after upload: %v", err)
	}
	if got := w.Inputs()["src"]; got != "https://user/newer.png" {
		t.Fatalf("src = %v", got)
	}
}

func TestBinaryResultDownloadAndChain(t *testing.T) {
	dir := t.TempDir()
	pngBytes, _ := os.ReadFile(writePNG(t, dir))

	uploader := &fakeUploader{url: "https://cdn/handoff.png"}
	var downloaded []string
	var chained []string
	model := sourceModel(0)
	w := New(model.ID, Deps{
		Models:           &fakeModels{model: model},
		Runs:             &fakeRuns{out: &domain.RunOutput{Data: pngBytes, ContentType: "image/png"}},
		Sessions:         StaticSession{Session: session(0)},
		Uploader:         uploader,
		Blobs:            providers.NewLocalBlobStore(filepath.Join(dir, "blobs")),
		Fetcher:          fakeFetcher{data: pngBytes},
		ProgressInterval: time.Millisecond,
	}, WithHooks(Hooks{
		OnDownload:      func(path string) { downloaded = append(downloaded, path) },
		OnChainedAction: func(modelID string, _ map[string]any) { chained = append(chained, modelID) },
	}))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if _, err := w.Download(context.Background(), dir); !errors.Is(err, domain.ErrNoResult) {
		t.Fatalf("Download before a result = %v", err)
	}
	_ = w.SetField("src", "https://x/img.png")
	run, err := w.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.State != domain.RunSucceeded || !run.Result.Local || !strings.HasPrefix(run.Result.URL, "file://") {
		t.Fatalf("run = %+v", run)
	}

	out := filepath.Join(dir, "out")
	path, err := w.Download(context.Background(), out)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(out, "image.jpg") || len(downloaded) != 1 {
		t.Fatalf("path = %s, hooks = %v", path, downloaded)
	}

	next, err := w.ChainTo(context.Background(), model.ID)
	if err != nil {
		t.Fatalf("ChainTo: %v", err)
	}
	defer next.Stop()
	if got := next.Inputs()["src"]; got != "https://cdn/handoff.png" {
		t.Fatalf("chained seed = %v", got)
	}
	if len(uploader.files) != 1 || len(chained) != 1 {
		t.Fatalf("uploads = %v chained = %v", uploader.files, chained)
	}
	if next.ID() == w.ID() {
		t.Fatal("chained workflow must be a new instance")
	}
}

func TestChainRemoteResult(t *testing.T) {
	runs := &fakeRuns{out: &domain.RunOutput{ImageURL: "https://x/out.png"}}
	w := newWorkflow(t, sourceModel(0), runs, session(0))
	if _, err := w.Chain(context.Background(), "m2"); !errors.Is(err, domain.ErrNoResult) {
		t.Fatalf("Chain before result = %v", err)
	}
	_ = w.SetField("src", "https://x/img.png")
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	seed, err := w.Chain(context.Background(), "m2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{HandoffKey: "https://x/out.png"}, seed); diff != "" {
		t.Fatalf("seed (-want +got):\n%s", diff)
	}
}

type refreshingSessions struct {
	StaticSession
	mu          sync.Mutex
	invalidated int
}

func (r *refreshingSessions) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated++
}

func TestSubmitRefreshesSession(t *testing.T) {
	m := sourceModel(1)
	sessions := &refreshingSessions{StaticSession: StaticSession{Session: session(5)}}
	w := New(m.ID, Deps{
		Models:           &fakeModels{model: m},
		Runs:             &fakeRuns{out: &domain.RunOutput{ImageURL: "https://cdn/out.png"}},
		Sessions:         sessions,
		ProgressInterval: time.Millisecond,
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.SetField("src", "https://cdn/in.png"); err != nil {
		t.Fatal(err)
	}

	run, err := w.Submit(context.Background())
	if err != nil || run.State != domain.RunSucceeded {
		t.Fatalf("Submit = %+v, %v", run, err)
	}
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	if sessions.invalidated != 1 {
		t.Fatalf("invalidated = %d, want 1", sessions.invalidated)
	}
}
