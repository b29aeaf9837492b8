package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/osvaldoandrade/modelhub/internal/metrics"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
	"github.com/osvaldoandrade/modelhub/pkg/form"
	"github.com/osvaldoandrade/modelhub/pkg/present"
)

// HandoffKey names the seed input of a chained workflow.
const HandoffKey = "imageUrl"

var ErrNotStarted = errors.New("workflow not started")

// SessionSource resolves the current session. A nil session with a nil
// error means unauthenticated.
type SessionSource interface {
	Current(ctx context.Context) (*domain.Session, error)
}

// StaticSession always reports the same session.
type StaticSession struct {
	Session *domain.Session
}

func (s StaticSession) Current(context.Context) (*domain.Session, error) { return s.Session, nil }

// ModelSource loads model descriptors.
type ModelSource interface {
	Model(ctx context.Context, id string) (*domain.Model, error)
}

// Deps are the collaborators of a workflow. Models, Runs and Sessions are
// required; Uploader, Blobs and Fetcher enable uploads, binary results and
// downloads.
type Deps struct {
	Models           ModelSource
	Runs             ModelRunner
	Sessions         SessionSource
	Uploader         form.AssetUploader
	Blobs            BlobStore
	Fetcher          present.Fetcher
	Logger           *slog.Logger
	ProgressInterval time.Duration
}

// Hooks observe a workflow. All of them are optional and run synchronously
// on the goroutine that caused the event.
type Hooks struct {
	OnFieldChange   func(key string, value any)
	OnSubmit        func(run domain.JobRun)
	OnUpdate        func(run domain.JobRun)
	OnDownload      func(path string)
	OnChainedAction func(modelID string, seed map[string]any)
}

type Option func(*Workflow)

// WithHandoff seeds the first image field with imageURL on Start.
func WithHandoff(imageURL string) Option {
	return func(w *Workflow) { w.handoff = imageURL }
}

func WithHooks(h Hooks) Option {
	return func(w *Workflow) { w.hooks = h }
}

// Workflow is one instance of the job submission flow for a model. It owns
// its input store and job run; nothing is shared across instances.
type Workflow struct {
	id      string
	modelID string
	handoff string
	deps    Deps
	hooks   Hooks
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	runner *Runner

	mu      sync.RWMutex
	model   *domain.Model
	store   *form.Store
	uploads *form.Uploads
	stopped bool
}

func New(modelID string, deps Deps, opts ...Option) *Workflow {
	w := &Workflow{
		id:      uuid.NewString(),
		modelID: modelID,
		deps:    deps,
	}
	for _, o := range opts {
		o(w)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w.logger = logger.With("workflow_id", w.id, "model", modelID)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.store = form.NewStore()
	w.store.OnChange(func(key string, value any) {
		if w.hooks.OnFieldChange != nil {
			w.hooks.OnFieldChange(key, value)
		}
	})
	w.uploads = form.NewUploads(deps.Uploader, w.store, w.logger)
	w.runner = NewRunner(deps.Runs,
		WithProgressInterval(deps.ProgressInterval),
		WithRunnerLogger(w.logger),
		WithBlobStore(deps.Blobs),
		OnStart(func(run domain.JobRun) {
			if w.hooks.OnSubmit != nil {
				w.hooks.OnSubmit(run)
			}
		}),
		OnUpdate(func(run domain.JobRun) {
			if w.hooks.OnUpdate != nil {
				w.hooks.OnUpdate(run)
			}
		}),
	)
	return w
}

func (w *Workflow) ID() string      { return w.id }
func (w *Workflow) ModelID() string { return w.modelID }

// Start loads the model descriptor and seeds a handed-off image. A missing
// model is fatal: the workflow cannot be used and the error wraps
// domain.ErrNotFound.
func (w *Workflow) Start(ctx context.Context) error {
	w.mu.RLock()
	stopped, started := w.stopped, w.model != nil
	w.mu.RUnlock()
	if stopped {
		return domain.ErrStopped
	}
	if started {
		return nil
	}

	m, err := w.deps.Models.Model(ctx, w.modelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Error("model not found")
		}
		return fmt.Errorf("load model %s: %w", w.modelID, err)
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return domain.ErrStopped
	}
	w.model = m
	store := w.store
	w.mu.Unlock()
	metrics.WorkflowsActive.Inc()

	if key, ok := store.Seed(m.RequiredInputs, w.handoff); ok {
		w.logger.Debug("seeded handed-off image", "field", key)
	}
	return nil
}

// Stop tears the instance down: in-flight uploads and runs are cancelled,
// the progress ticker stops and the input store is discarded. It is
// idempotent.
func (w *Workflow) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.model != nil
	w.store = nil
	w.mu.Unlock()

	w.cancel()
	w.runner.Reset()
	if started {
		metrics.WorkflowsActive.Dec()
	}
}

func (w *Workflow) state() (*domain.Model, *form.Store, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	switch {
	case w.stopped:
		return nil, nil, domain.ErrStopped
	case w.model == nil:
		return nil, nil, ErrNotStarted
	}
	return w.model, w.store, nil
}

// Model returns the loaded descriptor, nil before Start.
func (w *Workflow) Model() *domain.Model {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.model
}

// SetField writes a value through the store's single setter. Keys that the
// descriptor does not declare, or declares with an unknown type, yield
// domain.ErrUnknownField. A field with an upload in flight yields
// domain.ErrUploadInProgress so the upload cannot overwrite a newer value.
func (w *Workflow) SetField(key string, value any) error {
	m, store, err := w.state()
	if err != nil {
		return err
	}
	f, ok := m.Field(key)
	if !ok || !f.Type.Known() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownField, key)
	}
	if _, local := value.(*domain.LocalFile); local && f.Type == domain.FieldImage {
		return fmt.Errorf("%s: image files must be uploaded", key)
	}
	if w.uploads.Busy(key) {
		return fmt.Errorf("%w: %s", domain.ErrUploadInProgress, key)
	}
	store.Set(key, value)
	return nil
}

// Upload runs the upload sub-flow for an image field. Failures are
// field-local: the returned *domain.UploadError leaves the field unset.
func (w *Workflow) Upload(ctx context.Context, key string, file *domain.LocalFile) error {
	m, _, err := w.state()
	if err != nil {
		return err
	}
	f, ok := m.Field(key)
	if !ok || f.Type != domain.FieldImage {
		return fmt.Errorf("%w: %s is not an image field", domain.ErrUnknownField, key)
	}
	if w.deps.Uploader == nil {
		return &domain.UploadError{Key: key, Err: errors.New("uploads are not configured")}
	}
	ctx, cancel := w.bind(ctx)
	defer cancel()
	return w.uploads.Upload(ctx, key, file)
}

// Uploading reports whether key has an upload in flight.
func (w *Workflow) Uploading(key string) bool {
	return w.uploads.Busy(key)
}

// Inputs returns a snapshot of the input store, nil once stopped.
func (w *Workflow) Inputs() map[string]any {
	_, store, err := w.state()
	if err != nil {
		return nil
	}
	return store.Snapshot()
}

// Missing lists the display names of unset required fields.
func (w *Workflow) Missing() []string {
	m, store, err := w.state()
	if err != nil {
		return nil
	}
	return form.Validate(m.RequiredInputs, store.Snapshot())
}

// Run returns the current job run.
func (w *Workflow) Run() domain.JobRun {
	return w.runner.Current()
}

// Frame renders the current run for display.
func (w *Workflow) Frame() present.Frame {
	return present.Present(w.Model(), w.runner.Current())
}

// Gate computes the submit control state. A session that cannot be resolved
// is treated as absent.
func (w *Workflow) Gate(ctx context.Context) GateResult {
	m, store, err := w.state()
	if err != nil {
		return Gate(nil, nil, nil, w.runner.Current().State)
	}
	s, err := w.session(ctx)
	if err != nil {
		w.logger.Debug("session lookup failed", "err", err)
		s = nil
	}
	return Gate(m, form.Validate(m.RequiredInputs, store.Snapshot()), s, w.runner.Current().State)
}

func (w *Workflow) session(ctx context.Context) (*domain.Session, error) {
	if w.deps.Sessions == nil {
		return nil, nil
	}
	return w.deps.Sessions.Current(ctx)
}

// prepare applies the submit gates in order: session, credits, required
// fields. None of them touches the network run call.
func (w *Workflow) prepare(ctx context.Context) (map[string]any, error) {
	m, store, err := w.state()
	if err != nil {
		return nil, err
	}
	s, err := w.session(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if s == nil {
		metrics.SubmitBlockedTotal.WithLabelValues("auth").Inc()
		return nil, domain.ErrAuthRequired
	}
	if s.Credits() < m.CreditCost {
		metrics.SubmitBlockedTotal.WithLabelValues("credits").Inc()
		return nil, creditError(m, s)
	}
	inputs := store.Snapshot()
	if err := form.Missing(m.RequiredInputs, inputs); err != nil {
		metrics.SubmitBlockedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	return inputs, nil
}

// Submit runs the model against a snapshot of the inputs and blocks until
// the run settles. Gate failures return domain.ErrAuthRequired,
// *domain.CreditError, *domain.ValidationError or domain.ErrRunInProgress
// without creating a run. A failed run is not an error: it is reported in
// the returned run.
func (w *Workflow) Submit(ctx context.Context) (domain.JobRun, error) {
	inputs, err := w.prepare(ctx)
	if err != nil {
		return w.runner.Current(), err
	}
	ctx, cancel := w.bind(ctx)
	defer cancel()
	_, done, err := w.runner.Start(ctx, w.modelID, inputs)
	if err != nil {
		metrics.SubmitBlockedTotal.WithLabelValues("in_progress").Inc()
		return w.runner.Current(), err
	}
	run := <-done
	w.refreshSession()
	if run.State == domain.RunIdle {
		return run, domain.ErrStopped
	}
	return run, nil
}

// SubmitAsync applies the same gates as Submit and returns the Processing
// run. The run continues after ctx ends and stops only with the workflow.
func (w *Workflow) SubmitAsync(ctx context.Context) (domain.JobRun, error) {
	inputs, err := w.prepare(ctx)
	if err != nil {
		return w.runner.Current(), err
	}
	runCtx, cancel := w.bind(context.WithoutCancel(ctx))
	run, done, err := w.runner.Start(runCtx, w.modelID, inputs)
	if err != nil {
		cancel()
		metrics.SubmitBlockedTotal.WithLabelValues("in_progress").Inc()
		return w.runner.Current(), err
	}
	go func() {
		<-done
		w.refreshSession()
		cancel()
	}()
	return run, nil
}

// refreshSession drops a reused session once a run settles, since the
// run may have spent credits.
func (w *Workflow) refreshSession() {
	if inv, ok := w.deps.Sessions.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}

// Download saves the succeeded result as image.jpg under dir.
func (w *Workflow) Download(ctx context.Context, dir string) (string, error) {
	run := w.runner.Current()
	if run.State != domain.RunSucceeded || run.Result == nil {
		return "", domain.ErrNoResult
	}
	if w.deps.Fetcher == nil {
		return "", errors.New("downloads are not configured")
	}
	path, err := present.Download(ctx, w.deps.Fetcher, run.Result.URL, dir)
	if err != nil {
		return "", err
	}
	w.logger.Info("result downloaded", "path", path)
	if w.hooks.OnDownload != nil {
		w.hooks.OnDownload(path)
	}
	return path, nil
}

// Chain builds the seed inputs that hand the current result to modelID. A
// local result is uploaded first so the next model gets a remote URL.
func (w *Workflow) Chain(ctx context.Context, modelID string) (map[string]any, error) {
	run := w.runner.Current()
	if run.State != domain.RunSucceeded || run.Result == nil {
		return nil, domain.ErrNoResult
	}
	ref := run.Result.URL
	if run.Result.Local {
		remote, err := w.publish(ctx, ref)
		if err != nil {
			return nil, err
		}
		ref = remote
	}
	seed := map[string]any{HandoffKey: ref}
	if w.hooks.OnChainedAction != nil {
		w.hooks.OnChainedAction(modelID, seed)
	}
	return seed, nil
}

// ChainTo starts a new workflow for modelID seeded with the current result.
func (w *Workflow) ChainTo(ctx context.Context, modelID string, opts ...Option) (*Workflow, error) {
	seed, err := w.Chain(ctx, modelID)
	if err != nil {
		return nil, err
	}
	ref, _ := seed[HandoffKey].(string)
	next := New(modelID, w.deps, append([]Option{WithHandoff(ref)}, opts...)...)
	if err := next.Start(ctx); err != nil {
		next.Stop()
		return nil, err
	}
	return next, nil
}

func (w *Workflow) publish(ctx context.Context, ref string) (string, error) {
	if w.deps.Uploader == nil {
		return "", errors.New("cannot hand off a local result: uploads are not configured")
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("unexpected local reference %q", ref)
	}
	file, err := form.OpenLocal(u.Path, domain.FieldImage)
	if err != nil {
		return "", err
	}
	remote, err := w.deps.Uploader.UploadAsset(ctx, file)
	if err != nil {
		return "", &domain.UploadError{Key: HandoffKey, Err: err}
	}
	return remote, nil
}

// bind derives a context that also ends when the workflow stops.
func (w *Workflow) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
