package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/modelhub/internal/metrics"
	"github.com/osvaldoandrade/modelhub/internal/tracing"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

const (
	DefaultProgressInterval = 1200 * time.Millisecond
	genericRunError         = "Error processing image"
)

// ModelRunner executes a model against a snapshot of inputs.
type ModelRunner interface {
	RunModel(ctx context.Context, modelID string, inputs map[string]any) (*domain.RunOutput, error)
}

// BlobStore keeps binary run output and returns a reference to it.
type BlobStore interface {
	Put(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// RunFunc observes job run snapshots.
type RunFunc func(run domain.JobRun)

type RunnerOption func(*Runner)

// WithProgressInterval sets the simulated progress tick.
func WithProgressInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBlobStore enables binary run output.
func WithBlobStore(b BlobStore) RunnerOption {
	return func(r *Runner) { r.blobs = b }
}

// OnStart is called once per run when it enters Processing.
func OnStart(fn RunFunc) RunnerOption {
	return func(r *Runner) { r.onStart = fn }
}

// OnUpdate is called on every change of the current run: start, each
// progress tick and the terminal state.
func OnUpdate(fn RunFunc) RunnerOption {
	return func(r *Runner) { r.onUpdate = fn }
}

// Runner owns the job run of one workflow. At most one run is processing at
// a time; a new submit from a terminal state replaces the previous run.
type Runner struct {
	runs     ModelRunner
	blobs    BlobStore
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	onStart  RunFunc
	onUpdate RunFunc

	mu     sync.Mutex
	cur    domain.JobRun
	cancel context.CancelFunc
}

func NewRunner(runs ModelRunner, opts ...RunnerOption) *Runner {
	r := &Runner{
		runs:     runs,
		interval: DefaultProgressInterval,
		logger:   slog.Default(),
		tracer:   tracing.Tracer("workflow"),
		now:      time.Now,
		cur:      domain.JobRun{State: domain.RunIdle},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Current returns a snapshot of the current run.
func (r *Runner) Current() domain.JobRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// Run starts a run and blocks until it settles.
func (r *Runner) Run(ctx context.Context, modelID string, inputs map[string]any) (domain.JobRun, error) {
	_, done, err := r.Start(ctx, modelID, inputs)
	if err != nil {
		return r.Current(), err
	}
	// The run observes ctx, so cancellation settles it as Failed.
	run := <-done
	if run.State == domain.RunIdle {
		return run, domain.ErrStopped
	}
	return run, nil
}

// Start moves the runner into Processing and executes the run in the
// background. done yields the settled run exactly once. A run that is
// already processing yields domain.ErrRunInProgress.
func (r *Runner) Start(ctx context.Context, modelID string, inputs map[string]any) (domain.JobRun, <-chan domain.JobRun, error) {
	r.mu.Lock()
	next, ok := Next(r.cur.State, EventSubmit)
	if !ok {
		r.mu.Unlock()
		return domain.JobRun{}, nil, domain.ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := domain.JobRun{
		ID:        uuid.NewString(),
		ModelID:   modelID,
		Inputs:    inputs,
		State:     next,
		Progress:  0,
		StartedAt: r.now().UTC(),
	}
	r.cur = run
	r.cancel = cancel
	onStart, onUpdate := r.onStart, r.onUpdate
	r.mu.Unlock()

	metrics.RunStartedTotal.WithLabelValues(modelID).Inc()
	r.logger.Info("job run started", "run_id", run.ID, "model", modelID)
	if onStart != nil {
		onStart(run)
	}
	if onUpdate != nil {
		onUpdate(run)
	}

	done := make(chan domain.JobRun, 1)
	go func() {
		defer cancel()
		done <- r.execute(runCtx, run)
	}()
	return run, done, nil
}

// Reset discards the current run and cancels any in-flight call. The
// discarded run settles as Idle.
func (r *Runner) Reset() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	next, _ := Next(r.cur.State, EventReset)
	r.cur = domain.JobRun{State: next}
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) execute(ctx context.Context, run domain.JobRun) domain.JobRun {
	ctx, span := r.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("modelhub.model_id", run.ModelID),
		attribute.String("modelhub.run_id", run.ID),
	))
	defer span.End()

	out, err := r.callWithProgress(ctx, run)

	var (
		result *domain.Result
		info   *domain.ErrorInfo
	)
	if err == nil {
		result, err = r.materialise(ctx, run, out)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e := ErrorInfoFrom(err)
		info = &e
	}
	return r.settle(run, result, info)
}

// callWithProgress runs the collaborator call while a ticker advances the
// simulated progress. The ticker is stopped and joined before returning.
func (r *Runner) callWithProgress(ctx context.Context, run domain.JobRun) (*domain.RunOutput, error) {
	tickCtx, stopTicker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.tick(tickCtx, run.ID)
	}()
	defer func() {
		stopTicker()
		wg.Wait()
	}()
	return r.runs.RunModel(ctx, run.ModelID, run.Inputs)
}

func (r *Runner) tick(ctx context.Context, id string) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		r.mu.Lock()
		if r.cur.ID != id || r.cur.State != domain.RunProcessing {
			r.mu.Unlock()
			return
		}
		r.cur.Progress = StepProgress(r.cur.Progress)
		snap := r.cur
		onUpdate := r.onUpdate
		r.mu.Unlock()
		if onUpdate != nil {
			onUpdate(snap)
		}
	}
}

// materialise turns the collaborator output into a result reference.
func (r *Runner) materialise(ctx context.Context, run domain.JobRun, out *domain.RunOutput) (*domain.Result, error) {
	switch {
	case out == nil:
		return nil, errors.New("no result returned")
	case out.ImageURL != "":
		return &domain.Result{URL: out.ImageURL, ContentType: out.ContentType}, nil
	case len(out.Data) > 0:
		if r.blobs == nil {
			return nil, errors.New("binary result but no blob store configured")
		}
		ref, err := r.blobs.Put(ctx, "runs/"+run.ID, out.ContentType, out.Data)
		if err != nil {
			return nil, fmt.Errorf("store result: %w", err)
		}
		return &domain.Result{URL: ref, ContentType: out.ContentType, Local: true}, nil
	}
	return nil, errors.New("no result returned")
}

func (r *Runner) settle(run domain.JobRun, result *domain.Result, info *domain.ErrorInfo) domain.JobRun {
	event := EventSucceed
	if info != nil {
		event = EventFail
	}
	finished := r.now().UTC()

	r.mu.Lock()
	if r.cur.ID != run.ID {
		// Discarded by Reset; the workflow already moved on.
		r.mu.Unlock()
		r.logger.Debug("job run discarded", "run_id", run.ID, "model", run.ModelID)
		return domain.JobRun{State: domain.RunIdle}
	}
	next, _ := Next(r.cur.State, event)
	r.cur.State = next
	r.cur.Result = result
	r.cur.Error = info
	r.cur.FinishedAt = finished
	r.cancel = nil
	snap := r.cur
	onUpdate := r.onUpdate
	r.mu.Unlock()

	state := "succeeded"
	if info != nil {
		state = "failed"
		r.logger.Warn("job run failed", "run_id", run.ID, "model", run.ModelID, "message", info.Message, "details", info.Details)
	} else {
		r.logger.Info("job run succeeded", "run_id", run.ID, "model", run.ModelID, "local", result.Local)
	}
	metrics.RunFinishedTotal.WithLabelValues(run.ModelID, state).Inc()
	metrics.RunLatencySeconds.WithLabelValues(run.ModelID, state).Observe(finished.Sub(run.StartedAt).Seconds())
	if onUpdate != nil {
		onUpdate(snap)
	}
	return snap
}

// ErrorInfoFrom builds the user-facing error of a failed run: the server
// message, else the server detail, else a generic text. Details carry the
// server detail or the underlying error.
func ErrorInfoFrom(err error) domain.ErrorInfo {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		info := domain.ErrorInfo{Message: apiErr.Message, Details: apiErr.Detail}
		switch {
		case info.Message == "" && apiErr.Detail != "":
			info.Message = apiErr.Detail
			info.Details = ""
		case info.Message == "":
			info.Message = genericRunError
			info.Details = fmt.Sprintf("Request failed with status code %d", apiErr.Status)
		}
		return info
	}
	if err == nil {
		return domain.ErrorInfo{Message: genericRunError}
	}
	return domain.ErrorInfo{Message: genericRunError, Details: err.Error()}
}
