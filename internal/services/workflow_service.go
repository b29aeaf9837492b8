package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/osvaldoandrade/modelhub/pkg/workflow"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowService keeps the workflow instances of the local shell. Each
// instance is isolated; the service only indexes them by id.
type WorkflowService interface {
	Start(ctx context.Context, modelID, imageURL string) (*workflow.Workflow, error)
	Get(id string) (*workflow.Workflow, error)
	Stop(id string) error
	Chain(ctx context.Context, id, modelID string) (*workflow.Workflow, error)
	List() []string
	CleanupIdle(idle time.Duration, now time.Time) int
	StopAll()
}

type workflowEntry struct {
	wf       *workflow.Workflow
	lastSeen time.Time
}

type workflowService struct {
	deps   workflow.Deps
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*workflowEntry
}

func NewWorkflowService(deps workflow.Deps, logger *slog.Logger, now func() time.Time) WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &workflowService{deps: deps, logger: logger, now: now, entries: map[string]*workflowEntry{}}
}

func (s *workflowService) Start(ctx context.Context, modelID, imageURL string) (*workflow.Workflow, error) {
	var opts []workflow.Option
	if imageURL != "" {
		opts = append(opts, workflow.WithHandoff(imageURL))
	}
	wf := workflow.New(modelID, s.deps, opts...)
	if err := wf.Start(ctx); err != nil {
		wf.Stop()
		return nil, err
	}
	s.add(wf)
	return wf, nil
}

func (s *workflowService) add(wf *workflow.Workflow) {
	s.mu.Lock()
	s.entries[wf.ID()] = &workflowEntry{wf: wf, lastSeen: s.now()}
	s.mu.Unlock()
	s.logger.Info("workflow started", "workflow_id", wf.ID(), "model", wf.ModelID())
}

func (s *workflowService) Get(id string) (*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	e.lastSeen = s.now()
	return e.wf, nil
}

func (s *workflowService) Stop(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return ErrWorkflowNotFound
	}
	e.wf.Stop()
	s.logger.Info("workflow stopped", "workflow_id", id)
	return nil
}

// Chain starts a new instance for modelID seeded with the result of id.
// The source instance keeps running.
func (s *workflowService) Chain(ctx context.Context, id, modelID string) (*workflow.Workflow, error) {
	src, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	next, err := src.ChainTo(ctx, modelID)
	if err != nil {
		return nil, err
	}
	s.add(next)
	return next, nil
}

func (s *workflowService) List() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CleanupIdle stops instances not touched for idle and returns how many.
func (s *workflowService) CleanupIdle(idle time.Duration, now time.Time) int {
	var stale []*workflowEntry
	s.mu.Lock()
	for id, e := range s.entries {
		if now.Sub(e.lastSeen) >= idle {
			stale = append(stale, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
	for _, e := range stale {
		e.wf.Stop()
	}
	return len(stale)
}

func (s *workflowService) StopAll() {
	s.mu.Lock()
	entries := s.entries
	s.entries = map[string]*workflowEntry{}
	s.mu.Unlock()
	for _, e := range entries {
		e.wf.Stop()
	}
}
